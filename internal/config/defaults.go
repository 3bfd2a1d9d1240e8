package config

import (
	"path"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultWorkspaceDir      = ".l10nsync/repos"
	DefaultBranch            = "main"
	DefaultRemote            = "origin"
	DefaultWorkers           = 4
	DefaultLockPolicy        = "block"
	DefaultNetworkTimeout    = 2 * time.Minute
	DefaultAuthorName        = "l10nsync"
	DefaultAuthorEmail       = "l10nsync@localhost"
	DefaultServerAddr        = ":8765"
	DefaultReadHeaderTimeout = 10 * time.Second
)

// ApplyDefaults fills unset sync values.
func (s *SyncConfig) ApplyDefaults() {
	if s.Workers == 0 {
		s.Workers = DefaultWorkers
	}
	if s.LockPolicy == "" {
		s.LockPolicy = DefaultLockPolicy
	}
	if s.NetworkTimeout == 0 {
		s.NetworkTimeout = DefaultNetworkTimeout
	}
	if s.Remote == "" {
		s.Remote = DefaultRemote
	}
	if s.AuthorName == "" {
		s.AuthorName = DefaultAuthorName
	}
	if s.AuthorEmail == "" {
		s.AuthorEmail = DefaultAuthorEmail
	}
}

// ApplyDefaults fills unset server values.
func (s *ServerConfig) ApplyDefaults() {
	if s.Addr == "" {
		s.Addr = DefaultServerAddr
	}
	if s.ReadHeaderTimeout == 0 {
		s.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
}

// ApplyDefaults fills component names, branches and formats.
func (p *ProjectConfig) ApplyDefaults() {
	if p.Name == "" {
		p.Name = p.Slug
	}
	for i := range p.Components {
		c := &p.Components[i]
		if c.Name == "" {
			c.Name = c.Slug
		}
		if c.Branch == "" {
			c.Branch = DefaultBranch
		}
		if c.Format == "" {
			c.Format = FormatFromMask(c.FileMask)
		}
	}
}

// ApplyDefaults applies defaults to the sync settings and every project.
func (h *HierarchyConfig) ApplyDefaults() {
	if h.WorkspaceDir == "" {
		h.WorkspaceDir = DefaultWorkspaceDir
	}
	h.Sync.ApplyDefaults()
	for i := range h.Projects {
		h.Projects[i].ApplyDefaults()
	}
}

// FormatFromMask infers the format name from the mask extension.
func FormatFromMask(mask string) string {
	switch strings.ToLower(path.Ext(mask)) {
	case ".json":
		return "json"
	case ".yml", ".yaml":
		return "yaml"
	default:
		return ""
	}
}
