// Package config provides the hierarchy and synchronizer configuration types
// shared by the CLI, the HTTP server and the hierarchy registry.
// This package is decoupled from CLI concerns (flags, env, output modes).
package config

import "time"

// ProjectConfig declares a project and its components in display order.
type ProjectConfig struct {
	Slug       string            `koanf:"slug"`
	Name       string            `koanf:"name"`
	Components []ComponentConfig `koanf:"components"`
}

// ComponentConfig declares one component: a working copy and its
// translation files.
type ComponentConfig struct {
	Slug   string `koanf:"slug"`
	Name   string `koanf:"name"`
	Repo   string `koanf:"repo"`
	Branch string `koanf:"branch"`

	// FileMask locates translation files inside the working copy, e.g.
	// "locale/*.json". The single "*" stands for the language code.
	FileMask string `koanf:"file_mask"`

	// Format is a registered translation format; inferred from the mask
	// extension when empty.
	Format string `koanf:"format"`

	// Languages are created even before their file exists.
	Languages []string `koanf:"languages"`

	// Enabled defaults to true.
	Enabled *bool `koanf:"enabled"`

	Auth AuthConfig `koanf:"auth"`
}

// IsEnabled reports whether project fan-out includes the component.
func (c ComponentConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AuthConfig holds upstream credentials. Values of the form ${VAR} are
// expanded from the environment.
type AuthConfig struct {
	Username      string `koanf:"username"`
	Password      string `koanf:"password"`
	SSHKeyPath    string `koanf:"ssh_key_path"`
	SSHPassphrase string `koanf:"ssh_passphrase"`
}

// SyncConfig tunes the synchronizer.
type SyncConfig struct {
	Workers        int           `koanf:"workers"`
	LockPolicy     string        `koanf:"lock_policy"`
	NetworkTimeout time.Duration `koanf:"network_timeout"`
	Remote         string        `koanf:"remote"`
	CommitMessage  string        `koanf:"commit_message"`
	AuthorName     string        `koanf:"author_name"`
	AuthorEmail    string        `koanf:"author_email"`
}

// AccessConfig configures the access guard.
type AccessConfig struct {
	// Tokens maps bearer tokens to user names.
	Tokens map[string]string `koanf:"tokens"`
	Grants []GrantConfig     `koanf:"grants"`
}

// GrantConfig gives a user (or "*") capabilities on projects matching
// any of the glob patterns.
type GrantConfig struct {
	User         string   `koanf:"user"`
	Projects     []string `koanf:"projects"`
	Capabilities []string `koanf:"capabilities"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	SessionSecret     string        `koanf:"session_secret"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
}

// HierarchyConfig is the part of the configuration the registry is built from.
type HierarchyConfig struct {
	WorkspaceDir string          `koanf:"workspace_dir"`
	Sync         SyncConfig      `koanf:"sync"`
	Projects     []ProjectConfig `koanf:"projects"`
}
