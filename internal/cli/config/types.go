// Package config provides configuration management for the l10nsync CLI.
//
// The hierarchy, sync, access and server sections reuse the shared types
// from internal/config; this package adds CLI concerns (state path, logging,
// output mode) and the layered loading of file, environment and flags.
package config

import (
	intconfig "github.com/leapstack-labs/l10nsync/internal/config"
)

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string                    `koanf:"state_path"`
	WorkspaceDir string                    `koanf:"workspace_dir"`
	LogLevel     string                    `koanf:"log_level"`
	LogFormat    string                    `koanf:"log_format"`
	OutputFormat string                    `koanf:"output"`
	Server       intconfig.ServerConfig    `koanf:"server"`
	Sync         intconfig.SyncConfig      `koanf:"sync"`
	Access       intconfig.AccessConfig    `koanf:"access"`
	Projects     []intconfig.ProjectConfig `koanf:"projects"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// Hierarchy returns the part of the config the registry is built from.
func (c *Config) Hierarchy() intconfig.HierarchyConfig {
	return intconfig.HierarchyConfig{
		WorkspaceDir: c.WorkspaceDir,
		Sync:         c.Sync,
		Projects:     c.Projects,
	}
}

// Default configuration values.
const (
	DefaultStateFile = ".l10nsync/state.db"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=json
)
