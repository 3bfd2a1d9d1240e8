package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "l10nsync.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "l10nsync.yml"

// LoadFromDir loads the hierarchy from the config file in dir.
// Returns nil, nil if no config file is found (not an error condition).
func LoadFromDir(dir string) (*HierarchyConfig, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}

	var cfg HierarchyConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.ExpandSecrets()
	cfg.WorkspaceDir = ResolvePath(cfg.WorkspaceDir, dir)
	return &cfg, nil
}

// FindConfigFile returns the config file in dir, or "" when there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the directory holding a config
// file. Returns "" if none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolvePath resolves p against baseDir unless it is empty or absolute.
func ResolvePath(p, baseDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${VAR} with the variable's value. Unset variables are
// left as written.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// ExpandSecrets expands environment references in credentials.
func (h *HierarchyConfig) ExpandSecrets() {
	for i := range h.Projects {
		for j := range h.Projects[i].Components {
			a := &h.Projects[i].Components[j].Auth
			a.Username = ExpandEnv(a.Username)
			a.Password = ExpandEnv(a.Password)
			a.SSHKeyPath = ExpandEnv(a.SSHKeyPath)
			a.SSHPassphrase = ExpandEnv(a.SSHPassphrase)
		}
	}
}
