package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHierarchy() HierarchyConfig {
	h := HierarchyConfig{
		Projects: []ProjectConfig{{
			Slug: "app",
			Components: []ComponentConfig{{
				Slug:      "ui",
				Repo:      "https://example.com/ui.git",
				FileMask:  "locale/*.json",
				Languages: []string{"fr", "pt-BR"},
			}},
		}},
	}
	h.ApplyDefaults()
	return h
}

func TestApplyDefaults(t *testing.T) {
	h := validHierarchy()

	assert.Equal(t, DefaultWorkspaceDir, h.WorkspaceDir)
	assert.Equal(t, DefaultWorkers, h.Sync.Workers)
	assert.Equal(t, "block", h.Sync.LockPolicy)
	assert.Equal(t, DefaultNetworkTimeout, h.Sync.NetworkTimeout)
	assert.Equal(t, "origin", h.Sync.Remote)

	p := h.Projects[0]
	assert.Equal(t, "app", p.Name)
	assert.Equal(t, "ui", p.Components[0].Name)
	assert.Equal(t, "main", p.Components[0].Branch)
	assert.Equal(t, "json", p.Components[0].Format)
	assert.True(t, p.Components[0].IsEnabled())
}

func TestFormatFromMask(t *testing.T) {
	assert.Equal(t, "json", FormatFromMask("locale/*.json"))
	assert.Equal(t, "yaml", FormatFromMask("i18n/*.YML"))
	assert.Equal(t, "yaml", FormatFromMask("i18n/*.yaml"))
	assert.Equal(t, "", FormatFromMask("po/*.po"))
}

func TestHierarchyValidate(t *testing.T) {
	disabled := false
	tests := []struct {
		name    string
		mutate  func(h *HierarchyConfig)
		wantErr []string
	}{
		{name: "valid", mutate: func(*HierarchyConfig) {}},
		{
			name: "disabled component is still valid",
			mutate: func(h *HierarchyConfig) {
				h.Projects[0].Components[0].Enabled = &disabled
			},
		},
		{
			name: "reports every problem",
			mutate: func(h *HierarchyConfig) {
				h.Sync.Workers = 0
				h.Sync.LockPolicy = "spin"
				c := &h.Projects[0].Components[0]
				c.Repo = ""
				c.FileMask = "locale/fr.json"
				c.Format = "po"
				c.Languages = []string{"not a language"}
			},
			wantErr: []string{
				"sync.workers must be positive",
				"sync.lock_policy",
				"repo is required",
				"file_mask",
				"unknown translation format",
				"languages",
			},
		},
		{
			name: "duplicate slugs",
			mutate: func(h *HierarchyConfig) {
				h.Projects[0].Components = append(h.Projects[0].Components, h.Projects[0].Components[0])
				h.Projects = append(h.Projects, h.Projects[0])
			},
			wantErr: []string{`duplicate project "app"`, `duplicate component "ui"`},
		},
		{
			name: "slugs must be single path segments",
			mutate: func(h *HierarchyConfig) {
				h.Projects[0].Slug = "a/b"
				h.Projects[0].Components[0].Slug = ""
			},
			wantErr: []string{`invalid slug "a/b"`, "slug: is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHierarchy()
			tt.mutate(&h)

			err := h.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestAccessValidate(t *testing.T) {
	a := AccessConfig{
		Tokens: map[string]string{"s3cret": "ana"},
		Grants: []GrantConfig{
			{User: "ana", Projects: []string{"*"}, Capabilities: []string{"*"}},
			{User: "bob", Projects: []string{"app-*"}, Capabilities: []string{"commit", "edit"}},
		},
	}
	require.NoError(t, a.Validate())

	a.Grants = append(a.Grants, GrantConfig{Projects: []string{"[a-"}, Capabilities: []string{"deploy"}})
	err := a.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user is required")
	assert.Contains(t, err.Error(), `bad pattern "[a-"`)
	assert.Contains(t, err.Error(), `unknown capability "deploy"`)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("L10NSYNC_TEST_TOKEN", "tok3n")
	content := `workspace_dir: repos
sync:
  workers: 2
  network_timeout: 30s
projects:
  - slug: app
    components:
      - slug: ui
        repo: https://example.com/ui.git
        file_mask: locale/*.yml
        enabled: false
        auth:
          password: ${L10NSYNC_TEST_TOKEN}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o600))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, filepath.Join(dir, "repos"), cfg.WorkspaceDir)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 30*time.Second, cfg.Sync.NetworkTimeout)
	require.Len(t, cfg.Projects, 1)
	c := cfg.Projects[0].Components[0]
	assert.Equal(t, "yaml", c.Format)
	assert.False(t, c.IsEnabled())
	assert.Equal(t, "tok3n", c.Auth.Password)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("projects: []\n"), 0o600))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("L10NSYNC_TEST_USER", "ana")
	assert.Equal(t, "ana:${L10NSYNC_TEST_MISSING}", ExpandEnv("${L10NSYNC_TEST_USER}:${L10NSYNC_TEST_MISSING}"))
}
