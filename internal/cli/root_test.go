package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/l10nsync/internal/cli/config"
	"github.com/leapstack-labs/l10nsync/internal/testutil"
)

type project struct {
	dir      string
	config   string
	upstream string
}

func setupProject(t *testing.T) *project {
	t.Helper()
	upstream := testutil.NewUpstream(t, map[string]string{
		"locale/en.json": "{\n  \"hello\": \"Hello\"\n}\n",
		"locale/fr.json": "{}\n",
	})

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "l10nsync.yaml")
	content := fmt.Sprintf(`state_path: state.db
workspace_dir: repos
projects:
  - slug: demo
    components:
      - slug: app
        repo: %s
        file_mask: locale/*.json
`, upstream)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return &project{dir: dir, config: cfgPath, upstream: upstream}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.ResetConfig)
	cfgFile = ""

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "l10nsync v"+Version)
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "l10nsync")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	p := setupProject(t)
	_, err := execute(t, "--config", p.config, "--log-level", "loud", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestMigrate(t *testing.T) {
	p := setupProject(t)
	out, err := execute(t, "--config", p.config, "-o", "json", "migrate")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(p.dir, "state.db"), got["state_path"])
	assert.EqualValues(t, 2, got["version"])
}

func TestOperationsAndHistory(t *testing.T) {
	p := setupProject(t)

	out, err := execute(t, "--config", p.config, "-o", "text", "push", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "demo: push succeeded for 1 of 1 components")
	assert.Contains(t, out, "demo/app:")

	out, err = execute(t, "--config", p.config, "-o", "json", "commit", "--all")
	require.NoError(t, err)
	var outcomes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "demo", outcomes[0]["node"])
	assert.Equal(t, true, outcomes[0]["success"])

	out, err = execute(t, "--config", p.config, "-o", "json", "history")
	require.NoError(t, err)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "commit", runs[0]["operation"])
	assert.Equal(t, "push", runs[1]["operation"])

	out, err = execute(t, "--config", p.config, "-o", "text", "history", runs[1]["id"].(string))
	require.NoError(t, err)
	assert.Contains(t, out, "demo/app")

	_, err = execute(t, "--config", p.config, "history", "missing")
	assert.Error(t, err)
}

func TestOperationErrors(t *testing.T) {
	p := setupProject(t)

	_, err := execute(t, "--config", p.config, "push")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a node path or --all is required")

	_, err = execute(t, "--config", p.config, "push", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatus(t *testing.T) {
	p := setupProject(t)

	out, err := execute(t, "--config", p.config, "-o", "text", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "demo/app")

	out, err = execute(t, "--config", p.config, "-o", "json", "status", "demo/app/fr")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.Contains(t, st, "translation")
	assert.Equal(t, "demo/app/fr", st["translation"].(map[string]any)["node"])
}
