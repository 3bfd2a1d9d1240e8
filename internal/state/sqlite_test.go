package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/l10nsync/internal/testutil"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedHierarchy(t *testing.T, store *SQLiteStore) {
	t.Helper()
	require.NoError(t, store.SaveProject(&core.ProjectRecord{Slug: "web", Name: "Web", Position: 1}))
	require.NoError(t, store.SaveProject(&core.ProjectRecord{Slug: "app", Name: "App", Position: 0}))
	require.NoError(t, store.SaveComponent(&core.ComponentRecord{
		Project: "app", Slug: "ui", Name: "UI", Repo: "https://example.com/ui.git",
		Branch: "main", FileMask: "locale/*.json", Format: "json", Enabled: true,
	}))
	require.NoError(t, store.SaveComponent(&core.ComponentRecord{
		Project: "app", Slug: "docs", Name: "Docs", Repo: "https://example.com/docs.git",
		Branch: "main", FileMask: "po/*.yml", Format: "yaml", Enabled: false, Position: 1,
	}))
	require.NoError(t, store.SaveTranslation(&core.TranslationRecord{Project: "app", Component: "ui", Language: "fr", Path: "locale/fr.json"}))
	require.NoError(t, store.SaveTranslation(&core.TranslationRecord{Project: "app", Component: "ui", Language: "de", Path: "locale/de.json"}))
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	assert.Equal(t, ":memory:", store.Path())
	require.NoError(t, store.Close())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	assert.Error(t, store.Migrate())
	_, err := store.ListProjects()
	assert.Error(t, err)
	_, err = store.CreateRun(core.ProjectPath("app"), core.OpCommit, "ana")
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"projects", "components", "translations", "sync_runs", "sync_run_results"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, table)
		_ = rows.Close()
	}

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// Migrating again is a no-op.
	require.NoError(t, store.Migrate())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate())
	require.NoError(t, store.SaveProject(&core.ProjectRecord{Slug: "app", Name: "App"}))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()

	projects, err := reopened.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "App", projects[0].Name)
}

// =============================================================================
// Hierarchy
// =============================================================================

func TestSQLiteStore_Hierarchy(t *testing.T) {
	store := setupTestStore(t)
	seedHierarchy(t, store)

	projects, err := store.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "app", projects[0].Slug)
	assert.Equal(t, "web", projects[1].Slug)
	assert.False(t, projects[0].UpdatedAt.IsZero())

	components, err := store.ListComponents("app")
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, "ui", components[0].Slug)
	assert.True(t, components[0].Enabled)
	assert.Equal(t, "docs", components[1].Slug)
	assert.False(t, components[1].Enabled)
	assert.Equal(t, "po/*.yml", components[1].FileMask)

	translations, err := store.ListTranslations("app", "ui")
	require.NoError(t, err)
	require.Len(t, translations, 2)
	assert.Equal(t, "de", translations[0].Language)
	assert.Equal(t, "locale/fr.json", translations[1].Path)
}

func TestSQLiteStore_SaveIsUpsert(t *testing.T) {
	store := setupTestStore(t)
	seedHierarchy(t, store)

	require.NoError(t, store.SaveComponent(&core.ComponentRecord{
		Project: "app", Slug: "ui", Name: "Interface", Repo: "https://example.com/ui.git",
		Branch: "develop", FileMask: "locale/*.json", Format: "json", Enabled: false,
	}))

	components, err := store.ListComponents("app")
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, "Interface", components[0].Name)
	assert.Equal(t, "develop", components[0].Branch)
	assert.False(t, components[0].Enabled)
}

func TestSQLiteStore_ComponentRequiresProject(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveComponent(&core.ComponentRecord{Project: "missing", Slug: "ui", Name: "UI", Branch: "main", FileMask: "*.json", Format: "json"})
	assert.Error(t, err)
}

func TestSQLiteStore_PruneProjects(t *testing.T) {
	store := setupTestStore(t)
	seedHierarchy(t, store)

	removed, err := store.PruneProjects([]string{"web"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	projects, err := store.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "web", projects[0].Slug)

	components, err := store.ListComponents("app")
	require.NoError(t, err)
	assert.Empty(t, components)

	translations, err := store.ListTranslations("app", "ui")
	require.NoError(t, err)
	assert.Empty(t, translations)
}

// =============================================================================
// Runs
// =============================================================================

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name        string
		outcome     core.Outcome
		wantStatus  core.RunStatus
		wantResults []core.RunResult
	}{
		{
			name: "component success",
			outcome: core.Succeeded(core.ComponentPath("app", "ui"), core.OpCommit, "committed 1 file (abc1234)"),
			wantStatus: core.RunStatusSucceeded,
			wantResults: []core.RunResult{
				{Node: "app/ui", Success: true, Summary: "committed 1 file (abc1234)"},
			},
		},
		{
			name: "project partial failure",
			outcome: core.Aggregate(core.ProjectPath("app"), core.OpUpdate, []core.Outcome{
				core.Succeeded(core.ComponentPath("app", "ui"), core.OpUpdate, "already up to date"),
				core.Failed(core.ComponentPath("app", "docs"), core.OpUpdate, "update needs manual conflict resolution",
					&core.ConflictError{Files: []string{"po/fr.yml"}}),
			}),
			wantStatus: core.RunStatusFailed,
			wantResults: []core.RunResult{
				{Node: "app/ui", Success: true, Summary: "already up to date"},
				{Node: "app/docs", Success: false, Code: core.CodeConflict,
					Summary: "update needs manual conflict resolution: merge conflict in po/fr.yml"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun(tt.outcome.Node, tt.outcome.Operation, "ana")
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, core.RunStatusRunning, run.Status)

			require.NoError(t, store.CompleteRun(run.ID, tt.outcome))

			got, err := store.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.outcome.Summary, got.Summary)
			assert.Equal(t, tt.outcome.Node.String(), got.Node)
			assert.Equal(t, tt.outcome.Operation, got.Operation)
			assert.Equal(t, "ana", got.Caller)
			require.NotNil(t, got.CompletedAt)

			results, err := store.GetRunResults(run.ID)
			require.NoError(t, err)
			require.Len(t, results, len(tt.wantResults))
			for i, want := range tt.wantResults {
				assert.Equal(t, run.ID, results[i].RunID)
				assert.Equal(t, want.Node, results[i].Node)
				assert.Equal(t, want.Success, results[i].Success)
				assert.Equal(t, want.Code, results[i].Code)
				assert.Equal(t, want.Summary, results[i].Summary)
			}
		})
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = store.CompleteRun("missing", core.Succeeded(core.ProjectPath("app"), core.OpPush, "ok"))
	assert.Error(t, err)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.CreateRun(core.ProjectPath("app"), core.OpPush, "ana")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Nil(t, runs[0].CompletedAt)

	all, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
