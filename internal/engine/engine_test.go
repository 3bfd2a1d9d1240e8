package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/config"
	"github.com/leapstack-labs/l10nsync/internal/testutil"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

type fixture struct {
	engine    *Engine
	upstreams map[string]string
	published *recordingPublisher
}

// setupEngine builds project "demo" with an enabled component "app" and a
// disabled component "legacy", each with its own upstream.
func setupEngine(t *testing.T, guard access.Guard) *fixture {
	t.Helper()
	upstreams := map[string]string{
		"app":    testutil.NewUpstream(t, map[string]string{"locale/en.json": "{\n  \"hello\": \"Hello\"\n}\n", "locale/fr.json": "{}\n"}),
		"legacy": testutil.NewUpstream(t, map[string]string{"locale/de.json": "{}\n"}),
	}
	off := false
	pub := &recordingPublisher{}

	eng, err := New(Config{
		StatePath: ":memory:",
		Hierarchy: config.HierarchyConfig{
			WorkspaceDir: filepath.Join(t.TempDir(), "repos"),
			Sync:         config.SyncConfig{AuthorName: "l10nsync", AuthorEmail: "bot@example.com"},
			Projects: []config.ProjectConfig{{
				Slug: "demo",
				Components: []config.ComponentConfig{
					{Slug: "app", Repo: upstreams["app"], FileMask: "locale/*.json"},
					{Slug: "legacy", Repo: upstreams["legacy"], FileMask: "locale/*.json", Enabled: &off},
				},
			}},
		},
		Guard:     guard,
		Publisher: pub,
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	failed, err := eng.Prepare(context.Background())
	require.NoError(t, err)
	require.Empty(t, failed)

	return &fixture{engine: eng, upstreams: upstreams, published: pub}
}

func TestEngine_EditCommitPush(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()
	fr := core.TranslationPath("demo", "app", "fr")

	n, err := f.engine.RecordEdits(ctx, "ana", fr, map[string]string{"hello": "Bonjour"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := f.engine.Status(ctx, "ana", fr)
	require.NoError(t, err)
	require.NotNil(t, st.Translation)
	assert.True(t, st.Translation.Pending)
	assert.Equal(t, []string{"hello"}, st.Translation.PendingKeys)

	out, err := f.engine.Run(ctx, "ana", core.OpPush, core.ProjectPath("demo"))
	require.NoError(t, err)
	require.True(t, out.Success, out.Summary)
	assert.Equal(t, "push succeeded for 1 of 1 components", out.Summary)

	assert.Equal(t, "{\n  \"hello\": \"Bonjour\"\n}\n", testutil.ReadUpstream(t, f.upstreams["app"], "locale/fr.json"))
	log := testutil.UpstreamLog(t, f.upstreams["app"])
	require.Len(t, log, 2)
	assert.Contains(t, log[0], "Translated using l10nsync (fr)")
	assert.Contains(t, log[0], "Translation: demo/app")

	st, err = f.engine.Status(ctx, "ana", fr)
	require.NoError(t, err)
	assert.False(t, st.Translation.Pending)
}

func TestEngine_RecordsHistoryAndPublishes(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	out, err := f.engine.Run(ctx, "ana", core.OpCommit, core.ComponentPath("demo", "app"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "nothing to commit", out.Summary)

	runs, err := f.engine.History(ctx, "ana", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "demo/app", runs[0].Node)
	assert.Equal(t, core.OpCommit, runs[0].Operation)
	assert.Equal(t, "ana", runs[0].Caller)
	assert.Equal(t, core.RunStatusSucceeded, runs[0].Status)

	detail, err := f.engine.GetRun(ctx, "ana", runs[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, "nothing to commit", detail.Results[0].Summary)

	events := f.published.Events()
	require.Len(t, events, 1)
	assert.Equal(t, runs[0].ID, events[0].RunID)
	assert.Equal(t, "demo/app", events[0].Outcome.Node.String())
}

func TestEngine_UpdateConflictIsSoftFailure(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()
	fr := core.TranslationPath("demo", "app", "fr")

	testutil.PushFiles(t, f.upstreams["app"], "upstream edit", map[string]string{
		"locale/fr.json": "{\n  \"hello\": \"Salut\"\n}\n",
	})
	_, err := f.engine.RecordEdits(ctx, "ana", fr, map[string]string{"hello": "Bonjour"})
	require.NoError(t, err)

	out, err := f.engine.Run(ctx, "ana", core.OpUpdate, core.ProjectPath("demo"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Summary, "demo/app")
	require.Len(t, out.Children, 1)
	assert.Equal(t, core.CodeConflict, out.Children[0].Code)
	assert.Equal(t, []string{"locale/fr.json"}, out.Children[0].Files)

	runs, err := f.engine.History(ctx, "ana", 1)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, runs[0].Status)

	// Resetting to upstream clears the conflict.
	reset, err := f.engine.Run(ctx, "ana", core.OpReset, core.ComponentPath("demo", "app"))
	require.NoError(t, err)
	assert.True(t, reset.Success, reset.Summary)

	update, err := f.engine.Run(ctx, "ana", core.OpUpdate, fr)
	require.NoError(t, err)
	assert.True(t, update.Success, update.Summary)
	assert.Equal(t, "demo/app/fr", update.Node.String())

	st, err := f.engine.Status(ctx, "ana", fr)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Translation.Messages)
}

func TestEngine_LookupAndAccess(t *testing.T) {
	guard, err := access.NewPolicyGuard(nil, []access.Grant{
		{User: "bob", Projects: []string{"demo"}, Capabilities: []string{"commit"}},
	})
	require.NoError(t, err)
	f := setupEngine(t, guard)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  string
		op      core.Operation
		node    core.NodePath
		wantErr error
	}{
		{name: "granted", caller: "bob", op: core.OpCommit, node: core.ProjectPath("demo")},
		{name: "missing capability", caller: "bob", op: core.OpPush, node: core.ProjectPath("demo"), wantErr: core.ErrForbidden},
		{name: "anonymous", caller: "", op: core.OpCommit, node: core.ProjectPath("demo"), wantErr: core.ErrForbidden},
		{name: "unknown project", caller: "bob", op: core.OpCommit, node: core.ProjectPath("other"), wantErr: core.ErrNotFound},
		{name: "unknown component", caller: "bob", op: core.OpCommit, node: core.ComponentPath("demo", "x"), wantErr: core.ErrNotFound},
		{name: "disabled component", caller: "bob", op: core.OpCommit, node: core.ComponentPath("demo", "legacy")},
		{name: "translation of disabled component", caller: "bob", op: core.OpCommit, node: core.TranslationPath("demo", "legacy", "de"), wantErr: core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.engine.Run(ctx, tt.caller, tt.op, tt.node)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, out.Success, out.Summary)
		})
	}

	_, err = f.engine.RecordEdits(ctx, "bob", core.TranslationPath("demo", "app", "fr"), map[string]string{"a": "b"})
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.engine.RecordEdits(ctx, "bob", core.ComponentPath("demo", "app"), map[string]string{"a": "b"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Denied requests are not recorded.
	runs, err := f.engine.History(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEngine_StatusViews(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	overview := f.engine.Overview(ctx, "ana")
	require.Len(t, overview, 1)
	require.Len(t, overview[0].Components, 2)
	assert.False(t, overview[0].Components[1].Enabled)

	st, err := f.engine.Status(ctx, "ana", core.ComponentPath("demo", "app"))
	require.NoError(t, err)
	require.NotNil(t, st.Component)
	assert.Empty(t, st.Component.Error)
	assert.False(t, st.Component.Repo.Dirty)
	require.Len(t, st.Component.Units, 2)
	assert.Equal(t, "en", st.Component.Units[0].Language)
	assert.Equal(t, 1, st.Component.Units[0].Messages)

	st, err = f.engine.Status(ctx, "ana", core.ProjectPath("demo"))
	require.NoError(t, err)
	require.NotNil(t, st.Project)
	assert.Nil(t, st.Component)

	_, err = f.engine.Status(ctx, "ana", core.ProjectPath("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngine_ReadsAreFilteredByGrants(t *testing.T) {
	guard, err := access.NewPolicyGuard(nil, []access.Grant{
		{User: "ana", Projects: []string{"*"}, Capabilities: []string{access.Any}},
		{User: "bob", Projects: []string{"web"}, Capabilities: []string{"commit"}},
	})
	require.NoError(t, err)

	files := map[string]string{"locale/fr.json": "{}\n"}
	eng, err := New(Config{
		StatePath: ":memory:",
		Hierarchy: config.HierarchyConfig{
			WorkspaceDir: filepath.Join(t.TempDir(), "repos"),
			Projects: []config.ProjectConfig{
				{Slug: "demo", Components: []config.ComponentConfig{
					{Slug: "app", Repo: testutil.NewUpstream(t, files), FileMask: "locale/*.json"},
				}},
				{Slug: "web", Components: []config.ComponentConfig{
					{Slug: "site", Repo: testutil.NewUpstream(t, files), FileMask: "locale/*.json"},
				}},
			},
		},
		Guard:  guard,
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()
	failed, err := eng.Prepare(ctx)
	require.NoError(t, err)
	require.Empty(t, failed)

	// One visible run, then more hidden runs than the requested page.
	_, err = eng.Run(ctx, "bob", core.OpCommit, core.ProjectPath("web"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = eng.Run(ctx, "ana", core.OpCommit, core.ProjectPath("demo"))
		require.NoError(t, err)
	}
	all, err := eng.History(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	var hidden string
	for _, run := range all {
		if run.Node == "demo" {
			hidden = run.ID
		}
	}

	runs, err := eng.History(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "web", runs[0].Node)

	_, err = eng.GetRun(ctx, "bob", hidden)
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = eng.GetRun(ctx, "bob", runs[0].ID)
	assert.NoError(t, err)

	overview := eng.Overview(ctx, "bob")
	require.Len(t, overview, 1)
	assert.Equal(t, "web", overview[0].Node)
	assert.Empty(t, eng.Overview(ctx, ""))

	_, err = eng.Status(ctx, "bob", core.ComponentPath("demo", "app"))
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = eng.Status(ctx, "bob", core.ComponentPath("demo", "missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = eng.Status(ctx, "bob", core.TranslationPath("web", "site", "fr"))
	assert.NoError(t, err)

	assert.True(t, eng.CanView(ctx, "bob", core.ProjectPath("web")))
	assert.False(t, eng.CanView(ctx, "bob", core.ProjectPath("demo")))
}

func TestNew_InvalidHierarchy(t *testing.T) {
	_, err := New(Config{
		StatePath: ":memory:",
		Hierarchy: config.HierarchyConfig{Projects: []config.ProjectConfig{{Slug: "demo", Components: []config.ComponentConfig{{Slug: "app"}}}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo is required")
}
