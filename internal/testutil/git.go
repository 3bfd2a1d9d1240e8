package testutil

import (
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// NewUpstream creates a bare repository whose main branch holds files in
// one commit. go-git's file transport runs git-upload-pack and
// git-receive-pack against it, so the test is skipped without a git binary.
func NewUpstream(t testing.TB, files map[string]string) string {
	t.Helper()
	RequireGit(t)

	bare := filepath.Join(t.TempDir(), "upstream.git")
	_, err := git.PlainInitWithOptions(bare, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	})
	require.NoError(t, err)

	PushFiles(t, bare, "initial", files)
	return bare
}

// RequireGit skips the test when the git binary is not installed.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not found; file transport needs git-upload-pack")
	}
}

// PushFiles commits files to upstream's main branch from a throwaway clone,
// the way another contributor would.
func PushFiles(t testing.TB, upstream, message string, files map[string]string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "contributor")
	repo, err := git.PlainClone(path, false, &git.CloneOptions{URL: upstream})
	if err != nil {
		// Empty upstream: start a fresh history.
		repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		})
		require.NoError(t, err)
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{upstream}})
		require.NoError(t, err)
	}
	wt, err := repo.Worktree()
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		require.NoError(t, util.WriteFile(wt.Filesystem, name, []byte(files[name]), 0o644))
	}
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "contributor", Email: "contributor@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	require.NoError(t, repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"refs/heads/main:refs/heads/main"},
	}))
}

// ReadUpstream returns the content of name at the tip of upstream's main
// branch, or "" when the file does not exist.
func ReadUpstream(t testing.TB, upstream, name string) string {
	t.Helper()
	repo, err := git.PlainOpen(upstream)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	f, err := commit.File(name)
	if err != nil {
		return ""
	}
	content, err := f.Contents()
	require.NoError(t, err)
	return content
}

// UpstreamLog returns the commit messages of upstream's main branch,
// newest first.
func UpstreamLog(t testing.TB, upstream string) []string {
	t.Helper()
	repo, err := git.PlainOpen(upstream)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	require.NoError(t, err)

	var messages []string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		messages = append(messages, c.Message)
		return nil
	}))
	return messages
}
