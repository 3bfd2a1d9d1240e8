// Package vcs drives on-disk git working copies with go-git.
//
// A GitRepository wraps exactly one working copy. None of its methods are
// safe for concurrent use; callers serialize access with the Lock returned
// by LockSet.For for the same path.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

const (
	// DefaultRemoteName is the remote used when Options.Remote is empty.
	DefaultRemoteName = "origin"

	// DefaultBranch is the branch tracked when Options.Branch is empty.
	DefaultBranch = "main"

	// DefaultNetworkTimeout bounds fetch, push and clone.
	DefaultNetworkTimeout = 2 * time.Minute
)

// AuthConfig holds credentials for the upstream repository.
type AuthConfig struct {
	Username         string
	Password         string
	SSHKeyPath       string
	SSHKeyPassphrase string
}

// method resolves the go-git auth method. A nil method means anonymous access.
func (a AuthConfig) method() (transport.AuthMethod, error) {
	switch {
	case a.SSHKeyPath != "":
		user := a.Username
		if user == "" {
			user = "git"
		}
		keys, err := gitssh.NewPublicKeysFromFile(user, a.SSHKeyPath, a.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load ssh key %s: %w", a.SSHKeyPath, err)
		}
		return keys, nil
	case a.Password != "":
		user := a.Username
		if user == "" {
			// Token auth accepts any non-empty username.
			user = "l10nsync"
		}
		return &githttp.BasicAuth{Username: user, Password: a.Password}, nil
	default:
		return nil, nil
	}
}

// Options configures a working copy.
type Options struct {
	// Path is the working copy directory.
	Path string

	// URL is the upstream repository, used to clone when Path holds no repository.
	URL string

	// Remote defaults to DefaultRemoteName.
	Remote string

	// Branch defaults to DefaultBranch.
	Branch string

	Auth AuthConfig

	// NetworkTimeout bounds fetch, push and clone. Defaults to DefaultNetworkTimeout.
	NetworkTimeout time.Duration

	// Committer signs merge commits and is the committer of every commit.
	Committer core.Signature

	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Remote == "" {
		o.Remote = DefaultRemoteName
	}
	if o.Branch == "" {
		o.Branch = DefaultBranch
	}
	if o.NetworkTimeout == 0 {
		o.NetworkTimeout = DefaultNetworkTimeout
	}
	if o.Committer.Name == "" {
		o.Committer.Name = "l10nsync"
	}
	if o.Committer.Email == "" {
		o.Committer.Email = "l10nsync@localhost"
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// GitRepository is the VCS adapter for one working copy.
type GitRepository struct {
	repo      *git.Repository
	worktree  *git.Worktree
	path      string
	remote    string
	branch    string
	auth      transport.AuthMethod
	timeout   time.Duration
	committer core.Signature
	logger    *slog.Logger
}

// Open opens the working copy at opts.Path, cloning opts.URL into it when
// no repository exists yet.
func Open(ctx context.Context, opts Options) (*GitRepository, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("working copy path is required")
	}
	opts.applyDefaults()

	auth, err := opts.Auth.method()
	if err != nil {
		return nil, err
	}

	r := &GitRepository{
		path:      opts.Path,
		remote:    opts.Remote,
		branch:    opts.Branch,
		auth:      auth,
		timeout:   opts.NetworkTimeout,
		committer: opts.Committer,
		logger:    opts.Logger.With("working_copy", opts.Path),
	}

	repo, err := git.PlainOpen(opts.Path)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		if opts.URL == "" {
			return nil, core.WrapErrorf(core.ErrVCS, "no repository at %s and no upstream url", opts.Path)
		}
		repo, err = r.clone(ctx, opts.URL)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, vcsError("open "+opts.Path, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, vcsError("worktree", err)
	}

	r.repo = repo
	r.worktree = worktree
	return r, nil
}

func (r *GitRepository) clone(ctx context.Context, url string) (*git.Repository, error) {
	nctx, cancel := r.networkContext(ctx)
	defer cancel()

	start := time.Now()
	repo, err := git.PlainCloneContext(nctx, r.path, false, &git.CloneOptions{
		URL:           url,
		RemoteName:    r.remote,
		ReferenceName: plumbing.NewBranchReferenceName(r.branch),
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil {
		return nil, vcsError("clone "+url, err)
	}
	r.logger.Info("cloned working copy", "url", url, "branch", r.branch, "duration", time.Since(start))
	return repo, nil
}

// networkContext detaches the caller's cancellation: once a network call has
// started it runs to completion or to the adapter's own timeout.
func (r *GitRepository) networkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

// Path returns the working copy directory.
func (r *GitRepository) Path() string {
	return r.path
}

// Filesystem returns the working copy root.
func (r *GitRepository) Filesystem() billy.Filesystem {
	return r.worktree.Filesystem
}

// UpstreamRef returns the remote-tracking reference of the tracked branch.
func (r *GitRepository) UpstreamRef() string {
	return r.upstreamRefName().String()
}

func (r *GitRepository) upstreamRefName() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(r.remote, r.branch)
}

// Fetch updates the remote-tracking reference of the tracked branch.
func (r *GitRepository) Fetch(ctx context.Context) (core.UpdateSummary, error) {
	var sum core.UpdateSummary
	if ref, err := r.repo.Reference(r.upstreamRefName(), true); err == nil {
		sum.OldHead = ref.Hash().String()
	}

	nctx, cancel := r.networkContext(ctx)
	defer cancel()

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:%s", r.branch, r.upstreamRefName()))
	err := r.repo.FetchContext(nctx, &git.FetchOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       r.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		sum.UpToDate = true
		sum.NewHead = sum.OldHead
		return sum, nil
	}
	if err != nil {
		return sum, vcsError("fetch from "+r.remote, err)
	}

	ref, err := r.repo.Reference(r.upstreamRefName(), true)
	if err != nil {
		return sum, vcsError("resolve "+r.UpstreamRef(), err)
	}
	sum.NewHead = ref.Hash().String()
	sum.UpToDate = sum.NewHead == sum.OldHead
	return sum, nil
}

// MergeOrRebase reconciles the local branch with its remote-tracking
// reference. A fast-forward is used when possible. Diverged histories are
// merged with a synthesized merge commit when both sides changed disjoint
// files; otherwise a *core.ConflictError lists the overlapping files and the
// working copy is left untouched.
func (r *GitRepository) MergeOrRebase(ctx context.Context) (core.MergeSummary, error) {
	dirty, err := r.HasLocalChanges(ctx)
	if err != nil {
		return core.MergeSummary{}, err
	}
	if dirty {
		return core.MergeSummary{}, core.WrapError(core.ErrDirty, "refusing to merge")
	}

	local, upstream, err := r.heads()
	if err != nil {
		return core.MergeSummary{}, err
	}

	if local.Hash == upstream.Hash {
		return core.MergeSummary{Strategy: core.MergeUpToDate, Head: local.Hash.String()}, nil
	}

	contained, err := upstream.IsAncestor(local)
	if err != nil {
		return core.MergeSummary{}, vcsError("ancestry check", err)
	}
	if contained {
		return core.MergeSummary{Strategy: core.MergeUpToDate, Head: local.Hash.String()}, nil
	}

	behind, err := local.IsAncestor(upstream)
	if err != nil {
		return core.MergeSummary{}, vcsError("ancestry check", err)
	}
	if behind {
		if err := r.worktree.Reset(&git.ResetOptions{Commit: upstream.Hash, Mode: git.HardReset}); err != nil {
			return core.MergeSummary{}, vcsError("fast-forward", err)
		}
		r.logger.Debug("fast-forwarded", "from", local.Hash.String(), "to", upstream.Hash.String())
		return core.MergeSummary{Strategy: core.MergeFastForward, Head: upstream.Hash.String()}, nil
	}

	return r.mergeDiverged(local, upstream)
}

// fileVersion is the local-side content of one path during a merge.
type fileVersion struct {
	path    string
	data    []byte
	perm    os.FileMode
	deleted bool
}

func (r *GitRepository) mergeDiverged(local, upstream *object.Commit) (core.MergeSummary, error) {
	bases, err := local.MergeBase(upstream)
	if err != nil {
		return core.MergeSummary{}, vcsError("merge base", err)
	}
	if len(bases) == 0 {
		return core.MergeSummary{}, core.WrapError(core.ErrVCS, "local and upstream histories are unrelated")
	}
	base := bases[0]

	localFiles, err := changedFiles(base, local)
	if err != nil {
		return core.MergeSummary{}, err
	}
	upstreamFiles, err := changedFiles(base, upstream)
	if err != nil {
		return core.MergeSummary{}, err
	}

	var conflicts []string
	for path := range localFiles {
		if _, ok := upstreamFiles[path]; ok {
			conflicts = append(conflicts, path)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return core.MergeSummary{}, &core.ConflictError{Files: conflicts}
	}

	paths := make([]string, 0, len(localFiles))
	for path := range localFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	versions := make([]fileVersion, 0, len(paths))
	for _, path := range paths {
		v, err := readVersion(local, path)
		if err != nil {
			return core.MergeSummary{}, err
		}
		versions = append(versions, v)
	}

	if err := r.worktree.Reset(&git.ResetOptions{Commit: upstream.Hash, Mode: git.HardReset}); err != nil {
		return core.MergeSummary{}, vcsError("reset to upstream", err)
	}

	hash, err := r.applyMerge(versions, local.Hash, upstream.Hash)
	if err != nil {
		// Put the branch back on the local tip so no local commit is lost.
		if rerr := r.worktree.Reset(&git.ResetOptions{Commit: local.Hash, Mode: git.HardReset}); rerr != nil {
			r.logger.Error("failed to restore local branch after merge failure", "error", rerr)
		}
		return core.MergeSummary{}, err
	}

	r.logger.Debug("merged diverged histories", "local", local.Hash.String(), "upstream", upstream.Hash.String(), "files", len(paths))
	return core.MergeSummary{Strategy: core.MergeCommit, Head: hash.String(), Files: paths}, nil
}

func (r *GitRepository) applyMerge(versions []fileVersion, local, upstream plumbing.Hash) (plumbing.Hash, error) {
	fs := r.worktree.Filesystem
	for _, v := range versions {
		if v.deleted {
			if _, err := r.worktree.Remove(v.path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return plumbing.ZeroHash, vcsError("remove "+v.path, err)
			}
			continue
		}
		if err := util.WriteFile(fs, v.path, v.data, v.perm); err != nil {
			return plumbing.ZeroHash, core.WrapErrorf(core.ErrIO, "write %s: %v", v.path, err)
		}
		if _, err := r.worktree.Add(v.path); err != nil {
			return plumbing.ZeroHash, vcsError("add "+v.path, err)
		}
	}

	msg := fmt.Sprintf("Merge remote-tracking branch '%s/%s'", r.remote, r.branch)
	sig := r.signature(core.Signature{})
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
		Parents:   []plumbing.Hash{local, upstream},
	})
	if err != nil {
		return plumbing.ZeroHash, vcsError("merge commit", err)
	}
	return hash, nil
}

func readVersion(c *object.Commit, path string) (fileVersion, error) {
	f, err := c.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return fileVersion{path: path, deleted: true}, nil
	}
	if err != nil {
		return fileVersion{}, vcsError("read "+path, err)
	}

	rd, err := f.Reader()
	if err != nil {
		return fileVersion{}, vcsError("read "+path, err)
	}
	defer func() { _ = rd.Close() }()

	data, err := io.ReadAll(rd)
	if err != nil {
		return fileVersion{}, vcsError("read "+path, err)
	}

	perm := os.FileMode(0o644)
	if m, err := f.Mode.ToOSFileMode(); err == nil {
		perm = m.Perm()
	}
	return fileVersion{path: path, data: data, perm: perm}, nil
}

// changedFiles returns every path touched between base and tip.
func changedFiles(base, tip *object.Commit) (map[string]struct{}, error) {
	baseTree, err := base.Tree()
	if err != nil {
		return nil, vcsError("tree of "+base.Hash.String(), err)
	}
	tipTree, err := tip.Tree()
	if err != nil {
		return nil, vcsError("tree of "+tip.Hash.String(), err)
	}

	changes, err := object.DiffTree(baseTree, tipTree)
	if err != nil {
		return nil, vcsError("diff", err)
	}

	files := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		if ch.From.Name != "" {
			files[ch.From.Name] = struct{}{}
		}
		if ch.To.Name != "" {
			files[ch.To.Name] = struct{}{}
		}
	}
	return files, nil
}

// Commit stages every change in the working copy and commits it. When there
// is nothing to commit it returns an empty id and no error.
func (r *GitRepository) Commit(ctx context.Context, message string, author core.Signature) (string, error) {
	dirty, err := r.HasLocalChanges(ctx)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", nil
	}

	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", vcsError("stage changes", err)
	}

	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author:    r.signature(author),
		Committer: r.signature(core.Signature{When: author.When}),
	})
	if err != nil {
		return "", vcsError("commit", err)
	}
	return hash.String(), nil
}

// signature fills missing fields of s from the configured committer.
func (r *GitRepository) signature(s core.Signature) *object.Signature {
	sig := &object.Signature{Name: s.Name, Email: s.Email, When: s.When}
	if sig.Name == "" {
		sig.Name = r.committer.Name
	}
	if sig.Email == "" {
		sig.Email = r.committer.Email
	}
	if sig.When.IsZero() {
		sig.When = time.Now()
	}
	return sig
}

// Push pushes the tracked branch. A remote that has diverged yields
// core.ErrRejected; nothing to push is success.
func (r *GitRepository) Push(ctx context.Context) error {
	nctx, cancel := r.networkContext(ctx)
	defer cancel()

	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", r.branch, r.branch))
	err := r.repo.PushContext(nctx, &git.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       r.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case isRejected(err):
		return fmt.Errorf("push %s to %s: %w: %v", r.branch, r.remote, core.ErrRejected, err)
	default:
		return vcsError("push to "+r.remote, err)
	}
}

func isRejected(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) || errors.Is(err, git.ErrForceNeeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first")
}

// ResetHard moves the branch to ref and discards every local commit,
// staged or unstaged change and untracked file.
func (r *GitRepository) ResetHard(ctx context.Context, ref string) error {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return vcsError("resolve "+ref, err)
	}
	if err := r.worktree.Reset(&git.ResetOptions{Commit: *hash, Mode: git.HardReset}); err != nil {
		return vcsError("reset to "+ref, err)
	}
	if err := r.worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return vcsError("clean", err)
	}
	r.logger.Info("reset working copy", "ref", ref, "head", hash.String())
	return nil
}

// HasLocalChanges reports whether the worktree differs from HEAD.
func (r *GitRepository) HasLocalChanges(ctx context.Context) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, vcsError("status", err)
	}
	return !status.IsClean(), nil
}

// Status reports head, upstream and divergence flags.
func (r *GitRepository) Status(ctx context.Context) (core.RepoStatus, error) {
	var st core.RepoStatus

	dirty, err := r.HasLocalChanges(ctx)
	if err != nil {
		return st, err
	}
	st.Dirty = dirty

	head, err := r.repo.Head()
	if err != nil {
		return st, vcsError("resolve HEAD", err)
	}
	st.Head = head.Hash().String()

	upRef, err := r.repo.Reference(r.upstreamRefName(), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		st.NeedsPush = true
		return st, nil
	}
	if err != nil {
		return st, vcsError("resolve "+r.UpstreamRef(), err)
	}
	st.Upstream = upRef.Hash().String()
	if st.Head == st.Upstream {
		return st, nil
	}

	local, upstream, err := r.heads()
	if err != nil {
		return st, err
	}
	upstreamContained, err := upstream.IsAncestor(local)
	if err != nil {
		return st, vcsError("ancestry check", err)
	}
	localContained, err := local.IsAncestor(upstream)
	if err != nil {
		return st, vcsError("ancestry check", err)
	}
	st.NeedsPush = !localContained
	st.NeedsMerge = !upstreamContained
	return st, nil
}

func (r *GitRepository) heads() (local, upstream *object.Commit, err error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, nil, vcsError("resolve HEAD", err)
	}
	upRef, err := r.repo.Reference(r.upstreamRefName(), true)
	if err != nil {
		return nil, nil, vcsError("resolve "+r.UpstreamRef(), err)
	}
	local, err = r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, nil, vcsError("load HEAD commit", err)
	}
	upstream, err = r.repo.CommitObject(upRef.Hash())
	if err != nil {
		return nil, nil, vcsError("load upstream commit", err)
	}
	return local, upstream, nil
}

// vcsError wraps a go-git failure so it matches core.ErrVCS and the original error.
func vcsError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrVCS, err)
}
