package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

type fakeCommit struct {
	id      string
	message string
	author  core.Signature
}

// fakeRepo is a scripted working copy on memfs. It tracks files under
// locale/ and anything committed.
type fakeRepo struct {
	mu        sync.Mutex
	fs        billy.Filesystem
	committed map[string]string
	upstream  map[string]string
	commits   []fakeCommit
	calls     []string

	fetchErr  error
	mergeErr  error
	commitErr error
	pushErr   error
	resetErr  error
	merge     core.MergeSummary

	// onMerge runs on a successful merge, e.g. to write upstream files.
	onMerge func(fs billy.Filesystem)

	pushDelay  time.Duration
	pushing    int32
	maxPushing int32
}

func newFakeRepo(files map[string]string) *fakeRepo {
	r := &fakeRepo{
		fs:        memfs.New(),
		committed: map[string]string{},
		upstream:  map[string]string{},
		merge:     core.MergeSummary{Strategy: core.MergeUpToDate},
	}
	for name, content := range files {
		_ = util.WriteFile(r.fs, name, []byte(content), 0o644)
		r.committed[name] = content
		r.upstream[name] = content
	}
	return r
}

func (r *fakeRepo) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRepo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRepo) Commits() []fakeCommit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fakeCommit(nil), r.commits...)
}

func (r *fakeRepo) head() string {
	if len(r.commits) == 0 {
		return "0000000000000000000000000000000000000000"
	}
	return r.commits[len(r.commits)-1].id
}

// worktree reads every tracked file from the filesystem.
func (r *fakeRepo) worktree() map[string]string {
	names := map[string]struct{}{}
	matches, _ := util.Glob(r.fs, "locale/*")
	for _, m := range matches {
		names[m] = struct{}{}
	}
	for name := range r.committed {
		names[name] = struct{}{}
	}

	out := map[string]string{}
	for name := range names {
		data, err := util.ReadFile(r.fs, name)
		if err == nil {
			out[name] = string(data)
		}
	}
	return out
}

func (r *fakeRepo) dirty() bool {
	wt := r.worktree()
	if len(wt) != len(r.committed) {
		return true
	}
	for name, content := range wt {
		if r.committed[name] != content {
			return true
		}
	}
	return false
}

func (r *fakeRepo) Fetch(context.Context) (core.UpdateSummary, error) {
	r.record("fetch")
	return core.UpdateSummary{}, r.fetchErr
}

func (r *fakeRepo) MergeOrRebase(context.Context) (core.MergeSummary, error) {
	r.record("merge")
	if r.mergeErr != nil {
		return core.MergeSummary{}, r.mergeErr
	}
	if r.onMerge != nil {
		r.onMerge(r.fs)
		r.mu.Lock()
		r.committed = r.worktree()
		r.mu.Unlock()
	}
	return r.merge, nil
}

func (r *fakeRepo) Commit(_ context.Context, message string, author core.Signature) (string, error) {
	r.record("commit")
	if r.commitErr != nil {
		return "", r.commitErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty() {
		return "", nil
	}
	r.committed = r.worktree()
	id := fmt.Sprintf("%040d", len(r.commits)+1)
	r.commits = append(r.commits, fakeCommit{id: id, message: message, author: author})
	return id, nil
}

func (r *fakeRepo) Push(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := atomic.AddInt32(&r.pushing, 1)
	defer atomic.AddInt32(&r.pushing, -1)
	for {
		peak := atomic.LoadInt32(&r.maxPushing)
		if n <= peak || atomic.CompareAndSwapInt32(&r.maxPushing, peak, n) {
			break
		}
	}
	r.record("push")
	if r.pushDelay > 0 {
		time.Sleep(r.pushDelay)
	}
	return r.pushErr
}

func (r *fakeRepo) ResetHard(_ context.Context, ref string) error {
	r.record("reset " + ref)
	if r.resetErr != nil {
		return r.resetErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.worktree() {
		_ = r.fs.Remove(name)
	}
	for name, content := range r.upstream {
		_ = util.WriteFile(r.fs, name, []byte(content), 0o644)
	}
	r.committed = map[string]string{}
	for name, content := range r.upstream {
		r.committed[name] = content
	}
	return nil
}

func (r *fakeRepo) HasLocalChanges(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty(), nil
}

func (r *fakeRepo) UpstreamRef() string { return "refs/remotes/origin/main" }

func (r *fakeRepo) Filesystem() billy.Filesystem { return r.fs }

func (r *fakeRepo) Status(context.Context) (core.RepoStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.RepoStatus{Head: r.head(), Dirty: r.dirty(), NeedsPush: len(r.commits) > 0}, nil
}
