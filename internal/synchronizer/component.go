// Package synchronizer runs commit, update, push and reset against the
// working copies of the project hierarchy.
//
// A Component owns one working copy and its translation units. Every
// operation takes the working copy lock once and runs its sub-steps
// (materialize, commit, fetch, merge, push, reset) to completion under it.
// Request cancellation is detached; only the repository's own network
// timeout bounds an operation.
package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/leapstack-labs/l10nsync/internal/translation"
	"github.com/leapstack-labs/l10nsync/internal/translation/format"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Repository is the working copy contract a Component drives. Callers hold
// the Component's lock for every call.
type Repository interface {
	Fetch(ctx context.Context) (core.UpdateSummary, error)
	MergeOrRebase(ctx context.Context) (core.MergeSummary, error)
	Commit(ctx context.Context, message string, author core.Signature) (string, error)
	Push(ctx context.Context) error
	ResetHard(ctx context.Context, ref string) error
	HasLocalChanges(ctx context.Context) (bool, error)
	UpstreamRef() string
	Filesystem() billy.Filesystem
	Status(ctx context.Context) (core.RepoStatus, error)
}

// Locker serializes access to one working copy.
type Locker interface {
	Acquire() (release func(), err error)
}

// DefaultCommitMessage is used when ComponentOptions.CommitMessage is empty.
const DefaultCommitMessage = `Translated using l10nsync ({{ join .Languages ", " }})

Translation: {{ .Project }}/{{ .Component }}
`

// ErrNotPrepared is returned when an operation runs before Prepare succeeded.
var ErrNotPrepared = errors.New("working copy not prepared")

// ComponentOptions configures a Component.
type ComponentOptions struct {
	Project string
	Slug    string
	Name    string
	Enabled bool

	// Languages are created even when their file does not exist yet.
	Languages []string

	// Mask locates translation files; further languages are discovered with it.
	Mask   translation.Mask
	Format format.Format

	// Open opens or clones the working copy. Called by Prepare.
	Open func(ctx context.Context) (Repository, error)

	Lock Locker

	// CommitMessage is a text/template; see CommitMessageData.
	CommitMessage string

	// DefaultAuthor signs commits whose edits have zero or several authors.
	DefaultAuthor core.Signature

	Logger *slog.Logger
}

// CommitMessageData is the template data of a commit message.
type CommitMessageData struct {
	Project   string
	Component string
	Languages []string
	Files     []string
	Authors   []string
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// Component synchronizes one working copy.
type Component struct {
	node    core.NodePath
	name    string
	enabled bool

	declared []string
	mask     translation.Mask
	format   format.Format
	open     func(ctx context.Context) (Repository, error)
	lock     Locker
	message  *template.Template
	author   core.Signature
	logger   *slog.Logger

	// mu guards repo and units. Writers also hold lock.
	mu     sync.RWMutex
	repo   Repository
	units  []*translation.Unit
	byLang map[string]*translation.Unit
}

// NewComponent validates opts and builds an unprepared Component.
func NewComponent(opts ComponentOptions) (*Component, error) {
	if opts.Project == "" || opts.Slug == "" {
		return nil, fmt.Errorf("component requires project and slug")
	}
	if opts.Open == nil {
		return nil, fmt.Errorf("component %s/%s: no repository opener", opts.Project, opts.Slug)
	}
	if opts.Lock == nil {
		return nil, fmt.Errorf("component %s/%s: no lock", opts.Project, opts.Slug)
	}
	if opts.Format == nil {
		return nil, fmt.Errorf("component %s/%s: no format", opts.Project, opts.Slug)
	}
	if opts.Mask == "" {
		return nil, fmt.Errorf("component %s/%s: no file mask", opts.Project, opts.Slug)
	}
	for _, code := range opts.Languages {
		if _, err := translation.ParseLanguage(code); err != nil {
			return nil, fmt.Errorf("component %s/%s: %w", opts.Project, opts.Slug, err)
		}
	}

	text := opts.CommitMessage
	if text == "" {
		text = DefaultCommitMessage
	}
	tmpl, err := template.New("commit").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("component %s/%s: commit message template: %w", opts.Project, opts.Slug, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := opts.Name
	if name == "" {
		name = opts.Slug
	}

	node := core.ComponentPath(opts.Project, opts.Slug)
	return &Component{
		node:     node,
		name:     name,
		enabled:  opts.Enabled,
		declared: opts.Languages,
		mask:     opts.Mask,
		format:   opts.Format,
		open:     opts.Open,
		lock:     opts.Lock,
		message:  tmpl,
		author:   opts.DefaultAuthor,
		logger:   logger.With("component", node.String()),
		byLang:   map[string]*translation.Unit{},
	}, nil
}

// Node returns the component's path.
func (c *Component) Node() core.NodePath { return c.node }

// Name returns the display name.
func (c *Component) Name() string { return c.name }

// Enabled reports whether project fan-out includes the component.
func (c *Component) Enabled() bool { return c.enabled }

// Units returns the translation units ordered by language.
func (c *Component) Units() []*translation.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*translation.Unit, len(c.units))
	copy(out, c.units)
	return out
}

// Translation returns the unit for a language.
func (c *Component) Translation(lang string) (*translation.Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.byLang[lang]
	return u, ok
}

// Prepare opens the working copy, cloning it when missing, and loads the
// translation units.
func (c *Component) Prepare(ctx context.Context) error {
	release, err := c.lock.Acquire()
	if err != nil {
		return err
	}
	defer release()
	return c.prepareLocked(context.WithoutCancel(ctx))
}

func (c *Component) prepareLocked(ctx context.Context) error {
	c.mu.RLock()
	repo := c.repo
	c.mu.RUnlock()

	if repo == nil {
		r, err := c.open(ctx)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", c.node, err)
		}
		repo = r
	}
	if err := c.loadUnits(repo); err != nil {
		return fmt.Errorf("prepare %s: %w", c.node, err)
	}
	return nil
}

// loadUnits creates units for declared and discovered languages and reloads
// all of them. Existing units keep their pending edits.
func (c *Component) loadUnits(repo Repository) error {
	found, err := c.mask.Discover(repo.Filesystem())
	if err != nil {
		return err
	}
	codes := append(append([]string(nil), c.declared...), found...)

	c.mu.Lock()
	defer c.mu.Unlock()

	byLang := make(map[string]*translation.Unit, len(codes))
	for _, code := range codes {
		if _, ok := byLang[code]; ok {
			continue
		}
		u, ok := c.byLang[code]
		if !ok {
			var err error
			u, err = translation.NewUnit(repo.Filesystem(), code, c.mask.Path(code), c.format)
			if err != nil {
				return err
			}
		}
		if err := u.Reload(); err != nil {
			return err
		}
		byLang[code] = u
	}
	// Units whose language vanished but still hold edits are kept so the
	// edits are not dropped silently.
	for code, u := range c.byLang {
		if _, ok := byLang[code]; !ok && u.HasPendingEdits() {
			byLang[code] = u
		}
	}

	units := make([]*translation.Unit, 0, len(byLang))
	for _, u := range byLang {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Language() < units[j].Language() })

	c.repo = repo
	c.units = units
	c.byLang = byLang
	return nil
}

// Run dispatches op.
func (c *Component) Run(ctx context.Context, op core.Operation) core.Outcome {
	switch op {
	case core.OpCommit:
		return c.CommitPending(ctx)
	case core.OpUpdate:
		return c.Update(ctx)
	case core.OpPush:
		return c.Push(ctx)
	case core.OpReset:
		return c.Reset(ctx)
	default:
		return core.Failed(c.node, op, "", fmt.Errorf("unknown operation %q", op))
	}
}

// RunTranslation runs op for one language. Commit is limited to that unit;
// update, push and reset act on the whole working copy.
func (c *Component) RunTranslation(ctx context.Context, lang string, op core.Operation) core.Outcome {
	node := core.TranslationPath(c.node.Project, c.node.Component, lang)
	var out core.Outcome
	if op == core.OpCommit {
		out = c.CommitTranslation(ctx, lang)
	} else {
		out = c.Run(ctx, op)
	}
	out.Node = node
	return out
}

// locked runs fn under the working copy lock with cancellation detached.
func (c *Component) locked(ctx context.Context, op core.Operation, fn func(ctx context.Context, repo Repository) core.Outcome) core.Outcome {
	start := time.Now()
	release, err := c.lock.Acquire()
	if err != nil {
		c.logger.Warn("working copy busy", "operation", op)
		return core.Failed(c.node, op, "", err)
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	c.mu.RLock()
	repo := c.repo
	c.mu.RUnlock()
	if repo == nil {
		if err := c.prepareLocked(ctx); err != nil {
			return core.Failed(c.node, op, "", err)
		}
		c.mu.RLock()
		repo = c.repo
		c.mu.RUnlock()
	}

	out := fn(ctx, repo)
	if out.Node == (core.NodePath{}) {
		out.Node = c.node
	}
	level := slog.LevelInfo
	if !out.Success {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "operation finished",
		"operation", op,
		"success", out.Success,
		"summary", out.Summary,
		"duration", time.Since(start))
	return out
}

// commitResult describes what commitLocked did.
type commitResult struct {
	id    string
	files []string
}

func (r commitResult) committed() bool { return r.id != "" }

func (r commitResult) summary() string {
	switch n := len(r.files); {
	case r.id == "":
		return "nothing to commit"
	case n == 0:
		return fmt.Sprintf("committed local working copy changes (%s)", shortID(r.id))
	case n == 1:
		return fmt.Sprintf("committed 1 file (%s)", shortID(r.id))
	default:
		return fmt.Sprintf("committed %d files (%s)", n, shortID(r.id))
	}
}

// commitLocked materializes the pending units among units and commits the
// working copy. Units are marked committed only after the commit succeeded.
// Stray working copy changes are committed as well.
func (c *Component) commitLocked(ctx context.Context, repo Repository, units []*translation.Unit) (commitResult, error) {
	var (
		pending []*translation.Unit
		snaps   []translation.Snapshot
	)
	for _, u := range units {
		if !u.HasPendingEdits() {
			continue
		}
		snap, err := u.Materialize()
		if err != nil {
			return commitResult{}, err
		}
		pending = append(pending, u)
		snaps = append(snaps, snap)
	}

	dirty, err := repo.HasLocalChanges(ctx)
	if err != nil {
		return commitResult{}, err
	}
	if !dirty {
		// The edits restated what is already committed.
		markCommitted(pending, snaps)
		return commitResult{}, nil
	}

	data := CommitMessageData{Project: c.node.Project, Component: c.node.Component}
	authors := map[string]struct{}{}
	for _, s := range snaps {
		data.Languages = append(data.Languages, s.Language)
		data.Files = append(data.Files, s.Path)
		for _, a := range s.Authors {
			authors[a] = struct{}{}
		}
	}
	for a := range authors {
		data.Authors = append(data.Authors, a)
	}
	sort.Strings(data.Authors)

	var msg bytes.Buffer
	if err := c.message.Execute(&msg, data); err != nil {
		return commitResult{}, fmt.Errorf("render commit message: %w", err)
	}

	id, err := repo.Commit(ctx, msg.String(), c.commitAuthor(data.Authors))
	if err != nil {
		return commitResult{}, err
	}
	markCommitted(pending, snaps)
	if id != "" {
		c.logger.Info("committed", "commit", id, "files", len(data.Files))
	}
	return commitResult{id: id, files: data.Files}, nil
}

func markCommitted(units []*translation.Unit, snaps []translation.Snapshot) {
	for i, u := range units {
		u.MarkCommitted(snaps[i])
	}
}

// commitAuthor picks the single author of the committed edits, else the
// default author. Authors may be written as "Name <email>".
func (c *Component) commitAuthor(authors []string) core.Signature {
	if len(authors) != 1 {
		return c.author
	}
	if addr, err := mail.ParseAddress(authors[0]); err == nil {
		name := addr.Name
		if name == "" {
			name = addr.Address
		}
		return core.Signature{Name: name, Email: addr.Address}
	}
	return core.Signature{Name: authors[0], Email: c.author.Email}
}

// needsCommit reports whether any unit is pending or the working copy is dirty.
func (c *Component) needsCommit(ctx context.Context, repo Repository) (bool, error) {
	for _, u := range c.Units() {
		if u.HasPendingEdits() {
			return true, nil
		}
	}
	return repo.HasLocalChanges(ctx)
}

// CommitPending commits every unit with pending edits in one commit.
func (c *Component) CommitPending(ctx context.Context) core.Outcome {
	return c.locked(ctx, core.OpCommit, func(ctx context.Context, repo Repository) core.Outcome {
		res, err := c.commitLocked(ctx, repo, c.Units())
		if err != nil {
			return core.Failed(c.node, core.OpCommit, "commit failed", err)
		}
		out := core.Succeeded(c.node, core.OpCommit, "%s", res.summary())
		out.Files = res.files
		return out
	})
}

// CommitTranslation commits the pending edits of one language.
func (c *Component) CommitTranslation(ctx context.Context, lang string) core.Outcome {
	node := core.TranslationPath(c.node.Project, c.node.Component, lang)
	return c.locked(ctx, core.OpCommit, func(ctx context.Context, repo Repository) core.Outcome {
		u, ok := c.Translation(lang)
		if !ok {
			return core.Failed(node, core.OpCommit, "", core.WrapErrorf(core.ErrNotFound, "translation %s", node))
		}
		res, err := c.commitLocked(ctx, repo, []*translation.Unit{u})
		if err != nil {
			return core.Failed(node, core.OpCommit, "commit failed", err)
		}
		out := core.Succeeded(node, core.OpCommit, "%s", res.summary())
		out.Files = res.files
		return out
	})
}

// Update commits local work, fetches and merges upstream. A merge conflict
// fails the update and leaves the working copy on the local commit.
func (c *Component) Update(ctx context.Context) core.Outcome {
	return c.locked(ctx, core.OpUpdate, func(ctx context.Context, repo Repository) core.Outcome {
		var parts []string

		need, err := c.needsCommit(ctx, repo)
		if err != nil {
			return core.Failed(c.node, core.OpUpdate, "update failed", err)
		}
		if need {
			res, err := c.commitLocked(ctx, repo, c.Units())
			if err != nil {
				return core.Failed(c.node, core.OpUpdate, "commit before update failed", err)
			}
			if res.committed() {
				parts = append(parts, res.summary())
			}
		}

		if _, err := repo.Fetch(ctx); err != nil {
			return core.Failed(c.node, core.OpUpdate, "fetch failed", err)
		}

		merge, err := repo.MergeOrRebase(ctx)
		if errors.Is(err, core.ErrConflict) {
			return core.Failed(c.node, core.OpUpdate, "update needs manual conflict resolution", err)
		}
		if err != nil {
			return core.Failed(c.node, core.OpUpdate, "merge failed", err)
		}

		if err := c.loadUnits(repo); err != nil {
			return core.Failed(c.node, core.OpUpdate, "reload translations failed", err)
		}

		switch merge.Strategy {
		case core.MergeFastForward:
			parts = append(parts, "fast-forwarded to "+shortID(merge.Head))
		case core.MergeCommit:
			parts = append(parts, "merged upstream changes ("+shortID(merge.Head)+")")
		default:
			parts = append(parts, "already up to date")
		}
		out := core.Succeeded(c.node, core.OpUpdate, "%s", strings.Join(parts, "; "))
		out.Files = merge.Files
		return out
	})
}

// Push commits local work and pushes it. A rejected push is reported and
// never retried.
func (c *Component) Push(ctx context.Context) core.Outcome {
	return c.locked(ctx, core.OpPush, func(ctx context.Context, repo Repository) core.Outcome {
		var parts []string

		need, err := c.needsCommit(ctx, repo)
		if err != nil {
			return core.Failed(c.node, core.OpPush, "push failed", err)
		}
		if need {
			res, err := c.commitLocked(ctx, repo, c.Units())
			if err != nil {
				return core.Failed(c.node, core.OpPush, "commit before push failed", err)
			}
			if res.committed() {
				parts = append(parts, res.summary())
			}
		}

		if err := repo.Push(ctx); err != nil {
			if errors.Is(err, core.ErrRejected) {
				return core.Failed(c.node, core.OpPush, "push rejected, update the repository first", err)
			}
			return core.Failed(c.node, core.OpPush, "push failed", err)
		}
		parts = append(parts, "pushed to upstream")
		return core.Succeeded(c.node, core.OpPush, "%s", strings.Join(parts, "; "))
	})
}

// Reset discards every local commit, working copy change and pending edit.
func (c *Component) Reset(ctx context.Context) core.Outcome {
	return c.locked(ctx, core.OpReset, func(ctx context.Context, repo Repository) core.Outcome {
		ref := repo.UpstreamRef()
		if err := repo.ResetHard(ctx, ref); err != nil {
			return core.Failed(c.node, core.OpReset, "reset failed", err)
		}

		discarded := 0
		for _, u := range c.Units() {
			if u.HasPendingEdits() {
				discarded++
			}
			u.Discard()
		}
		if err := c.loadUnits(repo); err != nil {
			return core.Failed(c.node, core.OpReset, "reload translations failed", err)
		}

		if discarded > 0 {
			return core.Succeeded(c.node, core.OpReset, "reset to %s, discarded edits of %d translations", ref, discarded)
		}
		return core.Succeeded(c.node, core.OpReset, "reset to %s", ref)
	})
}

// ComponentStatus is a point-in-time view of a component.
type ComponentStatus struct {
	Node    string          `json:"node"`
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Repo    core.RepoStatus `json:"repository"`
	Pending []string        `json:"pending,omitempty"`
	Units   []UnitStatus    `json:"translations"`
	Error   string          `json:"error,omitempty"`
}

// UnitStatus is a point-in-time view of a translation unit.
type UnitStatus struct {
	Node        string   `json:"node"`
	Language    string   `json:"language"`
	Path        string   `json:"path"`
	Messages    int      `json:"messages"`
	Pending     bool     `json:"pending"`
	PendingKeys []string `json:"pending_keys,omitempty"`
}

// Status reports the working copy state and the pending units.
func (c *Component) Status(ctx context.Context) ComponentStatus {
	st := ComponentStatus{Node: c.node.String(), Name: c.name, Enabled: c.enabled}

	for _, u := range c.Units() {
		us := UnitStatus{
			Node:        core.TranslationPath(c.node.Project, c.node.Component, u.Language()).String(),
			Language:    u.Language(),
			Path:        u.Path(),
			Messages:    len(u.Catalog()),
			PendingKeys: u.PendingKeys(),
		}
		us.Pending = len(us.PendingKeys) > 0
		if us.Pending {
			st.Pending = append(st.Pending, u.Language())
		}
		st.Units = append(st.Units, us)
	}

	release, err := c.lock.Acquire()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer release()

	c.mu.RLock()
	repo := c.repo
	c.mu.RUnlock()
	if repo == nil {
		st.Error = ErrNotPrepared.Error()
		return st
	}

	rs, err := repo.Status(context.WithoutCancel(ctx))
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Repo = rs
	return st
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
