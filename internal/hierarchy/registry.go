// Package hierarchy builds the project -> component -> translation tree from
// configuration and resolves node paths against it.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/leapstack-labs/l10nsync/internal/config"
	"github.com/leapstack-labs/l10nsync/internal/synchronizer"
	"github.com/leapstack-labs/l10nsync/internal/translation"
	"github.com/leapstack-labs/l10nsync/internal/translation/format"
	"github.com/leapstack-labs/l10nsync/internal/vcs"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Opener opens the working copy of one component. The default opens (or
// clones) a go-git repository.
type Opener func(ctx context.Context, opts vcs.Options) (synchronizer.Repository, error)

// OpenGit is the default Opener.
func OpenGit(ctx context.Context, opts vcs.Options) (synchronizer.Repository, error) {
	repo, err := vcs.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Options configures New.
type Options struct {
	Config config.HierarchyConfig

	// Open defaults to OpenGit.
	Open Opener

	Logger *slog.Logger
}

// Registry owns every project and component. It is immutable after New.
type Registry struct {
	projects []*synchronizer.Project
	bySlug   map[string]*synchronizer.Project
	configs  map[string]config.ProjectConfig
	locks    *vcs.LockSet
	logger   *slog.Logger
}

// New builds the hierarchy. Working copies are not touched until Prepare.
func New(opts Options) (*Registry, error) {
	cfg := opts.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hierarchy: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	open := opts.Open
	if open == nil {
		open = OpenGit
	}
	policy, err := vcs.ParseLockPolicy(cfg.Sync.LockPolicy)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		bySlug:  make(map[string]*synchronizer.Project, len(cfg.Projects)),
		configs: make(map[string]config.ProjectConfig, len(cfg.Projects)),
		locks:   vcs.NewLockSet(policy),
		logger:  logger,
	}
	author := core.Signature{Name: cfg.Sync.AuthorName, Email: cfg.Sync.AuthorEmail}

	for _, pc := range cfg.Projects {
		components := make([]*synchronizer.Component, 0, len(pc.Components))
		for _, cc := range pc.Components {
			c, err := r.newComponent(cfg, pc, cc, author, open)
			if err != nil {
				return nil, err
			}
			components = append(components, c)
		}
		p := synchronizer.NewProject(synchronizer.ProjectOptions{
			Slug:    pc.Slug,
			Name:    pc.Name,
			Workers: cfg.Sync.Workers,
			Logger:  logger,
		}, components)
		r.projects = append(r.projects, p)
		r.bySlug[pc.Slug] = p
		r.configs[pc.Slug] = pc
	}
	return r, nil
}

func (r *Registry) newComponent(cfg config.HierarchyConfig, pc config.ProjectConfig, cc config.ComponentConfig, author core.Signature, open Opener) (*synchronizer.Component, error) {
	f, err := format.Lookup(cc.Format)
	if err != nil {
		return nil, err
	}
	mask, err := translation.ParseMask(cc.FileMask)
	if err != nil {
		return nil, err
	}

	vopts := vcs.Options{
		Path:   WorkingCopyPath(cfg.WorkspaceDir, pc.Slug, cc.Slug),
		URL:    cc.Repo,
		Remote: cfg.Sync.Remote,
		Branch: cc.Branch,
		Auth: vcs.AuthConfig{
			Username:         cc.Auth.Username,
			Password:         cc.Auth.Password,
			SSHKeyPath:       cc.Auth.SSHKeyPath,
			SSHKeyPassphrase: cc.Auth.SSHPassphrase,
		},
		NetworkTimeout: cfg.Sync.NetworkTimeout,
		Committer:      author,
		Logger:         r.logger,
	}

	return synchronizer.NewComponent(synchronizer.ComponentOptions{
		Project:   pc.Slug,
		Slug:      cc.Slug,
		Name:      cc.Name,
		Enabled:   cc.IsEnabled(),
		Languages: cc.Languages,
		Mask:      mask,
		Format:    f,
		Open: func(ctx context.Context) (synchronizer.Repository, error) {
			return open(ctx, vopts)
		},
		Lock:          r.locks.For(vopts.Path),
		CommitMessage: cfg.Sync.CommitMessage,
		DefaultAuthor: author,
		Logger:        r.logger,
	})
}

// WorkingCopyPath is where a component's working copy lives.
func WorkingCopyPath(workspace, project, component string) string {
	return filepath.Join(workspace, project, component)
}

// Prepare opens or clones every working copy. Failures are returned per
// component path; failed components report errors when operated on.
func (r *Registry) Prepare(ctx context.Context) map[string]error {
	failed := map[string]error{}
	for _, p := range r.projects {
		for node, err := range p.Prepare(ctx) {
			r.logger.Error("failed to prepare working copy", "node", node, "error", err)
			failed[node] = err
		}
	}
	return failed
}

// Projects returns every project in configuration order.
func (r *Registry) Projects() []*synchronizer.Project {
	out := make([]*synchronizer.Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// Project resolves a project slug.
func (r *Registry) Project(slug string) (*synchronizer.Project, error) {
	p, ok := r.bySlug[slug]
	if !ok {
		return nil, core.WrapErrorf(core.ErrNotFound, "project %q", slug)
	}
	return p, nil
}

// Component resolves a component, enabled or not.
func (r *Registry) Component(project, component string) (*synchronizer.Component, error) {
	p, err := r.Project(project)
	if err != nil {
		return nil, err
	}
	c, ok := p.Component(component)
	if !ok {
		return nil, core.WrapErrorf(core.ErrNotFound, "component %q in project %q", component, project)
	}
	return c, nil
}

// Translation resolves a translation. Translations of disabled components
// are not found.
func (r *Registry) Translation(project, component, lang string) (*synchronizer.Component, *translation.Unit, error) {
	c, err := r.Component(project, component)
	if err != nil {
		return nil, nil, err
	}
	node := core.TranslationPath(project, component, lang)
	if !c.Enabled() {
		return nil, nil, core.WrapErrorf(core.ErrNotFound, "translation %s (component disabled)", node)
	}
	u, ok := c.Translation(lang)
	if !ok {
		return nil, nil, core.WrapErrorf(core.ErrNotFound, "translation %s", node)
	}
	return c, u, nil
}

// Resolve checks that node exists, applying the same rules as the lookups.
func (r *Registry) Resolve(node core.NodePath) error {
	var err error
	switch node.Level() {
	case core.LevelProject:
		_, err = r.Project(node.Project)
	case core.LevelComponent:
		_, err = r.Component(node.Project, node.Component)
	default:
		_, _, err = r.Translation(node.Project, node.Component, node.Language)
	}
	return err
}

// Persist records the hierarchy in store and prunes projects that are no
// longer configured.
func (r *Registry) Persist(store Store) error {
	keep := make([]string, 0, len(r.projects))
	for i, p := range r.projects {
		pc := r.configs[p.Node().Project]
		keep = append(keep, pc.Slug)
		if err := store.SaveProject(&core.ProjectRecord{Slug: pc.Slug, Name: pc.Name, Position: i}); err != nil {
			return err
		}
		for j, cc := range pc.Components {
			if err := store.SaveComponent(&core.ComponentRecord{
				Project:  pc.Slug,
				Slug:     cc.Slug,
				Name:     cc.Name,
				Repo:     cc.Repo,
				Branch:   cc.Branch,
				FileMask: cc.FileMask,
				Format:   cc.Format,
				Enabled:  cc.IsEnabled(),
				Position: j,
			}); err != nil {
				return err
			}
			c, _ := p.Component(cc.Slug)
			for _, u := range c.Units() {
				if err := store.SaveTranslation(&core.TranslationRecord{
					Project:   pc.Slug,
					Component: cc.Slug,
					Language:  u.Language(),
					Path:      u.Path(),
				}); err != nil {
					return err
				}
			}
		}
	}

	removed, err := store.PruneProjects(keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Info("pruned unconfigured projects", "count", removed)
	}
	return nil
}

// Store is the part of the state store Persist needs.
type Store interface {
	SaveProject(p *core.ProjectRecord) error
	SaveComponent(c *core.ComponentRecord) error
	SaveTranslation(t *core.TranslationRecord) error
	PruneProjects(keep []string) (int64, error)
}
