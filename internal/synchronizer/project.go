package synchronizer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// DefaultWorkers bounds project fan-out when ProjectOptions.Workers is zero.
const DefaultWorkers = 4

// ProjectOptions configures a Project.
type ProjectOptions struct {
	Slug    string
	Name    string
	Workers int
	Logger  *slog.Logger
}

// Project fans operations out to its enabled components. It has no working
// copy of its own.
type Project struct {
	node       core.NodePath
	name       string
	workers    int
	components []*Component
	bySlug     map[string]*Component
	logger     *slog.Logger
}

// NewProject builds a project over components in display order.
func NewProject(opts ProjectOptions, components []*Component) *Project {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := opts.Name
	if name == "" {
		name = opts.Slug
	}

	bySlug := make(map[string]*Component, len(components))
	for _, c := range components {
		bySlug[c.Node().Component] = c
	}
	return &Project{
		node:       core.ProjectPath(opts.Slug),
		name:       name,
		workers:    workers,
		components: components,
		bySlug:     bySlug,
		logger:     logger.With("project", opts.Slug),
	}
}

// Node returns the project's path.
func (p *Project) Node() core.NodePath { return p.node }

// Name returns the display name.
func (p *Project) Name() string { return p.name }

// Components returns every component, enabled or not, in display order.
func (p *Project) Components() []*Component {
	out := make([]*Component, len(p.components))
	copy(out, p.components)
	return out
}

// Component returns a component by slug, enabled or not.
func (p *Project) Component(slug string) (*Component, bool) {
	c, ok := p.bySlug[slug]
	return c, ok
}

// Enabled returns the components included in fan-out, in display order.
func (p *Project) Enabled() []*Component {
	var out []*Component
	for _, c := range p.components {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// CommitPending commits every enabled component.
func (p *Project) CommitPending(ctx context.Context) core.Outcome {
	return p.Run(ctx, core.OpCommit)
}

// Update updates every enabled component.
func (p *Project) Update(ctx context.Context) core.Outcome {
	return p.Run(ctx, core.OpUpdate)
}

// Push pushes every enabled component.
func (p *Project) Push(ctx context.Context) core.Outcome {
	return p.Run(ctx, core.OpPush)
}

// Reset resets every enabled component.
func (p *Project) Reset(ctx context.Context) core.Outcome {
	return p.Run(ctx, core.OpReset)
}

// Run runs op on every enabled component, at most Workers at a time, and
// aggregates the outcomes in display order. A failing component never stops
// the others.
func (p *Project) Run(ctx context.Context, op core.Operation) core.Outcome {
	start := time.Now()
	components := p.Enabled()
	results := make([]core.Outcome, len(components))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, c := range components {
		g.Go(func() error {
			results[i] = c.Run(ctx, op)
			return nil
		})
	}
	_ = g.Wait()

	out := core.Aggregate(p.node, op, results)
	p.logger.Info("fan-out finished",
		"operation", op,
		"components", len(components),
		"failed", out.FailureCount(),
		"duration", time.Since(start))
	return out
}

// Prepare prepares every component, enabled or not. Failures are returned
// per component path.
func (p *Project) Prepare(ctx context.Context) map[string]error {
	errs := make([]error, len(p.components))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, c := range p.components {
		g.Go(func() error {
			errs[i] = c.Prepare(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := map[string]error{}
	for i, err := range errs {
		if err != nil {
			failed[p.components[i].Node().String()] = err
		}
	}
	return failed
}

// ProjectStatus is a point-in-time view of a project.
type ProjectStatus struct {
	Node       string            `json:"node"`
	Name       string            `json:"name"`
	Components []ComponentStatus `json:"components"`
}

// Status collects the status of every component.
func (p *Project) Status(ctx context.Context) ProjectStatus {
	st := ProjectStatus{Node: p.node.String(), Name: p.name}
	for _, c := range p.components {
		st.Components = append(st.Components, c.Status(ctx))
	}
	return st
}
