package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/leapstack-labs/l10nsync/internal/state"
	"github.com/leapstack-labs/l10nsync/internal/synchronizer"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Run authorizes caller for op on node and runs it. A returned error means
// the operation did not start (core.ErrNotFound, core.ErrForbidden); every
// started operation reports through the outcome, including failures.
func (e *Engine) Run(ctx context.Context, caller string, op core.Operation, node core.NodePath) (core.Outcome, error) {
	if err := e.registry.Resolve(node); err != nil {
		return core.Outcome{}, err
	}
	if err := e.guard.Authorize(ctx, caller, node, op.Capability()); err != nil {
		e.logger.Warn("operation denied", "node", node.String(), "operation", op, "caller", caller)
		return core.Outcome{}, err
	}

	start := time.Now()
	e.logger.Info("starting operation", "node", node.String(), "operation", op, "caller", caller)

	var runID string
	run, err := e.store.CreateRun(node, op, caller)
	if err != nil {
		// History is best effort; the operation still runs.
		e.logger.Error("failed to record run", "node", node.String(), "error", err)
	} else {
		runID = run.ID
	}

	out := e.dispatch(ctx, op, node)

	if runID != "" {
		if err := e.store.CompleteRun(runID, out); err != nil {
			e.logger.Error("failed to complete run", "run_id", runID, "error", err)
		}
	}

	level := e.logger.Info
	if !out.Success {
		level = e.logger.Warn
	}
	level("operation finished",
		"node", node.String(),
		"operation", op,
		"success", out.Success,
		"summary", out.Summary,
		"duration", time.Since(start))

	if e.publisher != nil {
		e.publisher.Publish(Event{RunID: runID, Caller: caller, Outcome: out})
	}
	return out, nil
}

func (e *Engine) dispatch(ctx context.Context, op core.Operation, node core.NodePath) core.Outcome {
	switch node.Level() {
	case core.LevelProject:
		p, err := e.registry.Project(node.Project)
		if err != nil {
			return core.Failed(node, op, "", err)
		}
		return p.Run(ctx, op)
	case core.LevelComponent:
		c, err := e.registry.Component(node.Project, node.Component)
		if err != nil {
			return core.Failed(node, op, "", err)
		}
		return c.Run(ctx, op)
	default:
		c, _, err := e.registry.Translation(node.Project, node.Component, node.Language)
		if err != nil {
			return core.Failed(node, op, "", err)
		}
		return c.RunTranslation(ctx, node.Language, op)
	}
}

// RecordEdits records translated messages on a translation. The unit
// becomes pending until the next successful commit. Returns the number of
// messages recorded.
func (e *Engine) RecordEdits(ctx context.Context, caller string, node core.NodePath, edits map[string]string) (int, error) {
	if node.Level() != core.LevelTranslation {
		return 0, core.WrapErrorf(core.ErrNotFound, "edits need a translation path, got %s", node)
	}
	_, unit, err := e.registry.Translation(node.Project, node.Component, node.Language)
	if err != nil {
		return 0, err
	}
	if err := e.guard.Authorize(ctx, caller, node, core.CapEdit); err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(edits))
	for key := range edits {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		if err := unit.RecordEdit(key, edits[key], caller); err != nil {
			return i, fmt.Errorf("edit %q: %w", key, err)
		}
	}
	e.logger.Debug("recorded edits", "node", node.String(), "caller", caller, "count", len(keys))
	return len(keys), nil
}

// NodeStatus is the status view of one node. Exactly one field is set.
type NodeStatus struct {
	Project     *synchronizer.ProjectStatus   `json:"project,omitempty"`
	Component   *synchronizer.ComponentStatus `json:"component,omitempty"`
	Translation *synchronizer.UnitStatus      `json:"translation,omitempty"`
}

// Status returns the status of node as seen by caller.
func (e *Engine) Status(ctx context.Context, caller string, node core.NodePath) (NodeStatus, error) {
	if err := e.registry.Resolve(node); err != nil {
		return NodeStatus{}, err
	}
	if err := e.guard.Authorize(ctx, caller, node, core.CapView); err != nil {
		return NodeStatus{}, err
	}

	switch node.Level() {
	case core.LevelProject:
		p, err := e.registry.Project(node.Project)
		if err != nil {
			return NodeStatus{}, err
		}
		st := p.Status(ctx)
		return NodeStatus{Project: &st}, nil
	case core.LevelComponent:
		c, err := e.registry.Component(node.Project, node.Component)
		if err != nil {
			return NodeStatus{}, err
		}
		st := c.Status(ctx)
		return NodeStatus{Component: &st}, nil
	default:
		c, _, err := e.registry.Translation(node.Project, node.Component, node.Language)
		if err != nil {
			return NodeStatus{}, err
		}
		st := c.Status(ctx)
		for i := range st.Units {
			if st.Units[i].Language == node.Language {
				return NodeStatus{Translation: &st.Units[i]}, nil
			}
		}
		return NodeStatus{}, core.WrapErrorf(core.ErrNotFound, "translation %s", node)
	}
}

// Overview returns the status of every project caller may view.
func (e *Engine) Overview(ctx context.Context, caller string) []synchronizer.ProjectStatus {
	projects := e.registry.Projects()
	out := make([]synchronizer.ProjectStatus, 0, len(projects))
	for _, p := range projects {
		if !e.CanView(ctx, caller, p.Node()) {
			continue
		}
		out = append(out, p.Status(ctx))
	}
	return out
}

// CanView reports whether caller may see node's status, history and events.
func (e *Engine) CanView(ctx context.Context, caller string, node core.NodePath) bool {
	return e.guard.Authorize(ctx, caller, node, core.CapView) == nil
}

// RunDetail is a recorded run with its per-node results.
type RunDetail struct {
	*core.Run
	Results []*core.RunResult `json:"results"`
}

// History returns the most recent runs caller may view, newest first. A
// non-positive limit means state.DefaultListLimit.
func (e *Engine) History(ctx context.Context, caller string, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = state.DefaultListLimit
	}
	// Hidden runs shrink a page, so widen the fetch until it holds limit
	// visible runs or the store runs out.
	for fetch := limit; ; fetch *= 2 {
		runs, err := e.store.ListRuns(fetch)
		if err != nil {
			return nil, err
		}
		visible := make([]*core.Run, 0, len(runs))
		for _, run := range runs {
			if e.runVisible(ctx, caller, run) {
				visible = append(visible, run)
			}
		}
		if len(visible) >= limit || len(runs) < fetch {
			if len(visible) > limit {
				visible = visible[:limit]
			}
			return visible, nil
		}
	}
}

// GetRun returns one run with its results.
func (e *Engine) GetRun(ctx context.Context, caller, id string) (*RunDetail, error) {
	run, err := e.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	if !e.runVisible(ctx, caller, run) {
		return nil, core.WrapErrorf(core.ErrForbidden, "%s may not view run %s", caller, id)
	}
	results, err := e.store.GetRunResults(id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Results: results}, nil
}

func (e *Engine) runVisible(ctx context.Context, caller string, run *core.Run) bool {
	node, err := core.ParseNodePath(run.Node)
	if err != nil {
		return false
	}
	return e.CanView(ctx, caller, node)
}
