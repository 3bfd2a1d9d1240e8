// Package engine is the entry point of every synchronizer request. It
// resolves the node, asks the access guard, dispatches the operation,
// records it in the operation history and publishes the outcome.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/config"
	"github.com/leapstack-labs/l10nsync/internal/hierarchy"
	"github.com/leapstack-labs/l10nsync/internal/state"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Event is published after every operation.
type Event struct {
	RunID   string       `json:"run_id,omitempty"`
	Caller  string       `json:"caller"`
	Outcome core.Outcome `json:"outcome"`
}

// Publisher receives events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Engine owns the hierarchy, the state store and the access guard.
type Engine struct {
	registry  *hierarchy.Registry
	store     state.Store
	guard     access.Guard
	publisher Publisher
	logger    *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// StatePath is the SQLite state database; ":memory:" keeps it in memory.
	StatePath string

	Hierarchy config.HierarchyConfig

	// Guard defaults to access.Local.
	Guard access.Guard

	// Publisher is optional.
	Publisher Publisher

	// Open overrides how working copies are opened (tests).
	Open hierarchy.Opener

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New opens and migrates the state store and builds the hierarchy.
// Working copies are opened by Prepare.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("initializing engine", "state_path", cfg.StatePath, "workspace", cfg.Hierarchy.WorkspaceDir)

	registry, err := hierarchy.New(hierarchy.Options{
		Config: cfg.Hierarchy,
		Open:   cfg.Open,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.StatePath != ":memory:" {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	guard := cfg.Guard
	if guard == nil {
		guard = access.Local{}
	}

	return &Engine{
		registry:  registry,
		store:     store,
		guard:     guard,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// Prepare opens or clones every working copy and persists the hierarchy.
// Components that fail to prepare are logged and returned; they report
// their error when operated on.
func (e *Engine) Prepare(ctx context.Context) (map[string]error, error) {
	failed := e.registry.Prepare(ctx)
	if err := e.registry.Persist(e.store); err != nil {
		return failed, fmt.Errorf("failed to persist hierarchy: %w", err)
	}
	return failed, nil
}

// SetPublisher replaces the publisher. Call before serving requests.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// Registry returns the hierarchy.
func (e *Engine) Registry() *hierarchy.Registry {
	return e.registry
}

// Store returns the state store.
func (e *Engine) Store() state.Store {
	return e.store
}

// Close closes the state store.
func (e *Engine) Close() error {
	return e.store.Close()
}
