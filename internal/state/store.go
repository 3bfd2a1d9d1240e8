// Package state persists hierarchy metadata and operation history in SQLite.
package state

import (
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Type aliases so callers of this package need not import pkg/core for the
// record types.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// Run is an alias for core.Run.
	Run = core.Run

	// RunResult is an alias for core.RunResult.
	RunResult = core.RunResult
)

// Re-exported status constants.
const (
	RunStatusRunning   = core.RunStatusRunning
	RunStatusSucceeded = core.RunStatusSucceeded
	RunStatusFailed    = core.RunStatusFailed
)

var _ Store = (*SQLiteStore)(nil)
