package core

import "time"

// Store defines the interface for state management operations.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Hierarchy metadata
	SaveProject(p *ProjectRecord) error
	SaveComponent(c *ComponentRecord) error
	SaveTranslation(t *TranslationRecord) error
	ListProjects() ([]*ProjectRecord, error)
	ListComponents(project string) ([]*ComponentRecord, error)
	ListTranslations(project, component string) ([]*TranslationRecord, error)
	PruneProjects(keep []string) (int64, error)

	// Operation history
	CreateRun(node NodePath, op Operation, caller string) (*Run, error)
	CompleteRun(id string, outcome Outcome) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	GetRunResults(runID string) ([]*RunResult, error)
}

// ProjectRecord is the persisted form of a project.
type ProjectRecord struct {
	Slug      string
	Name      string
	Position  int
	UpdatedAt time.Time
}

// ComponentRecord is the persisted form of a component.
type ComponentRecord struct {
	Project   string
	Slug      string
	Name      string
	Repo      string
	Branch    string
	FileMask  string
	Format    string
	Enabled   bool
	Position  int
	UpdatedAt time.Time
}

// TranslationRecord is the persisted form of a translation.
type TranslationRecord struct {
	Project   string
	Component string
	Language  string
	Path      string
	UpdatedAt time.Time
}

// RunStatus represents the status of a recorded operation.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded engine operation.
type Run struct {
	ID          string     `json:"id"`
	Node        string     `json:"node"`
	Operation   Operation  `json:"operation"`
	Caller      string     `json:"caller"`
	Status      RunStatus  `json:"status"`
	Summary     string     `json:"summary,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunResult is the per-node outcome recorded for a run.
type RunResult struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id"`
	Node    string    `json:"node"`
	Success bool      `json:"success"`
	Code    ErrorCode `json:"code,omitempty"`
	Summary string    `json:"summary"`
}
