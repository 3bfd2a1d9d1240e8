package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// CreateRun records the start of an operation.
func (s *SQLiteStore) CreateRun(node core.NodePath, op core.Operation, caller string) (*core.Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	run := &core.Run{
		ID:        generateID(),
		Node:      node.String(),
		Operation: op,
		Caller:    caller,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("node", run.Node), slog.String("operation", string(op)))

	_, err := s.db.Exec(
		`INSERT INTO sync_runs (id, node, operation, caller, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Node, string(run.Operation), run.Caller, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun stores the outcome of a run: its status and summary, and one
// result row per child outcome (or one for the outcome itself when it has no
// children).
func (s *SQLiteStore) CompleteRun(id string, outcome core.Outcome) (err error) {
	if err := s.opened(); err != nil {
		return err
	}

	status := core.RunStatusSucceeded
	if !outcome.Success {
		status = core.RunStatusFailed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		`UPDATE sync_runs SET status = ?, summary = ?, completed_at = ? WHERE id = ?`,
		string(status), outcome.Summary, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	results := outcome.Children
	if len(results) == 0 {
		results = []core.Outcome{outcome}
	}
	for i, r := range results {
		_, err = tx.Exec(
			`INSERT INTO sync_run_results (id, run_id, position, node, success, code, summary) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			generateID(), id, i, r.Node.String(), boolToInt(r.Success), string(r.Code), r.Summary,
		)
		if err != nil {
			return fmt.Errorf("failed to record run result: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(
		`SELECT id, node, operation, caller, status, summary, started_at, completed_at FROM sync_runs WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.WrapErrorf(core.ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.Query(`
		SELECT id, node, operation, caller, status, summary, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRunResults returns the per-node results of a run in outcome order.
func (s *SQLiteStore) GetRunResults(runID string) ([]*core.RunResult, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, run_id, node, success, code, summary
		FROM sync_run_results
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.RunResult
	for rows.Next() {
		r := &core.RunResult{}
		var success int
		var code string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Node, &success, &code, &r.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan run result: %w", err)
		}
		r.Success = success != 0
		r.Code = core.ErrorCode(code)
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	run := &core.Run{}
	var op, status string
	var completedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Node, &op, &run.Caller, &status, &run.Summary, &run.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Operation = core.Operation(op)
	run.Status = core.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}
