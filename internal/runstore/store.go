// Package runstore provides SQLite-backed persistence of export run
// history, so operators can audit what was exported, with which filters,
// and how complete the result was.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
	"github.com/MateusSouzaG/bitrix-exporter/internal/export"
)

// Run is one recorded export run.
type Run struct {
	ID           string           `json:"id"`
	Department   string           `json:"department"`
	NameFilter   string           `json:"name_filter"`
	StatusFilter string           `json:"status_filter"`
	Preset       string           `json:"preset"`
	ActivityFrom string           `json:"activity_from"`
	ActivityTo   string           `json:"activity_to"`
	State        domain.RunStatus `json:"state"`
	ScopeSize    int              `json:"scope_size"`
	Discovered   int              `json:"discovered"`
	Enriched     int              `json:"enriched"`
	Skipped      int              `json:"skipped"`
	Entries      int              `json:"entries"`
	RowCount     int              `json:"row_count"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a run that has begun executing.
func (s *Store) StartRun(runID string, req export.Request, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO export_runs (id, department, name_filter, status_filter, preset, activity_from, activity_to, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		req.Department,
		req.Name,
		req.Status,
		req.Preset,
		req.ActivityFrom,
		req.ActivityTo,
		string(domain.RunRunning),
		startedAt,
	)
	return err
}

// FinishRun records a completed run's counters.
func (s *Store) FinishRun(result *export.Result) error {
	_, err := s.db.Exec(`
		UPDATE export_runs SET
			state = ?,
			scope_size = ?,
			discovered = ?,
			enriched = ?,
			skipped = ?,
			entries = ?,
			row_count = ?,
			finished_at = ?
		WHERE id = ?
	`,
		string(domain.RunCompleted),
		result.ScopeSize,
		result.Discovered,
		result.Enriched,
		result.Skipped,
		result.Entries,
		len(result.Rows),
		result.FinishedAt,
		result.RunID,
	)
	return err
}

// FailRun records a run that ended with an error.
func (s *Store) FailRun(runID string, runErr error, finishedAt time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.Exec(`
		UPDATE export_runs SET state = ?, error = ?, finished_at = ? WHERE id = ?
	`, string(domain.RunFailed), msg, finishedAt, runID)
	return err
}

// GetRun retrieves a run by id
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, department, name_filter, status_filter, preset, activity_from, activity_to,
		       state, scope_size, discovered, enriched, skipped, entries, row_count,
		       COALESCE(error, ''), started_at, finished_at
		FROM export_runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, department, name_filter, status_filter, preset, activity_from, activity_to,
		       state, scope_size, discovered, enriched, skipped, entries, row_count,
		       COALESCE(error, ''), started_at, finished_at
		FROM export_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var state string
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Department,
		&run.NameFilter,
		&run.StatusFilter,
		&run.Preset,
		&run.ActivityFrom,
		&run.ActivityTo,
		&state,
		&run.ScopeSize,
		&run.Discovered,
		&run.Enriched,
		&run.Skipped,
		&run.Entries,
		&run.RowCount,
		&run.Error,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.State = domain.RunStatus(state)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}
