package store

import (
	"database/sql"
	"time"
)

// Run records one CLI invocation that wrote into a results database.
type Run struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Command      string // "stats", "compare"
	OffsetHours  sql.NullInt64
	DaysLoaded   sql.NullInt64
	DaysSkipped  sql.NullInt64
	RowsOut      sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartRun inserts a run record and returns it.
func (s *Store) StartRun(command string) (*Run, error) {
	run := &Run{
		StartedAt: time.Now().UTC(),
		Command:   command,
	}

	result, err := s.db.Exec(`
		INSERT INTO runs (started_at, command, success)
		VALUES (?, ?, FALSE)
	`, run.StartedAt, run.Command)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun stores the outcome of run. A nil err marks it successful.
func (s *Store) CompleteRun(run *Run, runErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?,
			offset_hours = ?,
			days_loaded = ?,
			days_skipped = ?,
			rows_out = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.OffsetHours, run.DaysLoaded, run.DaysSkipped,
		run.RowsOut, run.Success, run.ErrorMessage, run.ID)
	return err
}

// LastRun returns the most recent run, or nil if none was recorded.
func (s *Store) LastRun() (*Run, error) {
	var run Run
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, command, offset_hours, days_loaded, days_skipped, rows_out, success, error_message
		FROM runs ORDER BY id DESC LIMIT 1
	`).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Command, &run.OffsetHours,
		&run.DaysLoaded, &run.DaysSkipped, &run.RowsOut, &run.Success, &run.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
