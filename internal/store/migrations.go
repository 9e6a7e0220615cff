package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Member samples and fields",
		SQL: `
CREATE TABLE IF NOT EXISTS samples (
    position INTEGER PRIMARY KEY,
    date DATETIME NOT NULL,
    echeance INTEGER NOT NULL,
    UNIQUE(date, echeance)
);

CREATE TABLE IF NOT EXISTS fields (
    position INTEGER NOT NULL REFERENCES samples(position),
    parameter TEXT NOT NULL,
    grid BLOB NOT NULL,
    PRIMARY KEY (position, parameter)
);
`,
	},
	{
		Version:     2,
		Description: "Statistic results",
		SQL: `
CREATE TABLE IF NOT EXISTS statistics (
    kind TEXT NOT NULL,
    date DATETIME NOT NULL,
    echeance INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    parameter TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    grid BLOB NOT NULL,
    PRIMARY KEY (kind, date, echeance, column_name)
);

CREATE TABLE IF NOT EXISTS temporal_means (
    kind TEXT NOT NULL,
    column_name TEXT NOT NULL,
    sample_count INTEGER NOT NULL,
    grid BLOB NOT NULL,
    PRIMARY KEY (kind, column_name)
);

CREATE TABLE IF NOT EXISTS spatial_means (
    kind TEXT NOT NULL,
    date DATETIME NOT NULL,
    echeance INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (kind, date, echeance, column_name)
);

CREATE INDEX IF NOT EXISTS idx_statistics_column ON statistics(kind, column_name);
`,
	},
	{
		Version:     3,
		Description: "Analysis runs",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    command TEXT NOT NULL,
    offset_hours INTEGER,
    days_loaded INTEGER,
    days_skipped INTEGER,
    rows_out INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
