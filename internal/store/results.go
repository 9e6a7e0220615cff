package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/models"
)

// WriteStatistics stores every grid of a statistic table under kind,
// replacing earlier results for the same keys and columns.
func (s *Store) WriteStatistics(ctx context.Context, kind string, t *ensemble.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s statistics: %w", kind, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO statistics (kind, date, echeance, column_name, parameter, source, grid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, date, echeance, column_name) DO UPDATE SET
			parameter = excluded.parameter,
			source = excluded.source,
			grid = excluded.grid
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		key := t.Key(i)
		for _, c := range cols {
			g, _ := t.Grid(i, c)
			blob, err := EncodeGrid(g)
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", kind, key, c, err)
			}
			if _, err := stmt.ExecContext(ctx, kind, key.Date.UTC(), key.Echeance, c.String(), c.Param, c.Source, blob); err != nil {
				return fmt.Errorf("insert %s %s %s: %w", kind, key, c, err)
			}
		}
	}
	return tx.Commit()
}

// Statistic reads back one stored grid. It returns nil, nil when nothing is
// stored for that key and column.
func (s *Store) Statistic(ctx context.Context, kind string, key models.SampleKey, column string) (*models.Grid, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT grid FROM statistics
		WHERE kind = ? AND date = ? AND echeance = ? AND column_name = ?
	`, kind, key.Date.UTC(), key.Echeance, column).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g, err := DecodeGrid(blob)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// StatisticKeys lists the sample keys stored for kind, in key order.
func (s *Store) StatisticKeys(ctx context.Context, kind string) ([]models.SampleKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT date, echeance FROM statistics
		WHERE kind = ?
		ORDER BY date ASC, echeance ASC
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.SampleKey
	for rows.Next() {
		var date time.Time
		var ech int
		if err := rows.Scan(&date, &ech); err != nil {
			return nil, err
		}
		keys = append(keys, models.NewSampleKey(date, ech))
	}
	return keys, rows.Err()
}

// WriteTemporalMean stores the all-samples average of one statistic column.
func (s *Store) WriteTemporalMean(ctx context.Context, kind, column string, samples int, g models.Grid) error {
	blob, err := EncodeGrid(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO temporal_means (kind, column_name, sample_count, grid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, column_name) DO UPDATE SET
			sample_count = excluded.sample_count,
			grid = excluded.grid
	`, kind, column, samples, blob)
	return err
}

func (s *Store) TemporalMean(ctx context.Context, kind, column string) (*models.Grid, int, error) {
	var blob []byte
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT sample_count, grid FROM temporal_means WHERE kind = ? AND column_name = ?
	`, kind, column).Scan(&n, &blob)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	g, err := DecodeGrid(blob)
	if err != nil {
		return nil, 0, err
	}
	return &g, n, nil
}

// WriteSpatialMeans stores one value per sample key. keys and values must
// have the same length.
func (s *Store) WriteSpatialMeans(ctx context.Context, kind, column string, keys []models.SampleKey, values []float64) error {
	if len(keys) != len(values) {
		return fmt.Errorf("spatial means %s %s: %d keys for %d values", kind, column, len(keys), len(values))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spatial_means (kind, date, echeance, column_name, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(kind, date, echeance, column_name) DO UPDATE SET value = excluded.value
		`, kind, key.Date.UTC(), key.Echeance, column, values[i]); err != nil {
			return fmt.Errorf("insert spatial mean %s %s %s: %w", kind, column, key, err)
		}
	}
	return tx.Commit()
}

// SpatialMeans returns the stored values for one column in key order.
func (s *Store) SpatialMeans(ctx context.Context, kind, column string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM spatial_means
		WHERE kind = ? AND column_name = ?
		ORDER BY date ASC, echeance ASC
	`, kind, column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
