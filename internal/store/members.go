package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lox/ensemblestats/internal/models"
)

// MemberSample is one row of a member file: the sample key at a position and
// the grids stored for it, keyed by parameter.
type MemberSample struct {
	Position int
	Key      models.SampleKey
	Fields   map[string]models.Grid
}

// InsertSample writes one sample and its fields atomically.
func (s *Store) InsertSample(ctx context.Context, sample MemberSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sample %d: %w", sample.Position, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO samples (position, date, echeance)
		VALUES (?, ?, ?)
	`, sample.Position, sample.Key.Date.UTC(), sample.Key.Echeance); err != nil {
		return fmt.Errorf("insert sample %d: %w", sample.Position, err)
	}

	for param, g := range sample.Fields {
		blob, err := EncodeGrid(g)
		if err != nil {
			return fmt.Errorf("sample %d %s: %w", sample.Position, param, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fields (position, parameter, grid)
			VALUES (?, ?, ?)
		`, sample.Position, param, blob); err != nil {
			return fmt.Errorf("insert field %d %s: %w", sample.Position, param, err)
		}
	}
	return tx.Commit()
}

// SampleKeys returns the keys in position order.
func (s *Store) SampleKeys(ctx context.Context) ([]models.SampleKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, echeance FROM samples ORDER BY position ASC`)
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

// MemberSamples returns every sample in position order with the fields of
// the requested parameters. A parameter absent for a sample is simply not
// in its Fields map; the caller decides whether that is an error.
func (s *Store) MemberSamples(ctx context.Context, params []string) ([]MemberSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, date, echeance FROM samples ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []MemberSample
	byPos := make(map[int]int)
	for rows.Next() {
		var ms MemberSample
		var date time.Time
		if err := rows.Scan(&ms.Position, &date, &ms.Key.Echeance); err != nil {
			return nil, err
		}
		ms.Key = models.NewSampleKey(date, ms.Key.Echeance)
		ms.Fields = make(map[string]models.Grid, len(params))
		byPos[ms.Position] = len(samples)
		samples = append(samples, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(params) == 0 || len(samples) == 0 {
		return samples, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(params)), ",")
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	frows, err := s.db.QueryContext(ctx,
		`SELECT position, parameter, grid FROM fields WHERE parameter IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer frows.Close()

	for frows.Next() {
		var pos int
		var param string
		var blob []byte
		if err := frows.Scan(&pos, &param, &blob); err != nil {
			return nil, err
		}
		i, ok := byPos[pos]
		if !ok {
			continue
		}
		g, err := DecodeGrid(blob)
		if err != nil {
			return nil, fmt.Errorf("sample %d %s: %w", pos, param, err)
		}
		samples[i].Fields[param] = g
	}
	return samples, frows.Err()
}
