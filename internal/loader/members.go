package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/logging"
	"github.com/lox/ensemblestats/internal/metrics"
	"github.com/lox/ensemblestats/internal/models"
	"github.com/lox/ensemblestats/internal/store"
)

const DefaultMemberFilename = "y_pred.db"

// MemberFiles loads an ensemble stored as one pre-merged file per member at
// Root/<member>/<Filename>, members numbered from 1. Every member file must
// list the same (date, echeance) samples in the same order; the first
// member defines the row keys.
type MemberFiles struct {
	Root     string
	Filename string
	Source   string
	Logger   *slog.Logger
}

func (l *MemberFiles) Path(member int) string {
	name := l.Filename
	if name == "" {
		name = DefaultMemberFilename
	}
	return filepath.Join(l.Root, strconv.Itoa(member), name)
}

// Load ignores req.Dates and req.Echeances: every sample in the files is
// returned and no date is ever skipped.
func (l *MemberFiles) Load(ctx context.Context, req Request) (*ensemble.Table, Report, error) {
	if err := req.validate(); err != nil {
		return nil, Report{}, err
	}
	log := logging.OrDiscard(l.Logger).With(slog.String("source", l.Source))

	var keys []models.SampleKey
	var grids [][]models.Grid
	for m := 1; m <= req.Members; m++ {
		if err := ctx.Err(); err != nil {
			return nil, Report{}, err
		}
		samples, err := l.readMember(ctx, m, req.Params)
		if err != nil {
			return nil, Report{}, err
		}

		if m == 1 {
			keys = make([]models.SampleKey, len(samples))
			grids = make([][]models.Grid, len(samples))
			for i, s := range samples {
				keys[i] = s.Key
				grids[i] = make([]models.Grid, len(req.Params)*req.Members)
			}
		} else if len(samples) != len(keys) {
			return nil, Report{}, fmt.Errorf("member %d: %w: %d samples, member 1 has %d",
				m, ensemble.ErrMalformedConfig, len(samples), len(keys))
		}

		for i, s := range samples {
			if !s.Key.Equal(keys[i]) {
				return nil, Report{}, fmt.Errorf("member %d row %d: %w: key %s, member 1 has %s",
					m, i, ensemble.ErrMalformedConfig, s.Key, keys[i])
			}
			for p, param := range req.Params {
				g, ok := s.Fields[param]
				if !ok {
					return nil, Report{}, fmt.Errorf("member %d row %d: %w: parameter %q not in %s",
						m, i, ensemble.ErrMalformedConfig, param, l.Path(m))
				}
				grids[i][columnIndex(p, m, req.Members)] = g
			}
		}
		log.Debug("member loaded", slog.Int("member", m), slog.Int("samples", len(samples)))
	}

	b, err := ensemble.NewBuilder(ensemble.MemberColumns(req.Params, req.Members))
	if err != nil {
		return nil, Report{}, err
	}
	for i, k := range keys {
		if err := b.AddRow(k, grids[i]); err != nil {
			return nil, Report{}, fmt.Errorf("%s: %w", l.Root, err)
		}
	}
	rep := Report{DaysLoaded: distinctDates(keys)}
	metrics.DaysLoaded.WithLabelValues(l.Source).Add(float64(rep.DaysLoaded))
	metrics.RowsLoaded.WithLabelValues(l.Source).Add(float64(b.Len()))
	log.Info("ensemble loaded",
		slog.Int("members", req.Members),
		slog.Int("days_loaded", rep.DaysLoaded),
		slog.Int("rows", b.Len()))
	return b.Build(), rep, nil
}

func (l *MemberFiles) readMember(ctx context.Context, member int, params []string) ([]store.MemberSample, error) {
	path := l.Path(member)
	s, err := store.OpenExisting(path)
	if err != nil {
		return nil, fmt.Errorf("member %d: %w", member, err)
	}
	defer s.Close()

	samples, err := s.MemberSamples(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("member %d: read %s: %w", member, path, err)
	}
	return samples, nil
}

// WriteMember stores a single member's samples as a member file at
// l.Path(member). It is the producer side of Load and is used to convert
// model output into this layout.
func (l *MemberFiles) WriteMember(ctx context.Context, member int, samples []store.MemberSample) error {
	path := l.Path(member)
	if err := mkdirFor(path); err != nil {
		return err
	}
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, sample := range samples {
		if err := s.InsertSample(ctx, sample); err != nil {
			return fmt.Errorf("member %d: %w", member, err)
		}
	}
	return nil
}
