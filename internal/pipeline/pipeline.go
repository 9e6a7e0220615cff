// Package pipeline runs a whole analysis: load, align, reduce, merge and
// write the results database the plots are drawn from.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/loader"
	"github.com/lox/ensemblestats/internal/logging"
	"github.com/lox/ensemblestats/internal/metrics"
	"github.com/lox/ensemblestats/internal/models"
	"github.com/lox/ensemblestats/internal/stats"
	"github.com/lox/ensemblestats/internal/store"
)

// Source is one ensemble to load. Aligner, when set, moves the loaded keys
// onto the other source's convention.
type Source struct {
	Name    string
	Loader  loader.Loader
	Request loader.Request
	Aligner *ensemble.Aligner
}

// Result summarizes a run for logging and the runs table.
type Result struct {
	DaysLoaded  int
	DaysSkipped int
	Rows        int
	Tables      map[stats.Kind]*ensemble.Table
}

type Pipeline struct {
	store *store.Store
	log   *slog.Logger
}

func New(st *store.Store, log *slog.Logger) *Pipeline {
	return &Pipeline{store: st, log: logging.OrDiscard(log)}
}

// load reads src and applies its aligner.
func (p *Pipeline) load(ctx context.Context, src Source) (*ensemble.Table, loader.Report, error) {
	t, rep, err := src.Loader.Load(ctx, src.Request)
	if err != nil {
		return nil, rep, fmt.Errorf("load %s: %w", src.Name, err)
	}
	if src.Aligner != nil {
		t = src.Aligner.Align(t)
		p.log.Info("keys aligned", slog.String("source", src.Name), slog.Duration("offset", src.Aligner.Offset()))
	}
	return t, rep, nil
}

// Stats computes every statistic for one source and stores the tables
// with unsuffixed columns.
func (p *Pipeline) Stats(ctx context.Context, src Source) (res Result, err error) {
	run := p.startRun("stats", src.Aligner)
	defer func() { p.completeRun(run, res, err) }()

	t, rep, err := p.load(ctx, src)
	if err != nil {
		return res, err
	}
	res.DaysLoaded, res.DaysSkipped = rep.DaysLoaded, rep.DaysSkipped

	res.Tables = make(map[stats.Kind]*ensemble.Table, len(stats.Kinds))
	for _, kind := range stats.Kinds {
		st, err := p.compute(ctx, t, kind, src)
		if err != nil {
			return res, err
		}
		res.Tables[kind] = st
		if err := p.write(ctx, kind, st); err != nil {
			return res, err
		}
	}
	res.Rows = t.Len()
	return res, nil
}

// Compare computes every statistic for both sources, joins each pair of
// statistic tables on (date, echeance) with the sources' names as column
// suffixes and stores the merged tables.
func (p *Pipeline) Compare(ctx context.Context, a, b Source) (res Result, err error) {
	run := p.startRun("compare", b.Aligner)
	defer func() { p.completeRun(run, res, err) }()

	if a.Name == "" || b.Name == "" || a.Name == b.Name {
		return res, fmt.Errorf("compare: %w: source names %q and %q must be distinct and non-empty",
			ensemble.ErrMalformedConfig, a.Name, b.Name)
	}

	ta, repA, err := p.load(ctx, a)
	if err != nil {
		return res, err
	}
	tb, repB, err := p.load(ctx, b)
	if err != nil {
		return res, err
	}
	res.DaysLoaded = repA.DaysLoaded + repB.DaysLoaded
	res.DaysSkipped = repA.DaysSkipped + repB.DaysSkipped

	res.Tables = make(map[stats.Kind]*ensemble.Table, len(stats.Kinds))
	for _, kind := range stats.Kinds {
		sa, err := p.compute(ctx, ta, kind, a)
		if err != nil {
			return res, err
		}
		sb, err := p.compute(ctx, tb, kind, b)
		if err != nil {
			return res, err
		}
		merged, err := ensemble.Merge(sa, sb, a.Name, b.Name)
		if err != nil {
			return res, fmt.Errorf("%s: %w", kind, err)
		}
		if merged.Len() == 0 {
			p.log.Warn("no common samples", slog.String("kind", string(kind)),
				slog.Int(a.Name, sa.Len()), slog.Int(b.Name, sb.Len()))
		}
		metrics.MergedRows.Set(float64(merged.Len()))
		res.Tables[kind] = merged
		res.Rows = merged.Len()
		if err := p.write(ctx, kind, merged); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) compute(ctx context.Context, t *ensemble.Table, kind stats.Kind, src Source) (*ensemble.Table, error) {
	start := time.Now()
	st, err := stats.Compute(ctx, t, kind, src.Request.Members, src.Request.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}
	metrics.StatisticDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.StatisticRows.WithLabelValues(string(kind)).Add(float64(st.Len()))
	p.log.Debug("statistic computed", slog.String("source", src.Name), slog.String("kind", string(kind)),
		slog.Int("rows", st.Len()), slog.Duration("elapsed", time.Since(start)))
	return st, nil
}

// write stores a statistic table plus, per column, its temporal mean grid
// and per-row spatial means.
func (p *Pipeline) write(ctx context.Context, kind stats.Kind, t *ensemble.Table) error {
	if p.store == nil {
		return nil
	}
	k := string(kind)
	if err := p.store.WriteStatistics(ctx, k, t); err != nil {
		return fmt.Errorf("write %s: %w", k, err)
	}
	keys := t.Keys()
	for _, c := range t.Columns() {
		if g, ok, err := stats.TemporalMean(t, c); err != nil {
			return err
		} else if ok {
			if err := p.store.WriteTemporalMean(ctx, k, c.String(), t.Len(), g); err != nil {
				return fmt.Errorf("write %s temporal mean %s: %w", k, c, err)
			}
		}
		means, err := stats.SpatialMeans(t, c)
		if err != nil {
			return err
		}
		if err := p.store.WriteSpatialMeans(ctx, k, c.String(), keys, means); err != nil {
			return fmt.Errorf("write %s spatial means %s: %w", k, c, err)
		}
	}
	return nil
}

func (p *Pipeline) startRun(command string, a *ensemble.Aligner) *store.Run {
	if p.store == nil {
		return nil
	}
	run, err := p.store.StartRun(command)
	if err != nil {
		p.log.Warn("failed to record run", slog.String("error", err.Error()))
		return nil
	}
	if a != nil {
		run.OffsetHours = sql.NullInt64{Int64: int64(a.Hours()), Valid: true}
	}
	return run
}

func (p *Pipeline) completeRun(run *store.Run, res Result, runErr error) {
	if run == nil {
		return
	}
	run.DaysLoaded = sql.NullInt64{Int64: int64(res.DaysLoaded), Valid: true}
	run.DaysSkipped = sql.NullInt64{Int64: int64(res.DaysSkipped), Valid: true}
	run.RowsOut = sql.NullInt64{Int64: int64(res.Rows), Valid: true}
	if err := p.store.CompleteRun(run, runErr); err != nil {
		p.log.Warn("failed to complete run", slog.String("error", err.Error()))
	}
}

// Keys loads src and returns its (aligned) sample keys.
func Keys(ctx context.Context, src Source) ([]models.SampleKey, error) {
	p := New(nil, nil)
	t, _, err := p.load(ctx, src)
	if err != nil {
		return nil, err
	}
	return t.Keys(), nil
}
