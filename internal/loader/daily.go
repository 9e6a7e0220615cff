package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/logging"
	"github.com/lox/ensemblestats/internal/metrics"
	"github.com/lox/ensemblestats/internal/models"
)

const (
	DefaultPrefix     = "GC81"
	DefaultDateLayout = "2006-01-02T15:04:05"
)

// DefaultEcheances are the lead times, in file layer order, of the daily
// stacks produced by the generative model.
var DefaultEcheances = []int{12, 27, 42}

// DailyFiles loads an ensemble stored as one .npy file per member, date and
// parameter at Root/<member>/<Prefix>_<date>Z_<param>.npy. Each file holds a
// (height, width, lead) stack whose k-th layer is the k-th requested
// echeance.
type DailyFiles struct {
	Root       string
	Prefix     string
	DateLayout string // Go layout for <date>
	Source     string
	Logger     *slog.Logger
}

func (l *DailyFiles) Path(member int, date time.Time, param string) string {
	prefix, layout := l.Prefix, l.DateLayout
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	name := prefix + "_" + date.UTC().Format(layout) + "Z_" + param + ".npy"
	return filepath.Join(l.Root, strconv.Itoa(member), name)
}

// DayResult is the outcome of loading one date: either its rows, one per
// requested echeance with grids in column order, or the reason it was
// skipped.
type DayResult struct {
	Date time.Time
	Rows [][]models.Grid
	Skip *Skip
}

// Skip explains why a date was left out.
type Skip struct {
	Path string
	Err  error
}

func (s *Skip) Error() string { return "skipped: " + s.Err.Error() }
func (s *Skip) Unwrap() error { return s.Err }

func (d DayResult) Skipped() bool { return d.Skip != nil }

// LoadDay reads every member and parameter for date. A missing file yields
// a skipped DayResult and a nil error; any other failure is returned.
func (l *DailyFiles) LoadDay(ctx context.Context, req Request, date time.Time) (DayResult, error) {
	res := DayResult{Date: date}
	rows := make([][]models.Grid, len(req.Echeances))
	for e := range rows {
		rows[e] = make([]models.Grid, len(req.Params)*req.Members)
	}

	for m := 1; m <= req.Members; m++ {
		for p, param := range req.Params {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			path := l.Path(m, date, param)
			stack, err := readStack(path)
			if errors.Is(err, fs.ErrNotExist) {
				res.Skip = &Skip{Path: path, Err: fmt.Errorf("%w: %w", ensemble.ErrMissingInput, err)}
				return res, nil
			}
			if err != nil {
				return res, err
			}
			if len(stack) != len(req.Echeances) {
				return res, fmt.Errorf("%s: %w: %d lead times in file, %d echeances requested",
					path, ensemble.ErrMalformedConfig, len(stack), len(req.Echeances))
			}
			for e, g := range stack {
				rows[e][columnIndex(p, m, req.Members)] = g
			}
		}
	}
	res.Rows = rows
	return res, nil
}

// Load reads every requested date in order, skipping dates with missing
// files. Rows come out date-major, then in echeance order.
func (l *DailyFiles) Load(ctx context.Context, req Request) (*ensemble.Table, Report, error) {
	if err := req.validate(); err != nil {
		return nil, Report{}, err
	}
	if len(req.Echeances) == 0 {
		return nil, Report{}, fmt.Errorf("load: %w: no echeances", ensemble.ErrMalformedConfig)
	}
	log := logging.OrDiscard(l.Logger).With(slog.String("source", l.Source))

	b, err := ensemble.NewBuilder(ensemble.MemberColumns(req.Params, req.Members))
	if err != nil {
		return nil, Report{}, err
	}

	var rep Report
	for _, date := range req.Dates {
		day, err := l.LoadDay(ctx, req, date)
		if err != nil {
			return nil, Report{}, err
		}
		if day.Skipped() {
			rep.DaysSkipped++
			metrics.DaysSkipped.WithLabelValues(l.Source).Inc()
			log.Warn("missing day",
				slog.String("date", date.UTC().Format(time.RFC3339)),
				slog.String("path", day.Skip.Path))
			continue
		}
		for e, grids := range day.Rows {
			if err := b.AddRow(models.NewSampleKey(date, req.Echeances[e]), grids); err != nil {
				return nil, Report{}, err
			}
		}
		rep.DaysLoaded++
		metrics.DaysLoaded.WithLabelValues(l.Source).Inc()
	}

	metrics.RowsLoaded.WithLabelValues(l.Source).Add(float64(b.Len()))
	log.Info("ensemble loaded",
		slog.Int("members", req.Members),
		slog.Int("days_loaded", rep.DaysLoaded),
		slog.Int("days_skipped", rep.DaysSkipped),
		slog.Int("rows", b.Len()))
	return b.Build(), rep, nil
}
