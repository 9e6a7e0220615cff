// Package stats reduces ensemble tables across members, cell by cell.
package stats

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/models"
)

type Kind string

const (
	KindMean Kind = "mean"
	KindStd  Kind = "std"
	KindQ5   Kind = "q5"
	KindQ95  Kind = "q95"
)

// Kinds lists every statistic in reporting order.
var Kinds = []Kind{KindMean, KindStd, KindQ5, KindQ95}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(s))
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown statistic %q", s)
	}
	return k, nil
}

// reducer collapses one cell's member values. vals is scratch space the
// reducer may reorder.
type reducer func(vals []float64) float64

func (k Kind) reducer() reducer {
	switch k {
	case KindMean:
		return func(vals []float64) float64 { return stat.Mean(vals, nil) }
	case KindStd:
		return func(vals []float64) float64 {
			_, std := stat.PopMeanStdDev(vals, nil)
			return std
		}
	case KindQ5:
		return func(vals []float64) float64 { return percentile(vals, 5) }
	case KindQ95:
		return func(vals []float64) float64 { return percentile(vals, 95) }
	}
	return nil
}

// percentile sorts vals and interpolates linearly between the two closest
// order statistics: h = (n-1)*p/100, v[floor(h)] + frac(h)*(v[floor(h)+1]-v[floor(h)]).
// Any NaN member makes the result NaN.
func percentile(vals []float64, p float64) float64 {
	if slices.ContainsFunc(vals, math.IsNaN) {
		return math.NaN()
	}
	slices.Sort(vals)
	n := len(vals)
	if n == 1 {
		return vals[0]
	}
	h := float64(n-1) * p / 100
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return vals[n-1]
	}
	frac := h - float64(lo)
	return vals[lo] + frac*(vals[lo+1]-vals[lo])
}

// group is one output column and the member columns it reduces.
type group struct {
	out     models.Column
	members []models.Column
}

// groups resolves the member columns for each parameter, one group per
// source. Every group must hold exactly members 1..memberCount.
func groups(t *ensemble.Table, memberCount int, params []string) ([]group, error) {
	if memberCount < 1 {
		return nil, fmt.Errorf("member count %d: %w", memberCount, ensemble.ErrMalformedConfig)
	}
	cols := t.Columns()
	var out []group
	for _, p := range params {
		var sources []string
		for _, c := range cols {
			if c.Param == p && !c.Reduced() && !slices.Contains(sources, c.Source) {
				sources = append(sources, c.Source)
			}
		}
		if len(sources) == 0 {
			return nil, fmt.Errorf("parameter %q: %w: no member columns", p, ensemble.ErrMalformedConfig)
		}
		for _, src := range sources {
			present := 0
			for _, c := range cols {
				if c.Param == p && c.Source == src && !c.Reduced() {
					present++
				}
			}
			g := group{out: models.Column{Param: p, Source: src}}
			for m := 1; m <= memberCount; m++ {
				c := models.Column{Param: p, Member: m, Source: src}
				if !t.HasColumn(c) {
					return nil, fmt.Errorf("parameter %s: %w: member %d missing (table has %d members, want %d)",
						g.out, ensemble.ErrMalformedConfig, m, present, memberCount)
				}
				g.members = append(g.members, c)
			}
			if present != memberCount {
				return nil, fmt.Errorf("parameter %s: %w: table has %d members, want %d",
					g.out, ensemble.ErrMalformedConfig, present, memberCount)
			}
			out = append(out, g)
		}
	}
	return out, nil
}

// Compute reduces every row of t with the given statistic. For each
// parameter the member columns of each source are reduced into one column
// (Param, Source) with no member. memberCount must match the member columns
// present; a mismatch or an absent parameter is ErrMalformedConfig. Keys
// and row order are copied from t. Rows are processed in parallel.
func Compute(ctx context.Context, t *ensemble.Table, kind Kind, memberCount int, params []string) (*ensemble.Table, error) {
	reduce := kind.reducer()
	if reduce == nil {
		return nil, fmt.Errorf("unknown statistic %q", kind)
	}
	gs, err := groups(t, memberCount, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	outCols := make([]models.Column, len(gs))
	for i, g := range gs {
		outCols[i] = g.out
	}
	if t.Len() == 0 {
		return ensemble.Empty(outCols), nil
	}

	rows := make([][]models.Grid, t.Len())
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < t.Len(); i++ {
		i := i
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := make([]models.Grid, len(gs))
			for j, g := range gs {
				grid, err := reduceRow(t, i, g, reduce)
				if err != nil {
					return fmt.Errorf("%s row %s: %w", kind, t.Key(i), err)
				}
				out[j] = grid
			}
			rows[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	b, err := ensemble.NewBuilder(outCols)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := b.AddRow(t.Key(i), row); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func reduceRow(t *ensemble.Table, row int, g group, reduce reducer) (models.Grid, error) {
	members := make([]models.Grid, len(g.members))
	for m, c := range g.members {
		members[m], _ = t.Grid(row, c)
	}
	first := members[0]
	vals := make([]float64, len(members))
	out := make([]float64, first.Len())
	for k := range out {
		for m, grid := range members {
			vals[m] = grid.Index(k)
		}
		out[k] = reduce(vals)
	}
	return models.OwnGrid(first.Rows(), first.Cols(), out)
}

func Mean(ctx context.Context, t *ensemble.Table, memberCount int, params []string) (*ensemble.Table, error) {
	return Compute(ctx, t, KindMean, memberCount, params)
}

// StdDev is the population standard deviation (ddof = 0).
func StdDev(ctx context.Context, t *ensemble.Table, memberCount int, params []string) (*ensemble.Table, error) {
	return Compute(ctx, t, KindStd, memberCount, params)
}

func Q5(ctx context.Context, t *ensemble.Table, memberCount int, params []string) (*ensemble.Table, error) {
	return Compute(ctx, t, KindQ5, memberCount, params)
}

func Q95(ctx context.Context, t *ensemble.Table, memberCount int, params []string) (*ensemble.Table, error) {
	return Compute(ctx, t, KindQ95, memberCount, params)
}

// ComputeAll runs every kind in Kinds.
func ComputeAll(ctx context.Context, t *ensemble.Table, memberCount int, params []string) (map[Kind]*ensemble.Table, error) {
	out := make(map[Kind]*ensemble.Table, len(Kinds))
	for _, k := range Kinds {
		st, err := Compute(ctx, t, k, memberCount, params)
		if err != nil {
			return nil, err
		}
		out[k] = st
	}
	return out, nil
}
