package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/models"
)

// TemporalMean averages one column's grids over all rows of t, giving the
// single synthesis map per statistic. ok is false when t has no rows.
func TemporalMean(t *ensemble.Table, col models.Column) (g models.Grid, ok bool, err error) {
	if !t.HasColumn(col) {
		return models.Grid{}, false, fmt.Errorf("temporal mean %s: %w: column not in table", col, ensemble.ErrMalformedConfig)
	}
	if t.Len() == 0 {
		return models.Grid{}, false, nil
	}
	first, _ := t.Grid(0, col)
	sum := make([]float64, first.Len())
	for i := 0; i < t.Len(); i++ {
		grid, _ := t.Grid(i, col)
		floats.Add(sum, grid.Values())
	}
	floats.Scale(1/float64(t.Len()), sum)
	g, err = models.OwnGrid(first.Rows(), first.Cols(), sum)
	return g, err == nil, err
}

// SpatialMeans returns, for each row of t, the mean of col over the whole
// grid. These feed the per-statistic distribution plots.
func SpatialMeans(t *ensemble.Table, col models.Column) ([]float64, error) {
	if !t.HasColumn(col) {
		return nil, fmt.Errorf("spatial means %s: %w: column not in table", col, ensemble.ErrMalformedConfig)
	}
	out := make([]float64, t.Len())
	for i := range out {
		grid, _ := t.Grid(i, col)
		out[i] = floats.Sum(grid.Values()) / float64(grid.Len())
	}
	return out, nil
}
