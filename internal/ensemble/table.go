// Package ensemble holds the table an ensemble is loaded into and the
// key-level operations applied to it before statistics are computed:
// projection, date/echeance alignment and merging two sources.
package ensemble

import (
	"fmt"
	"slices"

	"github.com/lox/ensemblestats/internal/models"
)

// Table has one row per SampleKey and one grid per column in every row.
// Tables are immutable: every operation returns a new Table. Grids are
// shared between tables since they cannot change.
type Table struct {
	columns []models.Column
	index   map[models.Column]int
	keys    []models.SampleKey
	grids   [][]models.Grid // [row][column]
}

func newTable(columns []models.Column, keys []models.SampleKey, grids [][]models.Grid) *Table {
	index := make(map[models.Column]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Table{columns: columns, index: index, keys: keys, grids: grids}
}

// Empty returns a table with the given columns and no rows.
func Empty(columns []models.Column) *Table {
	return newTable(slices.Clone(columns), nil, nil)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.keys) }

func (t *Table) NumColumns() int { return len(t.columns) }

// Columns returns the columns in table order.
func (t *Table) Columns() []models.Column { return slices.Clone(t.columns) }

func (t *Table) Key(row int) models.SampleKey { return t.keys[row] }

func (t *Table) Keys() []models.SampleKey { return slices.Clone(t.keys) }

func (t *Table) HasColumn(c models.Column) bool {
	_, ok := t.index[c]
	return ok
}

// Grid returns the grid of column c in the given row.
func (t *Table) Grid(row int, c models.Column) (models.Grid, bool) {
	j, ok := t.index[c]
	if !ok {
		return models.Grid{}, false
	}
	return t.grids[row][j], true
}

// Column looks a column up by its flat name, e.g. "u10_3" or "u10_ddpm".
func (t *Table) Column(name string) (models.Column, bool) {
	for _, c := range t.columns {
		if c.String() == name {
			return c, true
		}
	}
	return models.Column{}, false
}

// GridByName is Grid keyed by the flat column name.
func (t *Table) GridByName(row int, name string) (models.Grid, bool) {
	c, ok := t.Column(name)
	if !ok {
		return models.Grid{}, false
	}
	return t.Grid(row, c)
}

// Params returns the distinct parameters in column order.
func (t *Table) Params() []string {
	var params []string
	for _, c := range t.columns {
		if !slices.Contains(params, c.Param) {
			params = append(params, c.Param)
		}
	}
	return params
}

// Sources returns the distinct column sources in column order. A table that
// has never been merged returns [""].
func (t *Table) Sources() []string {
	var sources []string
	for _, c := range t.columns {
		if !slices.Contains(sources, c.Source) {
			sources = append(sources, c.Source)
		}
	}
	return sources
}

// Shape returns the grid shape shared by all cells, or 0x0 for a table
// without rows.
func (t *Table) Shape() (rows, cols int) {
	if len(t.grids) == 0 || len(t.grids[0]) == 0 {
		return 0, 0
	}
	g := t.grids[0][0]
	return g.Rows(), g.Cols()
}

// Project keeps the columns accepted by keep, in table order.
func (t *Table) Project(keep func(models.Column) bool) *Table {
	var cols []models.Column
	var idx []int
	for j, c := range t.columns {
		if keep(c) {
			cols = append(cols, c)
			idx = append(idx, j)
		}
	}
	grids := make([][]models.Grid, len(t.grids))
	for i, row := range t.grids {
		out := make([]models.Grid, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		grids[i] = out
	}
	return newTable(cols, slices.Clone(t.keys), grids)
}

// ProjectParams keeps the columns of the given parameters. It fails with
// ErrMalformedConfig when a parameter has no column.
func (t *Table) ProjectParams(params ...string) (*Table, error) {
	for _, p := range params {
		if !slices.ContainsFunc(t.columns, func(c models.Column) bool { return c.Param == p }) {
			return nil, fmt.Errorf("project %q: %w: parameter not in table", p, ErrMalformedConfig)
		}
	}
	return t.Project(func(c models.Column) bool { return slices.Contains(params, c.Param) }), nil
}

// ProjectSource keeps one source's columns and clears their Source, giving
// back the table as it was before a merge.
func (t *Table) ProjectSource(source string) *Table {
	p := t.Project(func(c models.Column) bool { return c.Source == source })
	for i := range p.columns {
		p.columns[i].Source = ""
	}
	return newTable(p.columns, p.keys, p.grids)
}

// Row returns the grids of one row keyed by column.
func (t *Table) Row(row int) map[models.Column]models.Grid {
	m := make(map[models.Column]models.Grid, len(t.columns))
	for j, c := range t.columns {
		m[c] = t.grids[row][j]
	}
	return m
}

// rowIndex maps key ids to row positions.
func (t *Table) rowIndex() map[models.KeyID]int {
	m := make(map[models.KeyID]int, len(t.keys))
	for i, k := range t.keys {
		m[k.ID()] = i
	}
	return m
}
