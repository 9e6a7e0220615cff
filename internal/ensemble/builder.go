package ensemble

import (
	"fmt"
	"slices"

	"github.com/lox/ensemblestats/internal/models"
)

// MemberColumns lists the columns of an unmerged ensemble: every parameter
// for members 1..members, parameter-major.
func MemberColumns(params []string, members int) []models.Column {
	cols := make([]models.Column, 0, len(params)*members)
	for _, p := range params {
		for m := 1; m <= members; m++ {
			cols = append(cols, models.Column{Param: p, Member: m})
		}
	}
	return cols
}

// Record is one complete row handed to a Builder.
type Record struct {
	Key   models.SampleKey
	Grids map[models.Column]models.Grid
}

// Builder collects complete rows and produces a Table once. A row is either
// added with a grid for every column or rejected; there are no partial rows.
type Builder struct {
	columns []models.Column
	index   map[models.Column]int
	seen    map[models.KeyID]bool
	keys    []models.SampleKey
	grids   [][]models.Grid
	rows    int
	cols    int
}

func NewBuilder(columns []models.Column) (*Builder, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("new table: %w: no columns", ErrMalformedConfig)
	}
	index := make(map[models.Column]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("new table: %w: duplicate column %s", ErrMalformedConfig, c)
		}
		index[c] = i
	}
	return &Builder{
		columns: slices.Clone(columns),
		index:   index,
		seen:    make(map[models.KeyID]bool),
	}, nil
}

// Add appends rec. It fails if a column is missing or unknown, a grid's
// shape differs from the rows already added, or the key is a duplicate.
func (b *Builder) Add(rec Record) error {
	if len(rec.Grids) != len(b.columns) {
		return fmt.Errorf("row %s: %w: %d grids for %d columns", rec.Key, ErrMalformedConfig, len(rec.Grids), len(b.columns))
	}
	row := make([]models.Grid, len(b.columns))
	for c, g := range rec.Grids {
		j, ok := b.index[c]
		if !ok {
			return fmt.Errorf("row %s: %w: unknown column %s", rec.Key, ErrMalformedConfig, c)
		}
		row[j] = g
	}
	return b.AddRow(rec.Key, row)
}

// AddRow appends a row whose grids are given in column order.
func (b *Builder) AddRow(key models.SampleKey, grids []models.Grid) error {
	if len(grids) != len(b.columns) {
		return fmt.Errorf("row %s: %w: %d grids for %d columns", key, ErrMalformedConfig, len(grids), len(b.columns))
	}
	for j, g := range grids {
		if g.IsZero() {
			return fmt.Errorf("row %s: %w: no grid for %s", key, ErrMalformedConfig, b.columns[j])
		}
		if b.rows == 0 && b.cols == 0 {
			b.rows, b.cols = g.Rows(), g.Cols()
		}
		if g.Rows() != b.rows || g.Cols() != b.cols {
			return fmt.Errorf("row %s column %s: %w: grid is %s, table is %dx%d",
				key, b.columns[j], ErrMalformedConfig, g.Shape(), b.rows, b.cols)
		}
	}
	id := key.ID()
	if b.seen[id] {
		return fmt.Errorf("row %s: %w: duplicate key", key, ErrMalformedConfig)
	}
	b.seen[id] = true
	b.keys = append(b.keys, key)
	b.grids = append(b.grids, slices.Clone(grids))
	return nil
}

func (b *Builder) Len() int { return len(b.keys) }

// Build returns the table. The builder must not be used afterwards.
func (b *Builder) Build() *Table {
	t := newTable(b.columns, b.keys, b.grids)
	*b = Builder{}
	return t
}
