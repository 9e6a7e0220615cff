package models

import (
	"cmp"
	"fmt"
	"strconv"
	"time"
)

// Grid is one parameter's field over the spatial domain, stored row-major.
// A Grid never changes after construction; accessors that expose the
// backing values return copies.
type Grid struct {
	rows int
	cols int
	data []float64
}

// NewGrid copies data into a rows x cols grid.
func NewGrid(rows, cols int, data []float64) (Grid, error) {
	if rows <= 0 || cols <= 0 {
		return Grid{}, fmt.Errorf("grid shape %dx%d: dimensions must be positive", rows, cols)
	}
	if len(data) != rows*cols {
		return Grid{}, fmt.Errorf("grid shape %dx%d: got %d values", rows, cols, len(data))
	}
	return Grid{rows: rows, cols: cols, data: append([]float64(nil), data...)}, nil
}

// GridFromRows builds a grid from nested rows, mostly for fixtures.
func GridFromRows(values [][]float64) (Grid, error) {
	if len(values) == 0 {
		return Grid{}, fmt.Errorf("grid from rows: no rows")
	}
	cols := len(values[0])
	data := make([]float64, 0, len(values)*cols)
	for i, r := range values {
		if len(r) != cols {
			return Grid{}, fmt.Errorf("grid from rows: row %d has %d values, want %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return NewGrid(len(values), cols, data)
}

// OwnGrid is NewGrid without the copy: the grid takes ownership of data and
// the caller must not touch it afterwards. Used by decoders and reducers that
// allocate a fresh slice per grid.
func OwnGrid(rows, cols int, data []float64) (Grid, error) {
	if rows <= 0 || cols <= 0 || len(data) != rows*cols {
		return Grid{}, fmt.Errorf("grid shape %dx%d: got %d values", rows, cols, len(data))
	}
	return Grid{rows: rows, cols: cols, data: data}, nil
}

func (g Grid) Rows() int { return g.rows }
func (g Grid) Cols() int { return g.cols }
func (g Grid) Len() int  { return len(g.data) }

// IsZero reports whether g is the zero Grid (no shape, no data).
func (g Grid) IsZero() bool { return g.data == nil }

func (g Grid) At(i, j int) float64 { return g.data[i*g.cols+j] }

// Index returns the value at flat row-major offset k.
func (g Grid) Index(k int) float64 { return g.data[k] }

func (g Grid) SameShape(o Grid) bool { return g.rows == o.rows && g.cols == o.cols }

func (g Grid) Shape() string { return strconv.Itoa(g.rows) + "x" + strconv.Itoa(g.cols) }

// Values returns a copy of the row-major values.
func (g Grid) Values() []float64 { return append([]float64(nil), g.data...) }

// RowValues returns a copy of row i.
func (g Grid) RowValues(i int) []float64 {
	return append([]float64(nil), g.data[i*g.cols:(i+1)*g.cols]...)
}

// Equal reports whether both grids have the same shape and bit-identical
// values.
func (g Grid) Equal(o Grid) bool {
	if !g.SameShape(o) || len(g.data) != len(o.data) {
		return false
	}
	for k := range g.data {
		if g.data[k] != o.data[k] {
			return false
		}
	}
	return true
}

// SampleKey identifies one forecast occasion: the initialization date (hour
// resolution, UTC) and the lead time in hours.
type SampleKey struct {
	Date     time.Time
	Echeance int
}

// NewSampleKey normalizes date to UTC and truncates it to the hour.
func NewSampleKey(date time.Time, echeance int) SampleKey {
	return SampleKey{Date: date.UTC().Truncate(time.Hour), Echeance: echeance}
}

// ID returns a comparable form of k suitable for map keys.
func (k SampleKey) ID() KeyID {
	return KeyID{Unix: k.Date.Unix(), Echeance: k.Echeance}
}

func (k SampleKey) Equal(o SampleKey) bool { return k.ID() == o.ID() }

// ValidTime is the real-world time the forecast is valid for.
func (k SampleKey) ValidTime() time.Time {
	return k.Date.Add(time.Duration(k.Echeance) * time.Hour)
}

func (k SampleKey) String() string {
	return k.Date.UTC().Format("2006-01-02T15") + "Z+" + strconv.Itoa(k.Echeance) + "h"
}

// CompareKeys orders keys by date, then echeance.
func CompareKeys(a, b SampleKey) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return cmp.Compare(a.Echeance, b.Echeance)
}

type KeyID struct {
	Unix     int64
	Echeance int
}

// Column identifies one grid column of a table. Member is 1-based; zero
// marks a column already reduced across members. Source is empty until a
// merge disambiguates colliding columns.
type Column struct {
	Param  string
	Member int
	Source string
}

// String formats the flat column name used at the tabular boundary, e.g.
// "u10_3", "u10_ddpm" or "u10_3_arome".
func (c Column) String() string {
	s := c.Param
	if c.Member > 0 {
		s += "_" + strconv.Itoa(c.Member)
	}
	if c.Source != "" {
		s += "_" + c.Source
	}
	return s
}

// Reduced reports whether the column holds a statistic rather than a member.
func (c Column) Reduced() bool { return c.Member == 0 }
