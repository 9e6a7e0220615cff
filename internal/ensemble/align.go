package ensemble

import (
	"fmt"
	"time"

	"github.com/lox/ensemblestats/internal/models"
)

// DefaultOffset is the cycle difference between the NWP ensemble and the
// generative ensemble.
const DefaultOffset = 6 * time.Hour

// Aligner moves a table's keys onto another source's date/echeance
// convention: date += offset and echeance -= offset, so that a given
// validity time lands on the same key in both sources. The offset is always
// a whole number of hours; build one with NewAligner. The zero Aligner
// leaves keys unchanged.
type Aligner struct {
	offset time.Duration
}

func NewAligner(offset time.Duration) (Aligner, error) {
	if offset%time.Hour != 0 {
		return Aligner{}, fmt.Errorf("aligner offset %s: %w: must be a whole number of hours", offset, ErrMalformedConfig)
	}
	return Aligner{offset: offset}, nil
}

// Inverse undoes a.
func (a Aligner) Inverse() Aligner { return Aligner{offset: -a.offset} }

func (a Aligner) Offset() time.Duration { return a.offset }

// Hours is the offset in whole hours, the shift applied to echeances.
func (a Aligner) Hours() int { return int(a.offset / time.Hour) }

// Key shifts a single key.
func (a Aligner) Key(k models.SampleKey) models.SampleKey {
	return models.SampleKey{Date: k.Date.Add(a.offset), Echeance: k.Echeance - a.Hours()}
}

// Align returns a copy of t with every key shifted. Columns, column order,
// row order and grids are unchanged.
func (a Aligner) Align(t *Table) *Table {
	keys := make([]models.SampleKey, len(t.keys))
	for i, k := range t.keys {
		keys[i] = a.Key(k)
	}
	grids := make([][]models.Grid, len(t.grids))
	for i, row := range t.grids {
		grids[i] = append([]models.Grid(nil), row...)
	}
	return newTable(append([]models.Column(nil), t.columns...), keys, grids)
}
