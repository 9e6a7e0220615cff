package ensemble

import (
	"fmt"
	"slices"

	"github.com/lox/ensemblestats/internal/models"
)

// Source suffixes used when comparing the two ensembles.
const (
	SourceDDPM  = "ddpm"
	SourceArome = "arome"
)

// Merge joins a and b on SampleKey, keeping only keys present in both.
// Columns that exist in both tables get suffixA or suffixB as their Source;
// the others keep their identity. The result lists a's columns then b's,
// with rows in key order. An empty intersection gives an empty table with
// the merged column layout.
func Merge(a, b *Table, suffixA, suffixB string) (*Table, error) {
	if suffixA == "" || suffixB == "" || suffixA == suffixB {
		return nil, fmt.Errorf("merge: %w: suffixes %q and %q must be distinct and non-empty", ErrMalformedConfig, suffixA, suffixB)
	}

	columns := make([]models.Column, 0, len(a.columns)+len(b.columns))
	for _, c := range a.columns {
		if b.HasColumn(c) {
			c.Source = suffixA
		}
		columns = append(columns, c)
	}
	for _, c := range b.columns {
		if a.HasColumn(c) {
			c.Source = suffixB
		}
		columns = append(columns, c)
	}
	seen := make(map[models.Column]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, fmt.Errorf("merge: %w: column %s appears twice after suffixing", ErrMalformedConfig, c)
		}
		seen[c] = true
	}

	if ar, ac := a.Shape(); ar != 0 {
		if br, bc := b.Shape(); br != 0 && (ar != br || ac != bc) {
			return nil, fmt.Errorf("merge: %w: grid shapes %dx%d and %dx%d differ", ErrMalformedConfig, ar, ac, br, bc)
		}
	}

	inB := b.rowIndex()
	type pair struct{ i, j int }
	var matched []pair
	for i, k := range a.keys {
		if j, ok := inB[k.ID()]; ok {
			matched = append(matched, pair{i, j})
		}
	}
	slices.SortFunc(matched, func(x, y pair) int { return models.CompareKeys(a.keys[x.i], a.keys[y.i]) })

	keys := make([]models.SampleKey, len(matched))
	grids := make([][]models.Grid, len(matched))
	for n, p := range matched {
		keys[n] = a.keys[p.i]
		row := make([]models.Grid, 0, len(columns))
		row = append(row, a.grids[p.i]...)
		row = append(row, b.grids[p.j]...)
		grids[n] = row
	}
	return newTable(columns, keys, grids), nil
}
