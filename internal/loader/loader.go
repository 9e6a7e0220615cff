// Package loader reads ensemble members from disk into ensemble tables.
//
// Two layouts are supported. MemberFiles reads one pre-merged file per
// member holding every (date, echeance) sample; DailyFiles reads one .npy
// stack per (member, date, parameter) and drops a date entirely when any of
// its files is missing.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/models"
)

// Loader is implemented by both layouts.
type Loader interface {
	Load(ctx context.Context, req Request) (*ensemble.Table, Report, error)
}

// Report counts the forecast dates a Load covered. Only layouts addressed by
// date can skip one.
type Report struct {
	DaysLoaded  int
	DaysSkipped int
}

func distinctDates(keys []models.SampleKey) int {
	seen := make(map[int64]bool)
	for _, k := range keys {
		seen[k.Date.Unix()] = true
	}
	return len(seen)
}

// Request describes what to load. Dates and Echeances are only used by
// layouts that are addressed by date; MemberFiles ignores them and returns
// every sample in the files.
type Request struct {
	Members   int
	Params    []string
	Dates     []time.Time
	Echeances []int
}

func (r Request) validate() error {
	if r.Members < 1 {
		return fmt.Errorf("load: %w: member count %d", ensemble.ErrMalformedConfig, r.Members)
	}
	if len(r.Params) == 0 {
		return fmt.Errorf("load: %w: no parameters", ensemble.ErrMalformedConfig)
	}
	seen := make(map[string]bool, len(r.Params))
	for _, p := range r.Params {
		if p == "" || seen[p] {
			return fmt.Errorf("load: %w: bad or repeated parameter %q", ensemble.ErrMalformedConfig, p)
		}
		seen[p] = true
	}
	return nil
}

// columnIndex is the position of (param, member) in
// ensemble.MemberColumns(params, members).
func columnIndex(paramIdx, member, members int) int {
	return paramIdx*members + member - 1
}

func mkdirFor(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return nil
}
