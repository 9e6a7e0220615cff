package main

import (
	"errors"
	"testing"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
)

func TestParseDates(t *testing.T) {
	d := func(day, hour int) time.Time { return time.Date(2022, 3, day, hour, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		values []string
		want   []time.Time
	}{
		{"compact", []string{"2022030218"}, []time.Time{d(2, 18)}},
		{"iso", []string{"2022-03-02T18:00:00"}, []time.Time{d(2, 18)}},
		{"iso with zone", []string{"2022-03-02T20:00:00+02:00"}, []time.Time{d(2, 18)}},
		{"day only", []string{"2022-03-02"}, []time.Time{d(2, 0)}},
		{"range", []string{"2022030218/2022030418/PT24H"}, []time.Time{d(2, 18), d(3, 18), d(4, 18)}},
		{"range in days", []string{"2022030218/2022030418/P2D"}, []time.Time{d(2, 18), d(4, 18)}},
		{"range end not on step", []string{"2022030218/2022030312/PT12H"}, []time.Time{d(2, 18), d(3, 6)}},
		{"mixed", []string{"2022030218", "2022030518/2022030618/PT24H"}, []time.Time{d(2, 18), d(5, 18), d(6, 18)}},
		{"none", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDates(tt.values)
			if err != nil {
				t.Fatalf("parseDates(%q): %v", tt.values, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseDates(%q) = %v, want %v", tt.values, got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("date %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDatesErrors(t *testing.T) {
	tests := []string{
		"yesterday",
		"2022030218/2022030418",
		"2022030418/2022030218/PT24H",
		"2022030218/2022030418/PT0H",
		"2022030218/2022030418/24h",
		"2022030218/nope/PT24H",
	}
	for _, v := range tests {
		t.Run(v, func(t *testing.T) {
			if _, err := parseDates([]string{v}); !errors.Is(err, ensemble.ErrMalformedConfig) {
				t.Errorf("parseDates(%q) err = %v, want ErrMalformedConfig", v, err)
			}
		})
	}
}
