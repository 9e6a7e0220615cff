package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
)

var dateLayouts = []string{
	"2006010215",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ensemble.ErrMalformedConfig, s)
}

// parseStep reads a PT<n>H (or PnD) step.
func parseStep(s string) (time.Duration, error) {
	bad := fmt.Errorf("%w: step %q must look like PT24H or P1D", ensemble.ErrMalformedConfig, s)
	var unit time.Duration
	var num string
	switch {
	case strings.HasPrefix(s, "PT") && strings.HasSuffix(s, "H"):
		unit, num = time.Hour, s[2:len(s)-1]
	case strings.HasPrefix(s, "P") && strings.HasSuffix(s, "D"):
		unit, num = 24*time.Hour, s[1:len(s)-1]
	default:
		return 0, bad
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, bad
	}
	return time.Duration(n) * unit, nil
}

// parseDates expands each value into forecast dates. A value is a single
// date or START/END/STEP with an inclusive END, e.g.
// 2022030218/2022031018/PT24H.
func parseDates(values []string) ([]time.Time, error) {
	var out []time.Time
	for _, v := range values {
		parts := strings.Split(v, "/")
		switch len(parts) {
		case 1:
			t, err := parseDate(v)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		case 3:
			start, err := parseDate(parts[0])
			if err != nil {
				return nil, err
			}
			end, err := parseDate(parts[1])
			if err != nil {
				return nil, err
			}
			step, err := parseStep(parts[2])
			if err != nil {
				return nil, err
			}
			if end.Before(start) {
				return nil, fmt.Errorf("%w: range %q ends before it starts", ensemble.ErrMalformedConfig, v)
			}
			for t := start; !t.After(end); t = t.Add(step) {
				out = append(out, t)
			}
		default:
			return nil, fmt.Errorf("%w: %q is neither a date nor START/END/STEP", ensemble.ErrMalformedConfig, v)
		}
	}
	return out, nil
}
