package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/lox/ensemblestats/internal/ensemble"
	"github.com/lox/ensemblestats/internal/models"
	"github.com/lox/ensemblestats/internal/store"
)

var day = time.Date(2022, 3, 2, 18, 0, 0, 0, time.UTC)

// writeNPY writes a version 1.0 .npy file holding vals with the given shape.
// vals is laid out in C order unless fortran is set.
func writeNPY(t *testing.T, path, dtype string, fortran bool, shape []int, vals []float64) {
	t.Helper()
	if err := mkdirFor(path); err != nil {
		t.Fatal(err)
	}
	order := "False"
	if fortran {
		order = "True"
	}
	dims := ""
	for _, d := range shape {
		dims += fmt.Sprintf("%d, ", d)
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", dtype, order, dims[:len(dims)-2])
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, v := range vals {
		switch dtype {
		case "<f8":
			binary.Write(&buf, binary.LittleEndian, v)
		case "<f4":
			binary.Write(&buf, binary.LittleEndian, float32(v))
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// cellValue encodes member, parameter, lead and cell into one number so any
// misplaced value is detectable.
func cellValue(member, param, lead, i, j int) float64 {
	return float64(member*1000 + param*100 + lead*10 + i*2 + j)
}

// writeDay writes a 2x2 grid stack with len(echeances) leads for every
// member and parameter of date, in C order (height, width, lead).
func writeDay(t *testing.T, l *DailyFiles, date time.Time, members int, params []string, leads int) {
	t.Helper()
	for m := 1; m <= members; m++ {
		for p, param := range params {
			var vals []float64
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					for k := 0; k < leads; k++ {
						vals = append(vals, cellValue(m, p, k, i, j))
					}
				}
			}
			writeNPY(t, l.Path(m, date, param), "<f8", false, []int{2, 2, leads}, vals)
		}
	}
}

func TestDailyFilesPath(t *testing.T) {
	l := &DailyFiles{Root: "/data/ensemble"}
	got := l.Path(3, day, "u10")
	want := "/data/ensemble/3/GC81_2022-03-02T18:00:00Z_u10.npy"
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}

	l.Prefix, l.DateLayout = "PE", "2006010215"
	if got := l.Path(1, day, "t2m"); got != "/data/ensemble/1/PE_2022030218Z_t2m.npy" {
		t.Errorf("Path with layout = %q", got)
	}
}

func TestDailyFilesLoad(t *testing.T) {
	l := &DailyFiles{Root: t.TempDir(), Source: "test"}
	params := []string{"u10", "v10"}
	echeances := []int{12, 27, 42}
	writeDay(t, l, day, 2, params, len(echeances))

	tbl, _, err := l.Load(context.Background(), Request{
		Members: 2, Params: params, Dates: []time.Time{day}, Echeances: echeances,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}
	if tbl.NumColumns() != 4 {
		t.Fatalf("NumColumns = %d, want 4", tbl.NumColumns())
	}
	for e, ech := range echeances {
		if k := tbl.Key(e); !k.Equal(models.NewSampleKey(day, ech)) {
			t.Errorf("row %d key = %s, want echeance %d", e, k, ech)
		}
		for m := 1; m <= 2; m++ {
			for p, param := range params {
				g, ok := tbl.Grid(e, models.Column{Param: param, Member: m})
				if !ok {
					t.Fatalf("missing %s_%d", param, m)
				}
				for i := 0; i < 2; i++ {
					for j := 0; j < 2; j++ {
						if got, want := g.At(i, j), cellValue(m, p, e, i, j); got != want {
							t.Errorf("row %d %s_%d[%d,%d] = %v, want %v", e, param, m, i, j, got, want)
						}
					}
				}
			}
		}
	}
}

func TestDailyFilesSkipsMissingDay(t *testing.T) {
	l := &DailyFiles{Root: t.TempDir(), Source: "test"}
	params := []string{"u10"}
	dates := []time.Time{day, day.Add(24 * time.Hour), day.Add(48 * time.Hour)}
	for i, d := range dates {
		writeDay(t, l, d, 3, params, 2)
		if i == 1 {
			// Remove a single file of the middle date.
			if err := os.Remove(l.Path(2, d, "u10")); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := Request{Members: 3, Params: params, Dates: dates, Echeances: []int{12, 27}}

	res, err := l.LoadDay(context.Background(), req, dates[1])
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if !res.Skipped() {
		t.Fatal("LoadDay: want skipped result")
	}
	if !errors.Is(res.Skip, ensemble.ErrMissingInput) {
		t.Errorf("skip reason = %v, want ErrMissingInput", res.Skip)
	}
	if res.Skip.Path != l.Path(2, dates[1], "u10") {
		t.Errorf("skip path = %q", res.Skip.Path)
	}

	tbl, rep, err := l.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep != (Report{DaysLoaded: 2, DaysSkipped: 1}) {
		t.Errorf("report = %+v, want 2 loaded, 1 skipped", rep)
	}
	if tbl.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (2 dates x 2 echeances)", tbl.Len())
	}
	for i := 0; i < tbl.Len(); i++ {
		if tbl.Key(i).Date.Equal(dates[1]) {
			t.Errorf("row %d belongs to the missing date", i)
		}
	}
}

func TestDailyFilesLayouts(t *testing.T) {
	// 2x3 grid, 2 leads; value = 100*lead + 10*i + j.
	h, w, leads := 2, 3, 2
	value := func(i, j, k int) float64 { return float64(100*k + 10*i + j) }

	tests := []struct {
		name    string
		dtype   string
		fortran bool
	}{
		{"c order float64", "<f8", false},
		{"fortran order float64", "<f8", true},
		{"c order float32", "<f4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &DailyFiles{Root: t.TempDir()}
			vals := make([]float64, h*w*leads)
			for i := 0; i < h; i++ {
				for j := 0; j < w; j++ {
					for k := 0; k < leads; k++ {
						idx := (i*w+j)*leads + k
						if tt.fortran {
							idx = i + h*(j+w*k)
						}
						vals[idx] = value(i, j, k)
					}
				}
			}
			writeNPY(t, l.Path(1, day, "t2m"), tt.dtype, tt.fortran, []int{h, w, leads}, vals)

			stack, err := readStack(l.Path(1, day, "t2m"))
			if err != nil {
				t.Fatalf("readStack: %v", err)
			}
			if len(stack) != leads {
				t.Fatalf("len(stack) = %d, want %d", len(stack), leads)
			}
			for k, g := range stack {
				if g.Rows() != h || g.Cols() != w {
					t.Fatalf("lead %d shape = %s", k, g.Shape())
				}
				for i := 0; i < h; i++ {
					for j := 0; j < w; j++ {
						if got := g.At(i, j); math.Abs(got-value(i, j, k)) > 1e-6 {
							t.Errorf("lead %d [%d,%d] = %v, want %v", k, i, j, got, value(i, j, k))
						}
					}
				}
			}
		})
	}
}

func TestDailyFilesFatalErrors(t *testing.T) {
	ctx := context.Background()
	req := Request{Members: 1, Params: []string{"u10"}, Dates: []time.Time{day}, Echeances: []int{12, 27}}

	t.Run("lead count mismatch", func(t *testing.T) {
		l := &DailyFiles{Root: t.TempDir()}
		writeDay(t, l, day, 1, req.Params, 3)
		if _, _, err := l.Load(ctx, req); !errors.Is(err, ensemble.ErrMalformedConfig) {
			t.Errorf("err = %v, want ErrMalformedConfig", err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		l := &DailyFiles{Root: t.TempDir()}
		path := l.Path(1, day, "u10")
		if err := mkdirFor(path); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("not numpy"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, _, err := l.Load(ctx, req)
		if err == nil {
			t.Fatal("Load: want error for corrupt file")
		}
		if errors.Is(err, ensemble.ErrMissingInput) {
			t.Errorf("corrupt file reported as missing input: %v", err)
		}
	})

	t.Run("two dimensional array", func(t *testing.T) {
		l := &DailyFiles{Root: t.TempDir()}
		writeNPY(t, l.Path(1, day, "u10"), "<f8", false, []int{2, 2}, []float64{1, 2, 3, 4})
		if _, _, err := l.Load(ctx, req); err == nil {
			t.Error("Load: want error for 2-d array")
		}
	})

	t.Run("no echeances", func(t *testing.T) {
		l := &DailyFiles{Root: t.TempDir()}
		bad := req
		bad.Echeances = nil
		if _, _, err := l.Load(ctx, bad); !errors.Is(err, ensemble.ErrMalformedConfig) {
			t.Errorf("err = %v, want ErrMalformedConfig", err)
		}
	})
}

func TestDailyFilesAllMissing(t *testing.T) {
	l := &DailyFiles{Root: t.TempDir()}
	tbl, _, err := l.Load(context.Background(), Request{
		Members: 2, Params: []string{"u10"}, Dates: []time.Time{day}, Echeances: []int{12},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tbl.Len())
	}
}

func memberSamples(t *testing.T, member int, keys []models.SampleKey, params []string) []store.MemberSample {
	t.Helper()
	var out []store.MemberSample
	for i, k := range keys {
		fields := make(map[string]models.Grid)
		for p, param := range params {
			g, err := models.NewGrid(1, 2, []float64{float64(member*100 + i*10 + p), float64(-member)})
			if err != nil {
				t.Fatal(err)
			}
			fields[param] = g
		}
		out = append(out, store.MemberSample{Position: i, Key: k, Fields: fields})
	}
	return out
}

func TestMemberFilesLoad(t *testing.T) {
	ctx := context.Background()
	l := &MemberFiles{Root: t.TempDir(), Source: "test"}
	keys := []models.SampleKey{
		models.NewSampleKey(day, 6),
		models.NewSampleKey(day, 21),
		models.NewSampleKey(day.Add(24*time.Hour), 6),
	}
	params := []string{"u10", "v10", "t2m"}
	for m := 1; m <= 3; m++ {
		if err := l.WriteMember(ctx, m, memberSamples(t, m, keys, params)); err != nil {
			t.Fatalf("WriteMember(%d): %v", m, err)
		}
	}

	// Dates are not used to address member files and never count as skipped.
	tbl, rep, err := l.Load(ctx, Request{Members: 3, Params: []string{"v10", "u10"}, Dates: []time.Time{day}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep != (Report{DaysLoaded: 2}) {
		t.Errorf("report = %+v, want 2 loaded, 0 skipped", rep)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}
	if tbl.NumColumns() != 6 {
		t.Fatalf("NumColumns = %d, want 6", tbl.NumColumns())
	}
	if got := tbl.Params(); got[0] != "v10" || got[1] != "u10" {
		t.Errorf("Params = %v, want request order [v10 u10]", got)
	}
	for i, k := range keys {
		if !tbl.Key(i).Equal(k) {
			t.Errorf("row %d key = %s, want %s", i, tbl.Key(i), k)
		}
	}
	g, ok := tbl.GridByName(1, "u10_3")
	if !ok {
		t.Fatal("u10_3 missing")
	}
	if g.At(0, 0) != 310 || g.At(0, 1) != -3 {
		t.Errorf("u10_3 row 1 = %v, want [310 -3]", g.Values())
	}
}

func TestMemberFilesMalformed(t *testing.T) {
	ctx := context.Background()
	keys := []models.SampleKey{models.NewSampleKey(day, 6), models.NewSampleKey(day, 21)}

	t.Run("misaligned keys", func(t *testing.T) {
		l := &MemberFiles{Root: t.TempDir()}
		if err := l.WriteMember(ctx, 1, memberSamples(t, 1, keys, []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		swapped := []models.SampleKey{keys[1], keys[0]}
		if err := l.WriteMember(ctx, 2, memberSamples(t, 2, swapped, []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		if _, _, err := l.Load(ctx, Request{Members: 2, Params: []string{"u10"}}); !errors.Is(err, ensemble.ErrMalformedConfig) {
			t.Errorf("err = %v, want ErrMalformedConfig", err)
		}
	})

	t.Run("different sample count", func(t *testing.T) {
		l := &MemberFiles{Root: t.TempDir()}
		if err := l.WriteMember(ctx, 1, memberSamples(t, 1, keys, []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		if err := l.WriteMember(ctx, 2, memberSamples(t, 2, keys[:1], []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		if _, _, err := l.Load(ctx, Request{Members: 2, Params: []string{"u10"}}); !errors.Is(err, ensemble.ErrMalformedConfig) {
			t.Errorf("err = %v, want ErrMalformedConfig", err)
		}
	})

	t.Run("absent parameter", func(t *testing.T) {
		l := &MemberFiles{Root: t.TempDir()}
		if err := l.WriteMember(ctx, 1, memberSamples(t, 1, keys, []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		if _, _, err := l.Load(ctx, Request{Members: 1, Params: []string{"v10"}}); !errors.Is(err, ensemble.ErrMalformedConfig) {
			t.Errorf("err = %v, want ErrMalformedConfig", err)
		}
	})

	t.Run("missing member file is fatal", func(t *testing.T) {
		l := &MemberFiles{Root: t.TempDir()}
		if err := l.WriteMember(ctx, 1, memberSamples(t, 1, keys, []string{"u10"})); err != nil {
			t.Fatal(err)
		}
		_, _, err := l.Load(ctx, Request{Members: 2, Params: []string{"u10"}})
		if err == nil {
			t.Fatal("Load: want error for missing member 2")
		}
	})
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no members", Request{Members: 0, Params: []string{"u10"}}},
		{"no params", Request{Members: 1}},
		{"repeated param", Request{Members: 1, Params: []string{"u10", "u10"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.validate(); !errors.Is(err, ensemble.ErrMalformedConfig) {
				t.Errorf("err = %v, want ErrMalformedConfig", err)
			}
		})
	}
}
