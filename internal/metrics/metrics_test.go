package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	DaysSkipped.WithLabelValues("metrics-test").Inc()
	MergedRows.Set(42)

	path := filepath.Join(t.TempDir(), "ensemblestats.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	for _, want := range []string{
		`ensemblestats_days_skipped_total{source="metrics-test"} 1`,
		`ensemblestats_merged_rows 42`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}
