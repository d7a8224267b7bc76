package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SchemaChanges.WithLabelValues("add_field"))
	SchemaChanges.WithLabelValues("add_field").Inc()
	if got := testutil.ToFloat64(SchemaChanges.WithLabelValues("add_field")); got != before+1 {
		t.Errorf("schema changes = %v, want %v", got, before+1)
	}
}

func TestWriteTextfile(t *testing.T) {
	FormulaEvaluations.WithLabelValues("row", ResultOK).Inc()

	path := filepath.Join(t.TempDir(), "tabula.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "tabula_formula_evaluations_total") {
		t.Errorf("textfile missing formula metric:\n%s", data)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "tabula.prom")
	if err := WriteTextfile(path); err == nil {
		t.Error("WriteTextfile() into missing dir error = nil, want error")
	}
}
