package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInitDefault(t *testing.T) {
	m := InitDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	if m != Default {
		t.Error("expected returned metrics to be same as Default")
	}

	// Calling again should return same instance
	if m2 := InitDefault(); m2 != m {
		t.Error("expected same instance on second call")
	}
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()

	m.Batches.Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "docflow_batches_total" {
			found = true
			break
		}
	}

	if !found {
		t.Error("metrics not registered with custom registry")
	}
}

func TestMultipleRegistries(t *testing.T) {
	_, m1 := NewRegistry()
	_, m2 := NewRegistry()

	if m1 == m2 {
		t.Error("expected different metrics instances")
	}
}

func TestWriteTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordBatch(2)
	m.Transitions.WithLabelValues("ready", "running").Inc()

	path := filepath.Join(t.TempDir(), "nested", "docflow.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"# TYPE docflow_batches_total counter",
		"docflow_batches_total 1",
		`docflow_transitions_total{from="ready",to="running"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("textfile missing %q:\n%s", want, body)
		}
	}
}

func TestWriteTextfileDefaultRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.prom")
	if err := WriteTextfile(prometheus.DefaultGatherer, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected textfile to exist: %v", err)
	}
}
