package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Default is the default metrics instance
	Default *Metrics
	once    sync.Once
)

// InitDefault initializes the default metrics instance
// This should be called once at application startup
func InitDefault() *Metrics {
	once.Do(func() {
		Default = NewMetrics(prometheus.DefaultRegisterer)
	})
	return Default
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteTextfile writes every metric gathered from reg to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
