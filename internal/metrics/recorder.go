package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type buildResultLabel string

var (
	succeeded buildResultLabel = "succeeded"
	failed    buildResultLabel = "failed"
)

type importActionLabel string

var (
	loaded  importActionLabel = "loaded"
	skipped importActionLabel = "skipped"
)

// Recorder stores all metrics of a layercake run.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	builds          *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	registryRetries *prometheus.CounterVec
	imports         *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	builds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layercake_builds_total",
			Help: "Image builds, grouped by builder and result",
		}, []string{"builder", "result"})

	buildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layercake_build_duration_seconds",
			Help:    "Image build latencies in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"builder"})

	registryRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layercake_registry_retries_total",
			Help: "Retried registry operations, grouped by operation",
		}, []string{"operation"})

	imports := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layercake_imports_total",
			Help: "Local daemon imports, grouped by 'loaded' and 'skipped'",
		}, []string{"action"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(builds, buildDuration, registryRetries, imports)

	return &Recorder{
		registry:        registry,
		builds:          builds,
		buildDuration:   buildDuration,
		registryRetries: registryRetries,
		imports:         imports,
	}
}

// RecordBuild counts a finished build and, when it succeeded, its duration.
func (r *Recorder) RecordBuild(builder string, d time.Duration, err error) {
	if r == nil {
		return
	}

	if err != nil {
		r.builds.WithLabelValues(builder, string(failed)).Inc()
		return
	}
	r.builds.WithLabelValues(builder, string(succeeded)).Inc()
	r.buildDuration.WithLabelValues(builder).Observe(d.Seconds())
}

func (r *Recorder) RecordRegistryRetry(operation string) {
	if r == nil {
		return
	}

	r.registryRetries.WithLabelValues(operation).Inc()
}

func (r *Recorder) RecordImport(wasLoaded bool) {
	if r == nil {
		return
	}

	action := skipped
	if wasLoaded {
		action = loaded
	}
	r.imports.WithLabelValues(string(action)).Inc()
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile dumps all metrics in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}

	return nil
}
