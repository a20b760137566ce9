// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package telemetry records pipeline metrics in a private Prometheus
// registry. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/kbforge/pkg/types"
)

const namespace = "kbforge"

// Extraction outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeCacheHit = "cache_hit"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	registry *prometheus.Registry

	extractions   *prometheus.CounterVec
	documents     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	gaps          *prometheus.GaugeVec
}

// New creates metrics registered in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "extraction",
				Name:      "tasks_total",
				Help:      "Extraction tasks by extractor and outcome",
			},
			[]string{"extractor", "outcome"},
		),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "organization",
				Name:      "documents_total",
				Help:      "Documents handled by the organization stage, by action",
			},
			[]string{"action"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Workflow runs by operation and status",
			},
			[]string{"operation", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Stage wall time in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage"},
		),
		gaps: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "quality",
				Name:      "gaps",
				Help:      "Quality gaps found by the most recent run, by kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(m.extractions, m.documents, m.runs, m.stageDuration, m.gaps)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveExtraction counts every task in bundle by outcome.
func (m *Metrics) ObserveExtraction(bundle *types.ExtractionBundle) {
	if m == nil || bundle == nil {
		return
	}
	for _, s := range bundle.Summaries {
		outcome := OutcomeSuccess
		switch {
		case !s.Success():
			outcome = OutcomeFailed
		case s.FromCache:
			outcome = OutcomeCacheHit
		}
		m.extractions.WithLabelValues(s.Extractor, outcome).Inc()
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Document counts one organization action (written, replaced, skipped, rejected).
func (m *Metrics) Document(action string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(action).Inc()
}

// Run counts a finished workflow run.
func (m *Metrics) Run(operation string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.runs.WithLabelValues(operation, status).Inc()
}

// SetGaps replaces the gap gauges.
func (m *Metrics) SetGaps(gaps map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range gaps {
		m.gaps.WithLabelValues(kind).Set(float64(n))
	}
}

// WriteTextfile writes the registry in Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing prometheus textfile: %w", err)
	}
	return nil
}
