// Package metrics collects probe and detector metrics with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNoResult = "no_result"
	OutcomeSkipped  = "skipped"
)

// Collector holds the deepprobe metrics. Its methods are safe on a nil
// Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	probesTotal       *prometheus.CounterVec
	detectorRuns      *prometheus.CounterVec
	detectorDuration  *prometheus.HistogramVec
	annotationEntries *prometheus.CounterVec
	detectorResults   *prometheus.CounterVec
	packetsTotal      prometheus.Counter
	cacheLookups      *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.probesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of probes by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.detectorRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_runs_total",
			Help:      "Total number of detector passes by outcome",
		},
		[]string{"detector", "outcome"},
	)

	c.detectorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Detector pass duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"detector"},
	)

	c.annotationEntries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_entries_total",
			Help:      "Annotation entries consumed by detectors",
		},
		[]string{"detector"},
	)

	c.detectorResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_results_total",
			Help:      "Results produced by detectors",
		},
		[]string{"detector"},
	)

	c.packetsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Demuxed packets inspected",
		},
	)

	c.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by result",
		},
		[]string{"result"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordProbe records one probe.
func (c *Collector) RecordProbe(kind, outcome string) {
	if c == nil {
		return
	}
	c.probesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDetector records one detector pass.
func (c *Collector) RecordDetector(detector, outcome string, duration time.Duration, results int) {
	if c == nil {
		return
	}
	c.detectorRuns.WithLabelValues(detector, outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	c.detectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	c.detectorResults.WithLabelValues(detector).Add(float64(results))
}

// RecordEntries records annotation entries consumed by a detector.
func (c *Collector) RecordEntries(detector string, n int) {
	if c == nil {
		return
	}
	c.annotationEntries.WithLabelValues(detector).Add(float64(n))
}

// RecordPackets records inspected packets.
func (c *Collector) RecordPackets(n int) {
	if c == nil {
		return
	}
	c.packetsTotal.Add(float64(n))
}

// RecordCacheLookup records a report cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		c.logger.Error("failed to write metrics", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}
