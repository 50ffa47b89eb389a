// Package metrics counts scans and remediations. A CLI run is short, so the
// registry is written to a node_exporter textfile instead of being served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	holders        prometheus.Histogram
	skipped        prometheus.Counter
	remediations   *prometheus.CounterVec
	deleteAttempts prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "witl_scans_total",
			Help: "Scans by result (complete, partial, timed_out, cancelled)",
		}, []string{"result"}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "witl_scan_duration_seconds",
			Help:    "Wall time of a scan",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		holders: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "witl_scan_holders",
			Help:    "Processes holding the target per scan",
			Buckets: []float64{0, 1, 2, 5, 10, 50},
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "witl_scan_skipped_processes_total",
			Help: "Processes whose handle table could not be read",
		}),
		remediations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "witl_remediations_total",
			Help: "Remediation requests by action and outcome",
		}, []string{"action", "outcome"}),
		deleteAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "witl_delete_attempts",
			Help:    "Attempts used per delete request",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveScan(result string, d time.Duration, holders, skipped int) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(result).Inc()
	m.scanDuration.Observe(d.Seconds())
	m.holders.Observe(float64(holders))
	m.skipped.Add(float64(skipped))
}

func (m *Metrics) ObserveRemediation(action, outcome string) {
	if m == nil {
		return
	}
	m.remediations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveDeleteAttempts(n int) {
	if m == nil {
		return
	}
	m.deleteAttempts.Observe(float64(n))
}

// WriteFile dumps every metric in the text exposition format. The write is
// atomic (temp file plus rename).
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
