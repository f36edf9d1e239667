/*
metrics.go - Prometheus collectors for the engine

PURPOSE:
  Implements pos.Observer so every engine operation is counted and timed,
  and exposes the low-stock gauge published by the LowStockWatcher.

COLLECTORS:
  pos_operations_total{operation, outcome}          counter
  pos_operation_duration_seconds{operation}         histogram
  pos_low_stock_products{level}                     gauge

  outcome is one of success | rejected | failed (see pos.Outcome*).

REGISTRATION:
  Collectors are registered against the Registerer passed to New, never
  implicitly against the global default. Tests pass a fresh registry.
  When New builds its own registry it also carries the Go runtime and
  process collectors, so /metrics matches what the default registry
  would have served.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/khata-engine/pos"
)

type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lowStock   *prometheus.GaugeVec
	gatherer   prometheus.Gatherer
}

// New creates and registers the collectors. A nil registry uses a fresh
// one with the Go and process collectors, which Handler then serves.
func New(registry *prometheus.Registry, service string) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if service == "" {
		service = "khata-engine"
	}
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "pos_operations_total",
				Help:        "Engine operations by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "pos_operation_duration_seconds",
				Help:        "Time spent in an engine atomic unit.",
				Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
		lowStock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "pos_low_stock_products",
				Help:        "Active products at or below their minimum stock level.",
				ConstLabels: constLabels,
			},
			[]string{"level"}, // out_of_stock | critical | low_stock
		),
		gatherer: registry,
	}

	registry.MustRegister(m.operations, m.duration, m.lowStock)
	return m
}

// ObserveOperation implements pos.Observer.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetLowStock publishes the alert count per level. Levels with no alerts
// are reported as zero rather than left stale.
func (m *Metrics) SetLowStock(alerts []pos.LowStockAlert) {
	counts := make(map[pos.AlertLevel]int, len(pos.AlertLevels))
	for _, a := range alerts {
		counts[a.Level]++
	}
	for _, level := range pos.AlertLevels {
		m.lowStock.WithLabelValues(string(level)).Set(float64(counts[level]))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

var _ pos.Observer = (*Metrics)(nil)
