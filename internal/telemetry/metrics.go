// Package telemetry exposes prometheus instrumentation for collection
// cycles, metric sources and frame delivery. A nil *Metrics is valid and
// records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HerbHall/hostpanel/internal/source"
	"github.com/HerbHall/hostpanel/internal/transport"
)

const namespace = "hostpanel"

var statuses = []source.Status{source.StatusOK, source.StatusDegraded, source.StatusUnavailable}

// Metrics holds the hostpanel collectors.
type Metrics struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	sourceStatus    *prometheus.GaugeVec
	sendAttempts    *prometheus.CounterVec
	lastSuccessUnix prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Collection cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full collect/assemble/send cycle.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
		}),
		sourceStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_status",
			Help:      "1 for the status each metric source reported in the last cycle.",
		}, []string{"source", "status"}),
		sendAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Frame delivery attempts by endpoint and result.",
		}, []string{"endpoint", "result"}),
		lastSuccessUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successfully delivered frame.",
		}),
	}
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
	if outcome == "ok" {
		m.lastSuccessUnix.Set(float64(at.Unix()))
	}
}

// ObserveFields records the status of every field of one cycle.
func (m *Metrics) ObserveFields(fields []source.Field) {
	if m == nil {
		return
	}
	for _, f := range fields {
		for _, st := range statuses {
			v := 0.0
			if f.Status == st {
				v = 1
			}
			m.sourceStatus.WithLabelValues(f.Name, string(st)).Set(v)
		}
	}
}

// ObserveAttempt records one delivery attempt.
func (m *Metrics) ObserveAttempt(a transport.Attempt) {
	if m == nil {
		return
	}
	result := "ok"
	if !a.OK() {
		result = "error"
	}
	m.sendAttempts.WithLabelValues(a.Endpoint, result).Inc()
}
