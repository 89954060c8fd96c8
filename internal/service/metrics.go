package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nishad/biobank/internal/errors"
)

// Metrics holds the report counters exposed on /metrics.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.GaugeVec
}

// NewMetrics registers the report metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biobank",
			Name:      "report_runs_total",
			Help:      "Report runs by report and outcome.",
		}, []string{"report", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biobank",
			Name:      "report_duration_seconds",
			Help:      "Time spent loading inputs and building a report.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"report"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "biobank",
			Name:      "report_rows",
			Help:      "Rows in the most recent successful report.",
		}, []string{"report"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.rows)
	}
	return m
}

func (m *Metrics) observe(report string, elapsed time.Duration, rows int, err error) {
	m.runs.WithLabelValues(report, outcome(err)).Inc()
	m.duration.WithLabelValues(report).Observe(elapsed.Seconds())
	if err == nil {
		m.rows.WithLabelValues(report).Set(float64(rows))
	}
}

// outcome is "ok" or the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errors.GetKind(err).String()
}
