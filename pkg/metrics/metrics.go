// Package metrics exposes prometheus collectors for statement processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	TransactionsParsed prometheus.Counter
	AnomaliesDetected  prometheus.Counter
}

// New creates and registers the collectors. Pass prometheus.DefaultRegisterer
// in production; tests use their own registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_runs_total",
			Help: "Pipeline runs by outcome (assembled, partial, failed).",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "statement_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		TransactionsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statement_transactions_parsed_total",
			Help: "Transactions successfully parsed from statements.",
		}),
		AnomaliesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statement_anomalies_detected_total",
			Help: "Anomalies flagged across all runs.",
		}),
	}

	reg.MustRegister(m.RunsTotal, m.StageDuration, m.TransactionsParsed, m.AnomaliesDetected)
	return m
}

// ObserveStage records one stage's duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
