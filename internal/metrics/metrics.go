// Package metrics exposes Prometheus metrics for sync cycles.
package metrics

import (
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailsync"

// Metrics records cycle results.
type Metrics struct {
	cycles      *prometheus.CounterVec
	messages    *prometheus.CounterVec
	attachments *prometheus.CounterVec
	skipped     prometheus.Counter
	earlyStops  prometheus.Counter
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sync cycles by final status.",
		}, []string{"status"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handled by sync cycles by result.",
		}, []string{"result"}),
		attachments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Documents enriched by result.",
		}, []string{"result"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Messages skipped because they were already processed.",
		}),
		earlyStops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "early_stops_total",
			Help:      "Cycles that stopped scanning after a run of processed messages.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed cycle.",
		}),
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(result *models.CycleResult) {
	m.cycles.WithLabelValues(string(result.Status)).Inc()
	m.duration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	m.skipped.Add(float64(result.Skipped))
	if result.StoppedEarly {
		m.earlyStops.Inc()
	}
	if result.Status == models.CycleCompleted {
		m.lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}

	for _, msg := range result.Messages {
		switch {
		case !msg.Status.OK():
			m.messages.WithLabelValues("extraction_failed").Inc()
		case msg.AllSucceeded:
			m.messages.WithLabelValues("succeeded").Inc()
		default:
			m.messages.WithLabelValues("enrichment_failed").Inc()
		}

		for _, att := range msg.Attachments {
			if att.Succeeded {
				m.attachments.WithLabelValues("succeeded").Inc()
			} else {
				m.attachments.WithLabelValues("failed").Inc()
			}
		}
	}
}
