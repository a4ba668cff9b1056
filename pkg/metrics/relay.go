package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcomes.
const (
	RelayPublished = "published"
	RelayRetry     = "retry"
	RelayDead      = "dead"
)

// RelayMetrics tracks the outbox relay. A nil value is a no-op.
type RelayMetrics struct {
	events  *prometheus.CounterVec
	batch   prometheus.Histogram
	claimed prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return nil
	}
	m := &RelayMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_relay_events_total",
			Help: "Outbox rows settled by the relay, by outcome.",
		}, []string{"event_type", "outcome"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_relay_batch_duration_seconds",
			Help:    "Time from claim to commit of one relay batch.",
			Buckets: prometheus.DefBuckets,
		}),
		claimed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_relay_last_batch_size",
			Help: "Rows claimed by the most recent relay batch.",
		}),
	}
	reg.MustRegister(m.events, m.batch, m.claimed)
	return m
}

func (m *RelayMetrics) Settled(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(labelOr(eventType, "unknown"), outcome).Inc()
}

func (m *RelayMetrics) Batch(claimed int, took time.Duration) {
	if m == nil {
		return
	}
	m.claimed.Set(float64(claimed))
	m.batch.Observe(took.Seconds())
}
