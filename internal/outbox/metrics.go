package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the delivery queue.
type Metrics struct {
	Enqueued       prometheus.Counter
	DuplicateKeys  prometheus.Counter
	ConsentSkipped prometheus.Counter
	Sent           prometheus.Counter
	Failed         prometheus.Counter
	DeadLettered   prometheus.Counter
	SendDuration   prometheus.Histogram
}

// NewMetrics creates and registers all outbox metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_messages_enqueued_total",
			Help: "Total number of messages enqueued",
		}),
		DuplicateKeys: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_duplicate_idempotency_keys_total",
			Help: "Enqueue calls resolved to an existing message by idempotency key",
		}),
		ConsentSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_consent_skipped_total",
			Help: "Messages silently skipped because no active consent exists",
		}),
		Sent: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_messages_sent_total",
			Help: "Messages delivered successfully",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_messages_failed_total",
			Help: "Send attempts that failed and were scheduled for retry",
		}),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_messages_dead_letter_total",
			Help: "Messages moved to dead_letter after exhausting the retry budget",
		}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_send_duration_seconds",
			Help:    "Latency of individual gateway send attempts",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
