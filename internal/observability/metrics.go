package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run's Prometheus counters. It satisfies the walker's
// metrics sink.
type Metrics struct {
	registry      *prometheus.Registry
	deleted       prometheus.Counter
	scrubbed      prometheus.Counter
	skipped       prometheus.Counter
	failed        prometheus.Counter
	rateLimitHits prometheus.Counter
}

// NewMetrics creates the counter set on its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		deleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_cleaner_messages_deleted_total",
			Help: "Messages successfully deleted.",
		}),
		scrubbed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_cleaner_messages_scrubbed_total",
			Help: "Messages whose content was overwritten before deletion.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_cleaner_messages_skipped_total",
			Help: "Messages skipped (filtered out or already gone).",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_cleaner_messages_failed_total",
			Help: "Messages abandoned after retry exhaustion or rejection.",
		}),
		rateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_cleaner_rate_limit_hits_total",
			Help: "Rate-limit responses received from the platform.",
		}),
	}
}

// Registry exposes the backing registry for the debug listener
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MessageDeleted increments the deleted counter
func (m *Metrics) MessageDeleted() { m.deleted.Inc() }

// MessageScrubbed increments the scrubbed counter
func (m *Metrics) MessageScrubbed() { m.scrubbed.Inc() }

// MessageSkipped increments the skipped counter
func (m *Metrics) MessageSkipped() { m.skipped.Inc() }

// MessageFailed increments the failed counter
func (m *Metrics) MessageFailed() { m.failed.Inc() }

// RateLimitHit increments the rate-limit counter
func (m *Metrics) RateLimitHit() { m.rateLimitHits.Inc() }
