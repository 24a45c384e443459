// Package metrics exposes billing engine outcomes to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

// Action results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Collector implements billing.Recorder with Prometheus vectors registered
// on its own registry.
type Collector struct {
	registry        *prometheus.Registry
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	actions         *prometheus.CounterVec
}

// New creates a Collector with Go and process collectors included.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billsync",
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billsync",
			Name:      "webhook_duration_seconds",
			Help:      "Webhook handling latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billsync",
			Name:      "actions_total",
			Help:      "User billing actions by result.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(
		c.webhookEvents,
		c.webhookDuration,
		c.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveWebhook(eventType, outcome string, took time.Duration) {
	if eventType == "" {
		eventType = "unknown"
	}
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	c.webhookDuration.WithLabelValues(eventType).Observe(took.Seconds())
}

func (c *Collector) ObserveAction(action string, err error) {
	c.actions.WithLabelValues(action, actionResult(err)).Inc()
}

// Registry returns the underlying registry, e.g. for extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// actionResult separates business rejections from infrastructure failures.
func actionResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, billing.ErrProviderError):
		return ResultError
	case errors.Is(err, billing.ErrNoActiveSubscription),
		errors.Is(err, billing.ErrInsufficientCredits),
		errors.Is(err, billing.ErrNotEntitled),
		errors.Is(err, billing.ErrSubscriptionNotModifiable),
		errors.Is(err, billing.ErrSubscriptionCanceled),
		errors.Is(err, billing.ErrCancellationScheduled),
		errors.Is(err, billing.ErrNotScheduledForCancellation),
		errors.Is(err, billing.ErrSubscriptionAlreadyExists),
		errors.Is(err, billing.ErrUnknownPrice),
		errors.Is(err, billing.ErrMissingPriceRef),
		errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrNothingToSync):
		return ResultRejected
	default:
		return ResultError
	}
}

var _ billing.Recorder = (*Collector)(nil)
