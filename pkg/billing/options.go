package billing

import (
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Nil loggers are ignored.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithUserDirectory enables linking provider customers to users by email.
// Without it only customer metadata can resolve an unknown customer.
func WithUserDirectory(d UserDirectory) Option {
	return func(e *Engine) {
		e.users = d
	}
}

// WithCatalog sets the price to plan mapping.
func WithCatalog(c PriceCatalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithRecorder reports webhook and action outcomes, e.g. to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// Recorder observes engine outcomes.
type Recorder interface {
	ObserveWebhook(eventType, outcome string, took time.Duration)
	ObserveAction(action string, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveWebhook(string, string, time.Duration) {}
func (noopRecorder) ObserveAction(string, error)                  {}
