// Package api exposes the reconciliation engine over HTTP: the provider
// webhook endpoint, authenticated billing actions, the optional debug
// surface and the health and metrics endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/httpserver"
	"github.com/dmitrymomot/billsync/pkg/requestid"
)

const defaultMaxWebhookBytes int64 = 512 << 10

type options struct {
	logger          *slog.Logger
	debugRoutes     bool
	metrics         http.Handler
	checks          []httpserver.Check
	readyTimeout    time.Duration
	successURL      string
	cancelURL       string
	maxWebhookBytes int64
}

// Option configures the router.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDebugRoutes mounts the /api/debug surface.
func WithDebugRoutes(enabled bool) Option {
	return func(o *options) { o.debugRoutes = enabled }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// WithHealthChecks sets the dependencies checked by /health/ready.
func WithHealthChecks(timeout time.Duration, checks ...httpserver.Check) Option {
	return func(o *options) {
		o.readyTimeout = timeout
		o.checks = append(o.checks, checks...)
	}
}

// WithCheckoutURLs sets the redirect targets used when a checkout request
// does not carry its own.
func WithCheckoutURLs(success, cancel string) Option {
	return func(o *options) {
		o.successURL, o.cancelURL = success, cancel
	}
}

// WithMaxWebhookBytes caps the webhook request body.
func WithMaxWebhookBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWebhookBytes = n
		}
	}
}

type handler struct {
	engine *billing.Engine
	log    *slog.Logger
	opts   options
}

// NewRouter builds the HTTP handler tree.
func NewRouter(engine *billing.Engine, verifier auth.Verifier, opts ...Option) http.Handler {
	if engine == nil {
		panic("api: engine is required")
	}
	if verifier == nil {
		panic("api: verifier is required")
	}

	o := options{
		logger:          slog.Default(),
		readyTimeout:    3 * time.Second,
		maxWebhookBytes: defaultMaxWebhookBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h := &handler{engine: engine, log: o.logger, opts: o}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(o.logger, o.readyTimeout, o.checks...))
	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics)
	}

	r.Post("/webhooks/{provider}", h.webhook)

	authn := auth.Middleware(verifier, auth.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		respondError(w, r, h.log, errors.Join(ErrUnauthorized, err))
	}))

	r.Route("/api/billing", func(r chi.Router) {
		r.Use(authn)
		r.Get("/subscription", h.getSubscription)
		r.Get("/entitlements", h.getEntitlements)
		r.Post("/checkout", h.checkout)
		r.Post("/switch", h.switchPlan)
		r.Post("/cancel", h.cancel)
		r.Post("/cancel-now", h.cancelNow)
		r.Post("/reactivate", h.reactivate)
		r.Post("/credits/consume", h.consumeCredits)
	})

	if o.debugRoutes {
		r.Route("/api/debug", func(r chi.Router) {
			r.Use(authn)
			r.Get("/webhooks", h.listEvents)
			r.Delete("/webhooks", h.clearEvents)
			r.Get("/webhooks/stats", h.eventStats)
			r.Get("/webhooks/{id}", h.getEvent)
			r.Post("/webhooks/{id}/reprocess", h.reprocessEvent)
			r.Post("/subscription/sync", h.syncSubscription)
			r.Delete("/subscription", h.resetSubscription)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, h.log, ErrNotFound)
	})
	return r
}
