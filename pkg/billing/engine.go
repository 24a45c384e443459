package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billsync/pkg/logger"
)

// Webhook outcomes reported to the Recorder.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Result describes how a webhook delivery was handled.
type Result struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Processed bool      `json:"processed"`
	Duplicate bool      `json:"duplicate"`
}

// Outcome returns the metrics label for the result.
func (r Result) Outcome() string {
	switch {
	case r.Duplicate:
		return OutcomeDuplicate
	case r.Processed:
		return OutcomeProcessed
	default:
		return OutcomeIgnored
	}
}

type eventHandler func(ctx context.Context, ev *Event) error

// Engine reconciles local subscription records with the billing provider.
// It consumes verified webhooks exactly once per event id, repairs missing
// linkage on demand and executes user billing actions.
type Engine struct {
	store    Store
	ledger   Ledger
	gateway  Gateway
	parser   WebhookParser
	users    UserDirectory
	catalog  PriceCatalog
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	handlers map[EventType]eventHandler
}

// NewEngine creates an Engine.
// Panics if any required dependency is nil so misconfiguration fails at startup.
func NewEngine(store Store, ledger Ledger, gateway Gateway, parser WebhookParser, opts ...Option) *Engine {
	if store == nil {
		panic("billing: Store is required")
	}
	if ledger == nil {
		panic("billing: Ledger is required")
	}
	if gateway == nil {
		panic("billing: Gateway is required")
	}
	if parser == nil {
		panic("billing: WebhookParser is required")
	}

	e := &Engine{
		store:    store,
		ledger:   ledger,
		gateway:  gateway,
		parser:   parser,
		catalog:  PriceCatalog{},
		recorder: noopRecorder{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("billing"))

	e.handlers = map[EventType]eventHandler{
		EventSubscriptionCreated:     e.onSubscriptionCreated,
		EventSubscriptionUpdated:     e.onSubscriptionUpdated,
		EventSubscriptionDeleted:     e.onSubscriptionDeleted,
		EventInvoicePaymentSucceeded: e.onInvoicePaid,
		EventInvoicePaymentFailed:    e.onInvoiceFailed,
	}

	return e
}

// Provider returns the configured provider name.
func (e *Engine) Provider() string { return e.parser.Provider() }

// SignatureHeader returns the header the provider signs deliveries with.
func (e *Engine) SignatureHeader() string { return e.parser.SignatureHeader() }

// Recognizes reports whether the engine has a handler for t.
func (e *Engine) Recognizes(t EventType) bool {
	_, ok := e.handlers[t]
	return ok
}

// HandleWebhook verifies the raw delivery and processes it.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := e.parser.ParseWebhook(ctx, payload, signature)
	if err != nil {
		e.logger.WarnContext(ctx, "Rejected webhook delivery", logger.Error(err))
		return Result{}, err
	}
	if ev.Payload == nil {
		ev.Payload = payload
	}
	return e.HandleEvent(ctx, ev)
}

// HandleEvent applies a verified event at most once.
//
// A processed ledger entry short-circuits as a duplicate. An unprocessed
// entry of a handled type is a provider retry of a failed delivery and is
// dispatched again. Unhandled types are stored unprocessed and acknowledged.
func (e *Engine) HandleEvent(ctx context.Context, ev *Event) (Result, error) {
	if ev == nil || ev.ID == "" {
		return Result{}, ErrMalformedEvent
	}
	start := e.now()
	res := Result{EventID: ev.ID, EventType: ev.Type}
	log := e.logger.With(logger.EventID(ev.ID), logger.EventType(ev.Type.String()))

	entry, err := e.ledger.Get(ctx, ev.ID)
	switch {
	case err == nil:
		if entry.Processed {
			res.Processed, res.Duplicate = true, true
			log.InfoContext(ctx, "Skipping already processed webhook")
			e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
			return res, nil
		}
		if !e.Recognizes(ev.Type) {
			res.Duplicate = true
			e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
			return res, nil
		}
		log.InfoContext(ctx, "Retrying unprocessed webhook", logger.Reason(entry.LastError))
	case errors.Is(err, ErrEventNotFound):
		err := e.ledger.Record(ctx, &LedgerEntry{
			EventID:    ev.ID,
			EventType:  ev.Type.String(),
			Provider:   ev.Provider,
			Payload:    ev.Payload,
			ReceivedAt: e.now(),
		})
		if errors.Is(err, ErrDuplicateEvent) {
			// lost the insert race to a concurrent delivery
			res.Duplicate = true
			e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("failed to record webhook event: %w", err)
		}
		if !e.Recognizes(ev.Type) {
			log.InfoContext(ctx, "Stored unhandled webhook event")
			e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
			return res, nil
		}
	default:
		return res, fmt.Errorf("failed to check webhook ledger: %w", err)
	}

	if err := e.dispatch(ctx, ev); err != nil {
		e.recorder.ObserveWebhook(ev.Type.String(), OutcomeFailed, e.now().Sub(start))
		return res, err
	}

	res.Processed = true
	e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
	log.InfoContext(ctx, "Processed webhook event")
	return res, nil
}

// Reprocess replays a stored, unprocessed ledger entry through the same
// handlers. The payload was verified on receipt, so it's only decoded.
func (e *Engine) Reprocess(ctx context.Context, eventID string) (Result, error) {
	entry, err := e.ledger.Get(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	res := Result{EventID: entry.EventID, EventType: EventType(entry.EventType)}
	if entry.Processed {
		return res, ErrEventAlreadyProcessed
	}

	ev, err := e.parser.DecodeEvent(entry.Payload)
	if err != nil {
		return res, errors.Join(ErrMalformedEvent, err)
	}
	ev.ID = entry.EventID
	if !e.Recognizes(ev.Type) {
		return res, ErrUnrecognizedEvent
	}

	start := e.now()
	if err := e.dispatch(ctx, ev); err != nil {
		e.recorder.ObserveWebhook(ev.Type.String(), OutcomeFailed, e.now().Sub(start))
		return res, err
	}
	res.Processed = true
	e.recorder.ObserveWebhook(ev.Type.String(), res.Outcome(), e.now().Sub(start))
	e.logger.InfoContext(ctx, "Reprocessed webhook event", logger.EventID(eventID))
	return res, nil
}

// dispatch runs the handler and settles the ledger entry. On failure the
// entry stays unprocessed so the provider retry is not treated as duplicate.
func (e *Engine) dispatch(ctx context.Context, ev *Event) error {
	handle := e.handlers[ev.Type]
	if err := handle(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "Webhook handler failed",
			logger.EventID(ev.ID),
			logger.EventType(ev.Type.String()),
			logger.Error(err),
		)
		if markErr := e.ledger.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
			e.logger.ErrorContext(ctx, "Failed to record handler failure", logger.EventID(ev.ID), logger.Error(markErr))
		}
		return fmt.Errorf("failed to handle %s event %s: %w", ev.Type, ev.ID, err)
	}

	if err := e.ledger.MarkProcessed(ctx, ev.ID, e.now()); err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

// Events lists ledger entries for the debug surface.
func (e *Engine) Events(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return e.ledger.List(ctx, filter)
}

// Event returns one ledger entry.
func (e *Engine) Event(ctx context.Context, eventID string) (*LedgerEntry, error) {
	return e.ledger.Get(ctx, eventID)
}

// EventStats summarizes the ledger.
func (e *Engine) EventStats(ctx context.Context) (LedgerStats, error) {
	return e.ledger.Stats(ctx)
}

// ClearEvents empties the ledger.
func (e *Engine) ClearEvents(ctx context.Context) (int64, error) {
	n, err := e.ledger.Clear(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.WarnContext(ctx, "Cleared webhook ledger", logger.Count(n))
	return n, nil
}
