package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billsync/pkg/logger"
)

func (e *Engine) onSubscriptionCreated(ctx context.Context, ev *Event) error {
	ps := ev.Subscription
	if ps == nil || ps.ID == "" {
		return ErrMalformedEvent
	}

	rec, err := e.store.GetByCustomerRef(ctx, ps.CustomerRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		rec, _, err = e.resolveRecord(ctx, ps)
	}
	if err != nil {
		return err
	}

	// a new subscription always starts with a fresh allocation
	rec.applyProvider(ps, e.catalog.PlanFor(ps.PriceRef, ps.PlanHint), false)
	rec.Status = StatusActive

	return e.save(ctx, rec, true, "Subscription created")
}

func (e *Engine) onSubscriptionUpdated(ctx context.Context, ev *Event) error {
	ps := ev.Subscription
	if ps == nil || ps.ID == "" {
		return ErrMalformedEvent
	}

	existed := true
	rec, err := e.findRecord(ctx, ps.ID, ps.CustomerRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		rec, existed, err = e.resolveRecord(ctx, ps)
	}
	if err != nil {
		return err
	}

	// A downgraded record is only relinked when the provider confirms the
	// subscription is still live. Late updates for a deleted one are dropped.
	if existed && rec.isDowngraded() {
		live, err := e.gateway.RetrieveSubscription(ctx, ps.ID)
		if err != nil {
			return fmt.Errorf("failed to retrieve subscription %s: %w", ps.ID, err)
		}
		if !IsLiveProviderStatus(live.Status) {
			e.logger.InfoContext(ctx, "Ignoring update for canceled subscription",
				logger.UserID(rec.UserID),
				logger.SubscriptionRef(ps.ID),
				logger.Status(live.Status),
			)
			return nil
		}
		ps = live
	}

	if rec.SubscriptionRef != "" && rec.SubscriptionRef != ps.ID && !IsLiveProviderStatus(ps.Status) {
		e.logger.InfoContext(ctx, "Ignoring update for superseded subscription",
			logger.UserID(rec.UserID),
			logger.SubscriptionRef(ps.ID),
			logger.Status(ps.Status),
		)
		return nil
	}

	reset := rec.applyProvider(ps, e.catalog.PlanFor(ps.PriceRef, ps.PlanHint), existed)

	return e.save(ctx, rec, reset, "Subscription updated")
}

func (e *Engine) onSubscriptionDeleted(ctx context.Context, ev *Event) error {
	ps := ev.Subscription
	if ps == nil || ps.ID == "" {
		return ErrMalformedEvent
	}

	rec, err := e.findRecord(ctx, ps.ID, ps.CustomerRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		e.logger.WarnContext(ctx, "No subscription record for deleted subscription",
			logger.CustomerRef(ps.CustomerRef),
			logger.SubscriptionRef(ps.ID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if rec.SubscriptionRef != "" && rec.SubscriptionRef != ps.ID {
		e.logger.InfoContext(ctx, "Ignoring deletion of superseded subscription",
			logger.UserID(rec.UserID),
			logger.SubscriptionRef(ps.ID),
		)
		return nil
	}
	if rec.isDowngraded() {
		return nil
	}

	rec.downgrade(e.now())

	return e.save(ctx, rec, true, "Subscription canceled")
}

func (e *Engine) onInvoicePaid(ctx context.Context, ev *Event) error {
	return e.setInvoiceStatus(ctx, ev, StatusActive)
}

func (e *Engine) onInvoiceFailed(ctx context.Context, ev *Event) error {
	return e.setInvoiceStatus(ctx, ev, StatusPastDue)
}

func (e *Engine) setInvoiceStatus(ctx context.Context, ev *Event, status Status) error {
	inv := ev.Invoice
	if inv == nil {
		return ErrMalformedEvent
	}
	if inv.SubscriptionRef == "" {
		e.logger.DebugContext(ctx, "Ignoring invoice without subscription", logger.CustomerRef(inv.CustomerRef))
		return nil
	}

	rec, err := e.store.GetBySubscriptionRef(ctx, inv.SubscriptionRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		e.logger.WarnContext(ctx, "No subscription record for invoice",
			logger.SubscriptionRef(inv.SubscriptionRef),
			logger.CustomerRef(inv.CustomerRef),
		)
		return nil
	}
	if err != nil {
		return err
	}

	rec.Status = status
	return e.save(ctx, rec, false, "Invoice status applied")
}

// findRecord looks a record up by subscription ref, then by customer ref.
func (e *Engine) findRecord(ctx context.Context, subscriptionRef, customerRef string) (*Subscription, error) {
	if subscriptionRef != "" {
		rec, err := e.store.GetBySubscriptionRef(ctx, subscriptionRef)
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return rec, err
		}
	}
	if customerRef != "" {
		rec, err := e.store.GetByCustomerRef(ctx, customerRef)
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return rec, err
		}
	}
	return nil, ErrSubscriptionNotFound
}

// resolveRecord links an unknown provider customer to a user and returns
// that user's record, or a fresh one. existed is false for fresh records.
func (e *Engine) resolveRecord(ctx context.Context, ps *ProviderSubscription) (*Subscription, bool, error) {
	userID, err := e.resolveUser(ctx, ps)
	if err != nil {
		return nil, false, err
	}

	rec, err := e.store.Get(ctx, userID)
	switch {
	case err == nil:
		if rec.CustomerRef != "" && rec.CustomerRef != ps.CustomerRef {
			e.logger.WarnContext(ctx, "Relinking user to a different billing customer",
				logger.UserID(userID),
				logger.CustomerRef(ps.CustomerRef),
			)
		}
		rec.CustomerRef = ps.CustomerRef
		return rec, true, nil
	case errors.Is(err, ErrSubscriptionNotFound):
		rec = NewSubscription(userID, e.now())
		rec.CustomerRef = ps.CustomerRef
		return rec, false, nil
	default:
		return nil, false, err
	}
}

// resolveUser finds the user behind a provider customer: metadata user id
// first, then the customer email through the user directory.
func (e *Engine) resolveUser(ctx context.Context, ps *ProviderSubscription) (uuid.UUID, error) {
	if id, err := uuid.Parse(ps.UserID); err == nil {
		return id, nil
	}
	if ps.CustomerRef == "" {
		return uuid.Nil, ErrUnresolvableCustomer
	}

	cust, err := e.gateway.RetrieveCustomer(ctx, ps.CustomerRef)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to retrieve customer %s: %w", ps.CustomerRef, err)
	}
	if id, err := uuid.Parse(cust.UserID); err == nil {
		return id, nil
	}
	if cust.Email == "" || e.users == nil {
		return uuid.Nil, errors.Join(ErrUnresolvableCustomer, fmt.Errorf("customer %s has no usable email", ps.CustomerRef))
	}

	user, err := e.users.FindByEmail(ctx, cust.Email)
	if errors.Is(err, ErrUserNotFound) {
		return uuid.Nil, errors.Join(ErrUnresolvableCustomer, err)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// save persists rec. CreditsUsed is written only when reset is set; otherwise
// the stored value wins so concurrent consumption is not lost.
func (e *Engine) save(ctx context.Context, rec *Subscription, reset bool, msg string) error {
	rec.UpdatedAt = e.now()
	write := e.store.Save
	if reset {
		write = e.store.Replace
	}
	if err := write(ctx, rec); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	e.logger.InfoContext(ctx, msg,
		logger.UserID(rec.UserID),
		logger.Plan(rec.PlanName),
		logger.Status(rec.Status.String()),
		logger.SubscriptionRef(rec.SubscriptionRef),
	)
	return nil
}
