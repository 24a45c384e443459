package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billsync/pkg/logger"
)

// Action names reported to the Recorder.
const (
	ActionCheckout          = "checkout"
	ActionSwitchPlan        = "switch_plan"
	ActionCancel            = "cancel"
	ActionCancelImmediately = "cancel_immediately"
	ActionReactivate        = "reactivate"
	ActionConsumeCredits    = "consume_credits"
	ActionSync              = "sync"
)

// Entitlements is what a user may currently do under their record.
type Entitlements struct {
	Plan             Policy `json:"plan"`
	Status           Status `json:"status"`
	Entitled         bool   `json:"entitled"`
	CreditsTotal     int64  `json:"credits_total"`
	CreditsUsed      int64  `json:"credits_used"`
	CreditsRemaining int64  `json:"credits_remaining"`
}

// EnsureSubscription returns the user's record, creating the default
// INACTIVE FREE record on first use.
func (e *Engine) EnsureSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	rec, err := e.store.Get(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	rec = NewSubscription(userID, e.now())
	if err := e.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create subscription record: %w", err)
	}
	return rec, nil
}

// GetSubscription returns the user's record.
func (e *Engine) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return e.EnsureSubscription(ctx, userID)
}

// Entitlements returns the plan limits and credit balance for the user.
func (e *Engine) Entitlements(ctx context.Context, userID uuid.UUID) (*Entitlements, error) {
	rec, err := e.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Entitlements{
		Plan:             rec.Policy(),
		Status:           rec.Status,
		Entitled:         rec.IsEntitled(e.now()),
		CreditsTotal:     rec.CreditsTotal,
		CreditsUsed:      rec.CreditsUsed,
		CreditsRemaining: rec.CreditsRemaining(),
	}, nil
}

// CreateCheckout opens a hosted checkout for priceRef, creating the provider
// customer on first use. The subscription itself arrives by webhook.
func (e *Engine) CreateCheckout(ctx context.Context, user User, priceRef, successURL, cancelURL string) (_ *CheckoutSession, err error) {
	defer func() { e.recorder.ObserveAction(ActionCheckout, err) }()

	if priceRef == "" {
		return nil, ErrMissingPriceRef
	}
	if !e.catalog.Offers(priceRef) {
		return nil, ErrUnknownPrice
	}

	rec, err := e.EnsureSubscription(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if rec.SubscriptionRef != "" && (rec.Status == StatusActive || rec.Status == StatusPastDue) {
		return nil, ErrSubscriptionAlreadyExists
	}

	if rec.CustomerRef == "" {
		ref, err := e.gateway.CreateCustomer(ctx, CustomerParams{UserID: user.ID, Email: user.Email})
		if err != nil {
			return nil, fmt.Errorf("failed to create billing customer: %w", err)
		}
		rec.CustomerRef = ref
		if err := e.save(ctx, rec, false, "Billing customer linked"); err != nil {
			return nil, err
		}
	}

	session, err := e.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:      user.ID,
		CustomerRef: rec.CustomerRef,
		PriceRef:    priceRef,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session, nil
}

// SwitchPlan moves the user's subscription to priceRef with immediate
// proration and mirrors the result locally. The mirror is best effort: the
// subscription.updated webhook that follows is authoritative.
func (e *Engine) SwitchPlan(ctx context.Context, userID uuid.UUID, priceRef string) (_ *Subscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionSwitchPlan, err) }()

	if priceRef == "" {
		return nil, ErrMissingPriceRef
	}
	if !e.catalog.Offers(priceRef) {
		return nil, ErrUnknownPrice
	}

	rec, err := e.linkedSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	ps, err := e.gateway.RetrieveSubscription(ctx, rec.SubscriptionRef)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	if !IsLiveProviderStatus(ps.Status) {
		return nil, ErrSubscriptionNotModifiable
	}
	if ps.ItemRef == "" {
		return nil, ErrMissingSubscriptionItem
	}

	updated, err := e.gateway.UpdateSubscriptionItem(ctx, ps.ID, ps.ItemRef, priceRef)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription item: %w", err)
	}

	plan := e.catalog.PlanFor(priceRef, updated.PlanHint)
	planChanged := rec.PlanName != plan

	rec.PlanName = plan
	rec.PriceRef = priceRef
	rec.PeriodStart = cloneTime(updated.PeriodStart)
	rec.PeriodEnd = cloneTime(updated.PeriodEnd)
	rec.CreditsTotal = PolicyFor(plan).Credits
	if planChanged {
		rec.CreditsUsed = 0
		rec.CreditsResetAt = cloneTime(updated.PeriodEnd)
	}

	if err := e.save(ctx, rec, planChanged, "Plan switched"); err != nil {
		e.logger.WarnContext(ctx, "Failed to mirror plan switch locally",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
	return rec, nil
}

// Cancel schedules cancellation at the end of the current period. The local
// status is left alone until the provider reports the change.
func (e *Engine) Cancel(ctx context.Context, userID uuid.UUID) (_ *ProviderSubscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionCancel, err) }()

	rec, err := e.linkedSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	ps, err := e.gateway.RetrieveSubscription(ctx, rec.SubscriptionRef)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	if MapProviderStatus(ps.Status) == StatusCanceled {
		return nil, ErrSubscriptionCanceled
	}
	if ps.CancelAtPeriodEnd {
		return nil, ErrCancellationScheduled
	}

	ps, err = e.gateway.SetCancelAtPeriodEnd(ctx, ps.ID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cancellation: %w", err)
	}
	e.logger.InfoContext(ctx, "Cancellation scheduled", logger.UserID(userID), logger.SubscriptionRef(ps.ID))
	return ps, nil
}

// CancelImmediately cancels the subscription now and downgrades the record.
func (e *Engine) CancelImmediately(ctx context.Context, userID uuid.UUID) (_ *Subscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionCancelImmediately, err) }()

	rec, err := e.linkedSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := e.gateway.CancelImmediately(ctx, rec.SubscriptionRef); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	rec.downgrade(e.now())
	if err := e.save(ctx, rec, true, "Subscription canceled immediately"); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reactivate withdraws a scheduled cancellation.
func (e *Engine) Reactivate(ctx context.Context, userID uuid.UUID) (_ *ProviderSubscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionReactivate, err) }()

	rec, err := e.linkedSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	ps, err := e.gateway.RetrieveSubscription(ctx, rec.SubscriptionRef)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	if MapProviderStatus(ps.Status) == StatusCanceled {
		return nil, ErrSubscriptionCanceled
	}
	if !ps.CancelAtPeriodEnd {
		return nil, ErrNotScheduledForCancellation
	}

	ps, err = e.gateway.SetCancelAtPeriodEnd(ctx, ps.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}
	e.logger.InfoContext(ctx, "Subscription reactivated", logger.UserID(userID), logger.SubscriptionRef(ps.ID))
	return ps, nil
}

// ConsumeCredits spends amount credits. Paid plans require an entitled
// record; the FREE allocation is spendable unless payment is overdue.
func (e *Engine) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int64) (_ *Subscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionConsumeCredits, err) }()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	rec, err := e.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !e.canSpend(rec) {
		return nil, ErrNotEntitled
	}

	return e.store.ConsumeCredits(ctx, userID, amount)
}

// SyncSubscription runs linkage repair on behalf of the user.
func (e *Engine) SyncSubscription(ctx context.Context, userID uuid.UUID) (_ *Subscription, err error) {
	defer func() { e.recorder.ObserveAction(ActionSync, err) }()

	if _, err := e.EnsureSubscription(ctx, userID); err != nil {
		return nil, err
	}
	return e.Sync(ctx, userID)
}

// ResetSubscription deletes the user's record.
func (e *Engine) ResetSubscription(ctx context.Context, userID uuid.UUID) error {
	if err := e.store.Delete(ctx, userID); err != nil {
		return err
	}
	e.logger.WarnContext(ctx, "Subscription record reset", logger.UserID(userID))
	return nil
}

func (e *Engine) canSpend(rec *Subscription) bool {
	if rec.IsEntitled(e.now()) {
		return true
	}
	if rec.PlanName != PlanFree {
		return false
	}
	return rec.Status != StatusPastDue && rec.Status != StatusUnpaid
}

// linkedSubscription returns the user's record with a subscription ref,
// running a lazy Sync when the ref is missing.
func (e *Engine) linkedSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	rec, err := e.store.Get(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if rec.SubscriptionRef != "" {
		return rec, nil
	}

	synced, err := e.Sync(ctx, userID)
	if err != nil && !errors.Is(err, ErrNothingToSync) {
		return nil, err
	}
	if synced == nil || synced.SubscriptionRef == "" {
		return nil, ErrNoActiveSubscription
	}
	return synced, nil
}
