package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billsync/pkg/logger"
)

// Sync repairs the user's linkage from the provider. It picks the most
// recently created subscription that is active, trialing or past_due and
// mirrors it locally. When none is live and the latest one is canceled the
// record is downgraded to FREE. Returns ErrNothingToSync, together with the
// unchanged record, when the provider has nothing for the customer.
//
// Running Sync twice without provider changes leaves the record unchanged.
func (e *Engine) Sync(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	rec, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.CustomerRef == "" {
		return rec, ErrNothingToSync
	}

	subs, err := e.gateway.ListSubscriptions(ctx, rec.CustomerRef, StatusFilterAll)
	if err != nil {
		return rec, fmt.Errorf("failed to list provider subscriptions: %w", err)
	}

	log := e.logger.With(logger.UserID(userID), logger.CustomerRef(rec.CustomerRef))

	live := latestSubscription(subs, func(ps ProviderSubscription) bool {
		return IsLiveProviderStatus(ps.Status)
	})
	if live != nil {
		reset := rec.applyProvider(live, e.catalog.PlanFor(live.PriceRef, live.PlanHint), true)
		if err := e.save(ctx, rec, reset, "Subscription synced"); err != nil {
			return nil, err
		}
		return rec, nil
	}

	latest := latestSubscription(subs, nil)
	if latest != nil && MapProviderStatus(latest.Status) == StatusCanceled {
		if rec.isDowngraded() {
			return rec, nil
		}
		rec.downgrade(e.now())
		if err := e.save(ctx, rec, true, "Subscription synced as canceled"); err != nil {
			return nil, err
		}
		return rec, nil
	}

	log.InfoContext(ctx, "Nothing to sync for customer", logger.Count(int64(len(subs))))
	return rec, ErrNothingToSync
}
