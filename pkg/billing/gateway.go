package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Gateway is the capability set the engine needs from a billing provider.
// Implementations wrap the official provider SDKs and normalize their
// responses into ProviderSubscription and ProviderCustomer.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	RetrieveCustomer(ctx context.Context, customerRef string) (*ProviderCustomer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error)
	// UpdateSubscriptionItem swaps the price on an item with immediate proration.
	UpdateSubscriptionItem(ctx context.Context, subscriptionRef, itemRef, priceRef string) (*ProviderSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) (*ProviderSubscription, error)
	CancelImmediately(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error)
	// ListSubscriptions returns the customer's subscriptions filtered by
	// provider status. StatusFilterAll disables the filter.
	ListSubscriptions(ctx context.Context, customerRef, status string) ([]ProviderSubscription, error)
}

// StatusFilterAll lists subscriptions in every status.
const StatusFilterAll = "all"

// CustomerParams describes a provider customer to create.
type CustomerParams struct {
	UserID uuid.UUID
	Email  string
}

// CheckoutParams describes a hosted checkout session.
type CheckoutParams struct {
	UserID      uuid.UUID
	CustomerRef string
	PriceRef    string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is a hosted checkout the user is redirected to.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProviderCustomer is a normalized provider customer.
type ProviderCustomer struct {
	ID     string
	Email  string
	UserID string // from customer metadata, may be empty
}

// ProviderSubscription is a normalized provider subscription. Status keeps
// the provider's lowercase value; map it with MapProviderStatus.
type ProviderSubscription struct {
	ID                string     `json:"id"`
	CustomerRef       string     `json:"customer_ref"`
	Status            string     `json:"status"`
	PriceRef          string     `json:"price_ref,omitempty"`
	ItemRef           string     `json:"item_ref,omitempty"`
	PlanHint          string     `json:"plan_hint,omitempty"`
	UserID            string     `json:"-"`
	PeriodStart       *time.Time `json:"period_start,omitempty"`
	PeriodEnd         *time.Time `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CreatedAt         time.Time  `json:"created_at"`
}

// latestSubscription returns the most recently created subscription that
// satisfies keep, or nil.
func latestSubscription(subs []ProviderSubscription, keep func(ProviderSubscription) bool) *ProviderSubscription {
	var latest *ProviderSubscription
	for i := range subs {
		if keep != nil && !keep(subs[i]) {
			continue
		}
		if latest == nil || subs[i].CreatedAt.After(latest.CreatedAt) {
			latest = &subs[i]
		}
	}
	return latest
}
