package paddle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

// ProviderName is the provider identifier used in routes and the ledger.
const ProviderName = "paddle"

// Custom data keys written on Paddle customers, transactions and subscriptions.
const (
	CustomDataUserID = "user_id"
	CustomDataPlan   = "plan"
)

// Config holds configuration for the Paddle billing provider.
type Config struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// Gateway implements billing.Gateway for Paddle Billing.
type Gateway struct {
	client *paddle.SDK
}

// NewGateway creates a Paddle gateway for the configured environment.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, billing.ErrMissingAPIKey
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", billing.ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &Gateway{client: client}, nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, p billing.CustomerParams) (string, error) {
	c, err := g.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      p.Email,
		CustomData: paddle.CustomData{CustomDataUserID: p.UserID.String()},
	})
	if err != nil {
		return "", providerError("create customer", err)
	}
	return c.ID, nil
}

func (g *Gateway) RetrieveCustomer(ctx context.Context, customerRef string) (*billing.ProviderCustomer, error) {
	c, err := g.client.CustomersClient.GetCustomer(ctx, &paddle.GetCustomerRequest{CustomerID: customerRef})
	if err != nil {
		return nil, providerError("retrieve customer", err)
	}
	return &billing.ProviderCustomer{
		ID:     c.ID,
		Email:  c.Email,
		UserID: customString(c.CustomData, CustomDataUserID),
	}, nil
}

// CreateCheckoutSession creates a draft transaction whose checkout URL opens
// Paddle's hosted checkout. Completing it starts the subscription.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.PriceRef,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{CustomDataUserID: p.UserID.String()},
	}
	if p.CustomerRef != "" {
		req.CustomerID = paddle.PtrTo(p.CustomerRef)
	}
	if p.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.SuccessURL)}
	}

	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, providerError("create transaction", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return nil, billing.ErrNoCheckoutURL
	}
	return &billing.CheckoutSession{ID: txn.ID, URL: *txn.Checkout.URL}, nil
}

func (g *Gateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	s, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionRef,
	})
	if err != nil {
		return nil, providerError("retrieve subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

// UpdateSubscriptionItem replaces the subscription items with priceRef.
// Paddle items have no id of their own, so itemRef is the current price id.
func (g *Gateway) UpdateSubscriptionItem(ctx context.Context, subscriptionRef, _, priceRef string) (*billing.ProviderSubscription, error) {
	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  priceRef,
		Quantity: 1,
	})

	s, err := g.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       subscriptionRef,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately),
	})
	if err != nil {
		return nil, providerError("update subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

// SetCancelAtPeriodEnd schedules a cancellation for the next billing period,
// or removes the scheduled change when cancel is false.
func (g *Gateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) (*billing.ProviderSubscription, error) {
	var (
		s   *paddle.Subscription
		err error
	)
	if cancel {
		s, err = g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
			SubscriptionID: subscriptionRef,
			EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
		})
	} else {
		s, err = g.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
			SubscriptionID:  subscriptionRef,
			ScheduledChange: paddle.NewPatchField[*paddle.SubscriptionScheduledChange](nil),
		})
	}
	if err != nil {
		return nil, providerError("schedule cancellation", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) CancelImmediately(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	s, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionRef,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return nil, providerError("cancel subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, customerRef, status string) ([]billing.ProviderSubscription, error) {
	req := &paddle.ListSubscriptionsRequest{CustomerID: []string{customerRef}}
	if status != "" && status != billing.StatusFilterAll {
		req.Status = []string{status}
	}

	res, err := g.client.SubscriptionsClient.ListSubscriptions(ctx, req)
	if err != nil {
		return nil, providerError("list subscriptions", err)
	}

	var out []billing.ProviderSubscription
	err = res.Iter(ctx, func(s *paddle.Subscription) (bool, error) {
		out = append(out, toProviderSubscription(s))
		return true, nil
	})
	if err != nil {
		return nil, providerError("list subscriptions", err)
	}
	return out, nil
}

func toProviderSubscription(s *paddle.Subscription) billing.ProviderSubscription {
	ps := billing.ProviderSubscription{
		ID:          s.ID,
		CustomerRef: s.CustomerID,
		Status:      string(s.Status),
		CreatedAt:   parseTime(s.CreatedAt),
		UserID:      customString(s.CustomData, CustomDataUserID),
		PlanHint:    customString(s.CustomData, CustomDataPlan),
	}
	if s.CurrentBillingPeriod != nil {
		ps.PeriodStart = parseTimePtr(s.CurrentBillingPeriod.StartsAt)
		ps.PeriodEnd = parseTimePtr(s.CurrentBillingPeriod.EndsAt)
	}
	if s.ScheduledChange != nil && s.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		ps.CancelAtPeriodEnd = true
	}
	if len(s.Items) > 0 {
		price := s.Items[0].Price
		ps.PriceRef = price.ID
		ps.ItemRef = price.ID
		if ps.PlanHint == "" {
			ps.PlanHint = customString(price.CustomData, CustomDataPlan)
		}
	}
	return ps
}

func customString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func providerError(op string, err error) error {
	return errors.Join(billing.ErrProviderError, fmt.Errorf("paddle: %s: %w", op, err))
}
