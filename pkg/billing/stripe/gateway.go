package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

// ProviderName is the provider identifier used in routes and the ledger.
const ProviderName = "stripe"

// Metadata keys written on Stripe customers and subscriptions.
const (
	MetadataUserID = "user_id"
	MetadataPlan   = "plan"
)

// Config holds Stripe credentials.
type Config struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// Gateway implements billing.Gateway on top of the Stripe API.
type Gateway struct {
	api *client.API
}

// NewGateway creates a Stripe gateway.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, billing.ErrMissingAPIKey
	}
	return &Gateway{api: client.New(cfg.SecretKey, nil)}, nil
}

// NewGatewayWithBackends creates a gateway that talks to custom backends,
// e.g. stripe-mock or an httptest server.
func NewGatewayWithBackends(key string, backends *stripego.Backends) *Gateway {
	return &Gateway{api: client.New(key, backends)}
}

func (g *Gateway) CreateCustomer(ctx context.Context, p billing.CustomerParams) (string, error) {
	params := &stripego.CustomerParams{
		Metadata: map[string]string{MetadataUserID: p.UserID.String()},
	}
	params.Context = ctx
	if p.Email != "" {
		params.Email = stripego.String(p.Email)
	}

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", providerError("create customer", err)
	}
	return c.ID, nil
}

func (g *Gateway) RetrieveCustomer(ctx context.Context, customerRef string) (*billing.ProviderCustomer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx

	c, err := g.api.Customers.Get(customerRef, params)
	if err != nil {
		return nil, providerError("retrieve customer", err)
	}
	return &billing.ProviderCustomer{
		ID:     c.ID,
		Email:  c.Email,
		UserID: c.Metadata[MetadataUserID],
	}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		Customer:          stripego.String(p.CustomerRef),
		ClientReferenceID: stripego.String(p.UserID.String()),
		SuccessURL:        stripego.String(p.SuccessURL),
		CancelURL:         stripego.String(p.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(p.PriceRef),
				Quantity: stripego.Int64(1),
			},
		},
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: p.UserID.String()},
		},
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, providerError("create checkout session", err)
	}
	if s.URL == "" {
		return nil, billing.ErrNoCheckoutURL
	}
	return &billing.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx

	s, err := g.api.Subscriptions.Get(subscriptionRef, params)
	if err != nil {
		return nil, providerError("retrieve subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) UpdateSubscriptionItem(ctx context.Context, subscriptionRef, itemRef, priceRef string) (*billing.ProviderSubscription, error) {
	params := &stripego.SubscriptionParams{
		Items: []*stripego.SubscriptionItemsParams{
			{ID: stripego.String(itemRef), Price: stripego.String(priceRef)},
		},
		ProrationBehavior: stripego.String("create_prorations"),
	}
	params.Context = ctx

	s, err := g.api.Subscriptions.Update(subscriptionRef, params)
	if err != nil {
		return nil, providerError("update subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) (*billing.ProviderSubscription, error) {
	params := &stripego.SubscriptionParams{CancelAtPeriodEnd: stripego.Bool(cancel)}
	params.Context = ctx

	s, err := g.api.Subscriptions.Update(subscriptionRef, params)
	if err != nil {
		return nil, providerError("set cancel at period end", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) CancelImmediately(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	params := &stripego.SubscriptionCancelParams{}
	params.Context = ctx

	s, err := g.api.Subscriptions.Cancel(subscriptionRef, params)
	if err != nil {
		return nil, providerError("cancel subscription", err)
	}
	ps := toProviderSubscription(s)
	return &ps, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, customerRef, status string) ([]billing.ProviderSubscription, error) {
	params := &stripego.SubscriptionListParams{Customer: stripego.String(customerRef)}
	params.Context = ctx
	if status != "" {
		params.Status = stripego.String(status)
	}

	var out []billing.ProviderSubscription
	it := g.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, toProviderSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, providerError("list subscriptions", err)
	}
	return out, nil
}

func toProviderSubscription(s *stripego.Subscription) billing.ProviderSubscription {
	ps := billing.ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CreatedAt:         unixTime(s.Created),
		UserID:            s.Metadata[MetadataUserID],
		PlanHint:          s.Metadata[MetadataPlan],
	}
	if s.Customer != nil {
		ps.CustomerRef = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		ps.ItemRef = item.ID
		ps.PeriodStart = unixTimePtr(item.CurrentPeriodStart)
		ps.PeriodEnd = unixTimePtr(item.CurrentPeriodEnd)
		if item.Price != nil {
			ps.PriceRef = item.Price.ID
			if ps.PlanHint == "" {
				ps.PlanHint = planHint(item.Price.LookupKey, item.Price.Metadata)
			}
		}
	}
	return ps
}

func planHint(lookupKey string, metadata map[string]string) string {
	if p := metadata[MetadataPlan]; p != "" {
		return p
	}
	return lookupKey
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixTimePtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := unixTime(sec)
	return &t
}

// providerError wraps Stripe API errors with billing.ErrProviderError,
// keeping the Stripe message for logs.
func providerError(op string, err error) error {
	var se *stripego.Error
	if errors.As(err, &se) {
		msg := strings.TrimSpace(se.Msg)
		if msg == "" {
			msg = string(se.Code)
		}
		return errors.Join(billing.ErrProviderError, fmt.Errorf("stripe: %s: %s: %w", op, msg, err))
	}
	return errors.Join(billing.ErrProviderError, fmt.Errorf("stripe: %s: %w", op, err))
}
