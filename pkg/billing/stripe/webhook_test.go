package stripe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/billing/stripe"
)

const secret = "whsec_test_secret"

func sign(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func newParser(t *testing.T) *stripe.Parser {
	t.Helper()
	p, err := stripe.NewParser(stripe.Config{WebhookSecret: secret})
	require.NoError(t, err)
	return p
}

const subscriptionUpdated = `{
  "id": "evt_1",
  "object": "event",
  "type": "customer.subscription.updated",
  "created": 1741608000,
  "data": {"object": {
    "id": "sub_1",
    "customer": "cus_1",
    "status": "trialing",
    "cancel_at_period_end": true,
    "created": 1740787200,
    "metadata": {"user_id": "7b1f3c3e-0000-4000-8000-000000000001"},
    "items": {"data": [{
      "id": "si_1",
      "current_period_start": 1740787200,
      "current_period_end": 1743465600,
      "price": {"id": "price_pro", "lookup_key": "pro"}
    }]}
  }}
}`

func TestParser_ParseWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("subscription event", func(t *testing.T) {
		t.Parallel()
		payload, header := sign(t, subscriptionUpdated)

		ev, err := newParser(t).ParseWebhook(ctx, payload, header)
		require.NoError(t, err)

		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, billing.EventSubscriptionUpdated, ev.Type)
		assert.Equal(t, stripe.ProviderName, ev.Provider)
		assert.Equal(t, payload, ev.Payload)

		require.NotNil(t, ev.Subscription)
		sub := ev.Subscription
		assert.Equal(t, "sub_1", sub.ID)
		assert.Equal(t, "cus_1", sub.CustomerRef)
		assert.Equal(t, "trialing", sub.Status)
		assert.Equal(t, "si_1", sub.ItemRef)
		assert.Equal(t, "price_pro", sub.PriceRef)
		assert.Equal(t, "pro", sub.PlanHint)
		assert.Equal(t, "7b1f3c3e-0000-4000-8000-000000000001", sub.UserID)
		assert.True(t, sub.CancelAtPeriodEnd)
		require.NotNil(t, sub.PeriodStart)
		require.NotNil(t, sub.PeriodEnd)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *sub.PeriodStart)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), *sub.PeriodEnd)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		payload, _ := sign(t, subscriptionUpdated)

		_, err := newParser(t).ParseWebhook(ctx, payload, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		_, err := newParser(t).ParseWebhook(ctx, []byte(subscriptionUpdated), "")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		_, header := sign(t, subscriptionUpdated)

		_, err := newParser(t).ParseWebhook(ctx, []byte(`{"id":"evt_2","type":"invoice.paid"}`), header)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})
}

func TestParser_DecodeEvent(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	t.Run("invoice with parent details", func(t *testing.T) {
		t.Parallel()
		ev, err := p.DecodeEvent([]byte(`{"id":"evt_3","type":"invoice.paid","data":{"object":{
			"id":"in_1","customer":"cus_1",
			"parent":{"subscription_details":{"subscription":"sub_9"}}}}}`))
		require.NoError(t, err)
		assert.Equal(t, billing.EventInvoicePaymentSucceeded, ev.Type)
		require.NotNil(t, ev.Invoice)
		assert.Equal(t, "sub_9", ev.Invoice.SubscriptionRef)
		assert.Equal(t, "cus_1", ev.Invoice.CustomerRef)
	})

	t.Run("legacy invoice subscription field", func(t *testing.T) {
		t.Parallel()
		ev, err := p.DecodeEvent([]byte(`{"id":"evt_4","type":"invoice.payment_failed","data":{"object":{
			"id":"in_2","customer":"cus_1","subscription":"sub_8"}}}`))
		require.NoError(t, err)
		assert.Equal(t, billing.EventInvoicePaymentFailed, ev.Type)
		assert.Equal(t, "sub_8", ev.Invoice.SubscriptionRef)
	})

	t.Run("unknown type passes through", func(t *testing.T) {
		t.Parallel()
		ev, err := p.DecodeEvent([]byte(`{"id":"evt_5","type":"charge.refunded","data":{"object":{}}}`))
		require.NoError(t, err)
		assert.Equal(t, billing.EventType("charge.refunded"), ev.Type)
		assert.Nil(t, ev.Subscription)
		assert.Nil(t, ev.Invoice)
	})

	t.Run("price metadata plan wins over lookup key", func(t *testing.T) {
		t.Parallel()
		ev, err := p.DecodeEvent([]byte(`{"id":"evt_6","type":"customer.subscription.created","data":{"object":{
			"id":"sub_2","customer":"cus_2","status":"active",
			"items":{"data":[{"id":"si_2","price":{"id":"price_x","lookup_key":"startup","metadata":{"plan":"enterprise"}}}]}}}}`))
		require.NoError(t, err)
		assert.Equal(t, "enterprise", ev.Subscription.PlanHint)
		assert.Nil(t, ev.Subscription.PeriodStart)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		for _, raw := range []string{`not json`, `{"type":"invoice.paid"}`, `{"id":"evt_7","type":"customer.subscription.deleted","data":{"object":{}}}`} {
			_, err := p.DecodeEvent([]byte(raw))
			assert.ErrorIs(t, err, billing.ErrMalformedEvent, raw)
		}
	})
}

func TestNewParser_RequiresSecret(t *testing.T) {
	t.Parallel()
	_, err := stripe.NewParser(stripe.Config{})
	assert.ErrorIs(t, err, billing.ErrMissingSecret)

	_, err = stripe.NewGateway(stripe.Config{})
	assert.ErrorIs(t, err, billing.ErrMissingAPIKey)
}
