package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

// SignatureHeader is the header Paddle signs notifications with.
const SignatureHeader = "Paddle-Signature"

var eventTypes = map[string]billing.EventType{
	"subscription.created":       billing.EventSubscriptionCreated,
	"subscription.activated":     billing.EventSubscriptionCreated,
	"subscription.updated":       billing.EventSubscriptionUpdated,
	"subscription.past_due":      billing.EventSubscriptionUpdated,
	"subscription.resumed":       billing.EventSubscriptionUpdated,
	"subscription.paused":        billing.EventSubscriptionUpdated,
	"subscription.canceled":      billing.EventSubscriptionDeleted,
	"transaction.completed":      billing.EventInvoicePaymentSucceeded,
	"transaction.payment_failed": billing.EventInvoicePaymentFailed,
}

// Parser verifies and decodes Paddle notifications.
type Parser struct {
	verifier *paddle.WebhookVerifier
}

// NewParser creates a Parser for the notification destination secret.
func NewParser(cfg Config) (*Parser, error) {
	if cfg.WebhookSecret == "" {
		return nil, billing.ErrMissingSecret
	}
	return &Parser{verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

func (p *Parser) Provider() string        { return ProviderName }
func (p *Parser) SignatureHeader() string { return SignatureHeader }

// ParseWebhook verifies the Paddle-Signature header and decodes the payload.
// The SDK verifier works on requests, so one is rebuilt around the body.
func (p *Parser) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set(SignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(billing.ErrInvalidSignature, err)
	}
	if !valid {
		return nil, billing.ErrInvalidSignature
	}

	return p.DecodeEvent(payload)
}

type wireEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type wireSubscription struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CreatedAt            string         `json:"created_at"`
	CustomData           map[string]any `json:"custom_data"`
	CurrentBillingPeriod *struct {
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
	} `json:"current_billing_period"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID         string         `json:"id"`
			CustomData map[string]any `json:"custom_data"`
		} `json:"price"`
	} `json:"items"`
}

type wireTransaction struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
}

// DecodeEvent decodes a Paddle notification without verifying it.
func (p *Parser) DecodeEvent(payload []byte) (*billing.Event, error) {
	var we wireEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		return nil, errors.Join(billing.ErrMalformedEvent, err)
	}
	if we.EventID == "" || we.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_id or event_type", billing.ErrMalformedEvent)
	}

	ev := &billing.Event{
		ID:         we.EventID,
		Type:       billing.EventType(we.EventType),
		Provider:   ProviderName,
		OccurredAt: parseTime(we.OccurredAt),
		Payload:    payload,
	}

	typ, ok := eventTypes[we.EventType]
	if !ok {
		return ev, nil
	}
	ev.Type = typ

	switch typ {
	case billing.EventInvoicePaymentSucceeded, billing.EventInvoicePaymentFailed:
		var txn wireTransaction
		if err := json.Unmarshal(we.Data, &txn); err != nil {
			return nil, errors.Join(billing.ErrMalformedEvent, err)
		}
		ev.Invoice = &billing.Invoice{
			ID:              txn.ID,
			CustomerRef:     txn.CustomerID,
			SubscriptionRef: txn.SubscriptionID,
		}
	default:
		var ws wireSubscription
		if err := json.Unmarshal(we.Data, &ws); err != nil {
			return nil, errors.Join(billing.ErrMalformedEvent, err)
		}
		if ws.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id", billing.ErrMalformedEvent)
		}
		ps := fromWireSubscription(ws)
		ev.Subscription = &ps
	}

	return ev, nil
}

func fromWireSubscription(ws wireSubscription) billing.ProviderSubscription {
	ps := billing.ProviderSubscription{
		ID:          ws.ID,
		CustomerRef: ws.CustomerID,
		Status:      ws.Status,
		CreatedAt:   parseTime(ws.CreatedAt),
		UserID:      customString(ws.CustomData, CustomDataUserID),
		PlanHint:    customString(ws.CustomData, CustomDataPlan),
	}
	if ws.CurrentBillingPeriod != nil {
		ps.PeriodStart = parseTimePtr(ws.CurrentBillingPeriod.StartsAt)
		ps.PeriodEnd = parseTimePtr(ws.CurrentBillingPeriod.EndsAt)
	}
	if ws.ScheduledChange != nil && ws.ScheduledChange.Action == "cancel" {
		ps.CancelAtPeriodEnd = true
	}
	if len(ws.Items) > 0 {
		price := ws.Items[0].Price
		ps.PriceRef = price.ID
		ps.ItemRef = price.ID
		if ps.PlanHint == "" {
			ps.PlanHint = customString(price.CustomData, CustomDataPlan)
		}
	}
	return ps
}
