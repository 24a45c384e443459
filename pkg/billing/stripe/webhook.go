package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

// SignatureHeader is the header Stripe signs deliveries with.
const SignatureHeader = "Stripe-Signature"

var eventTypes = map[string]billing.EventType{
	"customer.subscription.created": billing.EventSubscriptionCreated,
	"customer.subscription.updated": billing.EventSubscriptionUpdated,
	"customer.subscription.deleted": billing.EventSubscriptionDeleted,
	"invoice.payment_succeeded":     billing.EventInvoicePaymentSucceeded,
	"invoice.paid":                  billing.EventInvoicePaymentSucceeded,
	"invoice.payment_failed":        billing.EventInvoicePaymentFailed,
}

// Parser verifies and decodes Stripe webhook deliveries.
type Parser struct {
	secret string
}

// NewParser creates a Parser for the endpoint signing secret.
func NewParser(cfg Config) (*Parser, error) {
	if cfg.WebhookSecret == "" {
		return nil, billing.ErrMissingSecret
	}
	return &Parser{secret: cfg.WebhookSecret}, nil
}

func (p *Parser) Provider() string        { return ProviderName }
func (p *Parser) SignatureHeader() string { return SignatureHeader }

// ParseWebhook checks the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated since only a handful of fields is read.
func (p *Parser) ParseWebhook(_ context.Context, payload []byte, signature string) (*billing.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, billing.ErrInvalidSignature
	}
	_, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(billing.ErrInvalidSignature, err)
	}
	return p.DecodeEvent(payload)
}

// wire types cover only the fields reconciliation reads.
type wireEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type wirePrice struct {
	ID        string            `json:"id"`
	LookupKey string            `json:"lookup_key"`
	Metadata  map[string]string `json:"metadata"`
}

type wireSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Created            int64             `json:"created"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			ID                 string    `json:"id"`
			CurrentPeriodStart int64     `json:"current_period_start"`
			CurrentPeriodEnd   int64     `json:"current_period_end"`
			Price              wirePrice `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type wireInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// DecodeEvent decodes a Stripe event payload without verifying it.
// Unknown types are returned with their Stripe name and no body.
func (p *Parser) DecodeEvent(payload []byte) (*billing.Event, error) {
	var we wireEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		return nil, errors.Join(billing.ErrMalformedEvent, err)
	}
	if we.ID == "" || we.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", billing.ErrMalformedEvent)
	}

	ev := &billing.Event{
		ID:         we.ID,
		Type:       billing.EventType(we.Type),
		Provider:   ProviderName,
		OccurredAt: unixTime(we.Created),
		Payload:    payload,
	}

	typ, ok := eventTypes[we.Type]
	if !ok {
		return ev, nil
	}
	ev.Type = typ

	switch typ {
	case billing.EventInvoicePaymentSucceeded, billing.EventInvoicePaymentFailed:
		var inv wireInvoice
		if err := json.Unmarshal(we.Data.Object, &inv); err != nil {
			return nil, errors.Join(billing.ErrMalformedEvent, err)
		}
		ev.Invoice = &billing.Invoice{
			ID:              inv.ID,
			CustomerRef:     inv.Customer,
			SubscriptionRef: invoiceSubscription(inv),
		}
	default:
		var ws wireSubscription
		if err := json.Unmarshal(we.Data.Object, &ws); err != nil {
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

func invoiceSubscription(inv wireInvoice) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != "" {
		return inv.Parent.SubscriptionDetails.Subscription
	}
	return inv.Subscription
}

func fromWireSubscription(ws wireSubscription) billing.ProviderSubscription {
	ps := billing.ProviderSubscription{
		ID:                ws.ID,
		CustomerRef:       ws.Customer,
		Status:            ws.Status,
		CancelAtPeriodEnd: ws.CancelAtPeriodEnd,
		CreatedAt:         unixTime(ws.Created),
		UserID:            ws.Metadata[MetadataUserID],
		PlanHint:          ws.Metadata[MetadataPlan],
		PeriodStart:       unixTimePtr(ws.CurrentPeriodStart),
		PeriodEnd:         unixTimePtr(ws.CurrentPeriodEnd),
	}
	if len(ws.Items.Data) > 0 {
		item := ws.Items.Data[0]
		ps.ItemRef = item.ID
		ps.PriceRef = item.Price.ID
		if ps.PlanHint == "" {
			ps.PlanHint = planHint(item.Price.LookupKey, item.Price.Metadata)
		}
		if item.CurrentPeriodStart != 0 {
			ps.PeriodStart = unixTimePtr(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd != 0 {
			ps.PeriodEnd = unixTimePtr(item.CurrentPeriodEnd)
		}
	}
	return ps
}
