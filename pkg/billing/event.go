package billing

import (
	"context"
	"time"
)

// Event is a verified, provider-neutral webhook notification.
type Event struct {
	ID         string
	Type       EventType
	Provider   string
	OccurredAt time.Time

	// Subscription is set for subscription.* events.
	Subscription *ProviderSubscription
	// Invoice is set for invoice.* events.
	Invoice *Invoice

	// Payload is the raw request body, stored in the ledger for replay.
	Payload []byte
}

// Invoice carries the linkage fields of a provider invoice.
type Invoice struct {
	ID              string
	CustomerRef     string
	SubscriptionRef string
}

// WebhookParser verifies and normalizes provider webhook deliveries.
type WebhookParser interface {
	// Provider returns the provider name used in routes and the ledger.
	Provider() string
	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string
	// ParseWebhook verifies the signature over the raw payload and decodes it.
	// Returns ErrInvalidSignature when verification fails.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
	// DecodeEvent decodes a payload that was verified earlier, e.g. from the ledger.
	DecodeEvent(payload []byte) (*Event, error)
}
