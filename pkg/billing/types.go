package billing

import "strings"

// Status is the internal subscription status. The set is closed: provider
// statuses are always normalized through MapProviderStatus.
type Status string

const (
	StatusInactive Status = "INACTIVE"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusUnpaid   Status = "UNPAID"
	StatusCanceled Status = "CANCELED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Provider-side subscription statuses shared by the supported providers.
const (
	ProviderStatusActive            = "active"
	ProviderStatusTrialing          = "trialing"
	ProviderStatusPastDue           = "past_due"
	ProviderStatusCanceled          = "canceled"
	ProviderStatusUnpaid            = "unpaid"
	ProviderStatusIncomplete        = "incomplete"
	ProviderStatusIncompleteExpired = "incomplete_expired"
	ProviderStatusPaused            = "paused"
)

// MapProviderStatus normalizes a provider subscription status.
// Unknown values map to StatusInactive.
func MapProviderStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProviderStatusActive, ProviderStatusTrialing:
		return StatusActive
	case ProviderStatusPastDue:
		return StatusPastDue
	case ProviderStatusCanceled, "cancelled":
		return StatusCanceled
	case ProviderStatusUnpaid:
		return StatusUnpaid
	default:
		return StatusInactive
	}
}

// IsLiveProviderStatus reports whether a provider subscription can still be
// billed and modified: active, trialing or past_due.
func IsLiveProviderStatus(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProviderStatusActive, ProviderStatusTrialing, ProviderStatusPastDue:
		return true
	}
	return false
}

// EventType is the normalized webhook event type. Provider parsers map their
// native names onto these values; anything else passes through unchanged and
// is treated as unrecognized by the engine.
type EventType string

const (
	EventSubscriptionCreated     EventType = "subscription.created"
	EventSubscriptionUpdated     EventType = "subscription.updated"
	EventSubscriptionDeleted     EventType = "subscription.deleted"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
)

func (t EventType) String() string { return string(t) }

// Unlimited marks an uncapped allocation. Persisted as SQL NULL.
const Unlimited int64 = -1
