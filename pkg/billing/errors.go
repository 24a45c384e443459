package billing

import "errors"

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("user already has a live subscription")
	ErrLinkageConflict           = errors.New("billing linkage already belongs to another user")
	ErrUnresolvableCustomer      = errors.New("billing customer cannot be linked to a user")
	ErrUserNotFound              = errors.New("user not found")

	ErrEventNotFound         = errors.New("webhook event not found")
	ErrDuplicateEvent        = errors.New("webhook event already recorded")
	ErrEventAlreadyProcessed = errors.New("webhook event already processed")
	ErrUnrecognizedEvent     = errors.New("webhook event type is not handled")
	ErrInvalidSignature      = errors.New("webhook signature verification failed")
	ErrMalformedEvent        = errors.New("malformed webhook event")

	ErrNoActiveSubscription        = errors.New("no active subscription; contact support")
	ErrNothingToSync               = errors.New("no provider subscription found for customer")
	ErrSubscriptionNotModifiable   = errors.New("subscription cannot be modified in its current state")
	ErrSubscriptionCanceled        = errors.New("subscription is already canceled")
	ErrCancellationScheduled       = errors.New("subscription is already scheduled for cancellation")
	ErrNotScheduledForCancellation = errors.New("subscription is not scheduled for cancellation")
	ErrMissingPriceRef             = errors.New("price reference is required")
	ErrUnknownPrice                = errors.New("price reference is not offered")
	ErrMissingSubscriptionItem     = errors.New("provider subscription has no item to update")

	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotEntitled         = errors.New("subscription does not grant access")

	// Provider errors
	ErrProviderError      = errors.New("billing provider error")
	ErrMissingAPIKey      = errors.New("billing provider API key is required")
	ErrMissingSecret      = errors.New("billing provider webhook secret is required")
	ErrInvalidEnvironment = errors.New("invalid billing provider environment")
	ErrNoCheckoutURL      = errors.New("no checkout URL returned from provider")
)
