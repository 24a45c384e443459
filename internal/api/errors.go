package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing"
)

// HTTPError is an error with an HTTP status code and a stable machine
// readable key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrPaymentRequired     = HTTPError{Code: http.StatusPaymentRequired, Key: "payment_required"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrEntityTooLarge      = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "request_entity_too_large"}
	ErrUnprocessable       = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
)

// errorMapping is checked in order; the first sentinel matched wins.
var errorMapping = []struct {
	target error
	http   HTTPError
}{
	{billing.ErrInvalidSignature, HTTPError{Code: http.StatusBadRequest, Key: "invalid_signature"}},
	{billing.ErrMalformedEvent, HTTPError{Code: http.StatusBadRequest, Key: "malformed_event"}},
	{billing.ErrInvalidAmount, HTTPError{Code: http.StatusBadRequest, Key: "invalid_amount"}},
	{billing.ErrMissingPriceRef, HTTPError{Code: http.StatusBadRequest, Key: "missing_price"}},
	{billing.ErrUnknownPrice, HTTPError{Code: http.StatusBadRequest, Key: "unknown_price"}},

	{auth.ErrMissingToken, ErrUnauthorized},
	{auth.ErrInvalidToken, ErrUnauthorized},
	{auth.ErrInvalidClaims, ErrUnauthorized},
	{auth.ErrNoIdentity, ErrUnauthorized},

	{billing.ErrInsufficientCredits, HTTPError{Code: http.StatusPaymentRequired, Key: "insufficient_credits"}},
	{billing.ErrNotEntitled, HTTPError{Code: http.StatusPaymentRequired, Key: "not_entitled"}},

	{billing.ErrSubscriptionNotFound, HTTPError{Code: http.StatusNotFound, Key: "subscription_not_found"}},
	{billing.ErrEventNotFound, HTTPError{Code: http.StatusNotFound, Key: "event_not_found"}},
	{billing.ErrNoActiveSubscription, HTTPError{Code: http.StatusNotFound, Key: "no_active_subscription"}},
	{billing.ErrNothingToSync, HTTPError{Code: http.StatusNotFound, Key: "nothing_to_sync"}},

	{billing.ErrSubscriptionAlreadyExists, HTTPError{Code: http.StatusConflict, Key: "subscription_exists"}},
	{billing.ErrSubscriptionCanceled, HTTPError{Code: http.StatusConflict, Key: "subscription_canceled"}},
	{billing.ErrCancellationScheduled, HTTPError{Code: http.StatusConflict, Key: "cancellation_scheduled"}},
	{billing.ErrNotScheduledForCancellation, HTTPError{Code: http.StatusConflict, Key: "not_scheduled_for_cancellation"}},
	{billing.ErrSubscriptionNotModifiable, HTTPError{Code: http.StatusConflict, Key: "subscription_not_modifiable"}},
	{billing.ErrEventAlreadyProcessed, HTTPError{Code: http.StatusConflict, Key: "event_already_processed"}},
	{billing.ErrLinkageConflict, HTTPError{Code: http.StatusConflict, Key: "linkage_conflict"}},

	{billing.ErrUnrecognizedEvent, HTTPError{Code: http.StatusUnprocessableEntity, Key: "unrecognized_event"}},
	{billing.ErrUnresolvableCustomer, HTTPError{Code: http.StatusUnprocessableEntity, Key: "unresolvable_customer"}},
	{billing.ErrMissingSubscriptionItem, HTTPError{Code: http.StatusUnprocessableEntity, Key: "missing_subscription_item"}},

	{billing.ErrProviderError, ErrBadGateway},
	{billing.ErrNoCheckoutURL, ErrBadGateway},
}

// toHTTPError maps err onto an HTTPError. Unknown errors become 500.
func toHTTPError(err error) HTTPError {
	var he HTTPError
	if errors.As(err, &he) {
		return he
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return ErrEntityTooLarge
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.http
		}
	}
	return ErrInternalServerError
}
