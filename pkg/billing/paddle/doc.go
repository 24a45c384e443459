// Package paddle adapts Paddle Billing to the billing engine.
//
// Gateway wraps the official paddle-go-sdk. Checkout sessions are draft
// transactions whose checkout URL opens Paddle's hosted checkout.
//
// Parser verifies the Paddle-Signature header and maps notifications:
//
//	subscription.created, subscription.activated         -> subscription.created
//	subscription.updated, .past_due, .resumed, .paused   -> subscription.updated
//	subscription.canceled                                -> subscription.deleted
//	transaction.completed                                -> invoice.payment_succeeded
//	transaction.payment_failed                           -> invoice.payment_failed
//
// Both "canceled" and "cancelled" normalize to billing.StatusCanceled.
package paddle

import "github.com/dmitrymomot/billsync/pkg/billing"

var (
	_ billing.Gateway       = (*Gateway)(nil)
	_ billing.WebhookParser = (*Parser)(nil)
)
