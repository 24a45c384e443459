// Package stripe adapts the Stripe API to the billing engine.
//
// Gateway wraps stripe-go for customer, checkout and subscription calls.
// Parser verifies the Stripe-Signature header and maps Stripe event names
// onto billing event types:
//
//	customer.subscription.created  -> subscription.created
//	customer.subscription.updated  -> subscription.updated
//	customer.subscription.deleted  -> subscription.deleted
//	invoice.payment_succeeded      -> invoice.payment_succeeded
//	invoice.paid                   -> invoice.payment_succeeded
//	invoice.payment_failed         -> invoice.payment_failed
//
// Other event types keep their Stripe name and are ignored by the engine.
package stripe

import "github.com/dmitrymomot/billsync/pkg/billing"

var (
	_ billing.Gateway       = (*Gateway)(nil)
	_ billing.WebhookParser = (*Parser)(nil)
)
