// Package billing keeps a locally stored subscription record consistent with
// an external billing provider and derives the user's credit allocation from
// it.
//
// The provider is the source of truth for subscription state. It notifies the
// application through webhooks which may arrive late, out of order or more
// than once. The Engine consumes them exactly once per event id, using the
// Ledger as the idempotency log, and mutates the Store through a dispatch
// table keyed by the normalized EventType.
//
// # Components
//
//   - Subscription: the per-user record (status, plan, billing period, credits).
//   - Store: persistence for records, with in-memory, Postgres and cached
//     Redis implementations (see the pgstore and rediscache subpackages).
//   - Ledger: the webhook event log keyed by event id.
//   - Policy: the total, case-insensitive plan to allocation table.
//   - Gateway and WebhookParser: the provider capability, implemented for
//     Stripe and Paddle in the stripe and paddle subpackages.
//   - Engine: webhook processing, linkage repair (Sync) and user actions.
//
// # Credits
//
// Credits used reset to zero when the billing period start advances, when
// the plan name changes, or when no record existed before. Credits total is
// always recomputed from the plan policy. A deleted subscription is a hard
// downgrade to FREE.
//
// # Usage
//
//	engine := billing.NewEngine(store, ledger, gateway, parser,
//		billing.WithLogger(log),
//		billing.WithCatalog(billing.PriceCatalog{"price_pro": billing.PlanPro}),
//		billing.WithUserDirectory(users),
//	)
//
//	res, err := engine.HandleWebhook(ctx, body, r.Header.Get(engine.SignatureHeader()))
//
// User actions (SwitchPlan, Cancel, CancelImmediately, Reactivate) talk to the
// provider synchronously and run a lazy Sync when the local record lost its
// subscription linkage.
package billing
