// Package pgstore implements billing.Store, billing.Ledger and
// billing.UserDirectory on PostgreSQL through pgx/v5.
//
// Schema migrations are embedded and applied with pg.Migrate:
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.MigrationsTable, log); err != nil {
//		return err
//	}
//	store := pgstore.NewStore(pool)
//	ledger := pgstore.NewLedger(pool)
//
// Unlimited credit allocations are stored as NULL credits_total. Unique
// violations on customer_ref or subscription_ref surface as
// billing.ErrLinkageConflict, on event_id as billing.ErrDuplicateEvent.
package pgstore

import "github.com/dmitrymomot/billsync/pkg/billing"

var (
	_ billing.Store         = (*Store)(nil)
	_ billing.Ledger        = (*Ledger)(nil)
	_ billing.UserDirectory = (*Users)(nil)
)
