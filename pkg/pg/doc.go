// Package pg bootstraps PostgreSQL access on pgx/v5.
//
// Connect opens a *pgxpool.Pool with retries, Migrate applies goose
// migrations from an fs.FS (usually an embed.FS owned by the store package),
// and Healthcheck adapts the pool to a readiness check. The error helpers
// classify *pgconn.PgError values so stores can map constraint violations
// onto domain errors:
//
//	if pg.IsDuplicateKeyError(err) {
//		return billing.ErrDuplicateEvent
//	}
package pg
