package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/pg"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists subscription records in the subscriptions table.
type Store struct {
	db DBTX
}

// NewStore creates a Store.
func NewStore(db DBTX) *Store {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Store{db: db}
}

const subscriptionColumns = `user_id, customer_ref, subscription_ref, status, plan_name, price_ref,
	period_start, period_end, credits_total, credits_used, credits_reset_at, created_at, updated_at`

type subscriptionRow struct {
	UserID          uuid.UUID  `db:"user_id"`
	CustomerRef     *string    `db:"customer_ref"`
	SubscriptionRef *string    `db:"subscription_ref"`
	Status          string     `db:"status"`
	PlanName        string     `db:"plan_name"`
	PriceRef        *string    `db:"price_ref"`
	PeriodStart     *time.Time `db:"period_start"`
	PeriodEnd       *time.Time `db:"period_end"`
	CreditsTotal    *int64     `db:"credits_total"`
	CreditsUsed     int64      `db:"credits_used"`
	CreditsResetAt  *time.Time `db:"credits_reset_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r subscriptionRow) toDomain() *billing.Subscription {
	s := &billing.Subscription{
		UserID:          r.UserID,
		CustomerRef:     deref(r.CustomerRef),
		SubscriptionRef: deref(r.SubscriptionRef),
		Status:          billing.Status(r.Status),
		PlanName:        r.PlanName,
		PriceRef:        deref(r.PriceRef),
		PeriodStart:     utcPtr(r.PeriodStart),
		PeriodEnd:       utcPtr(r.PeriodEnd),
		CreditsTotal:    billing.Unlimited,
		CreditsUsed:     r.CreditsUsed,
		CreditsResetAt:  utcPtr(r.CreditsResetAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.CreditsTotal != nil {
		s.CreditsTotal = *r.CreditsTotal
	}
	return s
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
}

func (s *Store) GetByCustomerRef(ctx context.Context, customerRef string) (*billing.Subscription, error) {
	if customerRef == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_ref = $1`, customerRef)
}

func (s *Store) GetBySubscriptionRef(ctx context.Context, subscriptionRef string) (*billing.Subscription, error) {
	if subscriptionRef == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_ref = $1`, subscriptionRef)
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*billing.Subscription, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query subscription: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[subscriptionRow])
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("pgstore: scan subscription: %w", err)
	}
	return row.toDomain(), nil
}

// Save upserts the record. On conflict credits_used is left alone so a
// concurrent ConsumeCredits is never overwritten; the stored value is read
// back into sub. Empty references are stored as NULL so the unique
// constraints only bind linked records.
func (s *Store) Save(ctx context.Context, sub *billing.Subscription) error {
	return s.upsert(ctx, sub, `credits_used = subscriptions.credits_used`)
}

// Replace upserts every column, credits_used included.
func (s *Store) Replace(ctx context.Context, sub *billing.Subscription) error {
	return s.upsert(ctx, sub, `credits_used = EXCLUDED.credits_used`)
}

func (s *Store) upsert(ctx context.Context, sub *billing.Subscription, creditsUsed string) error {
	var total *int64
	if !sub.HasUnlimitedCredits() {
		total = &sub.CreditsTotal
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			customer_ref     = EXCLUDED.customer_ref,
			subscription_ref = EXCLUDED.subscription_ref,
			status           = EXCLUDED.status,
			plan_name        = EXCLUDED.plan_name,
			price_ref        = EXCLUDED.price_ref,
			period_start     = EXCLUDED.period_start,
			period_end       = EXCLUDED.period_end,
			credits_total    = EXCLUDED.credits_total,
			`+creditsUsed+`,
			credits_reset_at = EXCLUDED.credits_reset_at,
			updated_at       = EXCLUDED.updated_at
		RETURNING credits_used`,
		sub.UserID, sub.CustomerRef, sub.SubscriptionRef, string(sub.Status), sub.PlanName, sub.PriceRef,
		sub.PeriodStart, sub.PeriodEnd, total, sub.CreditsUsed, sub.CreditsResetAt, sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.CreditsUsed)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(billing.ErrLinkageConflict, err)
		}
		return fmt.Errorf("pgstore: save subscription: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("pgstore: delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// ConsumeCredits increments credits_used in a single conditional UPDATE so
// concurrent requests can never overdraw the allocation.
func (s *Store) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int64) (*billing.Subscription, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE subscriptions
		SET credits_used = credits_used + $2, updated_at = now()
		WHERE user_id = $1
		  AND (credits_total IS NULL OR credits_used + $2 <= credits_total)
		RETURNING `+subscriptionColumns,
		userID, amount,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: consume credits: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[subscriptionRow])
	if err == nil {
		return row.toDomain(), nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("pgstore: consume credits: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("pgstore: consume credits: %w", err)
	}
	if !exists {
		return nil, billing.ErrSubscriptionNotFound
	}
	return nil, billing.ErrInsufficientCredits
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
