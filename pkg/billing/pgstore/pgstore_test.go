package pgstore_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/billing/pgstore"
	"github.com/dmitrymomot/billsync/pkg/logger"
	"github.com/dmitrymomot/billsync/pkg/pg"
)

// setupPool connects to BILLSYNC_TEST_PG_URL and applies migrations.
// Tests are skipped when the variable is unset.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("BILLSYNC_TEST_PG_URL")
	if url == "" {
		t.Skip("BILLSYNC_TEST_PG_URL not set")
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, pg.Config{ConnectionString: url, RetryAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, pgstore.Migrations(), "billsync_test_migrations", logger.Discard()))
	return pool
}

func uniqueRef(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func TestStore_RoundTrip(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	store := pgstore.NewStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	end := now.Add(30 * 24 * time.Hour)

	rec := billing.NewSubscription(uuid.New(), now)
	rec.CustomerRef = uniqueRef("cus")
	rec.SubscriptionRef = uniqueRef("sub")
	rec.Status = billing.StatusActive
	rec.PlanName = billing.PlanEnterprise
	rec.CreditsTotal = billing.Unlimited
	rec.PeriodStart, rec.PeriodEnd = &now, &end
	require.NoError(t, store.Save(ctx, rec))
	t.Cleanup(func() { _ = store.Delete(ctx, rec.UserID) })

	got, err := store.GetBySubscriptionRef(ctx, rec.SubscriptionRef)
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, billing.Unlimited, got.CreditsTotal)
	assert.Equal(t, end, *got.PeriodEnd)

	got.SubscriptionRef = ""
	got.PriceRef = ""
	require.NoError(t, store.Save(ctx, got))

	_, err = store.GetBySubscriptionRef(ctx, rec.SubscriptionRef)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	other := billing.NewSubscription(uuid.New(), now)
	other.CustomerRef = rec.CustomerRef
	assert.ErrorIs(t, store.Save(ctx, other), billing.ErrLinkageConflict)
}

func TestStore_ConsumeCredits(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	store := pgstore.NewStore(pool)

	rec := billing.NewSubscription(uuid.New(), time.Now().UTC())
	require.NoError(t, store.Save(ctx, rec))
	t.Cleanup(func() { _ = store.Delete(ctx, rec.UserID) })

	var ok atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeCredits(ctx, rec.UserID, 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), ok.Load())

	_, err := store.ConsumeCredits(ctx, rec.UserID, 1)
	assert.ErrorIs(t, err, billing.ErrInsufficientCredits)

	_, err = store.ConsumeCredits(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
}

func TestStore_SaveKeepsConsumedCredits(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	store := pgstore.NewStore(pool)

	rec := billing.NewSubscription(uuid.New(), time.Now().UTC())
	require.NoError(t, store.Save(ctx, rec))
	t.Cleanup(func() { _ = store.Delete(ctx, rec.UserID) })

	// rec is now stale: another writer consumed credits after it was loaded.
	_, err := store.ConsumeCredits(ctx, rec.UserID, 4)
	require.NoError(t, err)

	rec.Status = billing.StatusPastDue
	require.NoError(t, store.Save(ctx, rec))
	assert.Equal(t, int64(4), rec.CreditsUsed)

	got, err := store.Get(ctx, rec.UserID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPastDue, got.Status)
	assert.Equal(t, int64(4), got.CreditsUsed)

	rec.CreditsUsed = 0
	require.NoError(t, store.Replace(ctx, rec))
	got, err = store.Get(ctx, rec.UserID)
	require.NoError(t, err)
	assert.Zero(t, got.CreditsUsed)
}

func TestLedger(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	ledger := pgstore.NewLedger(pool)

	id := uniqueRef("evt")
	typ := uniqueRef("test.event")
	entry := &billing.LedgerEntry{EventID: id, EventType: typ, Provider: "test", Payload: []byte(`{"a":1}`)}

	require.NoError(t, ledger.Record(ctx, entry))
	assert.ErrorIs(t, ledger.Record(ctx, entry), billing.ErrDuplicateEvent)

	require.NoError(t, ledger.MarkFailed(ctx, id, "boom"))
	got, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Processed)
	assert.Equal(t, "boom", got.LastError)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))

	require.NoError(t, ledger.MarkProcessed(ctx, id, time.Now().UTC()))
	got, err = ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Empty(t, got.LastError)
	assert.NotNil(t, got.ProcessedAt)

	processed := true
	list, err := ledger.List(ctx, billing.LedgerFilter{EventType: typ, Processed: &processed, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].EventID)

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByType[typ])

	assert.ErrorIs(t, ledger.MarkProcessed(ctx, uniqueRef("evt"), time.Now()), billing.ErrEventNotFound)
	_, err = ledger.Get(ctx, uniqueRef("evt"))
	assert.ErrorIs(t, err, billing.ErrEventNotFound)
}

func TestUsers_FindByEmail(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	users := pgstore.NewUsers(pool, "")

	id := uuid.New()
	email := uniqueRef("user") + "@Example.com"
	_, err := pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`, id, email)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id) })

	u, err := users.FindByEmail(ctx, "  "+email+" ")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}
