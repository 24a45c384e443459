package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("lookups", func(t *testing.T) {
		t.Parallel()
		s := billing.NewMemoryStore()
		rec := billing.NewSubscription(uuid.New(), now)
		rec.CustomerRef, rec.SubscriptionRef = "cus_a", "sub_a"
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.GetByCustomerRef(ctx, "cus_a")
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, got.UserID)

		got, err = s.GetBySubscriptionRef(ctx, "sub_a")
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, got.UserID)

		_, err = s.GetByCustomerRef(ctx, "")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		t.Parallel()
		s := billing.NewMemoryStore()
		rec := billing.NewSubscription(uuid.New(), now)
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		got.PlanName = billing.PlanPro

		again, err := s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanFree, again.PlanName)
	})

	t.Run("linkage is unique", func(t *testing.T) {
		t.Parallel()
		s := billing.NewMemoryStore()
		a := billing.NewSubscription(uuid.New(), now)
		a.CustomerRef = "cus_a"
		require.NoError(t, s.Save(ctx, a))

		b := billing.NewSubscription(uuid.New(), now)
		b.CustomerRef = "cus_a"
		assert.ErrorIs(t, s.Save(ctx, b), billing.ErrLinkageConflict)
	})

	t.Run("save keeps stored credits used", func(t *testing.T) {
		t.Parallel()
		s := billing.NewMemoryStore()
		rec := billing.NewSubscription(uuid.New(), now)
		require.NoError(t, s.Save(ctx, rec))

		_, err := s.ConsumeCredits(ctx, rec.UserID, 4)
		require.NoError(t, err)

		rec.Status = billing.StatusPastDue
		require.NoError(t, s.Save(ctx, rec))
		assert.Equal(t, int64(4), rec.CreditsUsed)

		got, err := s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
		assert.Equal(t, int64(4), got.CreditsUsed)

		rec.CreditsUsed = 0
		require.NoError(t, s.Replace(ctx, rec))
		got, err = s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Zero(t, got.CreditsUsed)
	})

	t.Run("concurrent consumption never overdraws", func(t *testing.T) {
		t.Parallel()
		s := billing.NewMemoryStore()
		rec := billing.NewSubscription(uuid.New(), now)
		require.NoError(t, s.Save(ctx, rec))

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeCredits(ctx, rec.UserID, 1); err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, ok)
		got, err := s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.CreditsUsed)
	})
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := billing.NewMemoryLedger()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{"subscription.created", "subscription.updated", "subscription.updated"} {
		require.NoError(t, l.Record(ctx, &billing.LedgerEntry{
			EventID:    "evt_" + string(rune('a'+i)),
			EventType:  typ,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	err := l.Record(ctx, &billing.LedgerEntry{EventID: "evt_a"})
	assert.ErrorIs(t, err, billing.ErrDuplicateEvent)

	require.NoError(t, l.MarkFailed(ctx, "evt_b", "boom"))
	require.NoError(t, l.MarkProcessed(ctx, "evt_a", base))
	assert.ErrorIs(t, l.MarkProcessed(ctx, "evt_zz", base), billing.ErrEventNotFound)

	all, err := l.List(ctx, billing.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "evt_c", all[0].EventID)

	updates, err := l.List(ctx, billing.LedgerFilter{EventType: "subscription.updated", Limit: 1})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "evt_c", updates[0].EventID)

	processed := true
	done, err := l.List(ctx, billing.LedgerFilter{Processed: &processed})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "evt_a", done[0].EventID)

	failed, err := l.Get(ctx, "evt_b")
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.LastError)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(2), stats.Unprocessed)
	assert.Equal(t, int64(2), stats.ByType["subscription.updated"])

	n, err := l.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = l.Get(ctx, "evt_a")
	assert.ErrorIs(t, err, billing.ErrEventNotFound)
}
