package billing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) GetByCustomerRef(_ context.Context, customerRef string) (*Subscription, error) {
	return s.find(func(sub *Subscription) bool { return customerRef != "" && sub.CustomerRef == customerRef })
}

func (s *MemoryStore) GetBySubscriptionRef(_ context.Context, subscriptionRef string) (*Subscription, error) {
	return s.find(func(sub *Subscription) bool { return subscriptionRef != "" && sub.SubscriptionRef == subscriptionRef })
}

func (s *MemoryStore) find(match func(*Subscription) bool) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if match(sub) {
			return sub.Clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	return s.put(sub, true)
}

func (s *MemoryStore) Replace(_ context.Context, sub *Subscription) error {
	return s.put(sub, false)
}

func (s *MemoryStore) put(sub *Subscription, keepCredits bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.subs {
		if id == sub.UserID {
			continue
		}
		if sub.CustomerRef != "" && other.CustomerRef == sub.CustomerRef {
			return ErrLinkageConflict
		}
		if sub.SubscriptionRef != "" && other.SubscriptionRef == sub.SubscriptionRef {
			return ErrLinkageConflict
		}
	}

	stored := sub.Clone()
	if prev, ok := s.subs[sub.UserID]; ok && keepCredits {
		stored.CreditsUsed = prev.CreditsUsed
	}
	s.subs[sub.UserID] = stored
	sub.CreditsUsed = stored.CreditsUsed
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[userID]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, userID)
	return nil
}

func (s *MemoryStore) ConsumeCredits(_ context.Context, userID uuid.UUID, amount int64) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if !sub.HasUnlimitedCredits() && sub.CreditsUsed+amount > sub.CreditsTotal {
		return nil, ErrInsufficientCredits
	}
	sub.CreditsUsed += amount
	sub.UpdatedAt = time.Now().UTC()
	return sub.Clone(), nil
}

// MemoryLedger is an in-process Ledger for tests and local development.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*LedgerEntry
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]*LedgerEntry)}
}

func (l *MemoryLedger) Record(_ context.Context, entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.EventID]; ok {
		return ErrDuplicateEvent
	}
	e := *entry
	e.Payload = slices.Clone(entry.Payload)
	l.entries[entry.EventID] = &e
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, eventID string) (*LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	c := *e
	return &c, nil
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, eventID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[eventID]
	if !ok {
		return ErrEventNotFound
	}
	e.Processed = true
	e.ProcessedAt = &at
	e.LastError = ""
	return nil
}

func (l *MemoryLedger) MarkFailed(_ context.Context, eventID string, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[eventID]
	if !ok {
		return ErrEventNotFound
	}
	e.LastError = reason
	return nil
}

func (l *MemoryLedger) List(_ context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Processed != nil && e.Processed != *filter.Processed {
			continue
		}
		out = append(out, *e)
	}

	slices.SortFunc(out, func(a, b LedgerEntry) int {
		return b.ReceivedAt.Compare(a.ReceivedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) Stats(_ context.Context) (LedgerStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := LedgerStats{ByType: make(map[string]int64)}
	for _, e := range l.entries {
		stats.Total++
		if e.Processed {
			stats.Processed++
		} else {
			stats.Unprocessed++
		}
		stats.ByType[e.EventType]++
	}
	return stats, nil
}

func (l *MemoryLedger) Clear(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := int64(len(l.entries))
	l.entries = make(map[string]*LedgerEntry)
	return n, nil
}
