package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscription records. UserID is the primary key;
// CustomerRef and SubscriptionRef are unique when set.
type Store interface {
	// Get returns ErrSubscriptionNotFound if the user has no record.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetByCustomerRef(ctx context.Context, customerRef string) (*Subscription, error)
	GetBySubscriptionRef(ctx context.Context, subscriptionRef string) (*Subscription, error)

	// Save inserts the record or updates every field except CreditsUsed, which
	// only ConsumeCredits and Replace change on an existing row. On return
	// sub.CreditsUsed holds the stored value.
	// Returns ErrLinkageConflict if a reference is already owned by another user.
	Save(ctx context.Context, sub *Subscription) error

	// Replace inserts or overwrites the whole record, CreditsUsed included.
	// Used when the allocation is reset.
	Replace(ctx context.Context, sub *Subscription) error

	Delete(ctx context.Context, userID uuid.UUID) error

	// ConsumeCredits atomically adds amount to CreditsUsed unless that would
	// exceed CreditsTotal, in which case it returns ErrInsufficientCredits
	// and leaves the record untouched.
	ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int64) (*Subscription, error)
}

// LedgerEntry is a stored webhook delivery.
type LedgerEntry struct {
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Provider    string     `json:"provider"`
	Payload     []byte     `json:"-"`
	Processed   bool       `json:"processed"`
	LastError   string     `json:"last_error,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// LedgerFilter narrows List results. Zero values match everything.
type LedgerFilter struct {
	EventType string
	Processed *bool
	Limit     int
}

// LedgerStats summarizes the ledger for the debug surface.
type LedgerStats struct {
	Total       int64            `json:"total"`
	Processed   int64            `json:"processed"`
	Unprocessed int64            `json:"unprocessed"`
	ByType      map[string]int64 `json:"by_type"`
}

// Ledger is the idempotency log of webhook deliveries keyed by event id.
type Ledger interface {
	// Record inserts an unprocessed entry.
	// Returns ErrDuplicateEvent if the id already exists.
	Record(ctx context.Context, entry *LedgerEntry) error
	// Get returns ErrEventNotFound for unknown ids.
	Get(ctx context.Context, eventID string) (*LedgerEntry, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, reason string) error
	// List returns entries newest first.
	List(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	Stats(ctx context.Context) (LedgerStats, error)
	// Clear removes every entry and returns how many were deleted.
	Clear(ctx context.Context) (int64, error)
}

// User is the subset of the application user the engine needs.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// UserDirectory looks users up for customer linkage repair.
type UserDirectory interface {
	// FindByEmail returns ErrUserNotFound when no user owns the address.
	FindByEmail(ctx context.Context, email string) (*User, error)
}
