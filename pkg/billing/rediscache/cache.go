package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/logger"
)

// DefaultTTL bounds how long a cached record may be served.
const DefaultTTL = 5 * time.Minute

// Store is a read-through cache in front of a billing.Store.
// Only lookups by user id are cached; every write invalidates the entry.
// Redis failures are logged and the call falls through to the wrapped store.
type Store struct {
	next   billing.Store
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// Option configures Store.
type Option func(*Store)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps next with a Redis cache.
func New(next billing.Store, client redis.UniversalClient, opts ...Option) *Store {
	if next == nil {
		panic("rediscache: store is required")
	}
	if client == nil {
		panic("rediscache: redis client is required")
	}
	s := &Store{
		next:   next,
		client: client,
		ttl:    DefaultTTL,
		prefix: "billsync:subscription:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("rediscache"))
	return s
}

func (s *Store) key(userID uuid.UUID) string {
	return s.prefix + userID.String()
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	switch {
	case err == nil:
		var sub billing.Subscription
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
		s.logger.WarnContext(ctx, "dropping undecodable cache entry", logger.UserID(userID))
		s.invalidate(ctx, userID)
	case !errors.Is(err, redis.Nil):
		s.logger.WarnContext(ctx, "cache read failed", logger.UserID(userID), logger.Error(err))
	}

	sub, err := s.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, sub)
	return sub, nil
}

func (s *Store) GetByCustomerRef(ctx context.Context, customerRef string) (*billing.Subscription, error) {
	return s.next.GetByCustomerRef(ctx, customerRef)
}

func (s *Store) GetBySubscriptionRef(ctx context.Context, subscriptionRef string) (*billing.Subscription, error) {
	return s.next.GetBySubscriptionRef(ctx, subscriptionRef)
}

func (s *Store) Save(ctx context.Context, sub *billing.Subscription) error {
	defer s.invalidate(ctx, sub.UserID)
	return s.next.Save(ctx, sub)
}

func (s *Store) Replace(ctx context.Context, sub *billing.Subscription) error {
	defer s.invalidate(ctx, sub.UserID)
	return s.next.Replace(ctx, sub)
}

func (s *Store) Delete(ctx context.Context, userID uuid.UUID) error {
	defer s.invalidate(ctx, userID)
	return s.next.Delete(ctx, userID)
}

func (s *Store) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int64) (*billing.Subscription, error) {
	defer s.invalidate(ctx, userID)
	return s.next.ConsumeCredits(ctx, userID, amount)
}

func (s *Store) store(ctx context.Context, sub *billing.Subscription) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.key(sub.UserID), raw, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", logger.UserID(sub.UserID), logger.Error(err))
	}
}

func (s *Store) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", logger.UserID(userID), logger.Error(err))
	}
}

var _ billing.Store = (*Store)(nil)
