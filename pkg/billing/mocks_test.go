package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/logger"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, params billing.CustomerParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) RetrieveCustomer(ctx context.Context, customerRef string) (*billing.ProviderCustomer, error) {
	args := m.Called(ctx, customerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderCustomer), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockGateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockGateway) UpdateSubscriptionItem(ctx context.Context, subscriptionRef, itemRef, priceRef string) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionRef, itemRef, priceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionRef, cancel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockGateway) CancelImmediately(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockGateway) ListSubscriptions(ctx context.Context, customerRef, status string) ([]billing.ProviderSubscription, error) {
	args := m.Called(ctx, customerRef, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ProviderSubscription), args.Error(1)
}

type mockParser struct {
	mock.Mock
}

func (m *mockParser) Provider() string        { return "test" }
func (m *mockParser) SignatureHeader() string { return "Test-Signature" }

func (m *mockParser) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

func (m *mockParser) DecodeEvent(payload []byte) (*billing.Event, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) FindByEmail(ctx context.Context, email string) (*billing.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.User), args.Error(1)
}

type recorded struct {
	name    string
	outcome string
}

type fakeRecorder struct {
	webhooks []recorded
	actions  []recorded
}

func (r *fakeRecorder) ObserveWebhook(eventType, outcome string, _ time.Duration) {
	r.webhooks = append(r.webhooks, recorded{name: eventType, outcome: outcome})
}

func (r *fakeRecorder) ObserveAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.actions = append(r.actions, recorded{name: action, outcome: outcome})
}

var (
	now      = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p1Start  = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p1End    = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	p2Start  = p1End
	p2End    = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	catalog  = billing.PriceCatalog{"price_startup": billing.PlanStartup, "price_pro": billing.PlanPro, "price_enterprise": billing.PlanEnterprise}
	testUser = uuid.MustParse("7b1f3c3e-2f4a-4d6b-9a51-0d4b8f6f2a10")
)

type fixture struct {
	engine   *billing.Engine
	store    *billing.MemoryStore
	ledger   *billing.MemoryLedger
	gateway  *mockGateway
	parser   *mockParser
	users    *mockUsers
	recorder *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    billing.NewMemoryStore(),
		ledger:   billing.NewMemoryLedger(),
		gateway:  &mockGateway{},
		parser:   &mockParser{},
		users:    &mockUsers{},
		recorder: &fakeRecorder{},
	}
	f.engine = billing.NewEngine(f.store, f.ledger, f.gateway, f.parser,
		billing.WithLogger(logger.Discard()),
		billing.WithClock(func() time.Time { return now }),
		billing.WithCatalog(catalog),
		billing.WithUserDirectory(f.users),
		billing.WithRecorder(f.recorder),
	)
	t.Cleanup(func() {
		f.gateway.AssertExpectations(t)
		f.users.AssertExpectations(t)
	})
	return f
}

// seed stores a record and returns a copy of it.
func (f *fixture) seed(t *testing.T, mutate func(*billing.Subscription)) *billing.Subscription {
	t.Helper()
	rec := billing.NewSubscription(testUser, now.Add(-24*time.Hour))
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec
}

func (f *fixture) record(t *testing.T) *billing.Subscription {
	t.Helper()
	rec, err := f.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	return rec
}

func ptr[T any](v T) *T { return &v }

func subscriptionEvent(id string, typ billing.EventType, ps billing.ProviderSubscription) *billing.Event {
	return &billing.Event{
		ID:           id,
		Type:         typ,
		Provider:     "test",
		Subscription: &ps,
		Payload:      []byte(`{"id":"` + id + `"}`),
	}
}

func invoiceEvent(id string, typ billing.EventType, subscriptionRef string) *billing.Event {
	return &billing.Event{
		ID:       id,
		Type:     typ,
		Provider: "test",
		Invoice:  &billing.Invoice{ID: "in_1", CustomerRef: "cus_1", SubscriptionRef: subscriptionRef},
		Payload:  []byte(`{"id":"` + id + `"}`),
	}
}

func proSubscription() billing.ProviderSubscription {
	return billing.ProviderSubscription{
		ID:          "sub_1",
		CustomerRef: "cus_1",
		Status:      billing.ProviderStatusActive,
		PriceRef:    "price_pro",
		ItemRef:     "si_1",
		PeriodStart: ptr(p1Start),
		PeriodEnd:   ptr(p1End),
		CreatedAt:   p1Start,
	}
}
