package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the local mirror of a user's billing state and credit
// allocation. There is exactly one record per user.
type Subscription struct {
	UserID          uuid.UUID  `json:"user_id"`
	CustomerRef     string     `json:"customer_ref,omitempty"`
	SubscriptionRef string     `json:"subscription_ref,omitempty"`
	Status          Status     `json:"status"`
	PlanName        string     `json:"plan_name"`
	PriceRef        string     `json:"price_ref,omitempty"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	CreditsTotal    int64      `json:"credits_total"` // Unlimited when uncapped
	CreditsUsed     int64      `json:"credits_used"`
	CreditsResetAt  *time.Time `json:"credits_reset_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewSubscription returns the default record for a user that has not
// subscribed yet: INACTIVE on the FREE plan.
func NewSubscription(userID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		UserID:       userID,
		Status:       StatusInactive,
		PlanName:     PlanFree,
		CreditsTotal: PolicyFor(PlanFree).Credits,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsEntitled reports whether the record grants paid access at now.
func (s *Subscription) IsEntitled(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.PeriodEnd == nil || s.PeriodEnd.After(now)
}

// HasUnlimitedCredits reports whether the allocation is uncapped.
func (s *Subscription) HasUnlimitedCredits() bool {
	return s.CreditsTotal == Unlimited
}

// CreditsRemaining returns the unspent allocation, or Unlimited.
func (s *Subscription) CreditsRemaining() int64 {
	if s.HasUnlimitedCredits() {
		return Unlimited
	}
	return max(s.CreditsTotal-s.CreditsUsed, 0)
}

// Policy returns the allocation table entry for the record's plan.
func (s *Subscription) Policy() Policy {
	return PolicyFor(s.PlanName)
}

// Clone returns a deep copy so callers can't mutate stored state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.PeriodStart = cloneTime(s.PeriodStart)
	c.PeriodEnd = cloneTime(s.PeriodEnd)
	c.CreditsResetAt = cloneTime(s.CreditsResetAt)
	return &c
}

// applyProvider copies provider state into the record and recomputes the
// allocation. Credits used are reset when the billing period advanced, the
// plan changed, or there was no prior record. It reports whether a reset
// happened so the caller persists CreditsUsed.
func (s *Subscription) applyProvider(ps *ProviderSubscription, plan string, existed bool) bool {
	plan = CanonicalPlan(plan)
	reset := !existed || s.PlanName != plan || periodAdvanced(s.PeriodStart, ps.PeriodStart)

	s.SubscriptionRef = ps.ID
	if ps.CustomerRef != "" {
		s.CustomerRef = ps.CustomerRef
	}
	s.Status = MapProviderStatus(ps.Status)
	s.PlanName = plan
	s.PriceRef = ps.PriceRef
	s.PeriodStart = cloneTime(ps.PeriodStart)
	s.PeriodEnd = cloneTime(ps.PeriodEnd)
	s.CreditsTotal = PolicyFor(plan).Credits

	if reset {
		s.CreditsUsed = 0
		s.CreditsResetAt = cloneTime(ps.PeriodEnd)
	}
	return reset
}

// downgrade applies the hard cancellation: FREE plan, linkage cleared,
// period closed at now and the FREE allocation restored.
func (s *Subscription) downgrade(now time.Time) {
	s.Status = StatusCanceled
	s.PlanName = PlanFree
	s.PriceRef = ""
	s.SubscriptionRef = ""
	s.PeriodEnd = &now
	s.CreditsTotal = PolicyFor(PlanFree).Credits
	s.CreditsUsed = 0
	s.CreditsResetAt = nil
}

// isDowngraded reports whether downgrade has already been applied.
func (s *Subscription) isDowngraded() bool {
	return s.Status == StatusCanceled && s.SubscriptionRef == "" && s.PlanName == PlanFree
}

func periodAdvanced(prev, next *time.Time) bool {
	if next == nil {
		return false
	}
	return prev == nil || next.After(*prev)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
