package billing

import "strings"

const (
	PlanFree       = "FREE"
	PlanStartup    = "STARTUP"
	PlanPro        = "PRO"
	PlanEnterprise = "ENTERPRISE"
)

const (
	mib int64 = 1 << 20
	gib int64 = 1 << 30
)

// Policy is the allocation a plan grants. Any field may be Unlimited.
type Policy struct {
	Name            string `json:"name"`
	Credits         int64  `json:"credits"`
	MaxFiles        int64  `json:"max_files"`
	MaxStorageBytes int64  `json:"max_storage_bytes"`
	MaxPosts        int64  `json:"max_posts"`
}

var policies = map[string]Policy{
	PlanFree: {
		Name:            PlanFree,
		Credits:         10,
		MaxFiles:        10,
		MaxStorageBytes: 100 * mib,
		MaxPosts:        10,
	},
	PlanStartup: {
		Name:            PlanStartup,
		Credits:         500,
		MaxFiles:        100,
		MaxStorageBytes: gib,
		MaxPosts:        100,
	},
	PlanPro: {
		Name:            PlanPro,
		Credits:         2000,
		MaxFiles:        1000,
		MaxStorageBytes: 10 * gib,
		MaxPosts:        Unlimited,
	},
	PlanEnterprise: {
		Name:            PlanEnterprise,
		Credits:         Unlimited,
		MaxFiles:        Unlimited,
		MaxStorageBytes: Unlimited,
		MaxPosts:        Unlimited,
	},
}

// PolicyFor returns the policy for a plan name. Lookup is case-insensitive
// and unknown or empty names fall back to FREE, so it never fails.
func PolicyFor(name string) Policy {
	if p, ok := policies[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return p
	}
	return policies[PlanFree]
}

// CanonicalPlan returns the canonical plan name for name, FREE when unknown.
func CanonicalPlan(name string) string {
	return PolicyFor(name).Name
}

// Plans lists the policy table ordered from the smallest allocation up.
func Plans() []Policy {
	return []Policy{
		policies[PlanFree],
		policies[PlanStartup],
		policies[PlanPro],
		policies[PlanEnterprise],
	}
}

// PriceCatalog maps provider price references to plan names.
type PriceCatalog map[string]string

// PlanFor resolves the plan for a price. The catalog wins, then the
// provider-supplied hint (price lookup key or metadata), then FREE.
func (c PriceCatalog) PlanFor(priceRef, hint string) string {
	if name, ok := c[priceRef]; ok && priceRef != "" {
		return CanonicalPlan(name)
	}
	return CanonicalPlan(hint)
}

// Offers reports whether priceRef may be used for checkout or plan switch.
// An empty catalog accepts every price and leaves validation to the provider.
func (c PriceCatalog) Offers(priceRef string) bool {
	if len(c) == 0 {
		return true
	}
	_, ok := c[priceRef]
	return ok
}
