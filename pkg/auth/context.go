package auth

import (
	"context"

	"github.com/dmitrymomot/billsync/pkg/billing"
)

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var identityContextKey = &contextKey{name: "identity"}

// SetIdentity stores the authenticated user in ctx.
func SetIdentity(ctx context.Context, u billing.User) context.Context {
	return context.WithValue(ctx, identityContextKey, u)
}

// GetIdentity returns the authenticated user from ctx.
func GetIdentity(ctx context.Context) (billing.User, bool) {
	u, ok := ctx.Value(identityContextKey).(billing.User)
	return u, ok
}

// MustIdentity is GetIdentity for handlers mounted behind Middleware.
func MustIdentity(ctx context.Context) (billing.User, error) {
	u, ok := GetIdentity(ctx)
	if !ok {
		return billing.User{}, ErrNoIdentity
	}
	return u, nil
}
