// Package auth authenticates API callers. The host application issues
// HS256 JWTs whose subject is the user id; Middleware verifies them and
// puts the resulting billing.User into the request context.
//
//	v, _ := auth.NewJWTVerifier(cfg)
//	r.With(auth.Middleware(v)).Get("/api/billing/subscription", h)
package auth
