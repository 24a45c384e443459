package auth

import "errors"

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("token claims are invalid")
	ErrMissingSecret = errors.New("auth signing secret is required")
	ErrNoIdentity    = errors.New("no authenticated identity in context")
)
