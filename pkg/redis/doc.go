// Package redis connects go-redis clients with retries and exposes a
// readiness check. It is used for the subscription read cache.
package redis
