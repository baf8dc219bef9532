// Package ratelimit enforces a fixed-window per-tenant request cap.
//
// The window is a single counter with a TTL: first request creates it at 1
// with TTL = window, later requests increment it without touching the TTL,
// and the reset happens only through expiry. Around the window boundary the
// cap is a soft bound: concurrently in-flight requests may each pass the read
// before any of them increments. That trade-off buys one round trip and O(1)
// storage per tenant.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

// ErrLimited means the tenant used up the current window. Retryable once the
// window expires.
var ErrLimited = errors.New("ratelimit: too many requests")

type Limiter struct {
	kv store.Store
}

func New(kv store.Store) *Limiter {
	return &Limiter{kv: kv}
}

func key(tenantKey string) string { return "ratelimit:" + tenantKey }

// Allow consumes one request for the tenant or returns ErrLimited. Store
// failures propagate so the caller can fail closed.
func (l *Limiter) Allow(ctx context.Context, tenantKey string, maxRequests int, window time.Duration) error {
	k := key(tenantKey)

	raw, err := l.kv.Get(ctx, k)
	switch {
	case err == nil:
		n, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return convErr
		}
		if n >= int64(maxRequests) {
			return ErrLimited
		}
		return l.increment(ctx, k, window)

	case errors.Is(err, store.ErrNotFound):
		created, err := l.kv.SetNX(ctx, k, "1", window)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
		// lost the creation race to a concurrent request
		return l.increment(ctx, k, window)

	default:
		return err
	}
}

func (l *Limiter) increment(ctx context.Context, k string, window time.Duration) error {
	n, err := l.kv.Incr(ctx, k)
	if err != nil {
		return err
	}
	// The key can expire between the read and the increment, in which case
	// Incr recreated it without a TTL. Re-arm the window so the counter can
	// still reset.
	if n == 1 {
		return l.kv.Expire(ctx, k, window)
	}
	return nil
}
