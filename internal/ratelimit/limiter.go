// Package ratelimit counts requests per client in sliding windows. Redirects, reports and the
// management API are limited separately; see DefaultPolicy.
package ratelimit

import (
	"context"
	"time"
)

// Store records a hit under key and returns how many hits fall inside the window ending now,
// the new one included. Expired hits are pruned by the store.
type Store interface {
	Record(ctx context.Context, key string, window time.Duration) (count int64, err error)
}

// LimitConfig allows at most Max hits per sliding Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// Decision is the outcome of counting one hit against a limit.
type Decision struct {
	Limit LimitConfig
	Count int64
}

// Allowed reports whether the hit stayed within the limit.
func (d Decision) Allowed() bool {
	return d.Count <= d.Limit.Max
}

// Remaining is the number of hits left in the current window.
func (d Decision) Remaining() int64 {
	return max(d.Limit.Max-d.Count, 0)
}

// Limiter counts a hit for key and decides whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// SlidingWindowLimiter applies a single limit to every key.
type SlidingWindowLimiter struct {
	store Store
	limit LimitConfig
}

func NewSlidingWindowLimiter(store Store, maxHits int64, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		store: store,
		limit: LimitConfig{Window: window, Max: maxHits},
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return record(ctx, l.store, key, l.limit)
}

func record(ctx context.Context, store Store, key string, limit LimitConfig) (Decision, error) {
	count, err := store.Record(ctx, key, limit.Window)
	if err != nil {
		return Decision{}, err
	}

	return Decision{Limit: limit, Count: count}, nil
}
