package store

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many recorded requests pass between sweeps of idle keys.
const sweepEvery = 256

type rateWindow struct {
	hits   []time.Time
	window time.Duration
}

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store for a single
// server instance.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	requests map[string]*rateWindow
	now      func() time.Time
	recorded int
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return NewRateLimitMemoryStoreWithClock(time.Now)
}

// NewRateLimitMemoryStoreWithClock creates an in-memory rate limit store reading time from now.
func NewRateLimitMemoryStoreWithClock(now func() time.Time) *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string]*rateWindow),
		now:      now,
	}
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.requests[key]
	if !ok {
		w = &rateWindow{window: window}
		s.requests[key] = w
	}

	w.window = window
	w.hits = append(prune(w.hits, now.Add(-window)), now)

	s.recorded++
	if s.recorded%sweepEvery == 0 {
		s.sweep(now)
	}

	return int64(len(w.hits)), nil
}

// Keys returns the number of keys currently tracked.
func (s *RateLimitMemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

// sweep drops keys whose every hit has left its window.
func (s *RateLimitMemoryStore) sweep(now time.Time) {
	for key, w := range s.requests {
		w.hits = prune(w.hits, now.Add(-w.window))
		if len(w.hits) == 0 {
			delete(s.requests, key)
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	valid := hits[:0]

	for _, ts := range hits {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	return valid
}
