package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Policy maps scopes to the limits that apply to them. A request must satisfy every limit of
// every scope it resolves to.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// PolicyBuilder assembles a Policy.
type PolicyBuilder struct {
	policy *Policy
}

// NewPolicyBuilder starts an empty policy.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{policy: &Policy{Limits: make(map[Scope][]LimitConfig)}}
}

// AddLimit adds a limit of maxHits per window to scope.
func (b *PolicyBuilder) AddLimit(scope Scope, maxHits int64, window time.Duration) *PolicyBuilder {
	b.policy.Limits[scope] = append(b.policy.Limits[scope], LimitConfig{Window: window, Max: maxHits})

	return b
}

// Build returns the assembled policy.
func (b *PolicyBuilder) Build() *Policy {
	return b.policy
}

// DefaultPolicy is applied to operations without their own limits. Redirect traffic has its
// own budget; report queries scan the click log and get the tightest one.
func DefaultPolicy() *Policy {
	return NewPolicyBuilder().
		AddLimit(ScopeGlobal, 1200, time.Minute).
		AddLimit(ScopeRead, 600, time.Minute).
		AddLimit(ScopeWrite, 60, time.Minute).
		AddLimit(ScopeWrite, 1000, time.Hour).
		AddLimit(ScopeRedirect, 1000, time.Minute).
		AddLimit(ScopeReport, 120, time.Minute).
		Build()
}

// Result is the outcome of a policy check. Bucket names the scope or route of Decision, the
// exceeded limit when the request is rejected and the one closest to exhaustion otherwise. An
// empty Bucket means no limit applied.
type Result struct {
	Bucket string
	Decision
}

// Allowed reports whether every limit held.
func (r Result) Allowed() bool {
	return r.Bucket == "" || r.Decision.Allowed()
}

// PolicyLimiter counts a client's requests against the limits of a Policy.
type PolicyLimiter struct {
	store  Store
	policy *Policy
}

func NewPolicyLimiter(store Store, policy *Policy) *PolicyLimiter {
	return &PolicyLimiter{
		store:  store,
		policy: policy,
	}
}

// Check counts the request in every limit of scopes, stopping at the first limit exceeded.
// Scopes without limits are skipped.
func (l *PolicyLimiter) Check(ctx context.Context, client string, scopes []Scope) (Result, error) {
	var tightest Result

	for _, scope := range scopes {
		res, err := l.CheckLimits(ctx, client, string(scope), l.policy.Limits[scope])
		if err != nil || !res.Allowed() {
			return res, err
		}

		tightest = tighter(tightest, res)
	}

	return tightest, nil
}

// CheckLimits counts the request against limits under bucket. Operations with their own limits
// use their route as the bucket.
func (l *PolicyLimiter) CheckLimits(
	ctx context.Context,
	client, bucket string,
	limits []LimitConfig,
) (Result, error) {
	var tightest Result

	for _, limit := range limits {
		decision, err := record(ctx, l.store, key(client, bucket, limit.Window), limit)
		if err != nil {
			return Result{}, fmt.Errorf("rate limit %s: %w", bucket, err)
		}

		res := Result{Bucket: bucket, Decision: decision}
		if !res.Allowed() {
			return res, nil
		}

		tightest = tighter(tightest, res)
	}

	return tightest, nil
}

func tighter(a, b Result) Result {
	if a.Bucket == "" || b.Remaining() < a.Remaining() {
		return b
	}

	return a
}

// key separates counters per bucket and window so limits never share hits.
func key(client, bucket string, window time.Duration) string {
	return fmt.Sprintf("rl:%s:%d:%s", bucket, window.Milliseconds(), client)
}
