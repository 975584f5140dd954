package ratelimit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Scope groups requests that share a budget.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeRead     Scope = "read"
	ScopeWrite    Scope = "write"
	ScopeRedirect Scope = "redirect"
	ScopeReport   Scope = "report"
)

// MetadataKey is the operation Metadata key holding an EndpointConfig.
const MetadataKey = "rateLimit"

// EndpointConfig tunes rate limiting for one operation.
type EndpointConfig struct {
	// Scope replaces the method scope. Ignored when Limits is set.
	Scope Scope
	// Limits are counted per route instead of the policy limits.
	Limits []LimitConfig
	// Disabled skips rate limiting.
	Disabled bool
}

// ConfigOf returns the EndpointConfig attached to op.
func ConfigOf(op *huma.Operation) (EndpointConfig, bool) {
	if op == nil {
		return EndpointConfig{}, false
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)

	return cfg, ok
}

// ScopeResolver determines which scopes a request counts against.
type ScopeResolver interface {
	Resolve(ctx huma.Context) []Scope
}

// MethodScopes counts safe methods as reads and everything else as writes, always within the
// global scope.
func MethodScopes(method string) []Scope {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return []Scope{ScopeGlobal, ScopeRead}
	default:
		return []Scope{ScopeGlobal, ScopeWrite}
	}
}

// MethodScopeResolver resolves scopes from the HTTP method alone.
type MethodScopeResolver struct{}

func (MethodScopeResolver) Resolve(ctx huma.Context) []Scope {
	return MethodScopes(ctx.Method())
}

// OperationScopeResolver uses the scope configured on the operation and falls back to the
// method. Redirects count only against ScopeRedirect, outside the global scope.
type OperationScopeResolver struct{}

func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{}
}

func (r *OperationScopeResolver) Resolve(ctx huma.Context) []Scope {
	cfg, ok := ConfigOf(ctx.Operation())

	switch {
	case !ok || cfg.Scope == "":
		return MethodScopes(ctx.Method())
	case cfg.Scope == ScopeRedirect:
		return []Scope{ScopeRedirect}
	default:
		return []Scope{ScopeGlobal, cfg.Scope}
	}
}
