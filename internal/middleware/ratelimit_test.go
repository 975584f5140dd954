package middleware_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/link-tracker/internal/middleware"
	"github.com/serroba/link-tracker/internal/ratelimit"
	"github.com/serroba/link-tracker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRemoteAddr     = "192.168.1.1:12345"
	testUserAgent      = "TestAgent/1.0"
	testUserAgentShort = "TestAgent"
)

var errMultipartNotSupported = errors.New("multipart not supported in mock")

func newTestAPI() huma.API {
	return humachi.New(chi.NewMux(), huma.DefaultConfig("Test", "1.0.0"))
}

// mockHumaContext implements huma.Context for testing.
type mockHumaContext struct {
	headers         map[string]string
	responseHeaders map[string]string
	query           map[string]string
	host            string
	remoteAddr      string
	written         []byte
	statusCode      int
	method          string
	operation       *huma.Operation
}

func newMockHumaContext() *mockHumaContext {
	return &mockHumaContext{
		headers:         make(map[string]string),
		responseHeaders: make(map[string]string),
		method:          http.MethodGet,
	}
}

func (m *mockHumaContext) Operation() *huma.Operation {
	return m.operation
}
func (m *mockHumaContext) Context() context.Context   { return context.Background() }
func (m *mockHumaContext) TLS() *tls.ConnectionState  { return nil }
func (m *mockHumaContext) Version() huma.ProtoVersion { return huma.ProtoVersion{} }
func (m *mockHumaContext) Method() string             { return m.method }
func (m *mockHumaContext) Host() string               { return m.host }
func (m *mockHumaContext) RemoteAddr() string         { return m.remoteAddr }
func (m *mockHumaContext) URL() url.URL               { return url.URL{} }
func (m *mockHumaContext) Param(_ string) string      { return "" }
func (m *mockHumaContext) Query(name string) string   { return m.query[name] }
func (m *mockHumaContext) Header(name string) string  { return m.headers[name] }
func (m *mockHumaContext) EachHeader(cb func(name, value string)) {
	for name, value := range m.headers {
		cb(name, value)
	}
}
func (m *mockHumaContext) BodyReader() io.Reader { return nil }
func (m *mockHumaContext) GetMultipartForm() (*multipart.Form, error) {
	return nil, errMultipartNotSupported
}
func (m *mockHumaContext) SetReadDeadline(_ time.Time) error  { return nil }
func (m *mockHumaContext) SetStatus(code int)                 { m.statusCode = code }
func (m *mockHumaContext) Status() int                        { return m.statusCode }
func (m *mockHumaContext) AppendHeader(name, value string)    { m.responseHeaders[name] = value }
func (m *mockHumaContext) SetHeader(name, value string)       { m.responseHeaders[name] = value }
func (m *mockHumaContext) BodyWriter() io.Writer              { return &mockBodyWriter{ctx: m} }

type mockBodyWriter struct {
	ctx *mockHumaContext
}

func (w *mockBodyWriter) Write(p []byte) (n int, err error) {
	w.ctx.written = append(w.ctx.written, p...)

	return len(p), nil
}

// capturingStore records the keys the limiter writes to.
type capturingStore struct {
	keys []string
	err  error
}

func (c *capturingStore) Record(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}

	c.keys = append(c.keys, key)

	return 1, nil
}

func (c *capturingStore) last() string {
	if len(c.keys) == 0 {
		return ""
	}

	return c.keys[len(c.keys)-1]
}

type staticResolver []ratelimit.Scope

func (s staticResolver) Resolve(_ huma.Context) []ratelimit.Scope {
	return s
}

func newKeyCapture() (*capturingStore, func(huma.Context, func(huma.Context))) {
	keys := &capturingStore{}
	policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 100, time.Minute).Build()
	mw := middleware.PolicyRateLimiter(newTestAPI(), ratelimit.NewPolicyLimiter(keys, policy),
		staticResolver{ratelimit.ScopeGlobal}, zap.NewNop())

	return keys, mw
}

func TestPolicyRateLimiter_ClientKey(t *testing.T) {
	t.Run("uses IP and User-Agent for client key", func(t *testing.T) {
		keys, mw := newKeyCapture()

		ctx1 := newMockHumaContext()
		ctx1.remoteAddr = testRemoteAddr
		ctx1.headers["User-Agent"] = testUserAgent
		mw(ctx1, func(_ huma.Context) {})

		key1 := keys.last()

		ctx2 := newMockHumaContext()
		ctx2.remoteAddr = testRemoteAddr
		ctx2.headers["User-Agent"] = testUserAgent
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, key1, keys.last(), "same IP and User-Agent should produce same key")

		ctx3 := newMockHumaContext()
		ctx3.remoteAddr = testRemoteAddr
		ctx3.headers["User-Agent"] = "DifferentAgent/2.0"
		mw(ctx3, func(_ huma.Context) {})

		assert.NotEqual(t, key1, keys.last(), "different User-Agent should produce different key")
	})

	t.Run("uses first public IP from X-Forwarded-For", func(t *testing.T) {
		keys, mw := newKeyCapture()

		ctx := newMockHumaContext()
		ctx.remoteAddr = "10.0.0.1:12345"
		ctx.headers["X-Forwarded-For"] = "203.0.113.195, 70.41.3.18, 150.172.238.178"
		ctx.headers["User-Agent"] = testUserAgentShort
		mw(ctx, func(_ huma.Context) {})

		keyWithXFF := keys.last()

		ctx2 := newMockHumaContext()
		ctx2.remoteAddr = "10.0.0.2:54321"
		ctx2.headers["X-Forwarded-For"] = "203.0.113.195"
		ctx2.headers["User-Agent"] = testUserAgentShort
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, keyWithXFF, keys.last())
	})

	t.Run("ignores private forwarded address", func(t *testing.T) {
		keys, mw := newKeyCapture()

		ctx := newMockHumaContext()
		ctx.remoteAddr = "198.51.100.7:1000"
		ctx.headers["X-Forwarded-For"] = "192.168.1.1"
		ctx.headers["User-Agent"] = testUserAgentShort
		mw(ctx, func(_ huma.Context) {})

		spoofed := keys.last()

		ctx2 := newMockHumaContext()
		ctx2.remoteAddr = "198.51.100.7:2000"
		ctx2.headers["User-Agent"] = testUserAgentShort
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, spoofed, keys.last(), "should fall back to the remote address")
	})

	t.Run("accepts remote address without port", func(t *testing.T) {
		keys, mw := newKeyCapture()

		ctx := newMockHumaContext()
		ctx.remoteAddr = "192.168.1.1"
		ctx.headers["User-Agent"] = testUserAgentShort
		mw(ctx, func(_ huma.Context) {})

		key1 := keys.last()

		ctx2 := newMockHumaContext()
		ctx2.remoteAddr = "192.168.1.1:4444"
		ctx2.headers["User-Agent"] = testUserAgentShort
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, key1, keys.last())
	})
}

// hit runs one request from the test client through mw and reports whether it got through.
func hit(mw func(huma.Context, func(huma.Context)), op *huma.Operation) (*mockHumaContext, bool) {
	ctx := newMockHumaContext()
	ctx.remoteAddr = testRemoteAddr
	ctx.headers["User-Agent"] = testUserAgent
	ctx.operation = op

	passed := false

	mw(ctx, func(huma.Context) { passed = true })

	return ctx, passed
}

func newPolicyMiddleware(policy *ratelimit.Policy, resolver ratelimit.ScopeResolver) func(huma.Context, func(huma.Context)) {
	limiter := ratelimit.NewPolicyLimiter(store.NewRateLimitMemoryStore(), policy)

	return middleware.PolicyRateLimiter(newTestAPI(), limiter, resolver, zap.NewNop())
}

func TestPolicyRateLimiter(t *testing.T) {
	t.Run("passes and reports remaining budget", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 10, time.Minute).Build()
		mw := newPolicyMiddleware(policy, staticResolver{ratelimit.ScopeGlobal})

		ctx, passed := hit(mw, nil)

		assert.True(t, passed)
		assert.Equal(t, "10", ctx.responseHeaders[middleware.HeaderLimit])
		assert.Equal(t, "9", ctx.responseHeaders[middleware.HeaderRemaining])
	})

	t.Run("rejects with 429 and retry after", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeWrite, 1, time.Minute).Build()
		mw := newPolicyMiddleware(policy, staticResolver{ratelimit.ScopeWrite})

		_, passed := hit(mw, nil)
		require.True(t, passed)

		ctx, passed := hit(mw, nil)

		assert.False(t, passed)
		assert.Equal(t, http.StatusTooManyRequests, ctx.statusCode)
		assert.Equal(t, "60", ctx.responseHeaders[middleware.HeaderRetryAfter])
		assert.Equal(t, "0", ctx.responseHeaders[middleware.HeaderRemaining])
		assert.Contains(t, string(ctx.written), "rate limit exceeded: write, 2/1")
	})

	t.Run("scopes keep separate budgets", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().
			AddLimit(ratelimit.ScopeRedirect, 5, time.Minute).
			AddLimit(ratelimit.ScopeReport, 2, time.Minute).
			Build()
		limiter := ratelimit.NewPolicyLimiter(store.NewRateLimitMemoryStore(), policy)
		redirects := middleware.PolicyRateLimiter(newTestAPI(), limiter, staticResolver{ratelimit.ScopeRedirect}, zap.NewNop())
		reports := middleware.PolicyRateLimiter(newTestAPI(), limiter, staticResolver{ratelimit.ScopeReport}, zap.NewNop())

		for range 2 {
			_, passed := hit(reports, nil)
			require.True(t, passed)
		}

		_, passed := hit(reports, nil)
		assert.False(t, passed, "third report should be rejected")

		for i := range 5 {
			_, passed := hit(redirects, nil)
			assert.True(t, passed, "redirect %d should pass", i+1)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		keys := &capturingStore{err: errors.New("store error")}
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 10, time.Minute).Build()
		mw := middleware.PolicyRateLimiter(newTestAPI(), ratelimit.NewPolicyLimiter(keys, policy),
			staticResolver{ratelimit.ScopeGlobal}, zap.NewNop())

		ctx, passed := hit(mw, nil)

		assert.False(t, passed)
		assert.Equal(t, http.StatusInternalServerError, ctx.statusCode)
	})

	t.Run("skips operations with limiting disabled", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 1, time.Minute).Build()
		mw := newPolicyMiddleware(policy, staticResolver{ratelimit.ScopeGlobal})
		op := &huma.Operation{
			Path:     "/health",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true}},
		}

		for range 3 {
			ctx, passed := hit(mw, op)
			assert.True(t, passed)
			assert.Empty(t, ctx.responseHeaders)
		}
	})

	t.Run("counts custom limits per route", func(t *testing.T) {
		keys := &capturingStore{}
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 100, time.Minute).Build()
		mw := middleware.PolicyRateLimiter(newTestAPI(), ratelimit.NewPolicyLimiter(keys, policy),
			staticResolver{ratelimit.ScopeGlobal}, zap.NewNop())
		op := &huma.Operation{
			Path: "/api/reports/debug",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
			}},
		}

		_, passed := hit(mw, op)

		assert.True(t, passed)
		require.Len(t, keys.keys, 1, "policy limits are not counted")
		assert.Contains(t, keys.last(), "rl:route:/api/reports/debug:60000:")
	})

	t.Run("rejects past a custom limit", func(t *testing.T) {
		policy := ratelimit.NewPolicyBuilder().AddLimit(ratelimit.ScopeGlobal, 100, time.Minute).Build()
		mw := newPolicyMiddleware(policy, staticResolver{ratelimit.ScopeGlobal})
		op := &huma.Operation{
			Path: "/custom",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{{Window: 90 * time.Second, Max: 2}},
			}},
		}

		for range 2 {
			_, passed := hit(mw, op)
			require.True(t, passed)
		}

		ctx, passed := hit(mw, op)

		assert.False(t, passed)
		assert.Equal(t, http.StatusTooManyRequests, ctx.statusCode)
		assert.Equal(t, "90", ctx.responseHeaders[middleware.HeaderRetryAfter])
	})
}
