package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/link-tracker/internal/middleware"
	"github.com/serroba/link-tracker/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOutput struct {
	Body string `json:"body"`
}

func setupTestAPI(t *testing.T) (*chi.Mux, huma.API) {
	t.Helper()

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.RequestMeta(api))

	return router, api
}

func captureRequest(t *testing.T, req *http.Request) tracking.Request {
	t.Helper()

	router, api := setupTestAPI(t)
	captured := make(chan tracking.Request, 1)

	huma.Get(api, "/test", func(ctx context.Context, _ *struct{}) (*testOutput, error) {
		r, ok := tracking.RequestFromContext(ctx)
		if ok {
			captured <- r
		}

		return &testOutput{Body: "ok"}, nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, captured, 1, "request should be in context")

	return <-captured
}

func TestRequestMeta(t *testing.T) {
	t.Run("captures user-agent and referrer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("User-Agent", "TestAgent/1.0")
		req.Header.Set("Referer", "https://example.com")

		got := captureRequest(t, req)

		assert.Equal(t, "TestAgent/1.0", got.UserAgent())
		assert.Equal(t, "https://example.com", got.Referrer())
	})

	t.Run("captures query parameters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test?utm_source=news&utm_medium=email", nil)

		got := captureRequest(t, req)

		assert.Equal(t, "news", got.UTM("utm_source"))
		assert.Equal(t, "email", got.UTM("utm_medium"))
	})

	t.Run("captures remote address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "203.0.113.9:4321"

		got := captureRequest(t, req)

		assert.Equal(t, "203.0.113.9:4321", got.RemoteAddr)
		assert.Equal(t, "203.0.113.9", tracking.ClientIP(got))
	})

	t.Run("prefers public forwarded address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")

		got := captureRequest(t, req)

		assert.Equal(t, "198.51.100.1", tracking.ClientIP(got))
	})

	t.Run("without context value", func(t *testing.T) {
		_, ok := tracking.RequestFromContext(context.Background())

		assert.False(t, ok)
	})
}
