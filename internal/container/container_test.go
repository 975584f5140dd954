package container_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	analyticsstore "github.com/serroba/link-tracker/internal/analytics/store"
	"github.com/serroba/link-tracker/internal/auth"
	"github.com/serroba/link-tracker/internal/container"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() *container.Options {
	return &container.Options{
		Port:         8888,
		LinkPrefix:   "go",
		CodeLength:   6,
		Database:     container.DatabaseMemory,
		ClickLog:     container.ClickLogSQL,
		ReportSecret: "container-secret",
		LogFormat:    string(container.LogFormatJSON),
		DateFormat:   "January 2, 2006",
	}
}

func newInjector(t *testing.T, opts *container.Options) *do.Injector {
	t.Helper()

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.MetricsPackage(injector)
	container.StorePackage(injector)
	container.RedisPackage(injector)
	container.RepositoryPackage(injector)
	container.LinksPackage(injector)
	container.MessagingPackage(injector)
	container.TrackingPackage(injector)
	container.ConsumerGroupPackage(injector)
	container.AnalyticsPackage(injector)
	container.RateLimitPackage(injector)
	container.AuthPackage(injector)
	container.HTTPPackage(injector)

	t.Cleanup(func() { _ = injector.Shutdown() })

	return injector
}

func serve(t *testing.T, injector *do.Injector, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func seedLink(t *testing.T, injector *do.Injector, code string) *links.Link {
	t.Helper()

	storage := do.MustInvoke[*container.Storage](injector)
	link := &links.Link{DestinationURL: "https://example.com", ShortCode: links.Code(code), Status: links.StatusPublish}
	require.NoError(t, storage.Links.Create(context.Background(), link))

	return link
}

func TestOptions_PublicBaseURL(t *testing.T) {
	opts := testOptions()
	assert.Equal(t, "http://localhost:8888", opts.PublicBaseURL())

	opts.BaseURL = "https://sho.rt"
	assert.Equal(t, "https://sho.rt", opts.PublicBaseURL())
}

func TestHTTPPackage(t *testing.T) {
	t.Run("serves redirects and records clicks", func(t *testing.T) {
		injector := newInjector(t, testOptions())
		link := seedLink(t, injector, "abc")

		w := serve(t, injector, httptest.NewRequest(http.MethodGet, "/go/abc", nil))

		assert.Equal(t, http.StatusFound, w.Code)

		stored, err := do.MustInvoke[*container.Storage](injector).Links.GetByID(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.TotalClicks)
	})

	t.Run("guards reports with the report token", func(t *testing.T) {
		opts := testOptions()
		injector := newInjector(t, opts)

		w := serve(t, injector, httptest.NewRequest(http.MethodGet, "/api/reports/summary", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		tokens, err := auth.NewTokens(opts.ReportSecret)
		require.NoError(t, err)
		token, err := tokens.Issue("test", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/reports/summary", nil)
		req.Header.Set(auth.HeaderName, token)

		w = serve(t, injector, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects report calls without a secret", func(t *testing.T) {
		opts := testOptions()
		opts.ReportSecret = ""
		injector := newInjector(t, opts)

		w := serve(t, injector, httptest.NewRequest(http.MethodGet, "/api/links", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("exposes health and metrics", func(t *testing.T) {
		injector := newInjector(t, testOptions())

		w := serve(t, injector, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = serve(t, injector, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "linktracker_")
	})
}

func TestStorePackage(t *testing.T) {
	t.Run("click log none swaps in the no-op log", func(t *testing.T) {
		opts := testOptions()
		opts.ClickLog = container.ClickLogNone
		injector := newInjector(t, opts)

		storage := do.MustInvoke[*container.Storage](injector)

		assert.IsType(t, &analyticsstore.Noop{}, storage.Clicks)
		assert.IsType(t, &analyticsstore.Noop{}, storage.Analytics)
	})

	t.Run("opens sqlite", func(t *testing.T) {
		opts := testOptions()
		opts.Database = container.DatabaseSQLite
		opts.DatabaseURL = ":memory:"
		injector := newInjector(t, opts)

		storage, err := do.Invoke[*container.Storage](injector)

		require.NoError(t, err)
		require.NotNil(t, storage.Health)
		assert.NoError(t, storage.Health.Ping(context.Background()))
	})

	t.Run("rejects unknown database", func(t *testing.T) {
		opts := testOptions()
		opts.Database = "oracle"
		injector := newInjector(t, opts)

		_, err := do.Invoke[*container.Storage](injector)

		assert.Error(t, err)
	})
}

func TestAsyncTracking(t *testing.T) {
	opts := testOptions()
	opts.AsyncTracking = true
	injector := newInjector(t, opts)
	link := seedLink(t, injector, "async")

	group := do.MustInvoke[*messaging.ConsumerGroup](injector)
	require.NoError(t, group.Start(context.Background()))

	w := serve(t, injector, httptest.NewRequest(http.MethodGet, "/go/async", nil))
	require.Equal(t, http.StatusFound, w.Code)

	storage := do.MustInvoke[*container.Storage](injector)

	assert.Eventually(t, func() bool {
		stored, err := storage.Links.GetByID(context.Background(), link.ID)

		return err == nil && stored.TotalClicks == 1
	}, 2*time.Second, 10*time.Millisecond)
}
