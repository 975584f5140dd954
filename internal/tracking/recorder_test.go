package tracking_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/link-tracker/internal/metrics"
	"github.com/serroba/link-tracker/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRequest(ip, ua string, query url.Values) tracking.Request {
	header := http.Header{}
	header.Set("User-Agent", ua)
	header.Set("Referer", "https://news.example.com/post")

	return tracking.Request{RemoteAddr: ip + ":4000", Header: header, Query: query}
}

func newRecorder(log tracking.ClickLog, store *mockLinks, m *metrics.Metrics) *tracking.Recorder {
	return tracking.NewRecorder(log, store, tracking.NewClassifier(), tracking.DefaultBreakerConfig(), m, zap.NewNop())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "db52b03acde7443b841b2a16b4f4f5e5", tracking.Fingerprint("1.2.3.4", "agent"))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", tracking.Fingerprint("", ""))
	assert.NotEqual(t, tracking.Fingerprint("1.2.3.4", "a"), tracking.Fingerprint("1.2.3.5", "a"))
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

	t.Run("writes row and updates counters", func(t *testing.T) {
		log := &mockClickLog{}
		store := newMockLinks()
		r := newRecorder(log, store, metrics.New())
		query := url.Values{"utm_source": {"newsletter"}, "utm_term": {""}}

		click, err := r.Record(ctx, 7, newTestRequest("203.0.113.5", uaChromeWindows, query), at)

		require.NoError(t, err)
		require.Len(t, log.clicks, 1)
		assert.Equal(t, int64(7), click.LinkID)
		assert.Equal(t, "203.0.113.5", click.IPAddress)
		assert.Equal(t, tracking.Fingerprint("203.0.113.5", uaChromeWindows), click.VisitorID)
		assert.Equal(t, "https://news.example.com/post", click.Referrer)
		assert.Equal(t, "Desktop", click.DeviceType)
		assert.Equal(t, "Chrome", click.Browser)
		assert.Equal(t, "Windows", click.OS)
		assert.Equal(t, "newsletter", click.UTMSource)
		assert.Empty(t, click.UTMTerm)
		assert.Empty(t, click.UTMMedium)
		assert.Equal(t, at, click.ClickedAt)
		assert.Equal(t, int64(1), store.clicks[7])
		assert.Equal(t, int64(1), store.visitors[7])
		assert.Equal(t, at, store.lastClicked[7])
	})

	t.Run("unique visitors follow distinct fingerprints", func(t *testing.T) {
		log := &mockClickLog{}
		store := newMockLinks()
		r := newRecorder(log, store, metrics.New())

		_, _ = r.Record(ctx, 1, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)
		_, _ = r.Record(ctx, 1, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)
		_, _ = r.Record(ctx, 1, newTestRequest("203.0.113.6", uaChromeWindows, nil), at)

		assert.Equal(t, int64(3), store.clicks[1])
		assert.Equal(t, int64(2), store.visitors[1])
	})

	t.Run("counter still increments when insert fails", func(t *testing.T) {
		log := &mockClickLog{insertErr: errors.New("table missing")}
		store := newMockLinks()
		m := metrics.New()
		r := newRecorder(log, store, m)

		_, err := r.Record(ctx, 4, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)

		require.NoError(t, err)
		assert.Empty(t, log.clicks)
		assert.Equal(t, int64(1), store.clicks[4])
		assert.InDelta(t, 1.0, testutil.ToFloat64(m.ClickFailuresTotal.WithLabelValues(metrics.StageInsert)), 0)
	})

	t.Run("skips visitor update when count fails", func(t *testing.T) {
		log := &mockClickLog{countErr: errors.New("timeout")}
		store := newMockLinks()
		r := newRecorder(log, store, metrics.New())

		_, err := r.Record(ctx, 4, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)

		require.NoError(t, err)
		assert.Equal(t, int64(1), store.clicks[4])
		_, set := store.visitors[4]
		assert.False(t, set)
	})

	t.Run("returns counter error", func(t *testing.T) {
		store := newMockLinks()
		store.incrementErr = errors.New("db down")
		r := newRecorder(&mockClickLog{}, store, metrics.New())

		_, err := r.Record(ctx, 4, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)

		assert.ErrorIs(t, err, store.incrementErr)
	})

	t.Run("breaker opens after consecutive insert failures", func(t *testing.T) {
		log := &mockClickLog{insertErr: errors.New("db down")}
		store := newMockLinks()
		m := metrics.New()
		r := tracking.NewRecorder(log, store, tracking.NewClassifier(), tracking.BreakerConfig{
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
		}, m, zap.NewNop())

		for range 3 {
			_, err := r.Record(ctx, 9, newTestRequest("203.0.113.5", uaChromeWindows, nil), at)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(3), store.clicks[9])
		assert.InDelta(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("click-log")), 0)
	})
}
