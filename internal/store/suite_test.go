package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/store"
	"github.com/serroba/link-tracker/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullStore interface {
	links.Repository
	tracking.ClickLog
	analytics.Store
	store.Migrator
}

var base = time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

func newLink(code, campaign string, status links.Status) *links.Link {
	return &links.Link{
		Title:          "Link " + code,
		DestinationURL: "https://example.com/" + code,
		ShortCode:      links.Code(code),
		Campaign:       campaign,
		Status:         status,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func newClickAt(linkID int64, visitor string, at time.Time) *tracking.Click {
	return &tracking.Click{
		LinkID:     linkID,
		VisitorID:  visitor,
		IPAddress:  "203.0.113.7",
		UserAgent:  "agent",
		DeviceType: tracking.DeviceDesktop,
		Browser:    "Chrome",
		OS:         "Windows",
		ClickedAt:  at,
	}
}

// runStoreSuite exercises the behaviour every store implementation shares.
func runStoreSuite(t *testing.T, open func(t *testing.T) fullStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("creates and gets link", func(t *testing.T) {
		s := open(t)
		link := newLink("abc123", "spring", links.StatusPublish)

		require.NoError(t, s.Create(ctx, link))
		require.NotZero(t, link.ID)

		got, err := s.GetByID(ctx, link.ID)

		require.NoError(t, err)
		assert.Equal(t, link.Title, got.Title)
		assert.Equal(t, link.DestinationURL, got.DestinationURL)
		assert.Equal(t, links.Code("abc123"), got.ShortCode)
		assert.Equal(t, "spring", got.Campaign)
		assert.Equal(t, links.StatusPublish, got.Status)
		assert.WithinDuration(t, base, got.CreatedAt, time.Second)
		assert.Nil(t, got.LastClickedAt)
	})

	t.Run("get unknown link returns ErrNotFound", func(t *testing.T) {
		s := open(t)

		_, err := s.GetByID(ctx, 999)

		assert.ErrorIs(t, err, links.ErrNotFound)
	})

	t.Run("updates and deletes link", func(t *testing.T) {
		s := open(t)
		link := newLink("upd", "", links.StatusPublish)
		require.NoError(t, s.Create(ctx, link))

		link.Title = "Renamed"
		link.Status = links.StatusDraft
		require.NoError(t, s.Update(ctx, link))

		got, err := s.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, links.StatusDraft, got.Status)

		require.NoError(t, s.Delete(ctx, link.ID))
		assert.ErrorIs(t, s.Delete(ctx, link.ID), links.ErrNotFound)
		assert.ErrorIs(t, s.Update(ctx, link), links.ErrNotFound)
	})

	t.Run("rejects duplicate short code", func(t *testing.T) {
		s := open(t)
		first := newLink("dup", "", links.StatusPublish)
		require.NoError(t, s.Create(ctx, first))

		assert.ErrorIs(t, s.Create(ctx, newLink("dup", "", links.StatusDraft)), links.ErrCodeTaken)

		other := newLink("free", "", links.StatusPublish)
		require.NoError(t, s.Create(ctx, other))

		other.ShortCode = "dup"
		assert.ErrorIs(t, s.Update(ctx, other), links.ErrCodeTaken)

		require.NoError(t, s.Update(ctx, first))
	})

	t.Run("finds only published links by code", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, newLink("draft1", "", links.StatusDraft)))
		published := newLink("pub1", "", links.StatusPublish)
		require.NoError(t, s.Create(ctx, published))

		_, err := s.FindPublishedByCode(ctx, "draft1")
		assert.ErrorIs(t, err, links.ErrNotFound)

		got, err := s.FindPublishedByCode(ctx, "pub1")
		require.NoError(t, err)
		assert.Equal(t, published.ID, got.ID)
	})

	t.Run("code exists excludes own link", func(t *testing.T) {
		s := open(t)
		link := newLink("mine", "", links.StatusDraft)
		require.NoError(t, s.Create(ctx, link))

		exists, err := s.CodeExists(ctx, "mine", 0)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.CodeExists(ctx, "mine", link.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = s.CodeExists(ctx, "other", 0)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("lists with filters and counts campaigns", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, newLink("a", "spring", links.StatusPublish)))
		require.NoError(t, s.Create(ctx, newLink("b", "spring", links.StatusDraft)))
		require.NoError(t, s.Create(ctx, newLink("c", "autumn", links.StatusPublish)))
		require.NoError(t, s.Create(ctx, newLink("d", "", links.StatusPublish)))

		all, err := s.List(ctx, links.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.Equal(t, links.Code("a"), all[0].ShortCode)

		spring, err := s.List(ctx, links.Filter{Campaign: "spring"})
		require.NoError(t, err)
		assert.Len(t, spring, 2)

		published, err := s.List(ctx, links.Filter{Campaign: "spring", Status: links.StatusPublish})
		require.NoError(t, err)
		require.Len(t, published, 1)
		assert.Equal(t, links.Code("a"), published[0].ShortCode)

		n, err := s.CountPublished(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		campaigns, err := s.Campaigns(ctx)
		require.NoError(t, err)
		assert.Equal(t, []links.CampaignCount{
			{Campaign: "autumn", Links: 1},
			{Campaign: "spring", Links: 2},
		}, campaigns)
	})

	t.Run("maintains and resets counters", func(t *testing.T) {
		s := open(t)
		link := newLink("cnt", "", links.StatusPublish)
		require.NoError(t, s.Create(ctx, link))
		require.NoError(t, s.Create(ctx, newLink("other", "", links.StatusDraft)))

		require.NoError(t, s.IncrementClicks(ctx, link.ID, base))
		require.NoError(t, s.IncrementClicks(ctx, link.ID, base.Add(time.Hour)))
		require.NoError(t, s.SetUniqueVisitors(ctx, link.ID, 1))

		got, err := s.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.TotalClicks)
		assert.Equal(t, int64(1), got.UniqueVisitors)
		require.NotNil(t, got.LastClickedAt)
		assert.WithinDuration(t, base.Add(time.Hour), *got.LastClickedAt, time.Second)

		assert.ErrorIs(t, s.IncrementClicks(ctx, 999, base), links.ErrNotFound)

		reset, err := s.ResetCounters(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), reset)

		got, err = s.GetByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Zero(t, got.TotalClicks)
		assert.Zero(t, got.UniqueVisitors)
		assert.Nil(t, got.LastClickedAt)
	})

	t.Run("records clicks and counts distinct visitors", func(t *testing.T) {
		s := open(t)

		for _, visitor := range []string{"v1", "v1", "v2"} {
			click := newClickAt(7, visitor, base)
			require.NoError(t, s.Insert(ctx, click))
			assert.NotZero(t, click.ID)
		}

		require.NoError(t, s.Insert(ctx, newClickAt(8, "v3", base)))

		n, err := s.CountDistinctVisitors(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		total, err := s.CountAllClicks(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
	})

	t.Run("counts and groups clicks within range", func(t *testing.T) {
		s := open(t)
		day1 := base
		day2 := base.AddDate(0, 0, 1)
		outside := base.AddDate(0, 0, -10)

		clicks := []*tracking.Click{
			newClickAt(1, "v1", day1),
			newClickAt(1, "v2", day1),
			newClickAt(2, "v1", day2),
			newClickAt(2, "v9", outside),
		}
		clicks[1].Browser = "Firefox"
		clicks[1].Referrer = "https://news.example.com/a"
		clicks[2].Referrer = "https://news.example.com/a"
		clicks[0].Referrer = "direct"
		clicks[2].DeviceType = ""

		for _, c := range clicks {
			require.NoError(t, s.Insert(ctx, c))
		}

		r := analytics.Range{Since: day1.Add(-time.Hour), Until: day2.Add(time.Hour)}

		n, err := s.CountClicks(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		visitors, err := s.CountVisitors(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, int64(2), visitors)

		unbounded, err := s.CountClicks(ctx, analytics.Range{Since: outside.Add(-time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, int64(4), unbounded)

		browsers, err := s.GroupClicks(ctx, analytics.DimensionBrowser, r, 10)
		require.NoError(t, err)
		assert.Equal(t, []analytics.Bucket{{Label: "Chrome", Clicks: 2}, {Label: "Firefox", Clicks: 1}}, browsers)

		limited, err := s.GroupClicks(ctx, analytics.DimensionBrowser, r, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		devices, err := s.GroupClicks(ctx, analytics.DimensionDevice, r, 0)
		require.NoError(t, err)
		assert.Equal(t, []analytics.Bucket{{Label: tracking.DeviceDesktop, Clicks: 2}}, devices)

		_, err = s.GroupClicks(ctx, analytics.Dimension("ip_address"), r, 0)
		assert.Error(t, err)

		referrers, err := s.GroupReferrers(ctx, r, 10)
		require.NoError(t, err)
		assert.Equal(t, []analytics.Bucket{
			{Label: "https://news.example.com/a", Clicks: 2},
			{Label: "direct", Clicks: 1},
		}, referrers)

		daily, err := s.DailyClicks(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, []analytics.DailyCount{
			{Day: "2024-05-10", Clicks: 2},
			{Day: "2024-05-11", Clicks: 1},
		}, daily)
	})

	t.Run("returns recent clicks newest first", func(t *testing.T) {
		s := open(t)

		for i := range 4 {
			require.NoError(t, s.Insert(ctx, newClickAt(1, "v", base.Add(time.Duration(i)*time.Minute))))
		}

		recent, err := s.RecentClicks(ctx, 2)

		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.WithinDuration(t, base.Add(3*time.Minute), recent[0].ClickedAt, time.Second)
		assert.WithinDuration(t, base.Add(2*time.Minute), recent[1].ClickedAt, time.Second)
		assert.Equal(t, "203.0.113.7", recent[0].IPAddress)
	})

	t.Run("truncates and drops click log", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Insert(ctx, newClickAt(1, "v", base)))

		require.NoError(t, s.TruncateClickLog(ctx))

		total, err := s.CountAllClicks(ctx)
		require.NoError(t, err)
		assert.Zero(t, total)

		exists, err := s.ClickLogExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.DropClickLog(ctx))

		exists, err = s.ClickLogExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Error(t, s.Insert(ctx, newClickAt(1, "v", base)))

		require.NoError(t, s.Migrate(ctx))

		exists, err = s.ClickLogExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("uninstall removes everything", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, newLink("gone", "", links.StatusPublish)))

		require.NoError(t, s.Uninstall(ctx))

		exists, err := s.ClickLogExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, s.Migrate(ctx))

		all, err := s.List(ctx, links.Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
