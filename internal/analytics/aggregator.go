package analytics

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sort"
	"time"

	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/metrics"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

const (
	// DefaultTopLimit bounds top-N reports and the browser and OS breakdowns.
	DefaultTopLimit = 10
	sampleSize      = 5
	timestampLayout = "2006-01-02 15:04:05"
	seriesDayLayout = "Jan 2"
)

// Illustrative distributions shown while a breakdown has no data.
var placeholders = map[Dimension][]Bucket{
	DimensionDevice: {
		{Label: tracking.DeviceDesktop, Clicks: 45},
		{Label: tracking.DeviceMobile, Clicks: 35},
		{Label: tracking.DeviceTablet, Clicks: 20},
	},
	DimensionBrowser: {
		{Label: "Chrome", Clicks: 60},
		{Label: "Firefox", Clicks: 20},
		{Label: "Safari", Clicks: 15},
		{Label: "Edge", Clicks: 5},
	},
	DimensionOS: {
		{Label: "Windows", Clicks: 50},
		{Label: "Mac OS", Clicks: 25},
		{Label: "Android", Clicks: 15},
		{Label: "iOS", Clicks: 10},
	},
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithRand replaces the source used to simulate a time series without a click log.
func WithRand(rng *rand.Rand) Option {
	return func(a *Aggregator) { a.rng = rng }
}

// Aggregator builds dashboard reports from the click log and the per-link counters.
type Aggregator struct {
	clicks  Store
	links   links.Repository
	urls    links.URLBuilder
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	rng     *rand.Rand
}

// NewAggregator creates an aggregator.
func NewAggregator(
	clicks Store,
	linkStore links.Repository,
	urls links.URLBuilder,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Aggregator {
	a := &Aggregator{
		clicks:  clicks,
		links:   linkStore,
		urls:    urls,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // chart simulation
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Summary returns clicks, unique visitors, active links and the average conversion rate.
// Without a click log, or when the window holds no clicks, totals come from the counters of
// published links and ignore the window.
func (a *Aggregator) Summary(ctx context.Context, q Query) (*Summary, error) {
	defer a.metrics.ObserveReport("summary", time.Now())

	r, err := q.Range(a.now())
	if err != nil {
		return nil, err
	}

	exists, err := a.clicks.ClickLogExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	summary := &Summary{}

	if exists {
		if summary.TotalClicks, err = a.clicks.CountClicks(ctx, r); err != nil {
			return nil, fmt.Errorf("count clicks: %w", err)
		}

		if summary.UniqueVisitors, err = a.clicks.CountVisitors(ctx, r); err != nil {
			return nil, fmt.Errorf("count visitors: %w", err)
		}
	}

	if !exists || summary.TotalClicks == 0 {
		published, err := a.published(ctx)
		if err != nil {
			return nil, err
		}

		summary.TotalClicks, summary.UniqueVisitors = 0, 0
		for _, l := range published {
			summary.TotalClicks += l.TotalClicks
			summary.UniqueVisitors += l.UniqueVisitors
		}

		summary.FromCounters = true
	}

	if summary.ActiveLinks, err = a.links.CountPublished(ctx); err != nil {
		return nil, fmt.Errorf("count published links: %w", err)
	}

	summary.AvgConversion = links.ConversionRate(summary.TotalClicks, summary.UniqueVisitors)
	summary.AvgConversionDisplay = links.FormatRate(summary.AvgConversion)

	return summary, nil
}

// Breakdown groups clicks in the window by dim. Devices are unlimited, browsers and OS are
// capped at DefaultTopLimit. Without a log or rows the fixed placeholder is returned.
func (a *Aggregator) Breakdown(ctx context.Context, dim Dimension, q Query) (*Breakdown, error) {
	defer a.metrics.ObserveReport(string(dim), time.Now())

	if !dim.Valid() {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	r, err := q.Range(a.now())
	if err != nil {
		return nil, err
	}

	exists, err := a.clicks.ClickLogExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if exists {
		limit := DefaultTopLimit
		if dim == DimensionDevice {
			limit = 0
		}

		items, err := a.clicks.GroupClicks(ctx, dim, r, limit)
		if err != nil {
			return nil, fmt.Errorf("group clicks by %s: %w", dim, err)
		}

		if len(items) > 0 {
			return &Breakdown{Dimension: dim, Items: items}, nil
		}
	}

	return &Breakdown{
		Dimension:   dim,
		Items:       append([]Bucket(nil), placeholders[dim]...),
		Placeholder: true,
	}, nil
}

// ClicksOverTime returns one zero-initialized point per day of the query overlaid with the
// logged daily counts. Without a log, the counter totals of published links are spread
// uniformly at random over the days.
func (a *Aggregator) ClicksOverTime(ctx context.Context, q Query) (*Series, error) {
	defer a.metrics.ObserveReport("clicks_over_time", time.Now())

	now := a.now()

	days, err := q.CalendarDays(now)
	if err != nil {
		return nil, err
	}

	r, err := q.Range(now)
	if err != nil {
		return nil, err
	}

	series := &Series{Points: make([]SeriesPoint, len(days))}
	index := make(map[string]int, len(days))

	for i, d := range days {
		key := d.Format(DateLayout)
		series.Points[i] = SeriesPoint{Date: key, FormattedDate: d.Format(seriesDayLayout)}
		index[key] = i
	}

	exists, err := a.clicks.ClickLogExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if exists {
		counts, err := a.clicks.DailyClicks(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("count daily clicks: %w", err)
		}

		for _, c := range counts {
			if i, ok := index[c.Day]; ok {
				series.Points[i].Clicks = c.Clicks
			}
		}

		return series, nil
	}

	published, err := a.published(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, l := range published {
		total += l.TotalClicks
	}

	if len(series.Points) > 0 {
		for range total {
			series.Points[a.rng.IntN(len(series.Points))].Clicks++
		}
	}

	series.Simulated = true

	return series, nil
}

// TopLinks ranks published links by lifetime clicks. The query window does not apply.
func (a *Aggregator) TopLinks(ctx context.Context, limit int) ([]TopLink, error) {
	defer a.metrics.ObserveReport("top_links", time.Now())

	if limit <= 0 {
		limit = DefaultTopLimit
	}

	published, err := a.published(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]TopLink, 0, len(published))
	for _, l := range published {
		result = append(result, TopLink{
			ID:             l.ID,
			Title:          l.Title,
			DestinationURL: l.DestinationURL,
			ShortURL:       a.urls.ShortURL(l.ShortCode),
			TotalClicks:    l.TotalClicks,
			UniqueVisitors: l.UniqueVisitors,
			ConversionRate: l.ConversionRate(),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TotalClicks > result[j].TotalClicks
	})

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// TopReferrers groups clicks in the window by raw referrer and annotates each with its host.
// Without a click log the list is empty.
func (a *Aggregator) TopReferrers(ctx context.Context, q Query, limit int) ([]Referrer, error) {
	defer a.metrics.ObserveReport("top_referrers", time.Now())

	if limit <= 0 {
		limit = DefaultTopLimit
	}

	r, err := q.Range(a.now())
	if err != nil {
		return nil, err
	}

	exists, err := a.clicks.ClickLogExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if !exists {
		return []Referrer{}, nil
	}

	groups, err := a.clicks.GroupReferrers(ctx, r, limit)
	if err != nil {
		return nil, fmt.Errorf("group referrers: %w", err)
	}

	result := make([]Referrer, 0, len(groups))
	for _, g := range groups {
		result = append(result, Referrer{
			Referrer: g.Label,
			Domain:   referrerDomain(g.Label),
			Clicks:   g.Clicks,
		})
	}

	return result, nil
}

// DataCount reports how many click rows exist overall and in the window next to the counters.
func (a *Aggregator) DataCount(ctx context.Context, q Query) (*DataCount, error) {
	q = q.Normalize()

	r, err := q.Range(a.now())
	if err != nil {
		return nil, err
	}

	count := &DataCount{DateRange: q}

	if count.TrackedLinks, err = a.links.CountPublished(ctx); err != nil {
		return nil, fmt.Errorf("count published links: %w", err)
	}

	if count.ClickLogExists, err = a.clicks.ClickLogExists(ctx); err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if count.ClickLogExists {
		if count.TotalClickRecords, err = a.clicks.CountAllClicks(ctx); err != nil {
			return nil, fmt.Errorf("count click records: %w", err)
		}

		if count.FilteredClickRecords, err = a.clicks.CountClicks(ctx, r); err != nil {
			return nil, fmt.Errorf("count clicks in range: %w", err)
		}
	}

	if count.Counters, err = a.CounterStats(ctx); err != nil {
		return nil, err
	}

	return count, nil
}

// DebugRange shows the server clock and the most recent click rows.
func (a *Aggregator) DebugRange(ctx context.Context, q Query) (*DebugInfo, error) {
	now := a.now().UTC()
	info := &DebugInfo{
		CurrentTime:   now.Format(timestampLayout),
		Timezone:      now.Location().String(),
		Parameters:    q.Normalize(),
		SampleRecords: []ClickSample{},
	}

	var err error

	if info.ClickLogExists, err = a.clicks.ClickLogExists(ctx); err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if info.ClickLogExists {
		if info.TotalClickRecords, err = a.clicks.CountAllClicks(ctx); err != nil {
			return nil, fmt.Errorf("count click records: %w", err)
		}

		if info.TotalClickRecords > 0 {
			recent, err := a.clicks.RecentClicks(ctx, sampleSize)
			if err != nil {
				return nil, fmt.Errorf("load recent clicks: %w", err)
			}

			for _, c := range recent {
				info.SampleRecords = append(info.SampleRecords, sampleOf(c))
			}
		}
	}

	if info.Counters, err = a.CounterStats(ctx); err != nil {
		return nil, err
	}

	return info, nil
}

// CounterStats summarizes the counters of published links.
func (a *Aggregator) CounterStats(ctx context.Context) (CounterStats, error) {
	published, err := a.published(ctx)
	if err != nil {
		return CounterStats{}, err
	}

	stats := CounterStats{
		TotalLinks: int64(len(published)),
		Samples:    []CounterSample{},
	}

	for _, l := range published {
		if l.TotalClicks > 0 {
			stats.LinksWithClicks++
			stats.TotalClicks += l.TotalClicks
		}

		if l.UniqueVisitors > 0 {
			stats.LinksWithVisitors++
			stats.TotalVisitors += l.UniqueVisitors
		}

		if len(stats.Samples) < sampleSize {
			stats.Samples = append(stats.Samples, CounterSample{
				ID:             l.ID,
				Title:          l.Title,
				TotalClicks:    l.TotalClicks,
				UniqueVisitors: l.UniqueVisitors,
			})
		}
	}

	return stats, nil
}

// Reset zeroes every link's counters and empties the click log when it exists.
func (a *Aggregator) Reset(ctx context.Context) (*ResetResult, error) {
	reset, err := a.links.ResetCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset counters: %w", err)
	}

	exists, err := a.clicks.ClickLogExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check click log: %w", err)
	}

	if exists {
		if err := a.clicks.TruncateClickLog(ctx); err != nil {
			return nil, fmt.Errorf("truncate click log: %w", err)
		}
	}

	a.logger.Info("statistics reset",
		zap.Int64("links_reset", reset),
		zap.Bool("click_log_cleared", exists),
	)

	return &ResetResult{
		Message:         "Statistics have been reset successfully.",
		LinksReset:      reset,
		ClickLogCleared: exists,
	}, nil
}

func (a *Aggregator) published(ctx context.Context) ([]links.Link, error) {
	published, err := a.links.List(ctx, links.Filter{Status: links.StatusPublish})
	if err != nil {
		return nil, fmt.Errorf("list published links: %w", err)
	}

	return published, nil
}

func referrerDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	return u.Hostname()
}

func sampleOf(c tracking.Click) ClickSample {
	return ClickSample{
		ID:          c.ID,
		LinkID:      c.LinkID,
		VisitorID:   c.VisitorID,
		IPAddress:   c.IPAddress,
		UserAgent:   c.UserAgent,
		Referrer:    c.Referrer,
		DeviceType:  c.DeviceType,
		Browser:     c.Browser,
		OS:          c.OS,
		ClickedAt:   c.ClickedAt,
		UTMSource:   c.UTMSource,
		UTMMedium:   c.UTMMedium,
		UTMCampaign: c.UTMCampaign,
		UTMTerm:     c.UTMTerm,
		UTMContent:  c.UTMContent,
	}
}
