package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/tracking"
)

// MemoryStore is an in-memory implementation of links.Repository, tracking.ClickLog and
// analytics.Store.
type MemoryStore struct {
	mu          sync.RWMutex
	links       map[int64]*links.Link
	clicks      []tracking.Click
	nextLinkID  int64
	nextClickID int64
	hasClickLog bool
}

// NewMemoryStore creates a new in-memory store with an empty click log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:       make(map[int64]*links.Link),
		hasClickLog: true,
	}
}

func (m *MemoryStore) Migrate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hasClickLog = true

	return nil
}

func (m *MemoryStore) DropClickLog(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hasClickLog = false
	m.clicks = nil

	return nil
}

func (m *MemoryStore) Uninstall(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hasClickLog = false
	m.clicks = nil
	m.links = make(map[int64]*links.Link)

	return nil
}

func (m *MemoryStore) Create(_ context.Context, link *links.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.codeTaken(link.ShortCode, 0) {
		return links.ErrCodeTaken
	}

	m.nextLinkID++
	link.ID = m.nextLinkID
	stored := *link
	m.links[link.ID] = &stored

	return nil
}

func (m *MemoryStore) Update(_ context.Context, link *links.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[link.ID]; !ok {
		return links.ErrNotFound
	}

	if m.codeTaken(link.ShortCode, link.ID) {
		return links.ErrCodeTaken
	}

	stored := *link
	m.links[link.ID] = &stored

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[id]; !ok {
		return links.ErrNotFound
	}

	delete(m.links, id)

	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id int64) (*links.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[id]
	if !ok {
		return nil, links.ErrNotFound
	}

	return copyLink(link), nil
}

func (m *MemoryStore) FindPublishedByCode(_ context.Context, code links.Code) (*links.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.sortedLinks() {
		if link.ShortCode == code && link.Status == links.StatusPublish {
			return copyLink(link), nil
		}
	}

	return nil, links.ErrNotFound
}

func (m *MemoryStore) CodeExists(_ context.Context, code links.Code, excludeID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.codeTaken(code, excludeID), nil
}

func (m *MemoryStore) codeTaken(code links.Code, excludeID int64) bool {
	for id, link := range m.links {
		if id != excludeID && link.ShortCode == code {
			return true
		}
	}

	return false
}

func (m *MemoryStore) List(_ context.Context, filter links.Filter) ([]links.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]links.Link, 0, len(m.links))

	for _, link := range m.sortedLinks() {
		if filter.Status != "" && link.Status != filter.Status {
			continue
		}

		if filter.Campaign != "" && link.Campaign != filter.Campaign {
			continue
		}

		result = append(result, *copyLink(link))
	}

	return result, nil
}

func (m *MemoryStore) CountPublished(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64

	for _, link := range m.links {
		if link.Status == links.StatusPublish {
			n++
		}
	}

	return n, nil
}

func (m *MemoryStore) Campaigns(_ context.Context) ([]links.CampaignCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)

	for _, link := range m.links {
		if link.Campaign != "" {
			counts[link.Campaign]++
		}
	}

	result := make([]links.CampaignCount, 0, len(counts))
	for campaign, n := range counts {
		result = append(result, links.CampaignCount{Campaign: campaign, Links: n})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Campaign < result[j].Campaign })

	return result, nil
}

func (m *MemoryStore) IncrementClicks(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[id]
	if !ok {
		return links.ErrNotFound
	}

	link.TotalClicks++
	clicked := at.UTC()
	link.LastClickedAt = &clicked

	return nil
}

func (m *MemoryStore) SetUniqueVisitors(_ context.Context, id int64, visitors int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[id]
	if !ok {
		return links.ErrNotFound
	}

	link.UniqueVisitors = visitors

	return nil
}

func (m *MemoryStore) ResetCounters(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, link := range m.links {
		link.TotalClicks = 0
		link.UniqueVisitors = 0
		link.LastClickedAt = nil
	}

	return int64(len(m.links)), nil
}

func (m *MemoryStore) Insert(_ context.Context, click *tracking.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasClickLog {
		return ErrClickLogMissing
	}

	m.nextClickID++
	click.ID = m.nextClickID
	m.clicks = append(m.clicks, *click)

	return nil
}

func (m *MemoryStore) CountDistinctVisitors(_ context.Context, linkID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasClickLog {
		return 0, ErrClickLogMissing
	}

	seen := make(map[string]struct{})

	for _, c := range m.clicks {
		if c.LinkID == linkID {
			seen[c.VisitorID] = struct{}{}
		}
	}

	return int64(len(seen)), nil
}

func (m *MemoryStore) ClickLogExists(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.hasClickLog, nil
}

func (m *MemoryStore) CountClicks(_ context.Context, r analytics.Range) (int64, error) {
	var n int64

	err := m.eachClick(r, func(tracking.Click) { n++ })

	return n, err
}

func (m *MemoryStore) CountVisitors(_ context.Context, r analytics.Range) (int64, error) {
	seen := make(map[string]struct{})

	err := m.eachClick(r, func(c tracking.Click) { seen[c.VisitorID] = struct{}{} })

	return int64(len(seen)), err
}

func (m *MemoryStore) GroupClicks(
	_ context.Context, dim analytics.Dimension, r analytics.Range, limit int,
) ([]analytics.Bucket, error) {
	if _, err := dimensionColumn(dim); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)

	err := m.eachClick(r, func(c tracking.Click) {
		if v := dimensionValue(c, dim); v != "" {
			counts[v]++
		}
	})

	return topBuckets(counts, limit), err
}

func (m *MemoryStore) GroupReferrers(_ context.Context, r analytics.Range, limit int) ([]analytics.Bucket, error) {
	counts := make(map[string]int64)

	err := m.eachClick(r, func(c tracking.Click) {
		if c.Referrer != "" {
			counts[c.Referrer]++
		}
	})

	return topBuckets(counts, limit), err
}

func (m *MemoryStore) DailyClicks(_ context.Context, r analytics.Range) ([]analytics.DailyCount, error) {
	counts := make(map[string]int64)

	err := m.eachClick(r, func(c tracking.Click) {
		counts[c.ClickedAt.UTC().Format(analytics.DateLayout)]++
	})

	result := make([]analytics.DailyCount, 0, len(counts))
	for day, n := range counts {
		result = append(result, analytics.DailyCount{Day: day, Clicks: n})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })

	return result, err
}

func (m *MemoryStore) CountAllClicks(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasClickLog {
		return 0, ErrClickLogMissing
	}

	return int64(len(m.clicks)), nil
}

func (m *MemoryStore) RecentClicks(_ context.Context, limit int) ([]tracking.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasClickLog {
		return nil, ErrClickLogMissing
	}

	recent := append([]tracking.Click(nil), m.clicks...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].ClickedAt.After(recent[j].ClickedAt) })

	if len(recent) > limit {
		recent = recent[:limit]
	}

	return recent, nil
}

func (m *MemoryStore) TruncateClickLog(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasClickLog {
		return ErrClickLogMissing
	}

	m.clicks = nil

	return nil
}

func (m *MemoryStore) eachClick(r analytics.Range, fn func(tracking.Click)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasClickLog {
		return ErrClickLogMissing
	}

	for _, c := range m.clicks {
		if r.Contains(c.ClickedAt) {
			fn(c)
		}
	}

	return nil
}

func (m *MemoryStore) sortedLinks() []*links.Link {
	sorted := make([]*links.Link, 0, len(m.links))
	for _, link := range m.links {
		sorted = append(sorted, link)
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return sorted
}

func copyLink(link *links.Link) *links.Link {
	c := *link
	if link.LastClickedAt != nil {
		t := *link.LastClickedAt
		c.LastClickedAt = &t
	}

	return &c
}

func dimensionValue(c tracking.Click, dim analytics.Dimension) string {
	switch dim {
	case analytics.DimensionDevice:
		return c.DeviceType
	case analytics.DimensionBrowser:
		return c.Browser
	case analytics.DimensionOS:
		return c.OS
	default:
		return ""
	}
}

// topBuckets orders counts by clicks descending, then label, and applies limit when positive.
func topBuckets(counts map[string]int64, limit int) []analytics.Bucket {
	result := make([]analytics.Bucket, 0, len(counts))
	for label, n := range counts {
		result = append(result, analytics.Bucket{Label: label, Clicks: n})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Clicks != result[j].Clicks {
			return result[i].Clicks > result[j].Clicks
		}

		return result[i].Label < result[j].Label
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result
}

var (
	_ links.Repository  = (*MemoryStore)(nil)
	_ tracking.ClickLog = (*MemoryStore)(nil)
	_ analytics.Store   = (*MemoryStore)(nil)
	_ Migrator          = (*MemoryStore)(nil)
)
