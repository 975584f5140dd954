package tracking_test

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/tracking"
)

type mockClickLog struct {
	mu        sync.Mutex
	clicks    []*tracking.Click
	insertErr error
	countErr  error
}

func (m *mockClickLog) Insert(_ context.Context, click *tracking.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}

	m.clicks = append(m.clicks, click)

	return nil
}

func (m *mockClickLog) CountDistinctVisitors(_ context.Context, linkID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.countErr != nil {
		return 0, m.countErr
	}

	seen := make(map[string]struct{})
	for _, c := range m.clicks {
		if c.LinkID == linkID {
			seen[c.VisitorID] = struct{}{}
		}
	}

	return int64(len(seen)), nil
}

// mockLinks implements the parts of links.Repository the tracking package uses.
type mockLinks struct {
	links.Repository

	mu           sync.Mutex
	byCode       map[links.Code]*links.Link
	findErr      error
	incrementErr error
	clicks       map[int64]int64
	visitors     map[int64]int64
	lastClicked  map[int64]time.Time
}

func newMockLinks(list ...*links.Link) *mockLinks {
	m := &mockLinks{
		byCode:      make(map[links.Code]*links.Link),
		clicks:      make(map[int64]int64),
		visitors:    make(map[int64]int64),
		lastClicked: make(map[int64]time.Time),
	}

	for _, l := range list {
		m.byCode[l.ShortCode] = l
	}

	return m
}

func (m *mockLinks) FindPublishedByCode(_ context.Context, code links.Code) (*links.Link, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}

	l, ok := m.byCode[code]
	if !ok || l.Status != links.StatusPublish {
		return nil, links.ErrNotFound
	}

	return l, nil
}

func (m *mockLinks) IncrementClicks(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.incrementErr != nil {
		return m.incrementErr
	}

	m.clicks[id]++
	m.lastClicked[id] = at

	return nil
}

func (m *mockLinks) SetUniqueVisitors(_ context.Context, id int64, visitors int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.visitors[id] = visitors

	return nil
}

type mockTracker struct {
	calls []int64
	err   error
}

func (m *mockTracker) Track(_ context.Context, linkID int64, _ tracking.Request, _ time.Time) error {
	m.calls = append(m.calls, linkID)

	return m.err
}
