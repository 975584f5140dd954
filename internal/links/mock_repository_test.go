package links_test

import (
	"context"
	"time"

	"github.com/serroba/link-tracker/internal/links"
)

type mockRepository struct {
	links     map[int64]*links.Link
	nextID    int64
	taken     map[links.Code]bool
	existsErr error
	createErr error
	checks    int
	// lostRaces is how many saves find their code claimed by a concurrent save.
	lostRaces int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		links: make(map[int64]*links.Link),
		taken: make(map[links.Code]bool),
	}
}

func (m *mockRepository) Create(_ context.Context, link *links.Link) error {
	if m.createErr != nil {
		return m.createErr
	}

	if m.loseRace(link.ShortCode) {
		return links.ErrCodeTaken
	}

	m.nextID++
	link.ID = m.nextID
	stored := *link
	m.links[link.ID] = &stored

	return nil
}

func (m *mockRepository) Update(_ context.Context, link *links.Link) error {
	if _, ok := m.links[link.ID]; !ok {
		return links.ErrNotFound
	}

	if m.loseRace(link.ShortCode) {
		return links.ErrCodeTaken
	}

	stored := *link
	m.links[link.ID] = &stored

	return nil
}

func (m *mockRepository) loseRace(code links.Code) bool {
	if m.lostRaces == 0 {
		return false
	}

	m.lostRaces--
	m.taken[code] = true

	return true
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	if _, ok := m.links[id]; !ok {
		return links.ErrNotFound
	}

	delete(m.links, id)

	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*links.Link, error) {
	link, ok := m.links[id]
	if !ok {
		return nil, links.ErrNotFound
	}

	found := *link

	return &found, nil
}

func (m *mockRepository) FindPublishedByCode(_ context.Context, code links.Code) (*links.Link, error) {
	for _, link := range m.links {
		if link.ShortCode == code && link.Status == links.StatusPublish {
			found := *link

			return &found, nil
		}
	}

	return nil, links.ErrNotFound
}

func (m *mockRepository) CodeExists(_ context.Context, code links.Code, excludeID int64) (bool, error) {
	m.checks++

	if m.existsErr != nil {
		return false, m.existsErr
	}

	if m.taken[code] {
		return true, nil
	}

	for id, link := range m.links {
		if id != excludeID && link.ShortCode == code {
			return true, nil
		}
	}

	return false, nil
}

func (m *mockRepository) List(_ context.Context, _ links.Filter) ([]links.Link, error) {
	result := make([]links.Link, 0, len(m.links))
	for _, link := range m.links {
		result = append(result, *link)
	}

	return result, nil
}

func (m *mockRepository) CountPublished(_ context.Context) (int64, error) {
	return int64(len(m.links)), nil
}

func (m *mockRepository) Campaigns(_ context.Context) ([]links.CampaignCount, error) {
	return nil, nil
}

func (m *mockRepository) IncrementClicks(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func (m *mockRepository) SetUniqueVisitors(_ context.Context, _ int64, _ int64) error {
	return nil
}

func (m *mockRepository) ResetCounters(_ context.Context) (int64, error) {
	return 0, nil
}
