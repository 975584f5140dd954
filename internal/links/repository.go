package links

import (
	"context"
	"time"
)

// Filter narrows a link listing. Zero values match everything.
type Filter struct {
	Campaign string
	Status   Status
}

// CampaignCount is a campaign label with the number of links carrying it.
type CampaignCount struct {
	Campaign string
	Links    int64
}

// Repository defines storage operations for tracked links.
type Repository interface {
	Create(ctx context.Context, link *Link) error
	Update(ctx context.Context, link *Link) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Link, error)

	// FindPublishedByCode returns the first published link with the code, ordered by id.
	FindPublishedByCode(ctx context.Context, code Code) (*Link, error)

	// CodeExists reports whether any link other than excludeID uses the code.
	CodeExists(ctx context.Context, code Code, excludeID int64) (bool, error)

	// List returns links ordered by id.
	List(ctx context.Context, filter Filter) ([]Link, error)
	CountPublished(ctx context.Context) (int64, error)
	Campaigns(ctx context.Context) ([]CampaignCount, error)

	// IncrementClicks adds one to the total click counter and stamps the last click time.
	IncrementClicks(ctx context.Context, id int64, at time.Time) error
	SetUniqueVisitors(ctx context.Context, id int64, visitors int64) error

	// ResetCounters zeroes every link's counters and returns how many links were touched.
	ResetCounters(ctx context.Context) (int64, error)
}
