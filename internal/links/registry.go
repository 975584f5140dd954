package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus is returned when a link is saved with an unknown status.
var ErrInvalidStatus = errors.New("invalid link status")

// maxCodeConflicts bounds how often a save is retried after losing a short code to a
// concurrent save.
const maxCodeConflicts = 3

// Draft carries the operator-editable attributes of a link.
type Draft struct {
	Title          string
	DestinationURL string
	ShortCode      string
	Campaign       string
	Status         Status
}

// Registry manages tracked links and their short codes.
type Registry struct {
	store     Repository
	allocator *CodeAllocator
	now       func() time.Time
}

// NewRegistry creates a link registry.
func NewRegistry(store Repository, allocator *CodeAllocator) *Registry {
	return &Registry{
		store:     store,
		allocator: allocator,
		now:       time.Now,
	}
}

// Create stores a new link. A missing status defaults to published.
func (r *Registry) Create(ctx context.Context, draft Draft) (*Link, error) {
	if err := validate(&draft); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	link := &Link{
		Title:          draft.Title,
		DestinationURL: draft.DestinationURL,
		Campaign:       draft.Campaign,
		Status:         draft.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.save(ctx, link, draft.ShortCode, r.store.Create); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	return link, nil
}

// Update replaces the editable attributes of a link. The short code is re-checked for
// uniqueness against every other link; counters are left untouched.
func (r *Registry) Update(ctx context.Context, id int64, draft Draft) (*Link, error) {
	if err := validate(&draft); err != nil {
		return nil, err
	}

	link, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	requested := draft.ShortCode
	if requested == "" {
		requested = string(link.ShortCode)
	}

	link.Title = draft.Title
	link.DestinationURL = draft.DestinationURL
	link.Campaign = draft.Campaign
	link.Status = draft.Status
	link.UpdatedAt = r.now().UTC()

	if err := r.save(ctx, link, requested, r.store.Update); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	return link, nil
}

// save allocates a short code for link and persists it, allocating again when another
// save claimed the code in between.
func (r *Registry) save(
	ctx context.Context, link *Link, requested string, persist func(context.Context, *Link) error,
) error {
	for attempt := 1; ; attempt++ {
		code, err := r.allocator.Allocate(ctx, requested, link.ID)
		if err != nil {
			return err
		}

		link.ShortCode = code

		err = persist(ctx, link)
		if errors.Is(err, ErrCodeTaken) && attempt < maxCodeConflicts {
			continue
		}

		return err
	}
}

func (r *Registry) Get(ctx context.Context, id int64) (*Link, error) {
	return r.store.GetByID(ctx, id)
}

func (r *Registry) Delete(ctx context.Context, id int64) error {
	return r.store.Delete(ctx, id)
}

func (r *Registry) List(ctx context.Context, filter Filter) ([]Link, error) {
	return r.store.List(ctx, filter)
}

func (r *Registry) Campaigns(ctx context.Context) ([]CampaignCount, error) {
	return r.store.Campaigns(ctx)
}

func validate(draft *Draft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.DestinationURL = strings.TrimSpace(draft.DestinationURL)
	draft.ShortCode = strings.TrimSpace(draft.ShortCode)
	draft.Campaign = strings.TrimSpace(draft.Campaign)

	if draft.DestinationURL == "" {
		return ErrInvalidDestination
	}

	if draft.Status == "" {
		draft.Status = StatusPublish
	}

	if !draft.Status.Valid() {
		return ErrInvalidStatus
	}

	return nil
}

// URLBuilder renders public short URLs.
type URLBuilder struct {
	BaseURL string
	Prefix  string
}

// ShortURL returns "{base}/{prefix}/{code}", or an empty string for a link without a code.
func (b URLBuilder) ShortURL(code Code) string {
	if code == "" {
		return ""
	}

	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.Trim(b.Prefix, "/") + "/" + string(code)
}
