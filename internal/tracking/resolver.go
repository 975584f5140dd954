package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/metrics"
	"go.uber.org/zap"
)

// Outcome is the result of resolving a short code.
type Outcome int

const (
	// OutcomePass means the code is not a short link request at all.
	OutcomePass Outcome = iota
	// OutcomeNotFound means no published link with a destination matches the code.
	OutcomeNotFound
	// OutcomeRedirect means the visitor should be sent to Resolution.Location.
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Resolution is what the redirect endpoint should do with a request.
type Resolution struct {
	Outcome  Outcome
	LinkID   int64
	Location string
}

// Resolver turns short codes into redirect locations and hands clicks to the tracker.
type Resolver struct {
	links   links.Repository
	tracker Tracker
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewResolver(linkStore links.Repository, tracker Tracker, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	return &Resolver{
		links:   linkStore,
		tracker: tracker,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve looks up the first published link with code. The click is tracked before the
// inbound UTM parameters are merged into the normalized destination.
func (r *Resolver) Resolve(ctx context.Context, code string, req Request) (Resolution, error) {
	if !links.ValidCode(code) {
		return Resolution{Outcome: OutcomePass}, nil
	}

	link, err := r.links.FindPublishedByCode(ctx, links.Code(code))
	if errors.Is(err, links.ErrNotFound) {
		r.metrics.Redirect(metrics.OutcomeNotFound)

		return Resolution{Outcome: OutcomeNotFound}, nil
	}

	if err != nil {
		r.metrics.Redirect(metrics.OutcomeError)

		return Resolution{}, fmt.Errorf("find link by code: %w", err)
	}

	if link.DestinationURL == "" {
		r.metrics.Redirect(metrics.OutcomeNotFound)

		return Resolution{Outcome: OutcomeNotFound}, nil
	}

	destination := links.NormalizeDestination(link.DestinationURL)

	if err := r.tracker.Track(ctx, link.ID, req, r.now()); err != nil {
		r.logger.Error("failed to track click",
			zap.Int64("link_id", link.ID),
			zap.String("code", code),
			zap.Error(err),
		)
	}

	r.metrics.Redirect(metrics.OutcomeRedirect)

	return Resolution{
		Outcome:  OutcomeRedirect,
		LinkID:   link.ID,
		Location: links.AppendQuery(destination, links.UTMValues(req.Query)),
	}, nil
}
