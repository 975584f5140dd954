package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around click-log inserts.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

const breakerName = "click-log"

// Recorder persists clicks and maintains the per-link counters.
type Recorder struct {
	log        ClickLog
	links      links.Repository
	classifier *Classifier
	breaker    *gobreaker.CircuitBreaker[struct{}]
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewRecorder creates a click recorder.
func NewRecorder(
	log ClickLog,
	linkStore links.Repository,
	classifier *Classifier,
	cfg BreakerConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Recorder {
	r := &Recorder{
		log:        log,
		links:      linkStore,
		classifier: classifier,
		metrics:    m,
		logger:     logger,
	}

	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
	})

	return r
}

// Record writes one click row for linkID, then bumps the link's click counter and
// recomputes its unique visitors from the log. A failed insert is logged and does not
// stop the counter update; only a failed counter update is returned.
func (r *Recorder) Record(ctx context.Context, linkID int64, req Request, at time.Time) (*Click, error) {
	click := NewClick(linkID, req, at, r.classifier)

	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.log.Insert(ctx, click)
	})
	if err != nil {
		r.metrics.ClickFailed(metrics.StageInsert)
		r.logger.Warn("failed to insert click",
			zap.Int64("link_id", linkID),
			zap.Error(err),
		)
	} else {
		r.metrics.ClickRecorded()
	}

	if err := r.links.IncrementClicks(ctx, linkID, click.ClickedAt); err != nil {
		r.metrics.ClickFailed(metrics.StageCounter)

		return click, fmt.Errorf("increment clicks: %w", err)
	}

	visitors, err := r.log.CountDistinctVisitors(ctx, linkID)
	if err != nil {
		r.metrics.ClickFailed(metrics.StageVisitors)
		r.logger.Warn("failed to count unique visitors",
			zap.Int64("link_id", linkID),
			zap.Error(err),
		)

		return click, nil
	}

	if err := r.links.SetUniqueVisitors(ctx, linkID, visitors); err != nil {
		r.metrics.ClickFailed(metrics.StageVisitors)

		return click, fmt.Errorf("set unique visitors: %w", err)
	}

	return click, nil
}
