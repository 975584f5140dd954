package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/serroba/link-tracker/internal/messaging"
	"github.com/serroba/link-tracker/internal/metrics"
	"go.uber.org/zap"
)

// TopicLinkClicked carries clicks from the redirect path to the click consumer.
const TopicLinkClicked = "link.clicked"

// Tracker accepts a click for recording.
type Tracker interface {
	Track(ctx context.Context, linkID int64, req Request, at time.Time) error
}

// SyncTracker records clicks inside the redirect request.
type SyncTracker struct {
	recorder *Recorder
}

func NewSyncTracker(recorder *Recorder) *SyncTracker {
	return &SyncTracker{recorder: recorder}
}

func (t *SyncTracker) Track(ctx context.Context, linkID int64, req Request, at time.Time) error {
	_, err := t.recorder.Record(ctx, linkID, req, at)

	return err
}

// ClickEvent is the bus payload for a click awaiting recording.
type ClickEvent struct {
	LinkID     int64               `json:"linkId"`
	RemoteAddr string              `json:"remoteAddr"`
	Header     map[string][]string `json:"header"`
	Query      map[string][]string `json:"query"`
	ClickedAt  time.Time           `json:"clickedAt"`
}

// Request rebuilds the tracking request carried by the event.
func (e *ClickEvent) Request() Request {
	return Request{
		RemoteAddr: e.RemoteAddr,
		Header:     http.Header(e.Header),
		Query:      url.Values(e.Query),
	}
}

// AsyncTracker publishes clicks for a consumer to record. Events carry only the recordable
// part of the request. Publish failures are logged and swallowed so the redirect never
// depends on the bus.
type AsyncTracker struct {
	publish messaging.Publish[ClickEvent]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAsyncTracker(publish messaging.Publish[ClickEvent], m *metrics.Metrics, logger *zap.Logger) *AsyncTracker {
	return &AsyncTracker{
		publish: publish,
		metrics: m,
		logger:  logger,
	}
}

func (t *AsyncTracker) Track(ctx context.Context, linkID int64, req Request, at time.Time) error {
	req = req.Recordable()
	event := &ClickEvent{
		LinkID:     linkID,
		RemoteAddr: req.RemoteAddr,
		Header:     req.Header,
		Query:      req.Query,
		ClickedAt:  at.UTC(),
	}

	if err := t.publish(ctx, event); err != nil {
		t.metrics.ClickFailed(metrics.StagePublish)
		t.logger.Error("failed to publish click event",
			zap.Int64("link_id", linkID),
			zap.Error(err),
		)
	}

	return nil
}

// NewClickHandler returns the consumer handler that records published clicks. Recorder errors
// come after the click row was written, so they skip the event instead of redelivering it and
// logging the click twice. Only a cancelled context leaves the event for another consumer.
func NewClickHandler(recorder *Recorder) messaging.Handler[ClickEvent] {
	return func(ctx context.Context, event *ClickEvent) error {
		_, err := recorder.Record(ctx, event.LinkID, event.Request(), event.ClickedAt)
		if err == nil || ctx.Err() != nil {
			return err
		}

		return fmt.Errorf("%w: link %d: %w", messaging.ErrSkip, event.LinkID, err)
	}
}
