package store

import (
	"context"
	"errors"

	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

// ErrDisabled is returned by queries that need per-click rows.
var ErrDisabled = errors.New("click log disabled")

// Noop is a click log that keeps no rows. Clicks are logged and dropped, and reports see the
// log as absent so they fall back to the per-link counters.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op click log.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Insert(_ context.Context, click *tracking.Click) error {
	n.logger.Debug("click received",
		zap.Int64("link_id", click.LinkID),
		zap.String("visitor_id", click.VisitorID),
		zap.String("device", click.DeviceType),
		zap.Time("clicked_at", click.ClickedAt),
	)

	return nil
}

func (n *Noop) CountDistinctVisitors(_ context.Context, _ int64) (int64, error) {
	return 0, ErrDisabled
}

func (n *Noop) ClickLogExists(_ context.Context) (bool, error) {
	return false, nil
}

func (n *Noop) CountClicks(_ context.Context, _ analytics.Range) (int64, error) {
	return 0, nil
}

func (n *Noop) CountVisitors(_ context.Context, _ analytics.Range) (int64, error) {
	return 0, nil
}

func (n *Noop) GroupClicks(_ context.Context, _ analytics.Dimension, _ analytics.Range, _ int) ([]analytics.Bucket, error) {
	return nil, nil
}

func (n *Noop) GroupReferrers(_ context.Context, _ analytics.Range, _ int) ([]analytics.Bucket, error) {
	return nil, nil
}

func (n *Noop) DailyClicks(_ context.Context, _ analytics.Range) ([]analytics.DailyCount, error) {
	return nil, nil
}

func (n *Noop) CountAllClicks(_ context.Context) (int64, error) {
	return 0, nil
}

func (n *Noop) RecentClicks(_ context.Context, _ int) ([]tracking.Click, error) {
	return nil, nil
}

func (n *Noop) TruncateClickLog(_ context.Context) error {
	return ErrDisabled
}

var (
	_ tracking.ClickLog = (*Noop)(nil)
	_ analytics.Store   = (*Noop)(nil)
)
