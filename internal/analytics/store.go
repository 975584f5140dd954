package analytics

import (
	"context"

	"github.com/serroba/link-tracker/internal/tracking"
)

// Dimension is a click-log column a breakdown groups by.
type Dimension string

const (
	DimensionDevice  Dimension = "device_type"
	DimensionBrowser Dimension = "browser"
	DimensionOS      Dimension = "os"
)

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionDevice, DimensionBrowser, DimensionOS:
		return true
	default:
		return false
	}
}

// Bucket is a grouped value with its click count.
type Bucket struct {
	Label  string `json:"label"`
	Clicks int64  `json:"clicks"`
}

// DailyCount is the number of clicks on one UTC calendar day.
type DailyCount struct {
	Day    string
	Clicks int64
}

// Store defines the click-log queries reports are built from. Grouped results only include
// non-empty values and are ordered by clicks descending; a limit of zero means unlimited.
type Store interface {
	ClickLogExists(ctx context.Context) (bool, error)
	CountClicks(ctx context.Context, r Range) (int64, error)
	CountVisitors(ctx context.Context, r Range) (int64, error)
	GroupClicks(ctx context.Context, dim Dimension, r Range, limit int) ([]Bucket, error)
	GroupReferrers(ctx context.Context, r Range, limit int) ([]Bucket, error)
	DailyClicks(ctx context.Context, r Range) ([]DailyCount, error)
	CountAllClicks(ctx context.Context) (int64, error)
	RecentClicks(ctx context.Context, limit int) ([]tracking.Click, error)
	TruncateClickLog(ctx context.Context) error
}
