package links

import (
	"errors"
	"math"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when no link matches the lookup.
	ErrNotFound = errors.New("link not found")
	// ErrInvalidDestination is returned when a link is saved without a destination URL.
	ErrInvalidDestination = errors.New("destination url is required")
	// ErrCodeTaken is returned by a repository when another link already holds the short code.
	ErrCodeTaken = errors.New("short code already in use")
)

// Code represents a short link code.
type Code string

// Status is the publication state of a link. Only published links redirect.
type Status string

const (
	StatusPublish Status = "publish"
	StatusDraft   Status = "draft"
	StatusPrivate Status = "private"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPublish, StatusDraft, StatusPrivate:
		return true
	default:
		return false
	}
}

// Link is a tracked short link with its denormalized click counters.
type Link struct {
	ID             int64
	Title          string
	DestinationURL string
	ShortCode      Code
	Campaign       string
	Status         Status
	TotalClicks    int64
	UniqueVisitors int64
	LastClickedAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConversionRate returns the link's clicks per unique visitor as a percentage.
func (l *Link) ConversionRate() float64 {
	return ConversionRate(l.TotalClicks, l.UniqueVisitors)
}

// ConversionRate computes round(clicks/visitors*100, 2), or 0 when there are no visitors.
func ConversionRate(clicks, visitors int64) float64 {
	if visitors <= 0 {
		return 0
	}

	rate := float64(clicks) / float64(visitors) * 100

	return math.Round(rate*100) / 100
}

// FormatRate renders a conversion rate for display, e.g. "150%", "133.33%" or "0%".
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64) + "%"
}
