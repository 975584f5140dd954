package tracking

import (
	"context"
	"crypto/md5" //nolint:gosec // visitor ids are md5 hex by format, not for security
	"encoding/hex"
	"time"
)

// Click is one immutable row of the click log.
type Click struct {
	ID          int64
	LinkID      int64
	VisitorID   string
	IPAddress   string
	UserAgent   string
	Referrer    string
	DeviceType  string
	Browser     string
	OS          string
	ClickedAt   time.Time
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
}

// ClickLog is the append-only store of click rows.
type ClickLog interface {
	Insert(ctx context.Context, click *Click) error
	CountDistinctVisitors(ctx context.Context, linkID int64) (int64, error)
}

// Fingerprint identifies a visitor as the md5 hex digest of ip followed by userAgent.
func Fingerprint(ip, userAgent string) string {
	sum := md5.Sum([]byte(ip + userAgent)) //nolint:gosec

	return hex.EncodeToString(sum[:])
}

// NewClick builds the click row for a request without persisting it.
func NewClick(linkID int64, req Request, at time.Time, classifier *Classifier) *Click {
	ip := ClientIP(req)
	ua := req.UserAgent()
	labels := classifier.Classify(ua)

	return &Click{
		LinkID:      linkID,
		VisitorID:   Fingerprint(ip, ua),
		IPAddress:   ip,
		UserAgent:   ua,
		Referrer:    req.Referrer(),
		DeviceType:  labels.Device,
		Browser:     labels.Browser,
		OS:          labels.OS,
		ClickedAt:   at.UTC(),
		UTMSource:   req.UTM("utm_source"),
		UTMMedium:   req.UTM("utm_medium"),
		UTMCampaign: req.UTM("utm_campaign"),
		UTMTerm:     req.UTM("utm_term"),
		UTMContent:  req.UTM("utm_content"),
	}
}
