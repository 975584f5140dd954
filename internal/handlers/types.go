package handlers

import (
	"time"

	"github.com/serroba/link-tracker/internal/analytics"
)

// LinkBody is the editable part of a link.
type LinkBody struct {
	Title          string `doc:"Link title"                                 example:"Spring sale"            json:"title"                maxLength:"255"`
	DestinationURL string `doc:"Where the short link sends visitors"        example:"https://example.com/sale" json:"destinationUrl"`
	ShortCode      string `doc:"Requested short code, generated when empty" example:"sale"                   json:"shortCode,omitempty"`
	Campaign       string `doc:"Campaign label"                             example:"spring"                 json:"campaign,omitempty"`
	Status         string `doc:"Publication status"                         enum:"publish,draft,private"      json:"status,omitempty"`
}

// LinkView is a stored link with its computed columns.
type LinkView struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	DestinationURL string     `json:"destinationUrl"`
	ShortCode      string     `json:"shortCode"`
	ShortURL       string     `json:"shortUrl"`
	Campaign       string     `json:"campaign"`
	Status         string     `json:"status"`
	TotalClicks    int64      `json:"totalClicks"`
	UniqueVisitors int64      `json:"uniqueVisitors"`
	ConversionRate float64    `json:"conversionRate"`
	Conversion     string     `doc:"Conversion rate for display" example:"150%" json:"conversion"`
	LastClickedAt  *time.Time `json:"lastClickedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CreateLinkRequest is the request for creating a link.
type CreateLinkRequest struct {
	Body LinkBody
}

// CreateLinkResponse is the response for a created link.
type CreateLinkResponse struct {
	Headers struct {
		Location string `doc:"The short URL location" header:"Location"`
	}
	Body struct {
		Link LinkView `json:"link"`
		// Embed is the anchor markup a page can paste to link through the tracker.
		Embed string `doc:"Tracked link markup" json:"embed"`
	}
}

// LinkIDRequest addresses a single link.
type LinkIDRequest struct {
	ID int64 `doc:"Link ID" minimum:"1" path:"id"`
}

// UpdateLinkRequest replaces a link's editable attributes.
type UpdateLinkRequest struct {
	ID   int64 `doc:"Link ID" minimum:"1" path:"id"`
	Body LinkBody
}

// LinkResponse wraps a single link.
type LinkResponse struct {
	Body LinkView
}

// ListLinksRequest filters the link listing.
type ListLinksRequest struct {
	Campaign string `doc:"Only links with this campaign" query:"campaign"`
	Status   string `doc:"Only links with this status"   enum:"publish,draft,private" query:"status"`
}

// ListLinksResponse is the link listing.
type ListLinksResponse struct {
	Body struct {
		Links []LinkView `json:"links"`
	}
}

// CampaignView is a campaign label with its link count.
type CampaignView struct {
	Campaign string `json:"campaign"`
	Links    int64  `json:"links"`
}

// CampaignsResponse lists the campaigns in use.
type CampaignsResponse struct {
	Body struct {
		Campaigns []CampaignView `json:"campaigns"`
	}
}

// RedirectRequest is the request for following a short link.
type RedirectRequest struct {
	Code string `doc:"The short code" example:"abc123" path:"code"`
}

// RedirectResponse sends the visitor to the destination.
type RedirectResponse struct {
	Status  int
	Headers struct {
		Location     string `header:"Location"`
		CacheControl string `header:"Cache-Control"`
	}
}

// ReportRequest selects the window of a report.
type ReportRequest struct {
	Days     int    `default:"30" doc:"Look-back window in days when no explicit range is given" maximum:"3650" query:"days"`
	DateFrom string `doc:"First day of an explicit range"  example:"2024-05-01" query:"date_from"`
	DateTo   string `doc:"Last day of an explicit range"   example:"2024-05-31" query:"date_to"`
}

func (r *ReportRequest) query() analytics.Query {
	return analytics.Query{Days: r.Days, From: r.DateFrom, To: r.DateTo}
}

// TopReportRequest selects the window and size of a ranked report.
type TopReportRequest struct {
	Days     int    `default:"30" doc:"Look-back window in days when no explicit range is given" maximum:"3650" query:"days"`
	DateFrom string `doc:"First day of an explicit range" example:"2024-05-01" query:"date_from"`
	DateTo   string `doc:"Last day of an explicit range"  example:"2024-05-31" query:"date_to"`
	Limit    int    `default:"10" doc:"Maximum number of rows" maximum:"100" minimum:"1" query:"limit"`
}

func (r *TopReportRequest) query() analytics.Query {
	return analytics.Query{Days: r.Days, From: r.DateFrom, To: r.DateTo}
}

// SummaryResponse is the dashboard headline.
type SummaryResponse struct {
	Body *analytics.Summary
}

// TopLinksResponse ranks links by clicks.
type TopLinksResponse struct {
	Body struct {
		Links []analytics.TopLink `json:"links"`
	}
}

// TopReferrersResponse ranks referrers by clicks.
type TopReferrersResponse struct {
	Body struct {
		Referrers []analytics.Referrer `json:"referrers"`
	}
}

// SeriesResponse is the clicks-over-time chart.
type SeriesResponse struct {
	Body *analytics.Series
}

// BreakdownResponse is a device, browser or OS distribution.
type BreakdownResponse struct {
	Body *analytics.Breakdown
}

// DataCountResponse compares the click log with the link counters.
type DataCountResponse struct {
	Body *analytics.DataCount
}

// DebugResponse describes how a report query is interpreted.
type DebugResponse struct {
	Body *analytics.DebugInfo
}

// ResetResponse reports what a statistics reset touched.
type ResetResponse struct {
	Body *analytics.ResetResult
}

// EmbedLinkRequest holds the attributes of a tracked link anchor.
type EmbedLinkRequest struct {
	ID     string `doc:"Link ID"           path:"id"`
	Text   string `doc:"Anchor text, defaults to the link title" query:"text"`
	Class  string `doc:"CSS class"         query:"class"`
	Target string `default:"_blank"        doc:"Anchor target"   query:"target"`
	Rel    string `default:"noopener noreferrer" doc:"Anchor rel" query:"rel"`
}

// EmbedStatsRequest holds the attributes of a statistics block.
type EmbedStatsRequest struct {
	ID    string `doc:"Link ID"                         path:"id"`
	Show  string `default:"clicks,visitors,rate" doc:"Items to show out of clicks, visitors, rate and last" query:"show"`
	Class string `default:"link-stats"           doc:"CSS class"                                            query:"class"`
}

// HTMLResponse is a rendered markup fragment.
type HTMLResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}
