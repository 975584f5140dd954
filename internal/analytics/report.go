package analytics

import "time"

// Summary is the dashboard headline.
type Summary struct {
	TotalClicks    int64   `json:"total_clicks"`
	UniqueVisitors int64   `json:"unique_visitors"`
	ActiveLinks    int64   `json:"active_links"`
	AvgConversion  float64 `json:"avg_conversion_rate"`
	// AvgConversionDisplay is AvgConversion with a percent sign, e.g. "150%".
	AvgConversionDisplay string `json:"avg_conversion"`
	// FromCounters is set when the totals come from per-link counters instead of the log.
	FromCounters bool `json:"from_counters"`
}

// Breakdown is a grouped click distribution.
type Breakdown struct {
	Dimension Dimension `json:"dimension"`
	Items     []Bucket  `json:"items"`
	// Placeholder marks fixed illustrative data returned while there is nothing to report.
	Placeholder bool `json:"placeholder"`
}

// SeriesPoint is one day of the clicks-over-time chart.
type SeriesPoint struct {
	Date          string `json:"date"`
	FormattedDate string `json:"formatted_date"`
	Clicks        int64  `json:"clicks"`
}

// Series is the clicks-over-time chart.
type Series struct {
	Points []SeriesPoint `json:"points"`
	// Simulated marks counter totals spread at random over the days because there is no log.
	Simulated bool `json:"simulated"`
}

// TopLink is a link ranked by its lifetime clicks.
type TopLink struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	DestinationURL string  `json:"destination_url"`
	ShortURL       string  `json:"short_url"`
	TotalClicks    int64   `json:"total_clicks"`
	UniqueVisitors int64   `json:"unique_visitors"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Referrer is a referring URL with its host.
type Referrer struct {
	Referrer string `json:"referrer"`
	Domain   string `json:"domain"`
	Clicks   int64  `json:"clicks"`
}

// CounterSample is one link's raw counters.
type CounterSample struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// CounterStats summarizes the per-link counters of published links.
type CounterStats struct {
	TotalLinks        int64           `json:"total_posts"`
	LinksWithClicks   int64           `json:"posts_with_clicks"`
	LinksWithVisitors int64           `json:"posts_with_unique_visitors"`
	TotalClicks       int64           `json:"total_clicks_from_meta"`
	TotalVisitors     int64           `json:"total_unique_visitors_from_meta"`
	Samples           []CounterSample `json:"sample_posts"`
}

// DataCount compares the click log with the per-link counters.
type DataCount struct {
	TrackedLinks         int64        `json:"tracked_links"`
	ClickLogExists       bool         `json:"clicks_table_exists"`
	TotalClickRecords    int64        `json:"total_click_records"`
	FilteredClickRecords int64        `json:"filtered_click_records"`
	DateRange            Query        `json:"date_range"`
	Counters             CounterStats `json:"post_meta_stats"`
}

// ClickSample is a click row as shown by the debug report.
type ClickSample struct {
	ID          int64     `json:"id"`
	LinkID      int64     `json:"link_id"`
	VisitorID   string    `json:"visitor_id"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer"`
	DeviceType  string    `json:"device_type"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	ClickedAt   time.Time `json:"click_time"`
	UTMSource   string    `json:"utm_source"`
	UTMMedium   string    `json:"utm_medium"`
	UTMCampaign string    `json:"utm_campaign"`
	UTMTerm     string    `json:"utm_term"`
	UTMContent  string    `json:"utm_content"`
}

// DebugInfo describes how the server interprets a report query.
type DebugInfo struct {
	CurrentTime       string        `json:"current_time"`
	Timezone          string        `json:"timezone"`
	Parameters        Query         `json:"parameters"`
	ClickLogExists    bool          `json:"clicks_table_exists"`
	TotalClickRecords int64         `json:"total_click_records"`
	SampleRecords     []ClickSample `json:"sample_records"`
	Counters          CounterStats  `json:"post_meta_stats"`
}

// ResetResult reports what a statistics reset touched.
type ResetResult struct {
	Message         string `json:"message"`
	LinksReset      int64  `json:"posts_reset"`
	ClickLogCleared bool   `json:"clicks_table_cleared"`
}
