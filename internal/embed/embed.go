// Package embed renders the HTML fragments other sites embed to link to, or show the numbers
// of, a tracked link.
package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/serroba/link-tracker/internal/links"
)

// DefaultDateFormat renders the last-click date, e.g. "March 5, 2024".
const DefaultDateFormat = "January 2, 2006"

// Fragments shown instead of the embed when it cannot be rendered.
const (
	InvalidIDFragment   template.HTML = `<span class="error">Invalid link ID</span>`
	NotFoundFragment    template.HTML = `<span class="error">Link not found</span>`
	MissingCodeFragment template.HTML = `<span class="error">Short code not found</span>`
)

const (
	defaultTarget        = "_blank"
	defaultRel           = "noopener noreferrer"
	defaultStatsClass    = "link-stats"
	defaultStatsShow     = "clicks,visitors,rate"
	trackedLinkBaseClass = "tracked-link"
)

var (
	trackedLinkTemplate = template.Must(template.New("tracked_link").Parse(
		`<a href="{{.Href}}" class="{{.Class}}" target="{{.Target}}" rel="{{.Rel}}">{{.Text}}</a>`,
	))

	statsTemplate = template.Must(template.New("link_stats").Parse(
		`<div class="{{.Class}}">{{range .Items}}<span class="stat-item {{.Kind}}"><strong>{{.Label}}</strong> {{.Value}}</span>{{end}}</div>` +
			`<style>.link-stats { margin: 10px 0; } ` +
			`.link-stats .stat-item { display: inline-block; margin-right: 15px; padding: 5px 10px; ` +
			`background: #f9f9f9; border-radius: 3px; font-size: 14px; } ` +
			`.link-stats .stat-item:last-child { margin-right: 0; }</style>`,
	))

	unsafeClassChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// TrackedLinkParams are the attributes of a tracked link anchor. Content, when set, wins over
// Text, which wins over the link title.
type TrackedLinkParams struct {
	ID      string
	Text    string
	Content string
	Class   string
	Target  string
	Rel     string
}

// StatsParams are the attributes of a link statistics block. Show lists the items to render,
// comma separated, out of clicks, visitors, rate and last.
type StatsParams struct {
	ID    string
	Show  string
	Class string
}

// Renderer renders embeds for stored links.
type Renderer struct {
	links      links.Repository
	urls       links.URLBuilder
	dateFormat string
}

// NewRenderer creates a renderer. An empty dateFormat uses DefaultDateFormat.
func NewRenderer(linkStore links.Repository, urls links.URLBuilder, dateFormat string) *Renderer {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}

	return &Renderer{links: linkStore, urls: urls, dateFormat: dateFormat}
}

// TrackedLink renders an anchor pointing at the link's short URL. Unknown links and links
// without a short code render an error fragment; only store failures return an error.
func (r *Renderer) TrackedLink(ctx context.Context, p TrackedLinkParams) (template.HTML, error) {
	link, fragment, err := r.lookup(ctx, p.ID)
	if err != nil || fragment != "" {
		return fragment, err
	}

	if link.ShortCode == "" {
		return MissingCodeFragment, nil
	}

	text := link.Title
	switch {
	case p.Content != "":
		text = p.Content
	case p.Text != "":
		text = p.Text
	}

	class := trackedLinkBaseClass
	if c := unsafeClassChars.ReplaceAllString(p.Class, ""); c != "" {
		class += " " + c
	}

	data := struct {
		Href   string
		Class  string
		Target string
		Rel    string
		Text   string
	}{
		Href:   r.urls.ShortURL(link.ShortCode),
		Class:  class,
		Target: orDefault(p.Target, defaultTarget),
		Rel:    orDefault(p.Rel, defaultRel),
		Text:   text,
	}

	return execute(trackedLinkTemplate, data)
}

type statItem struct {
	Kind  string
	Label string
	Value string
}

// Stats renders the link's counters. The last-click item is left out until the link has been
// clicked; unknown item names are ignored.
func (r *Renderer) Stats(ctx context.Context, p StatsParams) (template.HTML, error) {
	link, fragment, err := r.lookup(ctx, p.ID)
	if err != nil || fragment != "" {
		return fragment, err
	}

	items := make([]statItem, 0, 4)

	for _, name := range strings.Split(orDefault(p.Show, defaultStatsShow), ",") {
		switch strings.TrimSpace(name) {
		case "clicks":
			items = append(items, statItem{"clicks", "Clicks:", strconv.FormatInt(link.TotalClicks, 10)})
		case "visitors":
			items = append(items, statItem{"visitors", "Unique Visitors:", strconv.FormatInt(link.UniqueVisitors, 10)})
		case "rate":
			items = append(items, statItem{"conversion-rate", "Conversion Rate:", links.FormatRate(link.ConversionRate())})
		case "last":
			if link.LastClickedAt != nil {
				items = append(items, statItem{"last-clicked", "Last Clicked:", link.LastClickedAt.Format(r.dateFormat)})
			}
		}
	}

	data := struct {
		Class string
		Items []statItem
	}{
		Class: orDefault(p.Class, defaultStatsClass),
		Items: items,
	}

	return execute(statsTemplate, data)
}

func (r *Renderer) lookup(ctx context.Context, rawID string) (*links.Link, template.HTML, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return nil, InvalidIDFragment, nil
	}

	link, err := r.links.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			return nil, NotFoundFragment, nil
		}

		return nil, "", fmt.Errorf("load link %d: %w", id, err)
	}

	return link, "", nil
}

func execute(tmpl *template.Template, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	return template.HTML(buf.String()), nil //nolint:gosec // produced by html/template
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}
