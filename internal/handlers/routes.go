package handlers

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/auth"
	"github.com/serroba/link-tracker/internal/ratelimit"
)

// Handlers groups the operation handlers RegisterRoutes wires.
type Handlers struct {
	Links     *LinkHandler
	Redirects *RedirectHandler
	Reports   *ReportHandler
	Embeds    *EmbedHandler
}

var reportSecurity = []map[string][]string{{auth.SecurityScheme: {}}}

func scoped(scope ratelimit.Scope) map[string]any {
	return map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: scope}}
}

// RegisterRoutes registers the redirect, management, report and embed operations. Short
// links are served under "/{prefix}/{code}" with or without a trailing slash.
func RegisterRoutes(api huma.API, prefix string, h Handlers) {
	registerSecurityScheme(api)
	registerRedirects(api, prefix, h.Redirects)
	registerLinks(api, h.Links)
	registerReports(api, h.Reports)
	registerEmbeds(api, h.Embeds)
}

func registerSecurityScheme(api huma.API) {
	components := api.OpenAPI().Components
	if components.SecuritySchemes == nil {
		components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}

	components.SecuritySchemes[auth.SecurityScheme] = &huma.SecurityScheme{
		Type:        "apiKey",
		In:          "header",
		Name:        auth.HeaderName,
		Description: "Report token issued by the token command. The token query parameter is also accepted.",
	}
}

func registerRedirects(api huma.API, prefix string, h *RedirectHandler) {
	base := "/" + strings.Trim(prefix, "/") + "/{code}"

	for i, path := range []string{base, base + "/"} {
		op := huma.Operation{
			OperationID: "redirect",
			Method:      http.MethodGet,
			Path:        path,
			Summary:     "Follow short link",
			Description: "Redirects to the destination of the published link with the code and records the click.",
			Tags:        []string{"Redirects"},
			Metadata:    scoped(ratelimit.ScopeRedirect),
		}

		if i > 0 {
			op.OperationID = "redirect-trailing-slash"
			op.Hidden = true
		}

		huma.Register(api, op, h.Redirect)
	}
}

func registerLinks(api huma.API, h *LinkHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-link",
		Method:        http.MethodPost,
		Path:          "/api/links",
		Summary:       "Create link",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusCreated,
		Security:      reportSecurity,
	}, h.CreateLink)

	huma.Register(api, huma.Operation{
		OperationID: "list-links",
		Method:      http.MethodGet,
		Path:        "/api/links",
		Summary:     "List links",
		Tags:        []string{"Links"},
		Security:    reportSecurity,
	}, h.ListLinks)

	huma.Register(api, huma.Operation{
		OperationID: "get-link",
		Method:      http.MethodGet,
		Path:        "/api/links/{id}",
		Summary:     "Get link",
		Tags:        []string{"Links"},
		Security:    reportSecurity,
	}, h.GetLink)

	huma.Register(api, huma.Operation{
		OperationID: "update-link",
		Method:      http.MethodPut,
		Path:        "/api/links/{id}",
		Summary:     "Update link",
		Tags:        []string{"Links"},
		Security:    reportSecurity,
	}, h.UpdateLink)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-link",
		Method:        http.MethodDelete,
		Path:          "/api/links/{id}",
		Summary:       "Delete link",
		Tags:          []string{"Links"},
		DefaultStatus: http.StatusNoContent,
		Security:      reportSecurity,
	}, h.DeleteLink)

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/api/campaigns",
		Summary:     "List campaigns",
		Tags:        []string{"Links"},
		Security:    reportSecurity,
	}, h.ListCampaigns)
}

func registerReports(api huma.API, h *ReportHandler) {
	report := func(id, summary string) huma.Operation {
		return huma.Operation{
			OperationID: "report-" + id,
			Method:      http.MethodGet,
			Path:        "/api/reports/" + id,
			Summary:     summary,
			Tags:        []string{"Reports"},
			Security:    reportSecurity,
			Metadata:    scoped(ratelimit.ScopeReport),
		}
	}

	huma.Register(api, report("summary", "Dashboard summary"), h.Summary)
	huma.Register(api, report("top-links", "Top links by clicks"), h.TopLinks)
	huma.Register(api, report("top-referrers", "Top referrers"), h.TopReferrers)
	huma.Register(api, report("clicks-over-time", "Daily clicks"), h.ClicksOverTime)
	huma.Register(api, report("devices", "Clicks by device type"), h.Devices)
	huma.Register(api, report("browsers", "Clicks by browser"), h.Browsers)
	huma.Register(api, report("os", "Clicks by operating system"), h.OperatingSystems)
	huma.Register(api, report("data-count", "Click log and counter totals"), h.DataCount)
	huma.Register(api, report("debug", "Report query diagnostics"), h.Debug)

	reset := report("reset", "Reset statistics")
	reset.Method = http.MethodPost
	reset.Description = "Zeroes every link's counters and empties the click log."
	huma.Register(api, reset, h.Reset)
}

func registerEmbeds(api huma.API, h *EmbedHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "embed-link",
		Method:      http.MethodGet,
		Path:        "/embed/links/{id}",
		Summary:     "Tracked link markup",
		Tags:        []string{"Embeds"},
	}, h.TrackedLink)

	huma.Register(api, huma.Operation{
		OperationID: "embed-link-stats",
		Method:      http.MethodGet,
		Path:        "/embed/links/{id}/stats",
		Summary:     "Link statistics markup",
		Tags:        []string{"Embeds"},
	}, h.Stats)
}
