package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/embed"
	"github.com/serroba/link-tracker/internal/links"
	"go.uber.org/zap"
)

// LinkHandler handles link management operations.
type LinkHandler struct {
	registry *links.Registry
	urls     links.URLBuilder
	embeds   *embed.Renderer
	logger   *zap.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(registry *links.Registry, urls links.URLBuilder, embeds *embed.Renderer, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		registry: registry,
		urls:     urls,
		embeds:   embeds,
		logger:   logger,
	}
}

func (h *LinkHandler) CreateLink(ctx context.Context, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	link, err := h.registry.Create(ctx, draftOf(req.Body))
	if err != nil {
		return nil, h.linkError("create", err)
	}

	h.logger.Info("link created",
		zap.Int64("link_id", link.ID),
		zap.String("code", string(link.ShortCode)),
	)

	snippet, err := h.embeds.TrackedLink(ctx, embed.TrackedLinkParams{ID: strconv.FormatInt(link.ID, 10)})
	if err != nil {
		h.logger.Warn("failed to render embed", zap.Int64("link_id", link.ID), zap.Error(err))
	}

	view := h.view(link)

	resp := &CreateLinkResponse{}
	resp.Headers.Location = view.ShortURL
	resp.Body.Link = view
	resp.Body.Embed = string(snippet)

	return resp, nil
}

func (h *LinkHandler) GetLink(ctx context.Context, req *LinkIDRequest) (*LinkResponse, error) {
	link, err := h.registry.Get(ctx, req.ID)
	if err != nil {
		return nil, h.linkError("get", err)
	}

	return &LinkResponse{Body: h.view(link)}, nil
}

func (h *LinkHandler) UpdateLink(ctx context.Context, req *UpdateLinkRequest) (*LinkResponse, error) {
	link, err := h.registry.Update(ctx, req.ID, draftOf(req.Body))
	if err != nil {
		return nil, h.linkError("update", err)
	}

	return &LinkResponse{Body: h.view(link)}, nil
}

func (h *LinkHandler) DeleteLink(ctx context.Context, req *LinkIDRequest) (*struct{}, error) {
	if err := h.registry.Delete(ctx, req.ID); err != nil {
		return nil, h.linkError("delete", err)
	}

	h.logger.Info("link deleted", zap.Int64("link_id", req.ID))

	return nil, nil //nolint:nilnil // 204 No Content
}

func (h *LinkHandler) ListLinks(ctx context.Context, req *ListLinksRequest) (*ListLinksResponse, error) {
	list, err := h.registry.List(ctx, links.Filter{Campaign: req.Campaign, Status: links.Status(req.Status)})
	if err != nil {
		return nil, h.linkError("list", err)
	}

	resp := &ListLinksResponse{}
	resp.Body.Links = make([]LinkView, 0, len(list))

	for i := range list {
		resp.Body.Links = append(resp.Body.Links, h.view(&list[i]))
	}

	return resp, nil
}

func (h *LinkHandler) ListCampaigns(ctx context.Context, _ *struct{}) (*CampaignsResponse, error) {
	campaigns, err := h.registry.Campaigns(ctx)
	if err != nil {
		return nil, h.linkError("list campaigns", err)
	}

	resp := &CampaignsResponse{}
	resp.Body.Campaigns = make([]CampaignView, 0, len(campaigns))

	for _, c := range campaigns {
		resp.Body.Campaigns = append(resp.Body.Campaigns, CampaignView{Campaign: c.Campaign, Links: c.Links})
	}

	return resp, nil
}

func (h *LinkHandler) view(link *links.Link) LinkView {
	rate := link.ConversionRate()

	return LinkView{
		ID:             link.ID,
		Title:          link.Title,
		DestinationURL: link.DestinationURL,
		ShortCode:      string(link.ShortCode),
		ShortURL:       h.urls.ShortURL(link.ShortCode),
		Campaign:       link.Campaign,
		Status:         string(link.Status),
		TotalClicks:    link.TotalClicks,
		UniqueVisitors: link.UniqueVisitors,
		ConversionRate: rate,
		Conversion:     links.FormatRate(rate),
		LastClickedAt:  link.LastClickedAt,
		CreatedAt:      link.CreatedAt,
		UpdatedAt:      link.UpdatedAt,
	}
}

// linkError translates registry errors into problem responses.
func (h *LinkHandler) linkError(op string, err error) error {
	switch {
	case errors.Is(err, links.ErrNotFound):
		return huma.Error404NotFound("link not found")
	case errors.Is(err, links.ErrCodeTaken):
		return huma.Error409Conflict("short code is already in use")
	case errors.Is(err, links.ErrInvalidDestination), errors.Is(err, links.ErrInvalidStatus):
		return huma.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("link operation failed", zap.String("op", op), zap.Error(err))

		return huma.Error500InternalServerError("failed to " + op + " link")
	}
}

func draftOf(body LinkBody) links.Draft {
	return links.Draft{
		Title:          body.Title,
		DestinationURL: body.DestinationURL,
		ShortCode:      body.ShortCode,
		Campaign:       body.Campaign,
		Status:         links.Status(body.Status),
	}
}
