package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/embed"
	"go.uber.org/zap"
)

const htmlContentType = "text/html; charset=utf-8"

// EmbedHandler serves link markup for pages that embed tracked links.
type EmbedHandler struct {
	renderer *embed.Renderer
	logger   *zap.Logger
}

// NewEmbedHandler creates a new embed handler.
func NewEmbedHandler(renderer *embed.Renderer, logger *zap.Logger) *EmbedHandler {
	return &EmbedHandler{renderer: renderer, logger: logger}
}

// TrackedLink renders an anchor to the link's short URL. Unknown links render an inline
// error fragment with status 200 so the embedding page still renders.
func (h *EmbedHandler) TrackedLink(ctx context.Context, req *EmbedLinkRequest) (*HTMLResponse, error) {
	markup, err := h.renderer.TrackedLink(ctx, embed.TrackedLinkParams{
		ID:     req.ID,
		Text:   req.Text,
		Class:  req.Class,
		Target: req.Target,
		Rel:    req.Rel,
	})
	if err != nil {
		h.logger.Error("failed to render tracked link", zap.String("id", req.ID), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to render link")
	}

	return &HTMLResponse{ContentType: htmlContentType, Body: []byte(markup)}, nil
}

func (h *EmbedHandler) Stats(ctx context.Context, req *EmbedStatsRequest) (*HTMLResponse, error) {
	markup, err := h.renderer.Stats(ctx, embed.StatsParams{ID: req.ID, Show: req.Show, Class: req.Class})
	if err != nil {
		h.logger.Error("failed to render link stats", zap.String("id", req.ID), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to render stats")
	}

	return &HTMLResponse{ContentType: htmlContentType, Body: []byte(markup)}, nil
}
