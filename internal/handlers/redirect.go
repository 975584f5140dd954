package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

// RedirectHandler follows short links.
type RedirectHandler struct {
	resolver *tracking.Resolver
	logger   *zap.Logger
}

// NewRedirectHandler creates a new redirect handler.
func NewRedirectHandler(resolver *tracking.Resolver, logger *zap.Logger) *RedirectHandler {
	return &RedirectHandler{resolver: resolver, logger: logger}
}

// Redirect sends the visitor to the destination of the published link with the code. The
// click is tracked from the request captured by the RequestMeta middleware.
func (h *RedirectHandler) Redirect(ctx context.Context, req *RedirectRequest) (*RedirectResponse, error) {
	trackingReq, _ := tracking.RequestFromContext(ctx)

	res, err := h.resolver.Resolve(ctx, req.Code, trackingReq)
	if err != nil {
		h.logger.Error("failed to resolve short link", zap.String("code", req.Code), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to resolve link")
	}

	if res.Outcome != tracking.OutcomeRedirect {
		return nil, huma.Error404NotFound("short link not found")
	}

	resp := &RedirectResponse{Status: http.StatusFound}
	resp.Headers.Location = res.Location
	resp.Headers.CacheControl = "no-store"

	return resp, nil
}
