package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/analytics"
	"go.uber.org/zap"
)

// ReportHandler serves the analytics dashboard data.
type ReportHandler struct {
	aggregator *analytics.Aggregator
	logger     *zap.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(aggregator *analytics.Aggregator, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{aggregator: aggregator, logger: logger}
}

func (h *ReportHandler) Summary(ctx context.Context, req *ReportRequest) (*SummaryResponse, error) {
	summary, err := h.aggregator.Summary(ctx, req.query())
	if err != nil {
		return nil, h.reportError("summary", err)
	}

	return &SummaryResponse{Body: summary}, nil
}

// TopLinks ranks links by lifetime clicks. The date window does not apply.
func (h *ReportHandler) TopLinks(ctx context.Context, req *TopReportRequest) (*TopLinksResponse, error) {
	top, err := h.aggregator.TopLinks(ctx, req.Limit)
	if err != nil {
		return nil, h.reportError("top links", err)
	}

	resp := &TopLinksResponse{}
	resp.Body.Links = top

	return resp, nil
}

func (h *ReportHandler) TopReferrers(ctx context.Context, req *TopReportRequest) (*TopReferrersResponse, error) {
	referrers, err := h.aggregator.TopReferrers(ctx, req.query(), req.Limit)
	if err != nil {
		return nil, h.reportError("top referrers", err)
	}

	resp := &TopReferrersResponse{}
	resp.Body.Referrers = referrers

	return resp, nil
}

func (h *ReportHandler) ClicksOverTime(ctx context.Context, req *ReportRequest) (*SeriesResponse, error) {
	series, err := h.aggregator.ClicksOverTime(ctx, req.query())
	if err != nil {
		return nil, h.reportError("clicks over time", err)
	}

	return &SeriesResponse{Body: series}, nil
}

func (h *ReportHandler) Devices(ctx context.Context, req *ReportRequest) (*BreakdownResponse, error) {
	return h.breakdown(ctx, analytics.DimensionDevice, req)
}

func (h *ReportHandler) Browsers(ctx context.Context, req *ReportRequest) (*BreakdownResponse, error) {
	return h.breakdown(ctx, analytics.DimensionBrowser, req)
}

func (h *ReportHandler) OperatingSystems(ctx context.Context, req *ReportRequest) (*BreakdownResponse, error) {
	return h.breakdown(ctx, analytics.DimensionOS, req)
}

func (h *ReportHandler) DataCount(ctx context.Context, req *ReportRequest) (*DataCountResponse, error) {
	count, err := h.aggregator.DataCount(ctx, req.query())
	if err != nil {
		return nil, h.reportError("data count", err)
	}

	return &DataCountResponse{Body: count}, nil
}

func (h *ReportHandler) Debug(ctx context.Context, req *ReportRequest) (*DebugResponse, error) {
	info, err := h.aggregator.DebugRange(ctx, req.query())
	if err != nil {
		return nil, h.reportError("debug", err)
	}

	return &DebugResponse{Body: info}, nil
}

func (h *ReportHandler) Reset(ctx context.Context, _ *struct{}) (*ResetResponse, error) {
	result, err := h.aggregator.Reset(ctx)
	if err != nil {
		return nil, h.reportError("reset", err)
	}

	return &ResetResponse{Body: result}, nil
}

func (h *ReportHandler) breakdown(
	ctx context.Context, dim analytics.Dimension, req *ReportRequest,
) (*BreakdownResponse, error) {
	b, err := h.aggregator.Breakdown(ctx, dim, req.query())
	if err != nil {
		return nil, h.reportError(string(dim), err)
	}

	return &BreakdownResponse{Body: b}, nil
}

func (h *ReportHandler) reportError(report string, err error) error {
	if errors.Is(err, analytics.ErrInvalidRange) {
		return huma.Error400BadRequest(err.Error())
	}

	h.logger.Error("report failed", zap.String("report", report), zap.Error(err))

	return huma.Error500InternalServerError("failed to build report")
}
