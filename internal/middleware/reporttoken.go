package middleware

import (
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/auth"
	"github.com/serroba/link-tracker/internal/ratelimit"
	"go.uber.org/zap"
)

// ReportToken returns a Huma middleware guarding operations that declare the
// auth.SecurityScheme security requirement. The token is read from the X-Report-Token header,
// then the token query parameter. Failed attempts are recorded against failures; once a
// client exceeds it every further attempt is rejected with 429 until the window passes.
//
// A nil tokens rejects every guarded request, which is how the server runs without a secret.
func ReportToken(
	api huma.API,
	tokens *auth.Tokens,
	failures ratelimit.Limiter,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !requiresReportToken(ctx.Operation()) {
			next(ctx)

			return
		}

		token := ctx.Header(auth.HeaderName)
		if token == "" {
			token = ctx.Query(auth.QueryParam)
		}

		if tokens != nil {
			subject, err := tokens.Verify(token)
			if err == nil {
				logger.Debug("report token accepted",
					zap.String("subject", subject), zap.String("path", getOperationPath(ctx)))
				next(ctx)

				return
			}
		}

		decision, err := failures.Allow(ctx.Context(), "report-token:"+clientKey(ctx))
		if err != nil {
			logger.Error("token failure check failed", zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if !decision.Allowed() {
			logger.Warn("too many failed report token attempts",
				zap.String("path", getOperationPath(ctx)),
				zap.String("client_ip", clientIP(ctx)),
			)
			ctx.SetHeader(HeaderRetryAfter, retryAfter(decision.Limit))
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "too many failed token attempts")

			return
		}

		_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing or invalid report token")
	}
}

func requiresReportToken(op *huma.Operation) bool {
	if op == nil {
		return false
	}

	return slices.ContainsFunc(op.Security, func(req map[string][]string) bool {
		_, ok := req[auth.SecurityScheme]

		return ok
	})
}
