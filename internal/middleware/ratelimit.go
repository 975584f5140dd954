package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/ratelimit"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// clientKey identifies a client by address and User-Agent, the same pair a visitor
// fingerprint uses.
func clientKey(ctx huma.Context) string {
	hash := sha256.Sum256([]byte(clientIP(ctx) + "|" + ctx.Header("User-Agent")))

	return hex.EncodeToString(hash[:])
}

// clientIP resolves the client address the same way clicks are attributed.
func clientIP(ctx huma.Context) string {
	return tracking.ClientIP(trackingRequest(ctx))
}

func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// PolicyRateLimiter returns a Huma middleware counting each request against the limits of
// the scopes resolver assigns it. Operations may carry a ratelimit.EndpointConfig under
// ratelimit.MetadataKey to be skipped, or to be counted per route against their own Limits.
//
// Allowed responses carry X-RateLimit-Limit and X-RateLimit-Remaining for the limit closest to
// exhaustion. Rejected ones answer 429 with Retry-After set to the window of the exceeded limit.
func PolicyRateLimiter(
	api huma.API,
	limiter *ratelimit.PolicyLimiter,
	resolver ratelimit.ScopeResolver,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cfg, _ := ratelimit.ConfigOf(ctx.Operation())
		if cfg.Disabled {
			next(ctx)

			return
		}

		var (
			res ratelimit.Result
			err error
		)

		if len(cfg.Limits) > 0 {
			res, err = limiter.CheckLimits(ctx.Context(), clientKey(ctx), "route:"+getOperationPath(ctx), cfg.Limits)
		} else {
			res, err = limiter.Check(ctx.Context(), clientKey(ctx), resolver.Resolve(ctx))
		}

		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", getOperationPath(ctx)), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if !res.Allowed() {
			rejectRateLimited(api, ctx, res, logger)

			return
		}

		if res.Bucket != "" {
			ctx.SetHeader(HeaderLimit, strconv.FormatInt(res.Limit.Max, 10))
			ctx.SetHeader(HeaderRemaining, strconv.FormatInt(res.Remaining(), 10))
		}

		next(ctx)
	}
}

func rejectRateLimited(api huma.API, ctx huma.Context, res ratelimit.Result, logger *zap.Logger) {
	logger.Warn("rate limit exceeded",
		zap.String("path", getOperationPath(ctx)),
		zap.String("method", ctx.Method()),
		zap.String("bucket", res.Bucket),
		zap.Int64("count", res.Count),
		zap.Int64("max", res.Limit.Max),
		zap.Duration("window", res.Limit.Window),
		zap.String("client_ip", clientIP(ctx)),
	)

	ctx.SetHeader(HeaderLimit, strconv.FormatInt(res.Limit.Max, 10))
	ctx.SetHeader(HeaderRemaining, "0")
	ctx.SetHeader(HeaderRetryAfter, retryAfter(res.Limit))

	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, fmt.Sprintf(
		"rate limit exceeded: %s, %d/%d requests in %s",
		res.Bucket, res.Count, res.Limit.Max, res.Limit.Window))
}

// retryAfter is the window in whole seconds. A sliding window frees its oldest hit no later
// than one window from now.
func retryAfter(limit ratelimit.LimitConfig) string {
	return strconv.FormatInt(int64(math.Ceil(limit.Window.Seconds())), 10)
}
