package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/link-tracker/internal/tracking"
)

// RequestMeta is a middleware that captures the remote address, headers and query of the
// request into the context so handlers can track clicks without the raw request.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		newCtx := tracking.ContextWithRequest(ctx.Context(), trackingRequest(ctx))
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

func trackingRequest(ctx huma.Context) tracking.Request {
	header := make(http.Header)
	ctx.EachHeader(func(name, value string) {
		header.Add(name, value)
	})

	u := ctx.URL()

	return tracking.Request{
		RemoteAddr: ctx.RemoteAddr(),
		Header:     header,
		Query:      u.Query(),
	}
}
