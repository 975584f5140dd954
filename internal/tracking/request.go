package tracking

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/serroba/link-tracker/internal/links"
)

// Request is the inbound request data click tracking needs. It is captured at the HTTP edge
// and passed explicitly so resolving and recording never touch ambient request state.
type Request struct {
	// RemoteAddr is the transport peer, either "ip" or "ip:port".
	RemoteAddr string
	Header     http.Header
	Query      url.Values
}

// NewRequest captures the tracking data of an HTTP request.
func NewRequest(r *http.Request) Request {
	return Request{
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header.Clone(),
		Query:      r.URL.Query(),
	}
}

// Recordable returns a copy of r reduced to the headers and query parameters click recording
// reads: the client IP headers, User-Agent, Referer and the UTM parameters.
func (r Request) Recordable() Request {
	header := http.Header{}

	for _, key := range append([]string{"User-Agent", "Referer"}, ipHeaders...) {
		if values := r.Header.Values(key); len(values) > 0 {
			header[http.CanonicalHeaderKey(key)] = values
		}
	}

	query := url.Values{}

	for _, key := range links.UTMParams {
		if values, ok := r.Query[key]; ok {
			query[key] = values
		}
	}

	return Request{RemoteAddr: r.RemoteAddr, Header: header, Query: query}
}

func (r Request) UserAgent() string {
	return r.header("User-Agent")
}

func (r Request) Referrer() string {
	return r.header("Referer")
}

// UTM returns the trimmed value of a UTM query parameter, or "" when it is absent.
func (r Request) UTM(key string) string {
	return strings.TrimSpace(r.Query.Get(key))
}

func (r Request) header(key string) string {
	if r.Header == nil {
		return ""
	}

	return r.Header.Get(key)
}

type requestKey struct{}

// ContextWithRequest returns a copy of ctx carrying req.
func ContextWithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFromContext returns the request stored by ContextWithRequest.
func RequestFromContext(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey{}).(Request)

	return req, ok
}
