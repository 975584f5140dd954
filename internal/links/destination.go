package links

import (
	"net/url"
	"regexp"
	"strings"
)

var httpSchemePattern = regexp.MustCompile(`^https?://`)

// UTMParams are the campaign attribution query parameters carried from the short link
// to the destination, in recording order.
var UTMParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// hostlessSchemes are the schemes a valid URL may use without a host.
var hostlessSchemes = map[string]bool{"mailto": true, "news": true, "file": true}

// IsValidURL reports whether raw parses as an absolute URL with a scheme and a host. Only
// mailto, news and file URLs may omit the host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}

	return u.Host != "" || hostlessSchemes[strings.ToLower(u.Scheme)]
}

// NormalizeDestination repairs a stored destination for redirecting. Anything that is not
// a valid URL and has no http(s) scheme gets "http://" prepended; nothing is rejected.
func NormalizeDestination(raw string) string {
	raw = strings.TrimSpace(raw)
	if IsValidURL(raw) {
		return raw
	}

	if !httpSchemePattern.MatchString(raw) {
		return "http://" + raw
	}

	return raw
}

// AppendQuery appends params to the destination's query string. Existing pairs keep their
// order and encoding; pairs whose key is in params are dropped first. The destination is
// returned unchanged when params is empty or it cannot be parsed.
func AppendQuery(destination string, params url.Values) string {
	if len(params) == 0 {
		return destination
	}

	u, err := url.Parse(destination)
	if err != nil {
		return destination
	}

	var pairs []string

	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}

		key, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}

		if _, replaced := params[key]; !replaced {
			pairs = append(pairs, pair)
		}
	}

	u.RawQuery = strings.Join(append(pairs, params.Encode()), "&")

	return u.String()
}

// UTMValues picks the UTM parameters present in query. Present-but-empty values are kept.
func UTMValues(query url.Values) url.Values {
	utm := url.Values{}

	for _, key := range UTMParams {
		if values, ok := query[key]; ok && len(values) > 0 {
			utm.Set(key, strings.TrimSpace(values[0]))
		}
	}

	return utm
}
