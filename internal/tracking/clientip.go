package tracking

import (
	"net"
	"net/netip"
	"strings"
)

// UnknownIP is recorded when no usable address can be found.
const UnknownIP = "0.0.0.0"

// ipHeaders are consulted in order; the first whose leading entry is a public address wins.
var ipHeaders = []string{
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::ffff:0:0/96"),
	netip.MustParsePrefix("fe80::/10"),
}

// ClientIP resolves the visitor address from proxy headers and the remote address.
// Header values are only trusted when their first entry is a public, non-reserved address;
// otherwise the remote address is used when it is any valid IP, and UnknownIP after that.
func ClientIP(req Request) string {
	remote := remoteHost(req.RemoteAddr)

	candidates := make([]string, 0, len(ipHeaders)+1)
	for _, key := range ipHeaders {
		candidates = append(candidates, req.header(key))
	}

	candidates = append(candidates, remote)

	for _, value := range candidates {
		if value == "" {
			continue
		}

		first, _, _ := strings.Cut(value, ",")
		first = strings.TrimSpace(first)

		if addr, err := netip.ParseAddr(first); err == nil && isPublic(addr) {
			return first
		}
	}

	if _, err := netip.ParseAddr(remote); err == nil {
		return remote
	}

	return UnknownIP
}

func isPublic(addr netip.Addr) bool {
	if addr.Zone() != "" || addr.IsPrivate() {
		return false
	}

	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}

	return true
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}

	return remoteAddr
}
