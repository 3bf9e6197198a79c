package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP resolves the originating client address for rate limiting and
// request logging. Proxy headers take precedence over the socket address:
// X-Forwarded-For (first hop), then X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// RemoteAddr is host:port; bare addresses (tests, unix sockets) pass
	// through unchanged
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
