package auth

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderRealIP         = "X-Real-IP"
	HeaderOriginalIP     = "X-Original-IP"
	unknownOriginAddress = "unknown"
)

// ExtractOriginAddress resolves the caller address for logging and auditing only.
// Order: first X-Forwarded-For entry, X-Real-IP, X-Original-IP, then the peer address.
func ExtractOriginAddress(r *http.Request) string {
	if r == nil {
		return unknownOriginAddress
	}
	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	for _, h := range []string{HeaderRealIP, HeaderOriginalIP} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if r.RemoteAddr == "" {
		return unknownOriginAddress
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
