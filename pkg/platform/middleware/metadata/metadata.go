// Package metadata records where a request came from for audit events and
// anonymous rate limiting.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"memberportal/pkg/requestcontext"
)

const unknownIP = "unknown"

// ClientMetadata stores the client address and User-Agent in the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest picks the first parseable address among the leading
// X-Forwarded-For entry, X-Real-IP and RemoteAddr. Garbage in a proxy header
// is skipped rather than trusted.
func ClientIPFromRequest(r *http.Request) string {
	forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	candidates := []string{forwarded, r.Header.Get("X-Real-IP"), hostOf(r.RemoteAddr)}
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(c)); err == nil {
			return addr.Unmap().String()
		}
	}
	return unknownIP
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
