// Package device turns the User-Agent header into a short display name
// ("Chrome on macOS") recorded on audit events instead of the raw header.
package device

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

const Unknown = "Unknown Device"

type contextKeyDevice struct{}

// Middleware stores the display name of the requesting device.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithDevice(r.Context(), DisplayName(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DisplayName summarizes a User-Agent. Empty or unparseable input yields Unknown.
func DisplayName(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return Unknown
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name

	switch {
	case ua.Bot():
		if browser == "" {
			return "Bot"
		}
		return browser + " (bot)"
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return Unknown
	}
}

// Get retrieves the device display name from the context.
func Get(ctx context.Context) string {
	if d, ok := ctx.Value(contextKeyDevice{}).(string); ok {
		return d
	}
	return ""
}

// WithDevice injects a device display name into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, device)
}
