package testutil

import (
	"net/http"
	"time"

	id "memberportal/pkg/domain"
	"memberportal/pkg/requestcontext"
)

// WithMember marks the request as authenticated for member, the way the
// auth middleware would.
func WithMember(req *http.Request, member id.Member) *http.Request {
	return req.WithContext(requestcontext.WithMember(req.Context(), member))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
