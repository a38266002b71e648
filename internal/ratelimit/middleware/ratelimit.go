// Package middleware applies per-member request limits to the journey API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"memberportal/internal/ratelimit/models"
	"memberportal/pkg/platform/httputil"
	"memberportal/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type rejectionRecorder interface {
	IncrementRateLimited(class string)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	limits   map[models.Class]models.Limit
	metrics  rejectionRecorder
	disabled bool
}

type Option func(*Middleware)

// WithLimit sets the limit for one class. Classes without a limit are not
// checked.
func WithLimit(class models.Class, limit models.Limit) Option {
	return func(m *Middleware) {
		if limit.Requests > 0 && limit.Window > 0 {
			m.limits[class] = limit
		}
	}
}

func WithMetrics(r rejectionRecorder) Option {
	return func(m *Middleware) {
		m.metrics = r
	}
}

// WithDisabled turns every check off.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
		limits:  make(map[models.Class]models.Limit),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitMember limits requests per authenticated member, falling back to
// the client IP. GET and HEAD count as reads, everything else as writes.
// Limiter failures let the request through.
func (m *Middleware) RateLimitMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := classFor(r.Method)
		limit, ok := m.limits[class]
		if m.disabled || !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := subject(ctx) + ":" + string(class)
		result, err := m.limiter.Allow(ctx, key, limit.Requests, limit.Window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncrementRateLimited(string(class))
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
				"retry_after", result.RetryAfter,
			)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func classFor(method string) models.Class {
	switch method {
	case http.MethodGet, http.MethodHead:
		return models.ClassRead
	default:
		return models.ClassWrite
	}
}

func subject(ctx context.Context) string {
	if member := requestcontext.Member(ctx); !member.IsZero() {
		return "member:" + member.String()
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:            "rate_limit_exceeded",
		ErrorDescription: "Too many requests. Please try again later.",
		RetryAfter:       result.RetryAfter,
	})
}
