package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"memberportal/internal/journey/handler"
	journeymetrics "memberportal/internal/journey/metrics"
	"memberportal/internal/journey/models"
	"memberportal/internal/journey/service"
	journeystore "memberportal/internal/journey/store/journey"
	jwttoken "memberportal/internal/jwt_token"
	"memberportal/internal/platform/config"
	"memberportal/internal/platform/metrics"
	ratelimitmw "memberportal/internal/ratelimit/middleware"
	ratelimitmodels "memberportal/internal/ratelimit/models"
	"memberportal/internal/ratelimit/store/bucket"
	"memberportal/pkg/platform/httputil"
	adminmw "memberportal/pkg/platform/middleware/admin"
	authmw "memberportal/pkg/platform/middleware/auth"
	"memberportal/pkg/platform/middleware/device"
	"memberportal/pkg/platform/middleware/metadata"
	"memberportal/pkg/platform/middleware/request"
	"memberportal/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type app struct {
	router  http.Handler
	purgers []purger
}

// buildApp assembles the router: shared middleware, /healthz and /metrics,
// member routes behind JWT auth and operator routes behind the admin token.
func buildApp(cfg config.Config, in *infra, auditPublisher service.AuditPublisher, log *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) *app {
	httpMetrics := metrics.NewWith(reg, gatherer)
	jm := journeymetrics.NewWith(reg)
	policy := models.ExpiryPolicy{
		ProcessingWindowDays: cfg.Journey.ProcessingWindowDays,
		MinimumWindowDays:    cfg.Journey.MinimumWindowDays,
		MaximumWindowDays:    cfg.Journey.MaximumWindowDays,
	}
	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(jm),
		service.WithExpiryPolicy(policy),
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := in.Health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", httpMetrics.Handler())

	a := &app{router: r}
	var members, admins []func(chi.Router)
	register := func(m, ad func(chi.Router), p purger) {
		members = append(members, m)
		admins = append(admins, ad)
		a.purgers = append(a.purgers, p)
	}
	register(mountJourney[models.RetirementPayload](cfg, in, opts, log))
	register(mountJourney[models.TransferPayload](cfg, in, opts, log))
	register(mountJourney[models.QuoteSelectionPayload](cfg, in, opts, log))

	limiter := newRateLimiter(cfg, in, httpMetrics, log)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		r.Use(limiter.RateLimitMember)
		for _, m := range members {
			m(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Auth.AdminToken, log))
		for _, ad := range admins {
			ad(r)
		}
	})
	return a
}

// newRateLimiter shares limits through Redis when it is configured.
func newRateLimiter(cfg config.Config, in *infra, m *metrics.Metrics, log *slog.Logger) *ratelimitmw.Middleware {
	var store ratelimitmw.Limiter = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		store = bucket.NewRedisBucketStore(in.redis.Client)
	}
	return ratelimitmw.New(store, log,
		ratelimitmw.WithDisabled(!cfg.RateLimit.Enabled),
		ratelimitmw.WithMetrics(m),
		ratelimitmw.WithLimit(ratelimitmodels.ClassRead, ratelimitmodels.Limit{Requests: cfg.RateLimit.ReadPerMinute, Window: time.Minute}),
		ratelimitmw.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: cfg.RateLimit.WritePerMinute, Window: time.Minute}),
	)
}

// mountJourney builds the store, service and handlers for one journey type.
func mountJourney[T models.Payload](cfg config.Config, in *infra, opts []service.Option, log *slog.Logger) (func(chi.Router), func(chi.Router), purger) {
	svc := service.New[T](newJourneyStore[T](cfg, in), opts...)
	member := handler.New[T](svc, log)
	admin := handler.NewAdmin[T](svc, log)
	return member.Register, admin.Register, svc
}

func newJourneyStore[T models.Payload](cfg config.Config, in *infra) service.Store[T] {
	switch cfg.Journey.Store {
	case config.StorePostgres:
		return journeystore.NewPostgres[T](in.db)
	case config.StoreRedis:
		return journeystore.NewRedis[T](in.redis.Client)
	default:
		return journeystore.NewInMemory[T]()
	}
}
