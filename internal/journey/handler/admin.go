package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/httputil"
	"memberportal/pkg/requestcontext"
)

// AdminService is the operator side of the journey service.
type AdminService[T models.Payload] interface {
	JourneyType() id.JourneyType
	ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error)
	PurgeExpired(ctx context.Context) (int, error)
}

// AdminHandler serves /admin/journeys/{journeyType}. The router must carry
// the admin token middleware.
type AdminHandler[T models.Payload] struct {
	service AdminService[T]
	logger  *slog.Logger
}

func NewAdmin[T models.Payload](service AdminService[T], logger *slog.Logger) *AdminHandler[T] {
	return &AdminHandler[T]{service: service, logger: logger}
}

func (h *AdminHandler[T]) Register(r chi.Router) {
	r.Route("/admin/journeys/"+h.service.JourneyType().String(), func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/purge", h.HandlePurge)
	})
}

// HandleList handles GET /admin/journeys/{type}?business_group=.
func (h *AdminHandler[T]) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	bg, err := parseBusinessGroup(r.URL.Query().Get("business_group"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	journeys, err := h.service.ListByBusinessGroup(ctx, bg)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list journeys",
			"request_id", requestID,
			"business_group", bg,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromJourneys(journeys))
}

// HandlePurge handles POST /admin/journeys/{type}/purge.
func (h *AdminHandler[T]) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	n, err := h.service.PurgeExpired(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to purge expired journeys",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "expired journeys purged by operator",
		"request_id", requestID,
		"journey_type", h.service.JourneyType(),
		"deleted", n,
	)
	httputil.WriteJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}
