// Package handler exposes journey operations over HTTP. One Handler serves
// one journey type under /journeys/{journeyType}.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
	"memberportal/pkg/platform/httputil"
	"memberportal/pkg/requestcontext"
)

const maxGenericDataBytes = 64 << 10

// Service defines the journey operations the handler needs.
type Service[T models.Payload] interface {
	JourneyType() id.JourneyType
	Start(ctx context.Context, member id.Member, currentPageKey, nextPageKey string, payload T) (*models.Journey[T], error)
	Get(ctx context.Context, member id.Member) (*models.Journey[T], error)
	SubmitStep(ctx context.Context, member id.Member, currentPageKey, nextPageKey string, form *models.QuestionForm) (*models.Journey[T], error)
	PreviousPage(ctx context.Context, member id.Member, pageKey string) (string, bool, error)
	RedirectPage(ctx context.Context, member id.Member, pageKey string) (string, error)
	QuestionForm(ctx context.Context, member id.Member, pageKey string) (models.QuestionForm, bool, error)
	UpdateStep(ctx context.Context, member id.Member, currentPageKey, newNextPageKey string) (*models.Journey[T], error)
	RemoveStepsStartingWith(ctx context.Context, member id.Member, pageKey string) (*models.Journey[T], error)
	RemoveInactiveBranches(ctx context.Context, member id.Member) (*models.Journey[T], int, error)
	MarkDeadEnd(ctx context.Context, member id.Member, pageKey string) (*models.Journey[T], error)
	RemoveDeadEndSteps(ctx context.Context, member id.Member) (*models.Journey[T], error)
	ReplaceAllSteps(ctx context.Context, member id.Member, currentPageKey, nextPageKey string) (*models.Journey[T], error)
	SaveGenericData(ctx context.Context, member id.Member, pageKey, formKey string, payload json.RawMessage) (*models.Journey[T], error)
	SaveCheckboxes(ctx context.Context, member id.Member, pageKey string, list models.CheckboxesList) (*models.Journey[T], error)
	UpdatePayload(ctx context.Context, member id.Member, fn func(p *T, now time.Time) error) (*models.Journey[T], error)
	Submit(ctx context.Context, member id.Member) (*models.Journey[T], error)
	Delete(ctx context.Context, member id.Member) error
}

// Handler wires journey endpoints to the journey service.
type Handler[T models.Payload] struct {
	service Service[T]
	logger  *slog.Logger
}

func New[T models.Payload](service Service[T], logger *slog.Logger) *Handler[T] {
	return &Handler[T]{
		service: service,
		logger:  logger,
	}
}

// Register mounts the journey endpoints. The router must already carry the
// auth middleware.
func (h *Handler[T]) Register(r chi.Router) {
	r.Route("/journeys/"+h.service.JourneyType().String(), func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleDelete)
		r.Patch("/payload", h.HandleUpdatePayload)
		r.Post("/steps", h.HandleSubmitStep)
		r.Put("/steps", h.HandleReplaceSteps)
		r.Delete("/steps/dead-ends", h.HandleRemoveDeadEnds)
		r.Post("/submit", h.HandleSubmit)
		r.Delete("/branches/inactive", h.HandleRemoveInactiveBranches)

		r.Route("/pages/{pageKey}", func(r chi.Router) {
			r.Get("/previous", h.HandlePreviousPage)
			r.Get("/redirect", h.HandleRedirectPage)
			r.Get("/question-form", h.HandleQuestionForm)
			r.Put("/next", h.HandleUpdateNextPage)
			r.Delete("/steps", h.HandleRemoveSteps)
			r.Post("/dead-end", h.HandleMarkDeadEnd)
			r.Post("/generic-data/{formKey}", h.HandleSaveGenericData)
			r.Post("/checkboxes", h.HandleSaveCheckboxes)
		})
	})
}

// HandleStart handles POST /journeys/{type}.
func (h *Handler[T]) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var payload T
	if err := patchPayload(&payload, req.Payload, requestcontext.Now(ctx)); err != nil {
		h.fail(ctx, w, "failed to start journey", requestID, err)
		return
	}

	j, err := h.service.Start(ctx, member, req.CurrentPageKey, req.NextPageKey, payload)
	if err != nil {
		h.fail(ctx, w, "failed to start journey", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromJourney(j))
}

// HandleGet handles GET /journeys/{type}.
func (h *Handler[T]) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	j, err := h.service.Get(ctx, member)
	if err != nil {
		h.fail(ctx, w, "failed to load journey", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleDelete handles DELETE /journeys/{type}.
func (h *Handler[T]) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, member); err != nil {
		h.fail(ctx, w, "failed to delete journey", requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdatePayload handles PATCH /journeys/{type}/payload. Fields present
// in the body are applied through the payload's validating setters; a
// rejected field leaves the stored payload untouched.
func (h *Handler[T]) HandleUpdatePayload(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	body, ok := h.readJSON(ctx, w, r, requestID)
	if !ok {
		return
	}

	j, err := h.service.UpdatePayload(ctx, member, func(p *T, now time.Time) error {
		return patchPayload(p, body, now)
	})
	if err != nil {
		h.fail(ctx, w, "failed to update journey payload", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

func patchPayload[T models.Payload](p *T, raw json.RawMessage, now time.Time) error {
	patcher, ok := any(p).(models.PayloadPatcher)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "journey type does not accept payload updates")
	}
	return patcher.ApplyPatch(raw, now)
}

// HandleSubmitStep handles POST /journeys/{type}/steps.
func (h *Handler[T]) HandleSubmitStep(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitStepRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	j, err := h.service.SubmitStep(ctx, member, req.CurrentPageKey, req.NextPageKey, req.Form())
	if err != nil {
		h.fail(ctx, w, "failed to submit step", requestID, err)
		return
	}
	h.logger.InfoContext(ctx, "journey step submitted",
		"request_id", requestID,
		"journey_type", h.service.JourneyType(),
		"active_branch", j.ActiveBranchNumber(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleReplaceSteps handles PUT /journeys/{type}/steps.
func (h *Handler[T]) HandleReplaceSteps(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReplaceStepsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	j, err := h.service.ReplaceAllSteps(ctx, member, req.CurrentPageKey, req.NextPageKey)
	if err != nil {
		h.fail(ctx, w, "failed to replace steps", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleRemoveDeadEnds handles DELETE /journeys/{type}/steps/dead-ends.
func (h *Handler[T]) HandleRemoveDeadEnds(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	j, err := h.service.RemoveDeadEndSteps(ctx, member)
	if err != nil {
		h.fail(ctx, w, "failed to remove dead-end steps", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleSubmit handles POST /journeys/{type}/submit.
func (h *Handler[T]) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	j, err := h.service.Submit(ctx, member)
	if err != nil {
		h.fail(ctx, w, "failed to submit journey", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleRemoveInactiveBranches handles DELETE /journeys/{type}/branches/inactive.
func (h *Handler[T]) HandleRemoveInactiveBranches(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	_, removed, err := h.service.RemoveInactiveBranches(ctx, member)
	if err != nil {
		h.fail(ctx, w, "failed to remove inactive branches", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PrunedResponse{Removed: removed})
}

// HandlePreviousPage handles GET /pages/{pageKey}/previous.
func (h *Handler[T]) HandlePreviousPage(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	prev, found, err := h.service.PreviousPage(ctx, member, chi.URLParam(r, "pageKey"))
	if err != nil {
		h.fail(ctx, w, "failed to resolve previous page", requestID, err)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "previous page not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PageResponse{PageKey: prev})
}

// HandleRedirectPage handles GET /pages/{pageKey}/redirect.
func (h *Handler[T]) HandleRedirectPage(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	page, err := h.service.RedirectPage(ctx, member, chi.URLParam(r, "pageKey"))
	if err != nil {
		h.fail(ctx, w, "failed to resolve redirect page", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PageResponse{PageKey: page})
}

// HandleQuestionForm handles GET /pages/{pageKey}/question-form.
func (h *Handler[T]) HandleQuestionForm(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	form, found, err := h.service.QuestionForm(ctx, member, chi.URLParam(r, "pageKey"))
	if err != nil {
		h.fail(ctx, w, "failed to load question form", requestID, err)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "question form not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, form)
}

// HandleUpdateNextPage handles PUT /pages/{pageKey}/next.
func (h *Handler[T]) HandleUpdateNextPage(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateNextPageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	j, err := h.service.UpdateStep(ctx, member, chi.URLParam(r, "pageKey"), req.NextPageKey)
	if err != nil {
		h.fail(ctx, w, "failed to update step", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleRemoveSteps handles DELETE /pages/{pageKey}/steps.
func (h *Handler[T]) HandleRemoveSteps(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	j, err := h.service.RemoveStepsStartingWith(ctx, member, chi.URLParam(r, "pageKey"))
	if err != nil {
		h.fail(ctx, w, "failed to remove steps", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleMarkDeadEnd handles POST /pages/{pageKey}/dead-end.
func (h *Handler[T]) HandleMarkDeadEnd(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	j, err := h.service.MarkDeadEnd(ctx, member, chi.URLParam(r, "pageKey"))
	if err != nil {
		h.fail(ctx, w, "failed to mark dead end", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleSaveGenericData handles POST /pages/{pageKey}/generic-data/{formKey}.
// The body is stored verbatim.
func (h *Handler[T]) HandleSaveGenericData(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	body, ok := h.readJSON(ctx, w, r, requestID)
	if !ok {
		return
	}
	j, err := h.service.SaveGenericData(ctx, member, chi.URLParam(r, "pageKey"), chi.URLParam(r, "formKey"), body)
	if err != nil {
		h.fail(ctx, w, "failed to save generic data", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// HandleSaveCheckboxes handles POST /pages/{pageKey}/checkboxes.
func (h *Handler[T]) HandleSaveCheckboxes(w http.ResponseWriter, r *http.Request) {
	ctx, member, requestID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CheckboxesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	j, err := h.service.SaveCheckboxes(ctx, member, chi.URLParam(r, "pageKey"), req.List())
	if err != nil {
		h.fail(ctx, w, "failed to save checkboxes", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

func (h *Handler[T]) authenticated(w http.ResponseWriter, r *http.Request) (context.Context, id.Member, string, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	member := requestcontext.Member(ctx)
	if member.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return ctx, member, requestID, false
	}
	return ctx, member, requestID, true
}

func (h *Handler[T]) readJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, requestID string) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxGenericDataBytes+1))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read request body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return nil, false
	}
	if len(body) > maxGenericDataBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "request body is too large"))
		return nil, false
	}
	if !json.Valid(body) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return nil, false
	}
	return body, true
}

// fail logs client errors at warn and everything else at error, then writes
// the mapped response.
func (h *Handler[T]) fail(ctx context.Context, w http.ResponseWriter, msg, requestID string, err error) {
	args := []any{
		"request_id", requestID,
		"journey_type", h.service.JourneyType(),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}
