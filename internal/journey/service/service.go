// Package service orchestrates journeys: it loads a journey, applies one
// engine operation under the store's Execute, and reports what happened
// through logs, audit events, metrics and trace spans.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	journeymetrics "memberportal/internal/journey/metrics"
	"memberportal/internal/journey/models"
	journeystore "memberportal/internal/journey/store/journey"
	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
	"memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/sentinel"
	"memberportal/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AuditPublisher

// Store persists journeys of one payload type.
type Store[T models.Payload] interface {
	Create(ctx context.Context, j *models.Journey[T]) error
	FindByKey(ctx context.Context, key id.JourneyKey) (*models.Journey[T], error)
	Delete(ctx context.Context, key id.JourneyKey) error
	Execute(ctx context.Context, key id.JourneyKey, fn journeystore.Mutation[T]) (*models.Journey[T], error)
	ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs journey operations for one journey type.
type Service[T models.Payload] struct {
	store          Store[T]
	journeyType    id.JourneyType
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *journeymetrics.Metrics
	policy         models.ExpiryPolicy
	tracer         trace.Tracer
}

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *journeymetrics.Metrics
	policy         *models.ExpiryPolicy
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithMetrics(m *journeymetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithExpiryPolicy overrides models.DefaultExpiryPolicy.
func WithExpiryPolicy(p models.ExpiryPolicy) Option {
	return func(c *serviceConfig) {
		c.policy = &p
	}
}

func New[T models.Payload](store Store[T], opts ...Option) *Service[T] {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	policy := models.DefaultExpiryPolicy()
	if cfg.policy != nil {
		policy = *cfg.policy
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	var zero T
	return &Service[T]{
		store:          store,
		journeyType:    zero.JourneyType(),
		logger:         logger,
		auditPublisher: cfg.auditPublisher,
		metrics:        cfg.metrics,
		policy:         policy,
		tracer:         otel.Tracer("memberportal/internal/journey/service"),
	}
}

func (s *Service[T]) JourneyType() id.JourneyType { return s.journeyType }

// Start creates the member's journey. When both page keys are given the
// journey is seeded with that first step.
//
// Errors: CodeConflict when the member already has a journey of this type.
func (s *Service[T]) Start(ctx context.Context, member id.Member, currentPageKey, nextPageKey string, payload T) (_ *models.Journey[T], err error) {
	ctx, end := s.begin(ctx, "Start", member)
	defer func() { end(err) }()

	now := requestcontext.Now(ctx)
	var j *models.Journey[T]
	if currentPageKey == "" && nextPageKey == "" {
		j, err = models.NewJourney(member, now, payload)
	} else {
		j, err = models.NewJourneyWithStep(member, now, payload, currentPageKey, nextPageKey)
	}
	if err != nil {
		return nil, toValidation(err)
	}
	s.recalculateExpiry(j, now)

	if err := s.store.Create(ctx, j); err != nil {
		return nil, s.wrapStoreErr(err)
	}

	s.logAudit(ctx, audit.EventJourneyStarted, member, "page_key", currentPageKey)
	s.metrics.IncrementStarted(s.journeyType.String())
	return j, nil
}

func (s *Service[T]) Get(ctx context.Context, member id.Member) (_ *models.Journey[T], err error) {
	ctx, end := s.begin(ctx, "Get", member)
	defer func() { end(err) }()

	j, err := s.store.FindByKey(ctx, s.key(member))
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	return j, nil
}

// SubmitStep records currentPageKey -> nextPageKey on the member's journey.
//
// Errors: CodeInvalidInput `Invalid "currentPageKey"` when the page is not on
// the active branch, CodeConflict once the journey is submitted.
func (s *Service[T]) SubmitStep(ctx context.Context, member id.Member, currentPageKey, nextPageKey string, form *models.QuestionForm) (_ *models.Journey[T], err error) {
	ctx, end := s.begin(ctx, "SubmitStep", member)
	defer func() { end(err) }()

	var (
		outcome      string
		forkedBranch int
	)
	now := requestcontext.Now(ctx)
	j, err := s.store.Execute(ctx, s.key(member), func(j *models.Journey[T]) error {
		if err := ensureEditable(j); err != nil {
			return err
		}
		before := j.ActiveBranchNumber()
		beforeLen := activeLen(j)
		if err := j.TrySubmitStep(currentPageKey, nextPageKey, now, form); err != nil {
			return toValidation(err)
		}
		switch {
		case before != 0 && j.ActiveBranchNumber() != before:
			outcome, forkedBranch = "forked", j.ActiveBranchNumber()
		case activeLen(j) > beforeLen:
			outcome = "appended"
		default:
			outcome = "resubmitted"
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			s.metrics.IncrementStepSubmitted(s.journeyType.String(), "rejected")
		}
		return nil, s.wrapStoreErr(err)
	}

	s.metrics.IncrementStepSubmitted(s.journeyType.String(), outcome)
	s.logAudit(ctx, audit.EventStepSubmitted, member,
		"page_key", currentPageKey,
		"next_page_key", nextPageKey,
		"outcome", outcome,
	)
	if forkedBranch != 0 {
		s.logAudit(ctx, audit.EventBranchForked, member,
			"page_key", currentPageKey,
			"branch_number", forkedBranch,
		)
	}
	return j, nil
}

// PreviousPage returns the page the member came from; false on the first page
// and for pages the active branch never reached.
func (s *Service[T]) PreviousPage(ctx context.Context, member id.Member, pageKey string) (string, bool, error) {
	j, err := s.Get(ctx, member)
	if err != nil {
		return "", false, err
	}
	prev, ok := j.PreviousStep(pageKey)
	return prev, ok, nil
}

// RedirectPage resolves where a member landing on pageKey should be sent.
func (s *Service[T]) RedirectPage(ctx context.Context, member id.Member, pageKey string) (string, error) {
	j, err := s.Get(ctx, member)
	if err != nil {
		return "", err
	}
	return j.GetRedirectStepPageKey(pageKey), nil
}

// QuestionForm returns the answer recorded for pageKey on the active branch.
func (s *Service[T]) QuestionForm(ctx context.Context, member id.Member, pageKey string) (models.QuestionForm, bool, error) {
	j, err := s.Get(ctx, member)
	if err != nil {
		return models.QuestionForm{}, false, err
	}
	form, ok := j.QuestionForm(pageKey)
	return form, ok, nil
}

// UpdateStep rewrites the next page of the step leaving currentPageKey.
func (s *Service[T]) UpdateStep(ctx context.Context, member id.Member, currentPageKey, newNextPageKey string) (*models.Journey[T], error) {
	return s.mutateSteps(ctx, "UpdateStep", member, func(j *models.Journey[T]) error {
		return j.UpdateStep(currentPageKey, newNextPageKey)
	})
}

// RemoveStepsStartingWith truncates the active branch at pageKey.
func (s *Service[T]) RemoveStepsStartingWith(ctx context.Context, member id.Member, pageKey string) (*models.Journey[T], error) {
	j, err := s.mutateSteps(ctx, "RemoveStepsStartingWith", member, func(j *models.Journey[T]) error {
		j.RemoveStepsStartingWith(pageKey)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventStepsRemoved, member, "page_key", pageKey)
	return j, nil
}

// RemoveInactiveBranches discards every branch but the active one and
// returns how many were dropped.
func (s *Service[T]) RemoveInactiveBranches(ctx context.Context, member id.Member) (*models.Journey[T], int, error) {
	var removed int
	j, err := s.mutateSteps(ctx, "RemoveInactiveBranches", member, func(j *models.Journey[T]) error {
		removed = j.RemoveInactiveBranches()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.metrics.AddBranchesPruned(s.journeyType.String(), removed)
	s.logAudit(ctx, audit.EventBranchesPruned, member, "removed", removed)
	return j, removed, nil
}

// MarkDeadEnd flags the step leaving pageKey.
func (s *Service[T]) MarkDeadEnd(ctx context.Context, member id.Member, pageKey string) (*models.Journey[T], error) {
	return s.mutateSteps(ctx, "MarkDeadEnd", member, func(j *models.Journey[T]) error {
		return j.MarkNextPageAsDeadEnd(pageKey)
	})
}

// RemoveDeadEndSteps drops the first flagged step and everything after it.
func (s *Service[T]) RemoveDeadEndSteps(ctx context.Context, member id.Member) (*models.Journey[T], error) {
	j, err := s.mutateSteps(ctx, "RemoveDeadEndSteps", member, func(j *models.Journey[T]) error {
		j.RemoveDeadEndSteps()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventDeadEndsRemoved, member)
	return j, nil
}

// ReplaceAllSteps collapses the active branch to currentPageKey -> nextPageKey.
func (s *Service[T]) ReplaceAllSteps(ctx context.Context, member id.Member, currentPageKey, nextPageKey string) (*models.Journey[T], error) {
	now := requestcontext.Now(ctx)
	step, err := models.NewStep(currentPageKey, nextPageKey, now, nil)
	if err != nil {
		return nil, toValidation(err)
	}
	return s.mutateSteps(ctx, "ReplaceAllSteps", member, func(j *models.Journey[T]) error {
		j.ReplaceAllStepsTo(step)
		return nil
	})
}

// SaveGenericData stores an opaque JSON document against the step leaving pageKey.
func (s *Service[T]) SaveGenericData(ctx context.Context, member id.Member, pageKey, formKey string, payload json.RawMessage) (*models.Journey[T], error) {
	if !json.Valid(payload) {
		return nil, dErrors.New(dErrors.CodeValidation, "generic data must be valid JSON")
	}
	return s.mutateSteps(ctx, "SaveGenericData", member, func(j *models.Journey[T]) error {
		return j.SaveGenericData(pageKey, formKey, payload)
	})
}

// SaveCheckboxes stores a multi-select answer against the step leaving pageKey.
func (s *Service[T]) SaveCheckboxes(ctx context.Context, member id.Member, pageKey string, list models.CheckboxesList) (*models.Journey[T], error) {
	return s.mutateSteps(ctx, "SaveCheckboxes", member, func(j *models.Journey[T]) error {
		return j.SaveCheckboxesList(pageKey, list)
	})
}

// UpdatePayload applies fn to the journey's payload and recalculates the
// expiration date from the payload's anchor date, if it has one.
func (s *Service[T]) UpdatePayload(ctx context.Context, member id.Member, fn func(p *T, now time.Time) error) (*models.Journey[T], error) {
	now := requestcontext.Now(ctx)
	return s.mutateSteps(ctx, "UpdatePayload", member, func(j *models.Journey[T]) error {
		if err := fn(&j.Payload, now); err != nil {
			return err
		}
		s.recalculateExpiry(j, now)
		return nil
	})
}

// Submit validates the payload and stamps the submission date.
//
// Errors: CodeValidation when the payload is incomplete, CodeConflict when the
// journey was already submitted.
func (s *Service[T]) Submit(ctx context.Context, member id.Member) (_ *models.Journey[T], err error) {
	ctx, end := s.begin(ctx, "Submit", member)
	defer func() { end(err) }()

	now := requestcontext.Now(ctx)
	j, err := s.store.Execute(ctx, s.key(member), func(j *models.Journey[T]) error {
		if err := ensureEditable(j); err != nil {
			return err
		}
		if v, ok := any(j.Payload).(models.SubmissionValidator); ok {
			if err := v.ValidateForSubmission(); err != nil {
				return err
			}
		}
		return j.Submit(now)
	})
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}

	s.metrics.IncrementSubmitted(s.journeyType.String())
	s.logAudit(ctx, audit.EventJourneySubmitted, member)
	return j, nil
}

func (s *Service[T]) Delete(ctx context.Context, member id.Member) (err error) {
	ctx, end := s.begin(ctx, "Delete", member)
	defer func() { end(err) }()

	if err := s.store.Delete(ctx, s.key(member)); err != nil {
		return s.wrapStoreErr(err)
	}
	s.logAudit(ctx, audit.EventJourneyDeleted, member)
	return nil
}

// ListByBusinessGroup returns every journey of this type in the group.
func (s *Service[T]) ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error) {
	journeys, err := s.store.ListByBusinessGroup(ctx, bg)
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	return journeys, nil
}

// PurgeExpired deletes journeys whose expiration date has passed.
func (s *Service[T]) PurgeExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, s.wrapStoreErr(err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired journeys purged",
			"journey_type", s.journeyType,
			"count", n,
		)
	}
	return n, nil
}

func (s *Service[T]) mutateSteps(ctx context.Context, op string, member id.Member, fn journeystore.Mutation[T]) (_ *models.Journey[T], err error) {
	ctx, end := s.begin(ctx, op, member)
	defer func() { end(err) }()

	j, err := s.store.Execute(ctx, s.key(member), func(j *models.Journey[T]) error {
		if err := ensureEditable(j); err != nil {
			return err
		}
		return fn(j)
	})
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	return j, nil
}

// begin opens a span and returns the function that closes it and records
// the operation latency.
func (s *Service[T]) begin(ctx context.Context, op string, member id.Member) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "journey."+op, trace.WithAttributes(
		attribute.String("journey.type", s.journeyType.String()),
		attribute.String("journey.business_group", member.BusinessGroup.String()),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		s.metrics.ObserveOperation(s.journeyType.String(), op, time.Since(start))
	}
}

func (s *Service[T]) key(member id.Member) id.JourneyKey {
	return id.NewJourneyKey(member, s.journeyType)
}

func (s *Service[T]) recalculateExpiry(j *models.Journey[T], now time.Time) {
	anchor, ok := any(j.Payload).(models.ExpiryAnchor)
	if !ok {
		return
	}
	if date, ok := anchor.ExpiryAnchor(); ok {
		j.RecalculateExpirationDate(date, now, s.policy)
	}
}

// wrapStoreErr turns store sentinels into domain errors. Domain errors
// returned by a mutation pass through unchanged.
func (s *Service[T]) wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "journey not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "journey already started")
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncrementConflict(s.journeyType.String())
		return dErrors.New(dErrors.CodeConflict, "journey was modified concurrently")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInternal, "stored journey is unreadable")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "journey store failure")
}

func ensureEditable[T models.Payload](j *models.Journey[T]) error {
	if j.IsSubmitted() {
		return dErrors.New(dErrors.CodeConflict, "journey is already submitted")
	}
	return nil
}

// toValidation reports construction failures caused by request input as
// validation errors rather than invariant violations.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

func activeLen[T models.Payload](j *models.Journey[T]) int {
	if b := j.ActiveBranch(); b != nil {
		return b.Len()
	}
	return 0
}
