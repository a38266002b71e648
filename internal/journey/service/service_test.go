package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	journeymetrics "memberportal/internal/journey/metrics"
	"memberportal/internal/journey/models"
	"memberportal/internal/journey/service/mocks"
	journeystore "memberportal/internal/journey/store/journey"
	"memberportal/internal/platform/logger"
	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
	"memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/middleware/device"
	"memberportal/pkg/platform/sentinel"
	"memberportal/pkg/requestcontext"
)

var (
	member = id.Member{BusinessGroup: "RBS", ReferenceNumber: "0304442"}
	now    = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockAuditPublisher
	store     *journeystore.InMemory[models.RetirementPayload]
	metrics   *journeymetrics.Metrics
	service   *Service[models.RetirementPayload]
	events    []audit.Event
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.store = journeystore.NewInMemory[models.RetirementPayload]()
	s.metrics = journeymetrics.NewWith(prometheus.NewRegistry())
	s.events = nil
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.events = append(s.events, e)
			return nil
		}).AnyTimes()
	s.service = New[models.RetirementPayload](s.store,
		WithLogger(logger.NewNop()),
		WithAuditPublisher(s.publisher),
		WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "test-agent")
	return device.WithDevice(ctx, "Chrome on Mac OS X")
}

func (s *ServiceSuite) start() {
	_, err := s.service.Start(s.ctx(), member, "hub", "quote", models.RetirementPayload{})
	s.Require().NoError(err)
}

func (s *ServiceSuite) submit(current, next string) *models.Journey[models.RetirementPayload] {
	j, err := s.service.SubmitStep(s.ctx(), member, current, next, nil)
	s.Require().NoError(err)
	return j
}

func (s *ServiceSuite) actions() []string {
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestStart() {
	s.Run("creates the journey with its first step", func() {
		j, err := s.service.Start(s.ctx(), member, "hub", "quote", models.RetirementPayload{})
		s.Require().NoError(err)
		s.Equal(1, j.ActiveBranchNumber())
		current, ok := j.CurrentPageKey()
		s.True(ok)
		s.Equal("quote", current)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.JourneysStarted.WithLabelValues("retirement")))
	})

	s.Run("emits journey_started with request metadata", func() {
		s.Require().Len(s.events, 1)
		e := s.events[0]
		s.Equal(string(audit.EventJourneyStarted), e.Action)
		s.Equal(member, e.Member)
		s.Equal(id.JourneyTypeRetirement, e.JourneyType)
		s.Equal("hub", e.PageKey)
		s.Equal("req-1", e.RequestID)
		s.Equal("10.0.0.1", e.ClientIP)
		s.Equal("Chrome on Mac OS X", e.Device)
		s.Equal(now, e.Timestamp)
	})

	s.Run("second start conflicts", func() {
		_, err := s.service.Start(s.ctx(), member, "hub", "quote", models.RetirementPayload{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("blank page key is a validation error", func() {
		other := id.Member{BusinessGroup: "RBS", ReferenceNumber: "0000001"}
		_, err := s.service.Start(s.ctx(), other, " ", "quote", models.RetirementPayload{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
	})
}

func (s *ServiceSuite) TestGetMissingJourney() {
	_, err := s.service.Get(s.ctx(), member)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("journey not found", err.Error())
}

func (s *ServiceSuite) TestSubmitStep() {
	s.start()

	s.Run("forward progress appends", func() {
		j := s.submit("quote", "date")
		s.Equal(2, j.ActiveBranch().Len())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StepsSubmitted.WithLabelValues("retirement", "appended")))
	})

	s.Run("same answer on an earlier page resubmits", func() {
		j := s.submit("hub", "quote")
		s.Equal(1, j.ActiveBranchNumber())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StepsSubmitted.WithLabelValues("retirement", "resubmitted")))
	})

	s.Run("different answer on an earlier page forks", func() {
		s.events = nil
		j := s.submit("hub", "transfer")
		s.Equal(2, j.ActiveBranchNumber())
		s.Len(j.Branches(), 2)
		s.Equal([]string{string(audit.EventStepSubmitted), string(audit.EventBranchForked)}, s.actions())
		s.Equal(2, s.events[1].BranchNumber)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StepsSubmitted.WithLabelValues("retirement", "forked")))
	})

	s.Run("unknown page is rejected", func() {
		_, err := s.service.SubmitStep(s.ctx(), member, "nowhere", "x", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal(`Invalid "currentPageKey"`, err.Error())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StepsSubmitted.WithLabelValues("retirement", "rejected")))
	})
}

func (s *ServiceSuite) TestNavigationQueries() {
	s.start()
	_, err := s.service.SubmitStep(s.ctx(), member, "quote", "date", models.NewQuestionForm("q", "a", "yes"))
	s.Require().NoError(err)

	prev, ok, err := s.service.PreviousPage(s.ctx(), member, "date")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("quote", prev)

	_, ok, err = s.service.PreviousPage(s.ctx(), member, "hub")
	s.Require().NoError(err)
	s.False(ok)

	redirect, err := s.service.RedirectPage(s.ctx(), member, "quote")
	s.Require().NoError(err)
	s.Equal("date", redirect)

	form, ok, err := s.service.QuestionForm(s.ctx(), member, "hub")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("yes", form.AnswerValue)

	form, ok, err = s.service.QuestionForm(s.ctx(), member, "quote")
	s.Require().NoError(err)
	s.True(ok)
	s.True(form.IsEmpty(), "last step has nothing answered after it")
}

func (s *ServiceSuite) TestStepMaintenance() {
	s.start()
	s.submit("quote", "date")
	s.submit("date", "summary")

	s.Run("mark and remove dead ends", func() {
		_, err := s.service.MarkDeadEnd(s.ctx(), member, "date")
		s.Require().NoError(err)
		j, err := s.service.RemoveDeadEndSteps(s.ctx(), member)
		s.Require().NoError(err)
		s.Equal(2, j.ActiveBranch().Len())
	})

	s.Run("prune inactive branches", func() {
		s.submit("hub", "transfer")
		_, removed, err := s.service.RemoveInactiveBranches(s.ctx(), member)
		s.Require().NoError(err)
		s.Equal(1, removed)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.BranchesPruned.WithLabelValues("retirement")))
	})

	s.Run("replace all steps", func() {
		j, err := s.service.ReplaceAllSteps(s.ctx(), member, "hub", "quote")
		s.Require().NoError(err)
		s.Equal(1, j.ActiveBranch().Len())
	})

	s.Run("update step on unknown page", func() {
		_, err := s.service.UpdateStep(s.ctx(), member, "missing", "x")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("generic data must be JSON", func() {
		_, err := s.service.SaveGenericData(s.ctx(), member, "hub", "form", []byte("{"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		j, err := s.service.SaveGenericData(s.ctx(), member, "hub", "form", []byte(`{"a":1}`))
		s.Require().NoError(err)
		step, _ := j.GetStepByKey("hub")
		entry, ok := step.GenericData("form")
		s.True(ok)
		s.JSONEq(`{"a":1}`, string(entry.Payload))
	})
}

func (s *ServiceSuite) TestUpdatePayloadRecalculatesExpiry() {
	s.start()

	j, err := s.service.UpdatePayload(s.ctx(), member, func(p *models.RetirementPayload, _ time.Time) error {
		return p.SelectQuote("Full pension", nil, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	})
	s.Require().NoError(err)
	// 37 days before 1 June is 25 April, clamped to today plus 90 days.
	s.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), j.ExpirationDate())

	_, err = s.service.UpdatePayload(s.ctx(), member, func(*models.RetirementPayload, time.Time) error {
		return dErrors.New(dErrors.CodeInvalidInput, "bad")
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestSubmit() {
	s.start()

	s.Run("incomplete payload fails validation", func() {
		_, err := s.service.Submit(s.ctx(), member)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("complete payload submits", func() {
		_, err := s.service.UpdatePayload(s.ctx(), member, func(p *models.RetirementPayload, _ time.Time) error {
			return p.SelectQuote("Full pension", nil, now.AddDate(0, 3, 0))
		})
		s.Require().NoError(err)

		j, err := s.service.Submit(s.ctx(), member)
		s.Require().NoError(err)
		s.True(j.IsSubmitted())
		s.Contains(s.actions(), string(audit.EventJourneySubmitted))
	})

	s.Run("submitted journey rejects changes", func() {
		_, err := s.service.SubmitStep(s.ctx(), member, "quote", "date", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.service.RemoveDeadEndSteps(s.ctx(), member)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.service.Submit(s.ctx(), member)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestDeleteAndPurge() {
	s.start()
	_, err := s.service.UpdatePayload(s.ctx(), member, func(p *models.RetirementPayload, _ time.Time) error {
		return p.SelectQuote("Full pension", nil, now.AddDate(0, 1, 0))
	})
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), now.AddDate(1, 0, 0))
	n, err := s.service.PurgeExpired(later)
	s.Require().NoError(err)
	s.Equal(1, n)

	err = s.service.Delete(s.ctx(), member)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailOperation() {
	ctrl := gomock.NewController(s.T())
	publisher := mocks.NewMockAuditPublisher(ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("kafka down"))
	svc := New[models.RetirementPayload](s.store, WithLogger(logger.NewNop()), WithAuditPublisher(publisher))

	_, err := svc.Start(s.ctx(), member, "hub", "quote", models.RetirementPayload{})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestStoreErrorTranslation() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"conflict", fmt.Errorf("wrapped: %w", sentinel.ErrConflict), dErrors.CodeConflict},
		{"corrupt snapshot", sentinel.ErrInvalidState, dErrors.CodeInternal},
		{"driver failure", errors.New("connection reset"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			store := mocks.NewMockStore[models.RetirementPayload](s.ctrl)
			store.EXPECT().Execute(gomock.Any(), id.NewJourneyKey(member, id.JourneyTypeRetirement), gomock.Any()).
				Return(nil, tc.err)
			svc := New[models.RetirementPayload](store, WithLogger(logger.NewNop()), WithMetrics(s.metrics))

			_, err := svc.MarkDeadEnd(s.ctx(), member, "hub")
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
		})
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Conflicts.WithLabelValues("retirement")))
}
