//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "memberportal/pkg/domain"
	audit "memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/audit/store/postgres"
	txcontext "memberportal/pkg/platform/tx"
	"memberportal/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
	ctx   context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.pg.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "audit_events"))
}

func (s *AuditStoreSuite) event(action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		ID:          uuid.New(),
		Timestamp:   at,
		Action:      string(action),
		Member:      id.Member{BusinessGroup: "RBS", ReferenceNumber: "0304442"},
		JourneyType: id.JourneyTypeRetirement,
		PageKey:     "hub",
		RequestID:   "req-1",
		ClientIP:    "10.0.0.1",
		Device:      "Chrome on macOS",
	}
}

func (s *AuditStoreSuite) TestAppendIsIdempotentOnID() {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	e := s.event(audit.EventJourneyStarted, at)

	s.Require().NoError(s.store.Append(s.ctx, e))
	s.Require().NoError(s.store.Append(s.ctx, e))

	events, err := s.store.ListByMember(s.ctx, e.Member)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(e.ID, events[0].ID)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal("Chrome on macOS", events[0].Device)
	s.True(at.Equal(events[0].Timestamp))
}

func (s *AuditStoreSuite) TestListOrdersOldestFirst() {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, s.event(audit.EventJourneySubmitted, at.Add(time.Minute))))
	s.Require().NoError(s.store.Append(s.ctx, s.event(audit.EventJourneyStarted, at)))

	events, err := s.store.ListByMember(s.ctx, id.Member{BusinessGroup: "RBS", ReferenceNumber: "0304442"})
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventJourneyStarted), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[1].Category)
}

func (s *AuditStoreSuite) TestAppendJoinsContextTransaction() {
	e := s.event(audit.EventJourneyDeleted, time.Now().UTC())
	rollback := errors.New("rollback")

	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context, _ txcontext.Executor) error {
		s.Require().NoError(s.store.Append(ctx, e))
		return rollback
	})
	s.ErrorIs(err, rollback)

	events, err := s.store.ListByMember(s.ctx, e.Member)
	s.Require().NoError(err)
	s.Empty(events)
}
