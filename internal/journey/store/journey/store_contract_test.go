package journey_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"memberportal/internal/journey/models"
	"memberportal/internal/journey/store/journey"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/sentinel"
)

type transferStore interface {
	Create(ctx context.Context, j *models.Journey[models.TransferPayload]) error
	FindByKey(ctx context.Context, key id.JourneyKey) (*models.Journey[models.TransferPayload], error)
	Save(ctx context.Context, j *models.Journey[models.TransferPayload]) error
	Delete(ctx context.Context, key id.JourneyKey) error
	Execute(ctx context.Context, key id.JourneyKey, fn journey.Mutation[models.TransferPayload]) (*models.Journey[models.TransferPayload], error)
	ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[models.TransferPayload], error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// storeContractSuite holds the behaviour every journey store shares. Backend
// suites embed it and set newStore in SetupTest.
type storeContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() transferStore
	store    transferStore
}

func (s *storeContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *storeContractSuite) member(ref string) id.Member {
	return id.Member{BusinessGroup: "RBS", ReferenceNumber: id.ReferenceNumber(ref)}
}

// newTransferJourney builds a journey with a fork, attachments and payload
// data so round trips exercise every persisted field.
func (s *storeContractSuite) newTransferJourney(member id.Member) *models.Journey[models.TransferPayload] {
	now := time.Now().UTC().Truncate(time.Second)

	payload := models.TransferPayload{}
	s.Require().NoError(payload.SetPlan("SIPP", "cash"))
	s.Require().NoError(payload.SetTransferPercentage(60))
	s.Require().NoError(payload.SubmitContact(models.ContactTypeReceivingScheme, models.Contact{Name: "Scheme Ltd"}))
	s.Require().NoError(payload.SubmitContactAddress(models.ContactTypeReceivingScheme, models.Address{Line1: "1 High St", Postcode: "AB1 2CD"}))
	payload.SetDocumentTags([]string{"transfer_form", "id_proof"})
	payload.Quote = json.RawMessage(`{"value":12000}`)

	j, err := models.NewJourneyWithStep(member, now, payload, "start", "plan")
	s.Require().NoError(err)
	s.Require().NoError(j.TrySubmitStep("plan", "adviser", now, models.NewQuestionForm("has_adviser", "yes", "")))
	s.Require().NoError(j.TrySubmitStep("adviser", "scheme", now, nil))
	s.Require().NoError(j.TrySubmitStep("plan", "scheme", now, models.NewQuestionForm("has_adviser", "no", "")))
	s.Require().NoError(j.SaveGenericData("plan", "bank", json.RawMessage(`{"sort_code":"00-11-22"}`)))
	list, err := models.NewCheckboxesList("declarations", []models.Checkbox{{Key: "risk", Selected: true}, {Key: "scam"}})
	s.Require().NoError(err)
	s.Require().NoError(j.SaveCheckboxesList("start", list))
	return j
}

func (s *storeContractSuite) assertSameJourney(want, got *models.Journey[models.TransferPayload]) {
	wantRaw, err := json.Marshal(want.Snapshot())
	s.Require().NoError(err)
	gotRaw, err := json.Marshal(got.Snapshot())
	s.Require().NoError(err)
	s.JSONEq(string(wantRaw), string(gotRaw))
}

func (s *storeContractSuite) TestCreateAndFind() {
	s.Run("round trip keeps branches order and attachments", func() {
		j := s.newTransferJourney(s.member("1"))
		s.Require().NoError(s.store.Create(s.ctx, j))
		s.Equal(1, j.Version())

		got, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)
		s.assertSameJourney(j, got)
		s.Equal(2, got.ActiveBranchNumber())
		s.Len(got.Branches(), 2)
		s.Equal("scheme", got.GetRedirectStepPageKey("plan"))
		s.Equal([]string{"transfer_form", "id_proof"}, got.Payload.DocumentTags())
	})

	s.Run("duplicate key is already used", func() {
		j := s.newTransferJourney(s.member("2"))
		s.Require().NoError(s.store.Create(s.ctx, j))
		err := s.store.Create(s.ctx, s.newTransferJourney(s.member("2")))
		s.True(errors.Is(err, sentinel.ErrAlreadyUsed), "got %v", err)
	})

	s.Run("missing key is not found", func() {
		_, err := s.store.FindByKey(s.ctx, id.NewJourneyKey(s.member("404"), id.JourneyTypeTransfer))
		s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
	})
}

func (s *storeContractSuite) TestSave() {
	s.Run("bumps the version", func() {
		j := s.newTransferJourney(s.member("10"))
		s.Require().NoError(s.store.Create(s.ctx, j))

		s.Require().NoError(j.TrySubmitStep("scheme", "summary", time.Now(), nil))
		s.Require().NoError(s.store.Save(s.ctx, j))
		s.Equal(2, j.Version())

		got, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)
		s.Equal(2, got.Version())
		current, _ := got.CurrentPageKey()
		s.Equal("summary", current)
	})

	s.Run("stale version conflicts", func() {
		j := s.newTransferJourney(s.member("11"))
		s.Require().NoError(s.store.Create(s.ctx, j))

		first, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)
		second, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)

		s.Require().NoError(s.store.Save(s.ctx, first))
		err = s.store.Save(s.ctx, second)
		s.True(errors.Is(err, sentinel.ErrConflict), "got %v", err)
	})

	s.Run("missing journey is not found", func() {
		err := s.store.Save(s.ctx, s.newTransferJourney(s.member("12")))
		s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
	})
}

func (s *storeContractSuite) TestExecute() {
	s.Run("applies and persists the mutation", func() {
		j := s.newTransferJourney(s.member("20"))
		s.Require().NoError(s.store.Create(s.ctx, j))

		updated, err := s.store.Execute(s.ctx, j.Key(), func(j *models.Journey[models.TransferPayload]) error {
			j.RemoveInactiveBranches()
			return nil
		})
		s.Require().NoError(err)
		s.Len(updated.Branches(), 1)

		got, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)
		s.Len(got.Branches(), 1)
		s.Equal(updated.Version(), got.Version())
	})

	s.Run("mutation error leaves the journey untouched", func() {
		j := s.newTransferJourney(s.member("21"))
		s.Require().NoError(s.store.Create(s.ctx, j))
		boom := errors.New("boom")

		_, err := s.store.Execute(s.ctx, j.Key(), func(j *models.Journey[models.TransferPayload]) error {
			j.RemoveInactiveBranches()
			return boom
		})
		s.ErrorIs(err, boom)

		got, err := s.store.FindByKey(s.ctx, j.Key())
		s.Require().NoError(err)
		s.Len(got.Branches(), 2)
		s.Equal(1, got.Version())
	})

	s.Run("missing journey is not found", func() {
		_, err := s.store.Execute(s.ctx, id.NewJourneyKey(s.member("22"), id.JourneyTypeTransfer), func(*models.Journey[models.TransferPayload]) error {
			return nil
		})
		s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
	})
}

func (s *storeContractSuite) TestDelete() {
	j := s.newTransferJourney(s.member("30"))
	s.Require().NoError(s.store.Create(s.ctx, j))

	s.Require().NoError(s.store.Delete(s.ctx, j.Key()))

	_, err := s.store.FindByKey(s.ctx, j.Key())
	s.True(errors.Is(err, sentinel.ErrNotFound))
	err = s.store.Delete(s.ctx, j.Key())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *storeContractSuite) TestListByBusinessGroup() {
	for _, ref := range []string{"42", "41"} {
		s.Require().NoError(s.store.Create(s.ctx, s.newTransferJourney(s.member(ref))))
	}
	other := id.Member{BusinessGroup: "LLO", ReferenceNumber: "1"}
	s.Require().NoError(s.store.Create(s.ctx, s.newTransferJourney(other)))

	got, err := s.store.ListByBusinessGroup(s.ctx, "RBS")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(id.ReferenceNumber("41"), got[0].Member().ReferenceNumber)
	s.Equal(id.ReferenceNumber("42"), got[1].Member().ReferenceNumber)
}

func (s *storeContractSuite) TestDeleteExpired() {
	now := time.Now()
	longAgo := time.Date(2022, 8, 8, 0, 0, 0, 0, time.UTC)

	expired := s.newTransferJourney(s.member("50"))
	expired.RecalculateExpirationDate(longAgo.AddDate(0, 2, 0), longAgo, models.DefaultExpiryPolicy())
	s.Require().NoError(s.store.Create(s.ctx, expired))

	live := s.newTransferJourney(s.member("51"))
	live.RecalculateExpirationDate(now.AddDate(0, 2, 0), now, models.DefaultExpiryPolicy())
	s.Require().NoError(s.store.Create(s.ctx, live))

	removed, err := s.store.DeleteExpired(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(1, removed)

	_, err = s.store.FindByKey(s.ctx, expired.Key())
	s.True(errors.Is(err, sentinel.ErrNotFound))
	got, err := s.store.FindByKey(s.ctx, live.Key())
	s.Require().NoError(err)
	s.Equal(live.ExpirationDate(), got.ExpirationDate().UTC())
}
