package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

func forkedRetirementJourney(t *testing.T) *Journey[RetirementPayload] {
	t.Helper()
	now := time.Date(2022, 8, 8, 10, 0, 0, 0, time.UTC)
	member := id.Member{BusinessGroup: "RBS", ReferenceNumber: "42"}

	payload := RetirementPayload{}
	require.NoError(t, payload.SelectQuote("early", json.RawMessage(`{"lump_sum":1000}`), time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC)))
	payload.SetDocumentTags([]string{"id", " id ", "bank"})

	j, err := NewJourneyWithStep(member, now, payload, "start", "quotes")
	require.NoError(t, err)
	require.NoError(t, j.TrySubmitStep("quotes", "advice", now, NewQuestionForm("q", "a", "v")))
	require.NoError(t, j.TrySubmitStep("advice", "summary", now, nil))
	require.NoError(t, j.TrySubmitStep("quotes", "lta", now, nil))
	require.NoError(t, j.SaveGenericData("quotes", "bank", json.RawMessage(`{"sort_code":"00-00-00"}`)))
	list, err := NewCheckboxesList("ack", []Checkbox{{Key: "terms", Selected: true}})
	require.NoError(t, err)
	require.NoError(t, j.SaveCheckboxesList("start", list))
	require.NoError(t, j.MarkNextPageAsDeadEnd("quotes"))
	j.RecalculateExpirationDate(payload.SelectedRetirementDate, now, DefaultExpiryPolicy())
	j.SetVersion(3)
	return j
}

func TestSnapshotRoundTrip(t *testing.T) {
	j := forkedRetirementJourney(t)

	raw, err := json.Marshal(j.Snapshot())
	require.NoError(t, err)
	var decoded Snapshot[RetirementPayload]
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(decoded)
	require.NoError(t, err)

	assert.Equal(t, j.Snapshot(), restored.Snapshot())
	assert.Equal(t, 2, restored.ActiveBranchNumber())
	assert.Len(t, restored.Branches(), 2)
	assert.Equal(t, 3, restored.Version())
	assert.Equal(t, []string{"id", "bank"}, restored.Payload.DocumentTags())
	assert.Equal(t, "lta", restored.GetRedirectStepPageKey("quotes"))
}

func TestSnapshotIsDetached(t *testing.T) {
	j := forkedRetirementJourney(t)
	snap := j.Snapshot()

	require.NoError(t, j.UpdateStep("start", "elsewhere"))

	assert.Equal(t, "quotes", snap.Branches[1].Steps[0].NextPageKey)
}

func TestSnapshotPayloadIsDetached(t *testing.T) {
	now := time.Date(2022, 8, 8, 10, 0, 0, 0, time.UTC)
	payload := TransferPayload{}
	require.NoError(t, payload.SubmitContact(ContactTypeReceivingScheme, Contact{Name: "Scheme Ltd"}))
	require.NoError(t, payload.SubmitContactAddress(ContactTypeReceivingScheme, Address{Line1: "1 High St", Postcode: "AB1 2CD"}))
	payload.SetDocumentTags([]string{"id"})
	j, err := NewJourneyWithStep(id.Member{BusinessGroup: "RBS", ReferenceNumber: "42"}, now, payload, "start", "plan")
	require.NoError(t, err)

	snap := j.Snapshot()
	j.Payload.Contacts[ContactTypeReceivingScheme].Name = "Changed"
	j.Payload.Contacts[ContactTypeReceivingScheme].Address.Postcode = "ZZ9 9ZZ"
	j.Payload.Tags[0] = "changed"

	scheme, ok := snap.Payload.Contact(ContactTypeReceivingScheme)
	require.True(t, ok)
	assert.Equal(t, "Scheme Ltd", scheme.Name)
	assert.Equal(t, "AB1 2CD", scheme.Address.Postcode)
	assert.Equal(t, []string{"id"}, snap.Payload.Tags)
}

func TestRestoreRejectsBrokenSnapshots(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot[RetirementPayload])
	}{
		{name: "sequence gap", mutate: func(s *Snapshot[RetirementPayload]) { s.Branches[0].Steps[1].SequenceNumber = 5 }},
		{name: "duplicate branch number", mutate: func(s *Snapshot[RetirementPayload]) { s.Branches[1].Number = 1 }},
		{name: "missing active branch", mutate: func(s *Snapshot[RetirementPayload]) { s.ActiveBranch = 9 }},
		{name: "non-positive branch number", mutate: func(s *Snapshot[RetirementPayload]) { s.Branches[0].Number = 0 }},
		{name: "journey type mismatch", mutate: func(s *Snapshot[RetirementPayload]) { s.Type = id.JourneyTypeTransfer }},
		{name: "empty current page", mutate: func(s *Snapshot[RetirementPayload]) { s.Branches[0].Steps[0].CurrentPageKey = "" }},
		{name: "missing member", mutate: func(s *Snapshot[RetirementPayload]) { s.Member = id.Member{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := forkedRetirementJourney(t).Snapshot()
			tt.mutate(&snap)

			_, err := Restore(snap)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
		})
	}
}

func TestRestoreEmptyJourney(t *testing.T) {
	j, err := NewJourney(id.Member{BusinessGroup: "RBS", ReferenceNumber: "1"}, time.Now(), TransferPayload{})
	require.NoError(t, err)

	restored, err := Restore(j.Snapshot())
	require.NoError(t, err)
	assert.Nil(t, restored.ActiveBranch())
}
