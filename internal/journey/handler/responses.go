package handler

import (
	"time"

	"memberportal/internal/journey/models"
)

// JourneyResponse is the HTTP view of a journey.
type JourneyResponse[T models.Payload] struct {
	BusinessGroup   string           `json:"business_group"`
	ReferenceNumber string           `json:"reference_number"`
	JourneyType     string           `json:"journey_type"`
	StartDate       time.Time        `json:"start_date"`
	SubmissionDate  *time.Time       `json:"submission_date,omitempty"`
	ExpirationDate  *time.Time       `json:"expiration_date,omitempty"`
	CurrentPageKey  string           `json:"current_page_key,omitempty"`
	ActiveBranch    int              `json:"active_branch"`
	Branches        []BranchResponse `json:"branches"`
	Payload         T                `json:"payload"`
}

type BranchResponse struct {
	Number int            `json:"number"`
	Active bool           `json:"active"`
	Steps  []StepResponse `json:"steps"`
}

type StepResponse struct {
	SequenceNumber    int                       `json:"sequence_number"`
	CurrentPageKey    string                    `json:"current_page_key"`
	NextPageKey       string                    `json:"next_page_key"`
	SubmitDate        time.Time                 `json:"submit_date"`
	QuestionForm      *models.QuestionForm      `json:"question_form,omitempty"`
	IsNextPageDeadEnd bool                      `json:"is_next_page_dead_end"`
	GenericData       []models.GenericDataEntry `json:"generic_data,omitempty"`
	CheckboxesLists   []models.CheckboxesList   `json:"checkboxes_lists,omitempty"`
}

type PageResponse struct {
	PageKey string `json:"page_key"`
}

type PrunedResponse struct {
	Removed int `json:"removed"`
}

type JourneyListResponse[T models.Payload] struct {
	Journeys []*JourneyResponse[T] `json:"journeys"`
}

type PurgeResponse struct {
	Deleted int `json:"deleted"`
}

// FromJourney converts a journey to its HTTP view.
func FromJourney[T models.Payload](j *models.Journey[T]) *JourneyResponse[T] {
	s := j.Snapshot()
	resp := &JourneyResponse[T]{
		BusinessGroup:   s.Member.BusinessGroup.String(),
		ReferenceNumber: s.Member.ReferenceNumber.String(),
		JourneyType:     s.Type.String(),
		StartDate:       s.StartDate,
		SubmissionDate:  s.SubmissionDate,
		ActiveBranch:    s.ActiveBranch,
		Branches:        make([]BranchResponse, 0, len(s.Branches)),
		Payload:         s.Payload,
	}
	if !s.ExpirationDate.IsZero() {
		exp := s.ExpirationDate
		resp.ExpirationDate = &exp
	}
	resp.CurrentPageKey, _ = j.CurrentPageKey()
	for _, b := range s.Branches {
		br := BranchResponse{
			Number: b.Number,
			Active: b.Number == s.ActiveBranch,
			Steps:  make([]StepResponse, 0, len(b.Steps)),
		}
		for _, st := range b.Steps {
			br.Steps = append(br.Steps, StepResponse{
				SequenceNumber:    st.SequenceNumber,
				CurrentPageKey:    st.CurrentPageKey,
				NextPageKey:       st.NextPageKey,
				SubmitDate:        st.SubmitDate,
				QuestionForm:      st.QuestionForm,
				IsNextPageDeadEnd: st.IsNextPageDeadEnd,
				GenericData:       st.GenericData,
				CheckboxesLists:   st.CheckboxesLists,
			})
		}
		resp.Branches = append(resp.Branches, br)
	}
	return resp
}

func fromJourneys[T models.Payload](journeys []*models.Journey[T]) *JourneyListResponse[T] {
	out := &JourneyListResponse[T]{Journeys: make([]*JourneyResponse[T], 0, len(journeys))}
	for _, j := range journeys {
		out.Journeys = append(out.Journeys, FromJourney(j))
	}
	return out
}
