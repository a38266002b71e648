package models

import (
	"fmt"
	"strings"
	"time"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

// Snapshot is the persisted shape of a journey. Stores serialize it; the
// aggregate is rebuilt through Restore so invariants are checked on the way
// back in.
type Snapshot[T Payload] struct {
	Member         id.Member        `json:"member"`
	Type           id.JourneyType   `json:"journey_type"`
	StartDate      time.Time        `json:"start_date"`
	SubmissionDate *time.Time       `json:"submission_date,omitempty"`
	ExpirationDate time.Time        `json:"expiration_date,omitzero"`
	ActiveBranch   int              `json:"active_branch"`
	Branches       []BranchSnapshot `json:"branches"`
	Version        int              `json:"version"`
	Payload        T                `json:"payload"`
}

type BranchSnapshot struct {
	Number int            `json:"number"`
	Steps  []StepSnapshot `json:"steps"`
}

type StepSnapshot struct {
	SequenceNumber    int                `json:"sequence_number"`
	CurrentPageKey    string             `json:"current_page_key"`
	NextPageKey       string             `json:"next_page_key"`
	SubmitDate        time.Time          `json:"submit_date"`
	QuestionForm      *QuestionForm      `json:"question_form,omitempty"`
	IsNextPageDeadEnd bool               `json:"is_next_page_dead_end"`
	GenericData       []GenericDataEntry `json:"generic_data,omitempty"`
	CheckboxesLists   []CheckboxesList   `json:"checkboxes_lists,omitempty"`
}

// Snapshot captures the full journey state. The result shares nothing
// mutable with the journey; the payload is deep-copied as well.
func (j *Journey[T]) Snapshot() Snapshot[T] {
	s := Snapshot[T]{
		Member:         j.member,
		Type:           j.Type(),
		StartDate:      j.startDate,
		ExpirationDate: j.expirationDate,
		ActiveBranch:   j.activeBranch,
		Version:        j.version,
		Payload:        clonePayload(j.Payload),
	}
	if j.submissionDate != nil {
		d := *j.submissionDate
		s.SubmissionDate = &d
	}
	for _, b := range j.branches {
		bs := BranchSnapshot{Number: b.number, Steps: make([]StepSnapshot, 0, len(b.steps))}
		for _, st := range b.steps {
			bs.Steps = append(bs.Steps, st.snapshot())
		}
		s.Branches = append(s.Branches, bs)
	}
	return s
}

func (s *Step) snapshot() StepSnapshot {
	return StepSnapshot{
		SequenceNumber:    s.sequenceNumber,
		CurrentPageKey:    s.currentPageKey,
		NextPageKey:       s.nextPageKey,
		SubmitDate:        s.submitDate,
		QuestionForm:      cloneForm(s.questionForm),
		IsNextPageDeadEnd: s.isNextPageDeadEnd,
		GenericData:       s.AllGenericData(),
		CheckboxesLists:   s.AllCheckboxesLists(),
	}
}

// Restore rebuilds a journey from a snapshot.
//
// Errors: CodeInvariantViolation when the snapshot breaks an aggregate
// invariant (sequence gaps, duplicate branch numbers, an active branch that
// does not exist, a payload of another journey type).
func Restore[T Payload](s Snapshot[T]) (*Journey[T], error) {
	if s.Member.IsZero() {
		return nil, invalidSnapshot("member is missing")
	}
	if s.StartDate.IsZero() {
		return nil, invalidSnapshot("start date is missing")
	}
	if s.Type != s.Payload.JourneyType() {
		return nil, invalidSnapshot(fmt.Sprintf("journey type %q does not match payload type %q", s.Type, s.Payload.JourneyType()))
	}

	j := &Journey[T]{
		member:         s.Member,
		startDate:      s.StartDate,
		expirationDate: s.ExpirationDate,
		version:        s.Version,
		Payload:        clonePayload(s.Payload),
	}
	if s.SubmissionDate != nil {
		d := *s.SubmissionDate
		j.submissionDate = &d
	}

	seen := make(map[int]struct{}, len(s.Branches))
	for _, bs := range s.Branches {
		if bs.Number < 1 {
			return nil, invalidSnapshot(fmt.Sprintf("branch number %d is not positive", bs.Number))
		}
		if _, dup := seen[bs.Number]; dup {
			return nil, invalidSnapshot(fmt.Sprintf("branch number %d is duplicated", bs.Number))
		}
		seen[bs.Number] = struct{}{}

		b := newBranch(bs.Number)
		for i, ss := range bs.Steps {
			if ss.SequenceNumber != i+1 {
				return nil, invalidSnapshot(fmt.Sprintf("branch %d step %d has sequence number %d", bs.Number, i+1, ss.SequenceNumber))
			}
			st, err := restoreStep(ss)
			if err != nil {
				return nil, err
			}
			b.steps = append(b.steps, st)
		}
		j.branches = append(j.branches, b)
	}

	switch {
	case len(j.branches) == 0 && s.ActiveBranch != 0:
		return nil, invalidSnapshot("active branch set on a journey without branches")
	case len(j.branches) > 0:
		if _, ok := seen[s.ActiveBranch]; !ok {
			return nil, invalidSnapshot(fmt.Sprintf("active branch %d does not exist", s.ActiveBranch))
		}
	}
	j.activeBranch = s.ActiveBranch
	return j, nil
}

// NextPageKey may be blank after UpdateStep; CurrentPageKey never is.
func restoreStep(ss StepSnapshot) (*Step, error) {
	if strings.TrimSpace(ss.CurrentPageKey) == "" {
		return nil, invalidSnapshot("step current page key is empty")
	}
	if ss.SubmitDate.IsZero() {
		return nil, invalidSnapshot("step submit date is missing")
	}
	st := &Step{
		sequenceNumber:    ss.SequenceNumber,
		currentPageKey:    ss.CurrentPageKey,
		nextPageKey:       ss.NextPageKey,
		submitDate:        ss.SubmitDate,
		questionForm:      cloneForm(ss.QuestionForm),
		isNextPageDeadEnd: ss.IsNextPageDeadEnd,
	}
	for _, e := range ss.GenericData {
		st.UpdateGenericData(e.FormKey, e.Payload)
	}
	for _, l := range ss.CheckboxesLists {
		st.AddCheckboxesList(l)
	}
	return st, nil
}

func invalidSnapshot(msg string) error {
	return dErrors.New(dErrors.CodeInvariantViolation, "invalid journey snapshot: "+msg)
}
