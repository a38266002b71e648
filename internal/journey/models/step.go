package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	dErrors "memberportal/pkg/domain-errors"
)

// Step records one page-to-page transition plus whatever the member answered
// on the page being left.
//
// Invariants:
//   - SequenceNumber is assigned by the owning branch, 1-based
//   - CurrentPageKey and NextPageKey are non-empty at creation
//   - generic data and checkbox lists hold at most one entry per key
type Step struct {
	sequenceNumber    int
	currentPageKey    string
	nextPageKey       string
	submitDate        time.Time
	questionForm      *QuestionForm
	isNextPageDeadEnd bool
	genericData       []GenericDataEntry
	checkboxLists     []CheckboxesList
}

// NewStep creates an unnumbered step; the branch numbers it on append.
func NewStep(currentPageKey, nextPageKey string, submitDate time.Time, form *QuestionForm) (*Step, error) {
	currentPageKey = strings.TrimSpace(currentPageKey)
	nextPageKey = strings.TrimSpace(nextPageKey)
	if currentPageKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "current page key cannot be empty")
	}
	if nextPageKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "next page key cannot be empty")
	}
	if submitDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "submit date is required")
	}
	return &Step{
		currentPageKey: currentPageKey,
		nextPageKey:    nextPageKey,
		submitDate:     submitDate,
		questionForm:   cloneForm(form),
	}, nil
}

func (s *Step) SequenceNumber() int    { return s.sequenceNumber }
func (s *Step) CurrentPageKey() string { return s.currentPageKey }
func (s *Step) NextPageKey() string    { return s.nextPageKey }
func (s *Step) SubmitDate() time.Time  { return s.submitDate }
func (s *Step) IsNextPageDeadEnd() bool {
	return s.isNextPageDeadEnd
}

// QuestionForm returns the recorded answer, if any.
func (s *Step) QuestionForm() (QuestionForm, bool) {
	if s.questionForm == nil {
		return QuestionForm{}, false
	}
	return *s.questionForm, true
}

// UpdateNextPageKey rewrites the outgoing edge in place.
func (s *Step) UpdateNextPageKey(key string) {
	s.nextPageKey = strings.TrimSpace(key)
}

// MarkNextPageAsDeadEnd flags the outgoing edge as leading to a discardable path.
func (s *Step) MarkNextPageAsDeadEnd() {
	s.isNextPageDeadEnd = true
}

// UpdateGenericData upserts the payload stored under formKey.
func (s *Step) UpdateGenericData(formKey string, payload json.RawMessage) {
	entry := GenericDataEntry{FormKey: formKey, Payload: slices.Clone(payload)}
	for i := range s.genericData {
		if s.genericData[i].FormKey == formKey {
			s.genericData[i] = entry
			return
		}
	}
	s.genericData = append(s.genericData, entry)
}

// AddCheckboxesList upserts the list stored under list.Key.
func (s *Step) AddCheckboxesList(list CheckboxesList) {
	list = list.clone()
	for i := range s.checkboxLists {
		if s.checkboxLists[i].Key == list.Key {
			s.checkboxLists[i] = list
			return
		}
	}
	s.checkboxLists = append(s.checkboxLists, list)
}

func (s *Step) GenericData(formKey string) (GenericDataEntry, bool) {
	for _, e := range s.genericData {
		if e.FormKey == formKey {
			return e.clone(), true
		}
	}
	return GenericDataEntry{}, false
}

func (s *Step) CheckboxesList(key string) (CheckboxesList, bool) {
	for _, l := range s.checkboxLists {
		if l.Key == key {
			return l.clone(), true
		}
	}
	return CheckboxesList{}, false
}

// AllGenericData returns every entry in first-insertion order.
func (s *Step) AllGenericData() []GenericDataEntry {
	if len(s.genericData) == 0 {
		return nil
	}
	out := make([]GenericDataEntry, len(s.genericData))
	for i, e := range s.genericData {
		out[i] = e.clone()
	}
	return out
}

// AllCheckboxesLists returns every list in first-insertion order.
func (s *Step) AllCheckboxesLists() []CheckboxesList {
	if len(s.checkboxLists) == 0 {
		return nil
	}
	out := make([]CheckboxesList, len(s.checkboxLists))
	for i, l := range s.checkboxLists {
		out[i] = l.clone()
	}
	return out
}

// resubmit replaces the answer of a step revisited without changing path.
func (s *Step) resubmit(form *QuestionForm, submitDate time.Time) {
	s.questionForm = cloneForm(form)
	s.submitDate = submitDate
}

func (s *Step) setSequenceNumber(n int) {
	if n < 1 {
		panic(fmt.Sprintf("journey step sequence number must be positive, got %d", n))
	}
	s.sequenceNumber = n
}

func (s *Step) clone() *Step {
	c := *s
	c.questionForm = cloneForm(s.questionForm)
	c.genericData = s.AllGenericData()
	c.checkboxLists = s.AllCheckboxesLists()
	return &c
}

func cloneForm(f *QuestionForm) *QuestionForm {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
