package models

import (
	"encoding/json"
	"strings"
	"time"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

// Payload is the domain-specific part of a concrete journey. The branch
// engine never looks inside it.
type Payload interface {
	JourneyType() id.JourneyType
}

// Journey is the aggregate root tracking a member's progress through one
// guided application.
//
// Invariants:
//   - at most one branch is active; the active branch is held as a single
//     branch number so two active branches cannot be represented
//   - StartDate is immutable after construction
//   - SubmissionDate is nil until Submit
//   - ExpirationDate only changes through RecalculateExpirationDate
//
// A Journey is not safe for concurrent use. Callers serialize writes per
// journey, see the store Execute methods.
type Journey[T Payload] struct {
	member         id.Member
	startDate      time.Time
	submissionDate *time.Time
	expirationDate time.Time
	branches       []*Branch
	activeBranch   int
	version        int

	Payload T
}

// NewJourney creates an empty journey; the first submitted step seeds branch 1.
func NewJourney[T Payload](member id.Member, startDate time.Time, payload T) (*Journey[T], error) {
	if member.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "journey member is required")
	}
	if startDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "journey start date is required")
	}
	if !payload.JourneyType().IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "journey payload has an unknown type")
	}
	return &Journey[T]{
		member:    member,
		startDate: startDate,
		Payload:   payload,
	}, nil
}

// NewJourneyWithStep creates a journey seeded with its first transition,
// submitted at startDate.
func NewJourneyWithStep[T Payload](member id.Member, startDate time.Time, payload T, currentPageKey, nextPageKey string) (*Journey[T], error) {
	j, err := NewJourney(member, startDate, payload)
	if err != nil {
		return nil, err
	}
	step, err := NewStep(currentPageKey, nextPageKey, startDate, nil)
	if err != nil {
		return nil, err
	}
	j.seed(step)
	return j, nil
}

func (j *Journey[T]) Member() id.Member         { return j.member }
func (j *Journey[T]) Type() id.JourneyType      { return j.Payload.JourneyType() }
func (j *Journey[T]) Key() id.JourneyKey        { return id.NewJourneyKey(j.member, j.Type()) }
func (j *Journey[T]) StartDate() time.Time      { return j.startDate }
func (j *Journey[T]) ExpirationDate() time.Time { return j.expirationDate }
func (j *Journey[T]) IsSubmitted() bool         { return j.submissionDate != nil }
func (j *Journey[T]) ActiveBranchNumber() int   { return j.activeBranch }
func (j *Journey[T]) Version() int              { return j.version }
func (j *Journey[T]) IsActive(branch *Branch) bool {
	return branch != nil && branch.number == j.activeBranch
}

// SetVersion records the persisted version. Stores call it after a write.
func (j *Journey[T]) SetVersion(v int) { j.version = v }

func (j *Journey[T]) SubmissionDate() (time.Time, bool) {
	if j.submissionDate == nil {
		return time.Time{}, false
	}
	return *j.submissionDate, true
}

// Branches returns every branch in creation order.
func (j *Journey[T]) Branches() []*Branch {
	out := make([]*Branch, len(j.branches))
	copy(out, j.branches)
	return out
}

// ActiveBranch returns nil only before the first step exists.
func (j *Journey[T]) ActiveBranch() *Branch {
	for _, b := range j.branches {
		if b.number == j.activeBranch {
			return b
		}
	}
	return nil
}

// CurrentPageKey is where the member stands: the active branch's last
// outgoing edge.
func (j *Journey[T]) CurrentPageKey() (string, bool) {
	active := j.ActiveBranch()
	if active == nil {
		return "", false
	}
	last, ok := active.LastStep()
	if !ok {
		return "", false
	}
	return last.nextPageKey, true
}

// TrySubmitStep records the transition currentPageKey -> nextPageKey.
//
//   - forward progress from the current page appends to the active branch
//   - revisiting an earlier page with the same next page keeps the path and
//     replaces that step's answer
//   - revisiting an earlier page with a different next page forks: the steps
//     up to the one that reached it are copied into a new active branch that
//     ends with the new step, and the old branch is kept inactive. Forking at
//     the entry page keeps the entry step, so [A->B] with (A, C) becomes
//     [A->B, A->C]
//
// Returns CodeInvalidInput `Invalid "currentPageKey"` when the page is not
// part of the active branch. State is unchanged on error.
func (j *Journey[T]) TrySubmitStep(currentPageKey, nextPageKey string, submitDate time.Time, form *QuestionForm) error {
	step, err := NewStep(currentPageKey, nextPageKey, submitDate, form)
	if err != nil {
		return err
	}

	active := j.ActiveBranch()
	if active == nil || active.Len() == 0 {
		j.seed(step)
		return nil
	}

	last, _ := active.LastStep()
	if last.nextPageKey == step.currentPageKey {
		active.submitStep(step)
		return nil
	}

	i := active.indexOf(step.currentPageKey)
	if i < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, `Invalid "currentPageKey"`)
	}

	existing := active.steps[i]
	if existing.nextPageKey == step.nextPageKey {
		existing.resubmit(step.questionForm, step.submitDate)
		return nil
	}

	forked := active.fork(i, j.nextBranchNumber())
	forked.submitStep(step)
	j.branches = append(j.branches, forked)
	j.activeBranch = forked.number
	return nil
}

// PreviousStep returns the page the member came from to reach
// currentPageKey on the active branch. False for the first page and for
// pages the active branch never reached.
func (j *Journey[T]) PreviousStep(currentPageKey string) (string, bool) {
	active := j.ActiveBranch()
	if active == nil {
		return "", false
	}
	i := active.indexOfNext(currentPageKey)
	if i < 0 {
		return "", false
	}
	return active.steps[i].currentPageKey, true
}

// GetRedirectStepPageKey resolves where a member landing on pageKey should
// be sent:
//
//  1. the first page of the active branch stays where it is
//  2. a page of the active branch forwards to its recorded next page, or to
//     itself when the next page is blank
//  3. a page only known to an inactive branch goes to that branch's terminal
//     step
//  4. anything else is returned unchanged
//
// It never mutates the journey.
func (j *Journey[T]) GetRedirectStepPageKey(pageKey string) string {
	active := j.ActiveBranch()
	if active != nil {
		if first, ok := active.FirstStep(); ok && first.currentPageKey == pageKey {
			return pageKey
		}
		if i := active.indexOf(pageKey); i >= 0 {
			s := active.steps[i]
			if strings.TrimSpace(s.nextPageKey) == "" {
				return s.currentPageKey
			}
			return s.nextPageKey
		}
	}

	for _, b := range j.branches {
		if j.IsActive(b) || b.indexOf(pageKey) < 0 {
			continue
		}
		last, _ := b.LastStep()
		return last.currentPageKey
	}
	return pageKey
}

// QuestionForm returns the answer recorded against pageKey on the active
// branch: the form carried by the step following the one that leaves
// pageKey.
//
// False when no step of the active branch leaves pageKey. The empty form
// when that step is the last one, since nothing after it has been answered.
func (j *Journey[T]) QuestionForm(pageKey string) (QuestionForm, bool) {
	active := j.ActiveBranch()
	if active == nil {
		return QuestionForm{}, false
	}
	i := active.indexOf(pageKey)
	if i < 0 {
		return QuestionForm{}, false
	}
	if i == active.Len()-1 {
		return QuestionForm{}, true
	}
	form, _ := active.steps[i+1].QuestionForm()
	return form, true
}

// GetStepByKey returns the active branch's step leaving pageKey.
func (j *Journey[T]) GetStepByKey(pageKey string) (*Step, bool) {
	active := j.ActiveBranch()
	if active == nil {
		return nil, false
	}
	i := active.indexOf(pageKey)
	if i < 0 {
		return nil, false
	}
	return active.steps[i], true
}

// UpdateStep rewrites the next page of the active branch's step leaving
// currentPageKey.
func (j *Journey[T]) UpdateStep(currentPageKey, newNextPageKey string) error {
	step, ok := j.GetStepByKey(currentPageKey)
	if !ok {
		return errStepNotFound(currentPageKey)
	}
	step.UpdateNextPageKey(newNextPageKey)
	return nil
}

// SaveGenericData stores an opaque payload against the step leaving pageKey.
func (j *Journey[T]) SaveGenericData(pageKey, formKey string, payload json.RawMessage) error {
	if strings.TrimSpace(formKey) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "form key cannot be empty")
	}
	step, ok := j.GetStepByKey(pageKey)
	if !ok {
		return errStepNotFound(pageKey)
	}
	step.UpdateGenericData(formKey, payload)
	return nil
}

// SaveCheckboxesList stores a multi-select answer against the step leaving pageKey.
func (j *Journey[T]) SaveCheckboxesList(pageKey string, list CheckboxesList) error {
	step, ok := j.GetStepByKey(pageKey)
	if !ok {
		return errStepNotFound(pageKey)
	}
	step.AddCheckboxesList(list)
	return nil
}

// RemoveStepsStartingWith truncates the active branch at the step leaving
// pageKey. Unknown keys are a no-op.
func (j *Journey[T]) RemoveStepsStartingWith(pageKey string) {
	active := j.ActiveBranch()
	if active == nil {
		return
	}
	if i := active.indexOf(pageKey); i >= 0 {
		active.truncate(i)
	}
}

// RemoveInactiveBranches discards every branch except the active one.
// Returns how many branches were dropped.
func (j *Journey[T]) RemoveInactiveBranches() int {
	active := j.ActiveBranch()
	removed := len(j.branches)
	if active == nil {
		j.branches = nil
		return removed
	}
	j.branches = []*Branch{active}
	return removed - 1
}

// MarkNextPageAsDeadEnd flags the active branch's step leaving pageKey.
func (j *Journey[T]) MarkNextPageAsDeadEnd(pageKey string) error {
	step, ok := j.GetStepByKey(pageKey)
	if !ok {
		return errStepNotFound(pageKey)
	}
	step.MarkNextPageAsDeadEnd()
	return nil
}

// RemoveDeadEndSteps drops the first flagged step of the active branch and
// every step after it. The remaining steps are renumbered from 1.
func (j *Journey[T]) RemoveDeadEndSteps() {
	active := j.ActiveBranch()
	if active == nil {
		return
	}
	for i, s := range active.steps {
		if s.isNextPageDeadEnd {
			active.truncate(i)
			return
		}
	}
}

// ReplaceAllStepsTo collapses the active branch to the single given step.
func (j *Journey[T]) ReplaceAllStepsTo(step *Step) {
	active := j.ActiveBranch()
	if active == nil {
		j.seed(step)
		return
	}
	active.replaceAll(step)
}

// Submit stamps the submission date. A journey is submitted once.
func (j *Journey[T]) Submit(now time.Time) error {
	if j.submissionDate != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "journey is already submitted")
	}
	j.submissionDate = &now
	return nil
}

// RecalculateExpirationDate derives the expiration date from the member's
// selected date under the given policy.
func (j *Journey[T]) RecalculateExpirationDate(selectedDate, now time.Time, policy ExpiryPolicy) {
	j.expirationDate = policy.ExpireDate(selectedDate, now)
}

// IsExpired reports whether the journey has an expiration date at or before now.
func (j *Journey[T]) IsExpired(now time.Time) bool {
	return !j.expirationDate.IsZero() && !now.Before(j.expirationDate)
}

func (j *Journey[T]) seed(step *Step) {
	active := j.ActiveBranch()
	if active == nil {
		active = newBranch(j.nextBranchNumber())
		j.branches = append(j.branches, active)
		j.activeBranch = active.number
	}
	active.submitStep(step)
}

func (j *Journey[T]) nextBranchNumber() int {
	n := 0
	for _, b := range j.branches {
		n = max(n, b.number)
	}
	return n + 1
}

func errStepNotFound(pageKey string) error {
	return dErrors.New(dErrors.CodeNotFound, "journey step not found for page "+pageKey)
}
