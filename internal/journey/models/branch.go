package models

import "fmt"

// Branch is one candidate path of page transitions.
//
// Invariants:
//   - Number is positive and unique within a journey
//   - step sequence numbers are 1..N, contiguous, in append order
//
// Whether a branch is active is owned by the journey, see Journey.IsActive.
type Branch struct {
	number int
	steps  []*Step
}

func newBranch(number int) *Branch {
	if number < 1 {
		panic(fmt.Sprintf("journey branch number must be positive, got %d", number))
	}
	return &Branch{number: number}
}

func (b *Branch) Number() int { return b.number }
func (b *Branch) Len() int    { return len(b.steps) }

// Steps returns the steps in append order. The slice is a copy; the steps
// are not.
func (b *Branch) Steps() []*Step {
	out := make([]*Step, len(b.steps))
	copy(out, b.steps)
	return out
}

func (b *Branch) FirstStep() (*Step, bool) {
	if len(b.steps) == 0 {
		return nil, false
	}
	return b.steps[0], true
}

func (b *Branch) LastStep() (*Step, bool) {
	if len(b.steps) == 0 {
		return nil, false
	}
	return b.steps[len(b.steps)-1], true
}

// submitStep appends with sequence = previous max + 1.
func (b *Branch) submitStep(s *Step) {
	s.setSequenceNumber(len(b.steps) + 1)
	b.steps = append(b.steps, s)
}

// indexOf finds the first step leaving pageKey.
func (b *Branch) indexOf(pageKey string) int {
	for i, s := range b.steps {
		if s.currentPageKey == pageKey {
			return i
		}
	}
	return -1
}

// indexOfNext finds the first step arriving at pageKey.
func (b *Branch) indexOfNext(pageKey string) int {
	for i, s := range b.steps {
		if s.nextPageKey == pageKey {
			return i
		}
	}
	return -1
}

// truncate drops the step at i and everything after it.
func (b *Branch) truncate(i int) {
	for j := i; j < len(b.steps); j++ {
		b.steps[j] = nil
	}
	b.steps = b.steps[:i]
	b.renumber()
}

func (b *Branch) replaceAll(s *Step) {
	b.steps = nil
	b.submitStep(s)
}

func (b *Branch) renumber() {
	for i, s := range b.steps {
		s.setSequenceNumber(i + 1)
	}
}

// fork copies the steps up to and including the one that arrived at the
// page leaving at i into a new branch. When i is the entry step there is no
// such step, so the entry step itself is kept. Steps are cloned so the two
// branches never share mutable state.
func (b *Branch) fork(i, number int) *Branch {
	keep := max(i, 1)
	nb := newBranch(number)
	nb.steps = make([]*Step, 0, keep+1)
	for _, s := range b.steps[:keep] {
		nb.steps = append(nb.steps, s.clone())
	}
	return nb
}
