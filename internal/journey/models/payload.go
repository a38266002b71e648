package models

import (
	"time"

	dErrors "memberportal/pkg/domain-errors"
)

// ExpiryAnchor is implemented by payloads whose member-selected date drives
// the journey expiration date.
type ExpiryAnchor interface {
	ExpiryAnchor() (time.Time, bool)
}

// SubmissionValidator is implemented by payloads that must be complete
// before the journey can be submitted.
type SubmissionValidator interface {
	ValidateForSubmission() error
}

// DocumentTagger is implemented by payloads that carry uploaded document tags.
type DocumentTagger interface {
	DocumentTags() []string
}

// clonePayload deep-copies payloads that provide a Clone method, so no
// map, slice or pointer is shared with the copy.
func clonePayload[T Payload](p T) T {
	if c, ok := any(p).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func ensureNotFuture(field string, date, now time.Time) error {
	if date.After(now) {
		return dErrors.New(dErrors.CodeInvalidInput, field+" cannot be in the future")
	}
	return nil
}
