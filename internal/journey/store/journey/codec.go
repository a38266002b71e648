// Package journey persists journeys keyed by member and journey type.
//
// Every store speaks models.Snapshot and rebuilds aggregates through
// models.Restore, so a stored journey that breaks an invariant surfaces as
// sentinel.ErrInvalidState instead of a half-valid aggregate.
package journey

import (
	"encoding/json"
	"fmt"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/sentinel"
)

// Mutation is applied to a loaded journey inside Execute. Returning an error
// aborts the write.
type Mutation[T models.Payload] func(j *models.Journey[T]) error

func encodeSnapshot[T models.Payload](j *models.Journey[T]) ([]byte, error) {
	raw, err := json.Marshal(j.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode journey %s: %w", j.Key(), err)
	}
	return raw, nil
}

func decodeSnapshot[T models.Payload](key id.JourneyKey, raw []byte) (*models.Journey[T], error) {
	var snap models.Snapshot[T]
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode journey %s: %w: %w", key, sentinel.ErrInvalidState, err)
	}
	return restore(key, snap)
}

func restore[T models.Payload](key id.JourneyKey, snap models.Snapshot[T]) (*models.Journey[T], error) {
	j, err := models.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("restore journey %s: %w: %w", key, sentinel.ErrInvalidState, err)
	}
	return j, nil
}

func documentTags[T models.Payload](j *models.Journey[T]) []string {
	if tagger, ok := any(j.Payload).(models.DocumentTagger); ok {
		return tagger.DocumentTags()
	}
	return nil
}
