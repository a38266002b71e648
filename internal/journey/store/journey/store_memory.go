package journey

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/sentinel"
)

// InMemory keeps encoded snapshots in a map. Journeys handed out are fresh
// copies, so callers never alias stored state.
type InMemory[T models.Payload] struct {
	mu       sync.Mutex
	journeys map[id.JourneyKey][]byte
}

func NewInMemory[T models.Payload]() *InMemory[T] {
	return &InMemory[T]{journeys: make(map[id.JourneyKey][]byte)}
}

// Create stores a new journey at version 1.
func (s *InMemory[T]) Create(_ context.Context, j *models.Journey[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := j.Key()
	if _, exists := s.journeys[key]; exists {
		return fmt.Errorf("journey %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	return s.put(j, 1)
}

func (s *InMemory[T]) FindByKey(_ context.Context, key id.JourneyKey) (*models.Journey[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

// Save writes j when its version matches the stored one and bumps it.
func (s *InMemory[T]) Save(_ context.Context, j *models.Journey[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(j.Key())
	if err != nil {
		return err
	}
	if current.Version() != j.Version() {
		return fmt.Errorf("journey %s at version %d, have %d: %w", j.Key(), current.Version(), j.Version(), sentinel.ErrConflict)
	}
	return s.put(j, j.Version()+1)
}

func (s *InMemory[T]) Delete(_ context.Context, key id.JourneyKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.journeys[key]; !ok {
		return fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	delete(s.journeys, key)
	return nil
}

// Execute loads, mutates and saves under the store lock.
func (s *InMemory[T]) Execute(ctx context.Context, key id.JourneyKey, fn Mutation[T]) (*models.Journey[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	if err := s.put(j, j.Version()+1); err != nil {
		return nil, err
	}
	return j, nil
}

// ListByBusinessGroup returns the group's journeys ordered by reference number.
func (s *InMemory[T]) ListByBusinessGroup(_ context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []id.JourneyKey
	for key := range s.journeys {
		if key.Member.BusinessGroup == bg {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b id.JourneyKey) int {
		return cmp.Compare(a.String(), b.String())
	})

	out := make([]*models.Journey[T], 0, len(keys))
	for _, key := range keys {
		j, err := s.get(key)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// DeleteExpired removes journeys whose expiration date is at or before now.
func (s *InMemory[T]) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.journeys {
		j, err := s.get(key)
		if err != nil {
			return removed, err
		}
		if j.IsExpired(now) {
			delete(s.journeys, key)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemory[T]) get(key id.JourneyKey) (*models.Journey[T], error) {
	raw, ok := s.journeys[key]
	if !ok {
		return nil, fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	return decodeSnapshot[T](key, raw)
}

func (s *InMemory[T]) put(j *models.Journey[T], version int) error {
	previous := j.Version()
	j.SetVersion(version)
	raw, err := encodeSnapshot(j)
	if err != nil {
		j.SetVersion(previous)
		return err
	}
	s.journeys[j.Key()] = raw
	return nil
}
