package memory

import (
	"context"
	"slices"
	"sync"

	id "memberportal/pkg/domain"
	audit "memberportal/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.Member][]audit.Event
	seen   map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[id.Member][]audit.Event),
		seen:   make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.Member][]audit.Event)
	s.seen = make(map[string]struct{})
}

// Append stores the event. Events are deduplicated by ID so redelivered
// Kafka messages are recorded once.
func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.ID.String()
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	s.events[event.Member] = append(s.events[event.Member], event)
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, member id.Member) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[member]), nil
}

// ListAll returns all audit events across all members ordered by timestamp.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	slices.SortStableFunc(all, func(a, b audit.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return all, nil
}
