package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "memberportal/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: a member
	// committing an application or having it removed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine navigation useful for support and
	// debugging. These can be sampled or kept for a shorter time.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the journey service to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           uuid.UUID      `json:"id"`
	Category     EventCategory  `json:"category"`
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	Member       id.Member      `json:"member"`
	JourneyType  id.JourneyType `json:"journey_type"`
	PageKey      string         `json:"page_key,omitempty"`
	BranchNumber int            `json:"branch_number,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	// Device is a display name derived from the User-Agent, never the raw header.
	Device string `json:"device,omitempty"`
}

type AuditEvent string

const (
	EventJourneyStarted   AuditEvent = "journey_started"
	EventStepSubmitted    AuditEvent = "step_submitted"
	EventBranchForked     AuditEvent = "branch_forked"
	EventStepsRemoved     AuditEvent = "steps_removed"
	EventBranchesPruned   AuditEvent = "branches_pruned"
	EventDeadEndsRemoved  AuditEvent = "dead_ends_removed"
	EventJourneySubmitted AuditEvent = "journey_submitted"
	EventJourneyDeleted   AuditEvent = "journey_deleted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventJourneySubmitted: CategoryCompliance,
	EventJourneyDeleted:   CategoryCompliance,

	EventJourneyStarted:  CategoryOperations,
	EventStepSubmitted:   CategoryOperations,
	EventBranchForked:    CategoryOperations,
	EventStepsRemoved:    CategoryOperations,
	EventBranchesPruned:  CategoryOperations,
	EventDeadEndsRemoved: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByMember(ctx context.Context, member id.Member) ([]Event, error)
}

// Prepare fills the fields every stored event must carry: an ID, a
// timestamp and the category derived from the action.
func Prepare(event Event, now time.Time) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.Category = AuditEvent(event.Action).Category()
	return event
}
