package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"memberportal/internal/platform/kafka/consumer"
	audit "memberportal/pkg/platform/audit"
)

// EventHandler materializes audit events from Kafka into a queryable store.
// Store inserts are idempotent on the event ID, so redelivery is harmless.
type EventHandler struct {
	store  audit.Store
	logger *slog.Logger
}

func NewEventHandler(store audit.Store, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: store, logger: logger}
}

// Handle stores one event. Malformed messages are logged and skipped so they
// do not block the partition; store failures are returned.
func (h *EventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: failed to unmarshal audit event",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.ID == uuid.Nil {
		if keyID, err := uuid.Parse(string(msg.Key)); err == nil {
			event.ID = keyID
		}
	}
	if event.ID == uuid.Nil || event.Member.IsZero() || event.Action == "" {
		h.logger.ErrorContext(ctx, "CRITICAL: audit event missing required fields",
			"key", string(msg.Key),
			"action", event.Action,
		)
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = msg.Timestamp
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("store audit event %s: %w", event.ID, err)
	}

	h.logger.DebugContext(ctx, "stored audit event",
		"event_id", event.ID,
		"action", event.Action,
		"category", event.Category,
	)
	return nil
}
