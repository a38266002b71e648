package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "memberportal/pkg/domain"
	audit "memberportal/pkg/platform/audit"
	txcontext "memberportal/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Inserts are
// idempotent on the event ID so the Kafka consumer can replay safely.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts the event. When the context carries a transaction the
// insert joins it, so journey writes and their audit rows commit together.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	category := audit.AuditEvent(event.Action).Category()

	const query = `
		INSERT INTO audit_events (
			id, category, action, business_group, reference_number, journey_type,
			page_key, branch_number, request_id, client_ip, device, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Action,
		event.Member.BusinessGroup.String(),
		event.Member.ReferenceNumber.String(),
		event.JourneyType.String(),
		event.PageKey,
		event.BranchNumber,
		event.RequestID,
		event.ClientIP,
		event.Device,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByMember returns the member's events, oldest first.
func (s *Store) ListByMember(ctx context.Context, member id.Member) ([]audit.Event, error) {
	const query = `
		SELECT id, category, action, business_group, reference_number, journey_type,
			   page_key, branch_number, request_id, client_ip, device, occurred_at
		FROM audit_events
		WHERE business_group = $1 AND reference_number = $2
		ORDER BY occurred_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, member.BusinessGroup.String(), member.ReferenceNumber.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event                  audit.Event
			category, bg, ref, typ string
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Action,
			&bg,
			&ref,
			&typ,
			&event.PageKey,
			&event.BranchNumber,
			&event.RequestID,
			&event.ClientIP,
			&event.Device,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Member = id.Member{BusinessGroup: id.BusinessGroup(bg), ReferenceNumber: id.ReferenceNumber(ref)}
		event.JourneyType = id.JourneyType(typ)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
