package service

import (
	"context"

	"memberportal/pkg/attrs"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/middleware/device"
	"memberportal/pkg/requestcontext"
)

// logAudit writes the audit line and emits the event. Emit failures are
// logged and never fail the operation: the journey write already committed.
func (s *Service[T]) logAudit(ctx context.Context, event audit.AuditEvent, member id.Member, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes,
		"business_group", member.BusinessGroup,
		"journey_type", s.journeyType,
		"event", string(event),
		"log_type", "audit",
	)
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:       string(event),
		Timestamp:    requestcontext.Now(ctx),
		Member:       member,
		JourneyType:  s.journeyType,
		PageKey:      attrs.ExtractString(attributes, "page_key"),
		BranchNumber: attrs.ExtractInt(attributes, "branch_number"),
		RequestID:    requestID,
		ClientIP:     requestcontext.ClientIP(ctx),
		Device:       device.Get(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", string(event),
			"request_id", requestID,
			"error", err,
		)
	}
}
