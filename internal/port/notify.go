package port

import "github.com/rohan-chari/tempo-backend/internal/domain"

// ChangeNotifier fans out committed calendar changes. Publish must not block.
type ChangeNotifier interface {
	Publish(change domain.CalendarChange)
}

// AuditWriter persists one audit record.
type AuditWriter interface {
	WriteAudit(subject, action, resource, resourceID, details, ip, userAgent string) error
}
