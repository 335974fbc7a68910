package domain

import "time"

// AuditAction names what an audit entry records.
type AuditAction string

const (
	AuditOverrideApplied AuditAction = "override_applied"
	AuditOverrideRevoked AuditAction = "override_revoked"
	AuditForcedLogout    AuditAction = "forced_logout"
)

// AuditEntry is one row of the engine's audit trail. Override mutations
// commit their audit entry in the same transaction as the change itself.
type AuditEntry struct {
	ID        string
	Action    AuditAction
	ActorID   string
	SubjectID string
	Detail    string
	CreatedAt time.Time
}
