package domain

import "time"

// ReasonCode explains an authorization decision in machine-readable form.
type ReasonCode string

const (
	// Allowed outcomes.
	GrantedRole     ReasonCode = "granted_role"
	GrantedOverride ReasonCode = "granted_override"

	// Denied outcomes.
	DeniedNoPermission       ReasonCode = "denied_no_permission"
	DeniedOutOfScope         ReasonCode = "denied_out_of_scope"
	DeniedExplicitOverride   ReasonCode = "denied_explicit_override"
	DeniedInvalidSession     ReasonCode = "denied_invalid_session"
	DeniedBackendUnavailable ReasonCode = "denied_backend_unavailable"
)

// Decision is the outcome of an authorization check. Authorization questions
// always produce a Decision; they never surface as errors or panics.
type Decision struct {
	Allowed     bool
	Reason      ReasonCode
	EvaluatedAt time.Time
}

func Grant(reason ReasonCode, at time.Time) Decision {
	return Decision{Allowed: true, Reason: reason, EvaluatedAt: at}
}

func Deny(reason ReasonCode, at time.Time) Decision {
	return Decision{Allowed: false, Reason: reason, EvaluatedAt: at}
}
