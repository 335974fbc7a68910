package domain

import (
	"time"

	"github.com/verdantops/canopy/pkg/permset"
)

// PermissionOverride is an explicit per-user grant or deny layered on top of
// the user's role defaults. Overrides may be scoped to a single org node and
// may carry an expiry; an expired override is inert but is only physically
// removed by the background sweep (lazy expiry).
type PermissionOverride struct {
	ID         string
	UserID     string
	Permission permset.Permission
	IsGranted  bool

	// Scope restricts the override to one org node and its descendants. The
	// zero ref means the override applies everywhere the role's own scope
	// reaches.
	Scope ScopeRef

	ExpiresAt *time.Time
	CreatedBy string
	CreatedAt time.Time
	Reason    string
}

// ExpiredAt reports whether the override is inert at the given instant.
func (o PermissionOverride) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}
