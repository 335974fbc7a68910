package domain

import (
	"sort"
	"strconv"
	"time"

	"github.com/verdantops/canopy/pkg/cryptox"
)

// Profile is a user's authorization profile: role, assigned scope roots, and
// the modification stamp that feeds the cache-invalidation fingerprint.
type Profile struct {
	UserID string
	Role   string

	// AssignedScopes are the org node ids the user is rooted at. A user may
	// hold several roots (a multi-estate manager). System-scoped roles carry
	// the single ScopeAll marker.
	AssignedScopes []string

	LastModified time.Time
}

// Fingerprint hashes everything a cached decision depends on. Any change to
// the role, scope assignment, or the profile's modification stamp (bumped on
// override mutations) yields a new fingerprint and orphans old cache entries.
func (p Profile) Fingerprint() string {
	scopes := append([]string(nil), p.AssignedScopes...)
	sort.Strings(scopes)

	parts := make([]string, 0, len(scopes)+3)
	parts = append(parts, p.UserID, p.Role)
	parts = append(parts, scopes...)
	parts = append(parts, strconv.FormatInt(p.LastModified.UnixNano(), 10))
	return cryptox.Fingerprint(parts...)
}

// HasWildcardScope reports whether the profile carries the "all" marker.
func (p Profile) HasWildcardScope() bool {
	for _, s := range p.AssignedScopes {
		if s == ScopeAll {
			return true
		}
	}
	return false
}
