package domain

import "time"

// LockoutRecord tracks consecutive authentication failures for one login
// identifier.
type LockoutRecord struct {
	Identifier   string
	FailureCount int
	WindowStart  time.Time
	LockedUntil  *time.Time
}

// LockedAt reports whether the identifier is suppressed at the given instant.
func (r LockoutRecord) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}
