package domain

import "time"

// SessionState tracks where a session sits in its lifecycle.
type SessionState string

const (
	SessionAnonymous      SessionState = "anonymous"
	SessionAuthenticating SessionState = "authenticating"
	SessionAuthenticated  SessionState = "authenticated"
	SessionRefreshing     SessionState = "refreshing"
	SessionExpired        SessionState = "expired"
	SessionLoggedOut      SessionState = "logged_out"
)

// Session is the engine's record of an authenticated principal.
type Session struct {
	ID       string
	UserID   string
	DeviceID string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// RefreshLeadTime is how long before expiry the background refresh
	// fires.
	RefreshLeadTime time.Duration

	// LastValidated is the last instant the session was confirmed against
	// the credential backend. It bounds the offline grace window.
	LastValidated time.Time

	State SessionState
}

// ExpiredAt reports whether the session has passed its expiry.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RefreshAt is the instant the scheduled refresh should fire.
func (s Session) RefreshAt() time.Time {
	return s.ExpiresAt.Add(-s.RefreshLeadTime)
}
