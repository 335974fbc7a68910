// Package jwtx signs and verifies the engine's session tokens. Tokens are
// Ed25519-signed JWTs carrying the user, session, and device identifiers;
// everything else about a session lives server-side in the session manager.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("jwtx: invalid token")
	ErrTokenExpired = errors.New("jwtx: token expired")
)

// SessionClaims are the claims embedded in a session token.
type SessionClaims struct {
	jwt.RegisteredClaims

	// SID is the session identifier, used to find the server-side session
	// record. A token without a live session record is worthless.
	SID string `json:"sid"`

	// Device identifies the issuing device so cross-device logout can name
	// the origin of a broadcast.
	Device string `json:"device,omitempty"`
}

// NewSessionClaims builds claims for a freshly issued session.
func NewSessionClaims(userID, sessionID, deviceID, issuer string, ttl time.Duration, now time.Time) SessionClaims {
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SID:    sessionID,
		Device: deviceID,
	}
}
