package domain

import "time"

// User is the credential-bearing account record behind a profile. Password
// hashes are argon2id encoded; credential verification beyond hash comparison
// (MFA, SSO) belongs to the external verifier collaborator.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
