package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
	"github.com/verdantops/canopy/pkg/cryptox"
)

// CredentialVerifier is the credential-backend collaborator. The engine
// never sees raw credential internals beyond this call; MFA and SSO flows
// live behind other implementations of the same interface.
type CredentialVerifier interface {
	// Verify checks a username/password pair and returns the account on
	// success. Bad credentials are ErrInvalidCredentials; an unreachable
	// backend is ErrBackendUnavailable.
	Verify(ctx context.Context, username, password string) (domain.User, error)
}

// StoreCredentialVerifier verifies against the users table with argon2id
// hash comparison.
type StoreCredentialVerifier struct {
	users store.Users
}

func NewStoreCredentialVerifier(users store.Users) *StoreCredentialVerifier {
	return &StoreCredentialVerifier{users: users}
}

func (v *StoreCredentialVerifier) Verify(ctx context.Context, username, password string) (domain.User, error) {
	user, err := v.users.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: lookup user: %v", ErrBackendUnavailable, err)
	}

	if !user.IsActive {
		return domain.User{}, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}
