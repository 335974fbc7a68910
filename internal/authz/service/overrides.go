package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
	"github.com/verdantops/canopy/pkg/idx"
	"github.com/verdantops/canopy/pkg/permset"
	"github.com/verdantops/canopy/pkg/slogx"
)

// OverrideService manages per-user permission overrides. Mutations commit
// the change and its audit entry in one transaction, then notify
// invalidation listeners so cached decisions and profile fingerprints are
// refreshed before the next check.
type OverrideService struct {
	store store.Store

	mu        sync.RWMutex
	listeners []func(userID string)
}

func NewOverrideService(st store.Store) *OverrideService {
	return &OverrideService{store: st}
}

// OnInvalidate registers a listener called with the affected user id after
// any override mutation commits. Registration happens during wiring, before
// traffic.
func (s *OverrideService) OnInvalidate(fn func(userID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// EffectiveOverrides returns the user's overrides with expired entries
// filtered out. Reads never mutate; physical removal of expired rows is the
// sweeper's job.
func (s *OverrideService) EffectiveOverrides(ctx context.Context, userID string, now time.Time) ([]domain.PermissionOverride, error) {
	all, err := s.store.Overrides().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list overrides: %v", ErrBackendUnavailable, err)
	}

	effective := all[:0]
	for _, o := range all {
		if !o.ExpiredAt(now) {
			effective = append(effective, o)
		}
	}
	return effective, nil
}

// Apply stores an override (replacing any previous override for the same
// permission and scope) together with its audit entry.
func (s *OverrideService) Apply(ctx context.Context, o domain.PermissionOverride) error {
	if o.ID == "" {
		o.ID = idx.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Overrides().Upsert(ctx, o); err != nil {
			return fmt.Errorf("upsert override: %w", err)
		}
		if err := tx.Users().TouchProfile(ctx, o.UserID, o.CreatedAt); err != nil {
			return fmt.Errorf("touch profile: %w", err)
		}

		verb := "deny"
		if o.IsGranted {
			verb = "grant"
		}
		entry := domain.AuditEntry{
			ID:        idx.New().String(),
			Action:    domain.AuditOverrideApplied,
			ActorID:   o.CreatedBy,
			SubjectID: o.UserID,
			Detail:    fmt.Sprintf("%s %s scope=%s reason=%s", verb, o.Permission.String(), o.Scope.Hash(), o.Reason),
			CreatedAt: o.CreatedAt,
		}
		if err := tx.Audit().Record(ctx, entry); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: apply override: %v", ErrBackendUnavailable, err)
	}

	slogx.FromContext(ctx).Info("permission override applied",
		"user_id", o.UserID,
		"permission", o.Permission.String(),
		"granted", o.IsGranted,
		"scope", o.Scope.Hash(),
	)

	s.notify(o.UserID)
	return nil
}

// Revoke removes the override for (user, permission, scope), recording the
// revocation in the audit trail.
func (s *OverrideService) Revoke(ctx context.Context, actorID, userID string, perm permset.Permission, scope domain.ScopeRef) error {
	now := time.Now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Overrides().Delete(ctx, userID, perm.String(), scope.ID); err != nil {
			return fmt.Errorf("delete override: %w", err)
		}
		if err := tx.Users().TouchProfile(ctx, userID, now); err != nil {
			return fmt.Errorf("touch profile: %w", err)
		}

		entry := domain.AuditEntry{
			ID:        idx.New().String(),
			Action:    domain.AuditOverrideRevoked,
			ActorID:   actorID,
			SubjectID: userID,
			Detail:    fmt.Sprintf("revoke %s scope=%s", perm.String(), scope.Hash()),
			CreatedAt: now,
		}
		if err := tx.Audit().Record(ctx, entry); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: revoke override: %v", ErrBackendUnavailable, err)
	}

	slogx.FromContext(ctx).Info("permission override revoked",
		"user_id", userID,
		"permission", perm.String(),
		"scope", scope.Hash(),
	)

	s.notify(userID)
	return nil
}

func (s *OverrideService) notify(userID string) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(userID)
	}
}
