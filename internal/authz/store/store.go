package store

import (
	"context"
	"errors"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface backing the engine's durable
// state: permission overrides, user/profile records, the organisational
// tree, and the audit trail. Concrete drivers (sqlite) implement it. Sub
// repositories keep concerns separate and let transactional code reuse the
// same surface.
type Store interface {
	Overrides() Overrides
	Users() Users
	OrgNodes() OrgNodes
	Audit() Audit

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Override
	// mutations use this to commit the change and its audit entry together.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Overrides() Overrides
	Users() Users
	OrgNodes() OrgNodes
	Audit() Audit
}

type Overrides interface {
	// ListByUser returns every override for a user, including expired ones.
	// Expiry filtering is the caller's job (lazy expiry, reads never
	// mutate).
	ListByUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error)

	// Upsert stores an override, replacing any existing override for the
	// same (user, permission, scope) triple.
	Upsert(ctx context.Context, o domain.PermissionOverride) error

	// Delete removes the override for (user, permission, scope). An empty
	// scopeID addresses the unscoped override.
	Delete(ctx context.Context, userID, permission, scopeID string) error

	// DeleteExpired purges overrides whose expiry has passed. Called by the
	// background sweep only.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (domain.User, error)

	// GetByUsername is used during login.
	GetByUsername(ctx context.Context, username string) (domain.User, error)

	Create(ctx context.Context, u domain.User) error

	// GetProfile assembles the authorization profile: role, assigned scope
	// roots, and the last-modified stamp.
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)

	// AssignScopes replaces the user's assigned scope roots and bumps the
	// profile's modification stamp.
	AssignScopes(ctx context.Context, userID string, scopeIDs []string) error

	// TouchProfile bumps the modification stamp so the profile fingerprint
	// changes. Called when an override mutation lands.
	TouchProfile(ctx context.Context, userID string, at time.Time) error
}

type OrgNodes interface {
	Get(ctx context.Context, id string) (domain.ScopeNode, error)

	// AncestryOf returns the path root…node for a scope node.
	AncestryOf(ctx context.Context, id string) ([]domain.ScopeNode, error)

	Create(ctx context.Context, n domain.ScopeNode) error
}

type Audit interface {
	// Record appends one entry to the audit trail.
	Record(ctx context.Context, e domain.AuditEntry) error

	// ListBySubject returns the newest entries concerning a subject user.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.AuditEntry, error)
}
