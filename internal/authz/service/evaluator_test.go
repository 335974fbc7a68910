package service

import (
	"context"
	"testing"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store/drivers/sqlite"
	"github.com/verdantops/canopy/pkg/cryptox"
	"github.com/verdantops/canopy/pkg/idx"
	"github.com/verdantops/canopy/pkg/permset"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

// seedTree builds the plantation fixture in the store: company C1 with
// estates E1 and E2; E1 holds divisions D1 and D2; D1 holds block B1.
func seedTree(t *testing.T, st *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	nodes := []domain.ScopeNode{
		{ID: "C1", Type: domain.ScopeCompany, Name: "PT Verdant"},
		{ID: "E1", Type: domain.ScopeEstate, ParentID: "C1", Name: "Estate North"},
		{ID: "E2", Type: domain.ScopeEstate, ParentID: "C1", Name: "Estate South"},
		{ID: "D1", Type: domain.ScopeDivision, ParentID: "E1", Name: "Division 1"},
		{ID: "D2", Type: domain.ScopeDivision, ParentID: "E1", Name: "Division 2"},
		{ID: "B1", Type: domain.ScopeBlock, ParentID: "D1", Name: "Block 1"},
	}
	for _, n := range nodes {
		require.NoError(t, st.OrgNodes().Create(ctx, n))
	}
}

func seedUser(t *testing.T, st *sqlite.Store, role string, scopes ...string) domain.Profile {
	t.Helper()
	ctx := context.Background()

	hash, err := cryptox.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     "user-" + idx.New().String(),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().Create(ctx, user))
	require.NoError(t, st.Users().AssignScopes(ctx, user.ID, scopes))

	profile, err := st.Users().GetProfile(ctx, user.ID)
	require.NoError(t, err)
	return profile
}

type evalFixture struct {
	st        *sqlite.Store
	registry  *RoleRegistry
	overrides *OverrideService
	eval      *OverrideEvaluator
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()

	st := newTestStore(t)
	seedTree(t, st)

	catalogue, err := NewCatalogue()
	require.NoError(t, err)
	registry, err := NewRoleRegistry(DefaultRoles(), catalogue)
	require.NoError(t, err)

	overrides := NewOverrideService(st)
	eval := NewOverrideEvaluator(registry, NewScopeResolver(st.OrgNodes()), overrides)

	return &evalFixture{st: st, registry: registry, overrides: overrides, eval: eval}
}

func division(id string) domain.ScopeRef { return domain.ScopeRef{Type: domain.ScopeDivision, ID: id} }
func estate(id string) domain.ScopeRef   { return domain.ScopeRef{Type: domain.ScopeEstate, ID: id} }

func TestEvaluateRoleDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEvalFixture(t)

	approve := permset.New("harvest", "approve")

	t.Run("system role is allowed everywhere", func(t *testing.T) {
		admin := seedUser(t, f.st, "super_admin", domain.ScopeAll)

		d := f.eval.Evaluate(ctx, admin, approve, estate("E2"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedRole, d.Reason)

		d = f.eval.Evaluate(ctx, admin, permset.New("companies", "delete"), domain.ScopeRef{})
		require.True(t, d.Allowed)
	})

	t.Run("manager allowed inside own estate", func(t *testing.T) {
		manager := seedUser(t, f.st, "manager", "E1")

		d := f.eval.Evaluate(ctx, manager, approve, division("D1"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedRole, d.Reason)
	})

	t.Run("manager denied in sibling estate", func(t *testing.T) {
		manager := seedUser(t, f.st, "manager", "E1")

		d := f.eval.Evaluate(ctx, manager, approve, estate("E2"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedOutOfScope, d.Reason)
	})

	t.Run("permission not held by the role", func(t *testing.T) {
		manager := seedUser(t, f.st, "manager", "E1")

		d := f.eval.Evaluate(ctx, manager, permset.New("harvest", "delete"), division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedNoPermission, d.Reason)
	})

	t.Run("unknown role denies", func(t *testing.T) {
		ghost := domain.Profile{UserID: idx.New().String(), Role: "ghost"}
		d := f.eval.Evaluate(ctx, ghost, approve, division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedNoPermission, d.Reason)
	})
}

func TestEvaluateOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	approve := permset.New("harvest", "approve")
	checkin := permset.New("gate", "checkin")

	t.Run("scoped deny beats the role default inside its scope", func(t *testing.T) {
		f := newEvalFixture(t)
		manager := seedUser(t, f.st, "manager", "E1")

		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID:     manager.UserID,
			Permission: approve,
			IsGranted:  false,
			Scope:      division("D1"),
			CreatedBy:  "admin-1",
			Reason:     "harvest dispute under review",
		}))

		d := f.eval.Evaluate(ctx, manager, approve, division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedExplicitOverride, d.Reason)

		// The deny covers descendants of its node.
		d = f.eval.Evaluate(ctx, manager, approve, domain.ScopeRef{Type: domain.ScopeBlock, ID: "B1"})
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedExplicitOverride, d.Reason)

		// The sibling division is untouched.
		d = f.eval.Evaluate(ctx, manager, approve, division("D2"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedRole, d.Reason)
	})

	t.Run("deny beats a granted override for the same permission", func(t *testing.T) {
		f := newEvalFixture(t)
		manager := seedUser(t, f.st, "manager", "E1")

		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID: manager.UserID, Permission: checkin, IsGranted: true, CreatedBy: "admin-1",
		}))
		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID: manager.UserID, Permission: checkin, IsGranted: false,
			Scope: division("D1"), CreatedBy: "admin-1",
		}))

		d := f.eval.Evaluate(ctx, manager, checkin, division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedExplicitOverride, d.Reason)
	})

	t.Run("scoped grant reaches outside the role's permissions", func(t *testing.T) {
		f := newEvalFixture(t)
		mandor := seedUser(t, f.st, "mandor", "D1")

		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID:     mandor.UserID,
			Permission: approve,
			IsGranted:  true,
			Scope:      division("D1"),
			CreatedBy:  "manager-1",
			Reason:     "acting asisten during leave",
		}))

		d := f.eval.Evaluate(ctx, mandor, approve, division("D1"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedOverride, d.Reason)

		// Outside the override's node the grant does not apply.
		d = f.eval.Evaluate(ctx, mandor, approve, division("D2"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedNoPermission, d.Reason)
	})

	t.Run("unscoped grant is bounded by the role's assigned reach", func(t *testing.T) {
		f := newEvalFixture(t)
		mandor := seedUser(t, f.st, "mandor", "D1")

		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID: mandor.UserID, Permission: approve, IsGranted: true, CreatedBy: "manager-1",
		}))

		d := f.eval.Evaluate(ctx, mandor, approve, division("D1"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedOverride, d.Reason)

		d = f.eval.Evaluate(ctx, mandor, approve, division("D2"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedOutOfScope, d.Reason)
	})

	t.Run("expired override is inert", func(t *testing.T) {
		f := newEvalFixture(t)
		manager := seedUser(t, f.st, "manager", "E1")

		past := time.Now().Add(-time.Hour)
		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID: manager.UserID, Permission: approve, IsGranted: false,
			Scope: division("D1"), ExpiresAt: &past, CreatedBy: "admin-1",
		}))

		d := f.eval.Evaluate(ctx, manager, approve, division("D1"))
		require.True(t, d.Allowed)
		require.Equal(t, domain.GrantedRole, d.Reason)
	})

	t.Run("revoked override stops applying", func(t *testing.T) {
		f := newEvalFixture(t)
		manager := seedUser(t, f.st, "manager", "E1")

		require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
			UserID: manager.UserID, Permission: approve, IsGranted: false,
			Scope: division("D1"), CreatedBy: "admin-1",
		}))
		require.NoError(t, f.overrides.Revoke(ctx, "admin-1", manager.UserID, approve, division("D1")))

		d := f.eval.Evaluate(ctx, manager, approve, division("D1"))
		require.True(t, d.Allowed)
	})

	t.Run("unreachable store denies closed", func(t *testing.T) {
		f := newEvalFixture(t)
		manager := seedUser(t, f.st, "manager", "E1")
		require.NoError(t, f.st.Close())

		d := f.eval.Evaluate(ctx, manager, approve, division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedBackendUnavailable, d.Reason)
	})
}

func TestEvaluateAny(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEvalFixture(t)

	mandor := seedUser(t, f.st, "mandor", "D1")

	t.Run("one allowed permission suffices", func(t *testing.T) {
		d := f.eval.EvaluateAny(ctx, mandor, []permset.Permission{
			permset.New("harvest", "approve"),
			permset.New("harvest", "create"),
		}, division("D1"))
		require.True(t, d.Allowed)
	})

	t.Run("all denied keeps the first reason", func(t *testing.T) {
		d := f.eval.EvaluateAny(ctx, mandor, []permset.Permission{
			permset.New("harvest", "approve"),
			permset.New("gate", "manage"),
		}, division("D1"))
		require.False(t, d.Allowed)
		require.Equal(t, domain.DeniedNoPermission, d.Reason)
	})

	t.Run("empty list denies", func(t *testing.T) {
		d := f.eval.EvaluateAny(ctx, mandor, nil, division("D1"))
		require.False(t, d.Allowed)
	})
}

func TestStaticEvaluatorIgnoresOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newEvalFixture(t)

	manager := seedUser(t, f.st, "manager", "E1")
	approve := permset.New("harvest", "approve")

	require.NoError(t, f.overrides.Apply(ctx, domain.PermissionOverride{
		UserID: manager.UserID, Permission: approve, IsGranted: false,
		Scope: division("D1"), CreatedBy: "admin-1",
	}))

	static := NewStaticEvaluator(f.registry, NewScopeResolver(f.st.OrgNodes()))
	d := static.Evaluate(ctx, manager, approve, division("D1"))
	require.True(t, d.Allowed)
	require.Equal(t, domain.GrantedRole, d.Reason)
}

// countingEvaluator wraps decisions for the caching decorator tests.
type countingEvaluator struct {
	calls    int
	decision domain.Decision
}

func (c *countingEvaluator) Evaluate(context.Context, domain.Profile, permset.Permission, domain.ScopeRef) domain.Decision {
	c.calls++
	return c.decision
}

func (c *countingEvaluator) EvaluateAny(ctx context.Context, p domain.Profile, perms []permset.Permission, s domain.ScopeRef) domain.Decision {
	return evaluateAny(ctx, c, p, perms, s, time.Now)
}

func TestCachedEvaluator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	perm := permset.New("harvest", "read")
	profile := domain.Profile{UserID: "u1", Role: "manager", AssignedScopes: []string{"E1"}, LastModified: time.Now()}

	t.Run("second evaluation is served from cache", func(t *testing.T) {
		inner := &countingEvaluator{decision: domain.Grant(domain.GrantedRole, time.Now())}
		cached := NewCachedEvaluator(inner, NewDecisionCache(time.Minute, 100, nil), nil)

		d := cached.Evaluate(ctx, profile, perm, estate("E1"))
		require.True(t, d.Allowed)
		require.Equal(t, 1, inner.calls)

		d = cached.Evaluate(ctx, profile, perm, estate("E1"))
		require.True(t, d.Allowed)
		require.Equal(t, 1, inner.calls)
	})

	t.Run("profile change orphans old entries", func(t *testing.T) {
		inner := &countingEvaluator{decision: domain.Grant(domain.GrantedRole, time.Now())}
		cached := NewCachedEvaluator(inner, NewDecisionCache(time.Minute, 100, nil), nil)

		cached.Evaluate(ctx, profile, perm, estate("E1"))

		touched := profile
		touched.LastModified = profile.LastModified.Add(time.Second)
		cached.Evaluate(ctx, touched, perm, estate("E1"))
		require.Equal(t, 2, inner.calls)
	})

	t.Run("invalidation forces re-evaluation", func(t *testing.T) {
		inner := &countingEvaluator{decision: domain.Grant(domain.GrantedRole, time.Now())}
		cache := NewDecisionCache(time.Minute, 100, nil)
		cached := NewCachedEvaluator(inner, cache, nil)

		cached.Evaluate(ctx, profile, perm, estate("E1"))
		cache.Invalidate(profile.UserID)
		cached.Evaluate(ctx, profile, perm, estate("E1"))
		require.Equal(t, 2, inner.calls)
	})

	t.Run("backend failures are not cached", func(t *testing.T) {
		inner := &countingEvaluator{decision: domain.Deny(domain.DeniedBackendUnavailable, time.Now())}
		cached := NewCachedEvaluator(inner, NewDecisionCache(time.Minute, 100, nil), nil)

		cached.Evaluate(ctx, profile, perm, estate("E1"))
		cached.Evaluate(ctx, profile, perm, estate("E1"))
		require.Equal(t, 2, inner.calls)
	})

	t.Run("denials are cached too", func(t *testing.T) {
		inner := &countingEvaluator{decision: domain.Deny(domain.DeniedOutOfScope, time.Now())}
		cached := NewCachedEvaluator(inner, NewDecisionCache(time.Minute, 100, nil), nil)

		cached.Evaluate(ctx, profile, perm, estate("E2"))
		d := cached.Evaluate(ctx, profile, perm, estate("E2"))
		require.False(t, d.Allowed)
		require.Equal(t, 1, inner.calls)
	})
}
