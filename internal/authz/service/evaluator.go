package service

import (
	"context"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/obs"
	"github.com/verdantops/canopy/pkg/permset"
)

// Evaluator answers permission questions for a profile. Implementations are
// pure with respect to their own state: concurrent evaluations need no
// locking, and every outcome is a typed Decision rather than an error.
type Evaluator interface {
	// Evaluate decides a single permission at a scope.
	Evaluate(ctx context.Context, profile domain.Profile, perm permset.Permission, scope domain.ScopeRef) domain.Decision

	// EvaluateAny decides a disjunction: allowed if any of the permissions
	// is allowed.
	EvaluateAny(ctx context.Context, profile domain.Profile, perms []permset.Permission, scope domain.ScopeRef) domain.Decision
}

// StaticEvaluator decides on role defaults alone. It is the strategy for
// callers that must not consult per-user overrides, and the baseline the
// override-aware strategy builds on.
type StaticEvaluator struct {
	registry *RoleRegistry
	scopes   *ScopeResolver
	now      func() time.Time
}

func NewStaticEvaluator(registry *RoleRegistry, scopes *ScopeResolver) *StaticEvaluator {
	return &StaticEvaluator{registry: registry, scopes: scopes, now: time.Now}
}

func (e *StaticEvaluator) Evaluate(ctx context.Context, profile domain.Profile, perm permset.Permission, scope domain.ScopeRef) domain.Decision {
	now := e.now()

	def, ok := e.registry.Get(profile.Role)
	if !ok {
		return domain.Deny(domain.DeniedNoPermission, now)
	}

	if def.ScopeLevel == domain.ScopeLevelSystem {
		return domain.Grant(domain.GrantedRole, now)
	}

	if !e.registry.Defaults(profile.Role).Has(perm) {
		return domain.Deny(domain.DeniedNoPermission, now)
	}

	within, err := e.scopes.IsWithin(ctx, AncestryMemo{}, profile.AssignedScopes, scope)
	if err != nil {
		return domain.Deny(domain.DeniedBackendUnavailable, now)
	}
	if !within {
		return domain.Deny(domain.DeniedOutOfScope, now)
	}
	return domain.Grant(domain.GrantedRole, now)
}

func (e *StaticEvaluator) EvaluateAny(ctx context.Context, profile domain.Profile, perms []permset.Permission, scope domain.ScopeRef) domain.Decision {
	return evaluateAny(ctx, e, profile, perms, scope, e.now)
}

// OverrideEvaluator layers per-user overrides over role defaults. Decision
// order: system-scope bypass, explicit deny override, permission held (by
// role default or a granted override), scope containment. Within its scope
// an explicit deny beats any grant; only the system-scope bypass sits above
// it.
type OverrideEvaluator struct {
	registry  *RoleRegistry
	scopes    *ScopeResolver
	overrides *OverrideService
	now       func() time.Time
}

func NewOverrideEvaluator(registry *RoleRegistry, scopes *ScopeResolver, overrides *OverrideService) *OverrideEvaluator {
	return &OverrideEvaluator{
		registry:  registry,
		scopes:    scopes,
		overrides: overrides,
		now:       time.Now,
	}
}

func (e *OverrideEvaluator) Evaluate(ctx context.Context, profile domain.Profile, perm permset.Permission, scope domain.ScopeRef) domain.Decision {
	now := e.now()

	def, ok := e.registry.Get(profile.Role)
	if !ok {
		return domain.Deny(domain.DeniedNoPermission, now)
	}

	if def.ScopeLevel == domain.ScopeLevelSystem {
		return domain.Grant(domain.GrantedRole, now)
	}

	effective, err := e.overrides.EffectiveOverrides(ctx, profile.UserID, now)
	if err != nil {
		return domain.Deny(domain.DeniedBackendUnavailable, now)
	}

	memo := AncestryMemo{}

	// Explicit denies win before anything else is considered.
	for _, o := range effective {
		if o.IsGranted || !permset.Match(o.Permission, perm) {
			continue
		}
		applies, err := e.overrideApplies(ctx, memo, o.Scope, scope)
		if err != nil {
			return domain.Deny(domain.DeniedBackendUnavailable, now)
		}
		if applies {
			return domain.Deny(domain.DeniedExplicitOverride, now)
		}
	}

	byRole := e.registry.Defaults(profile.Role).Has(perm)

	// A scoped granted override carries its own containment: it applies
	// only at its node and below, and within that scope it grants even
	// outside the role's assigned reach.
	var byUnscopedOverride bool
	for _, o := range effective {
		if !o.IsGranted || !permset.Match(o.Permission, perm) {
			continue
		}
		if o.Scope.IsZero() {
			byUnscopedOverride = true
			continue
		}
		applies, err := e.overrideApplies(ctx, memo, o.Scope, scope)
		if err != nil {
			return domain.Deny(domain.DeniedBackendUnavailable, now)
		}
		if applies {
			return domain.Grant(domain.GrantedOverride, now)
		}
	}

	if !byRole && !byUnscopedOverride {
		return domain.Deny(domain.DeniedNoPermission, now)
	}

	within, err := e.scopes.IsWithin(ctx, memo, profile.AssignedScopes, scope)
	if err != nil {
		return domain.Deny(domain.DeniedBackendUnavailable, now)
	}
	if !within {
		return domain.Deny(domain.DeniedOutOfScope, now)
	}

	if byRole {
		return domain.Grant(domain.GrantedRole, now)
	}
	return domain.Grant(domain.GrantedOverride, now)
}

func (e *OverrideEvaluator) EvaluateAny(ctx context.Context, profile domain.Profile, perms []permset.Permission, scope domain.ScopeRef) domain.Decision {
	return evaluateAny(ctx, e, profile, perms, scope, e.now)
}

// overrideApplies reports whether an override constrained to overrideScope
// covers a check at requested. An unscoped override covers everything; a
// scoped override covers its node and descendants, never an unscoped check.
func (e *OverrideEvaluator) overrideApplies(ctx context.Context, memo AncestryMemo, overrideScope, requested domain.ScopeRef) (bool, error) {
	if overrideScope.IsZero() {
		return true, nil
	}
	if requested.IsZero() {
		return false, nil
	}
	return e.scopes.Descends(ctx, memo, requested.ID, overrideScope.ID)
}

// evaluateAny is the shared disjunction: first allow wins; a transient
// backend failure dominates other denials so the caller fails closed rather
// than reporting a misleading definitive reason.
func evaluateAny(ctx context.Context, e Evaluator, profile domain.Profile, perms []permset.Permission, scope domain.ScopeRef, now func() time.Time) domain.Decision {
	if len(perms) == 0 {
		return domain.Deny(domain.DeniedNoPermission, now())
	}

	var denied domain.Decision
	for i, perm := range perms {
		d := e.Evaluate(ctx, profile, perm, scope)
		if d.Allowed {
			return d
		}
		if i == 0 || d.Reason == domain.DeniedBackendUnavailable {
			denied = d
		}
	}
	return denied
}

// CachedEvaluator memoizes an inner evaluator's decisions. Keys include the
// profile fingerprint, so stale entries die with the profile. Transient
// backend-unavailable denials are never cached.
type CachedEvaluator struct {
	inner Evaluator
	cache *DecisionCache

	metrics *obs.Metrics
	now     func() time.Time
}

func NewCachedEvaluator(inner Evaluator, cache *DecisionCache, metrics *obs.Metrics) *CachedEvaluator {
	return &CachedEvaluator{inner: inner, cache: cache, metrics: metrics, now: time.Now}
}

func (e *CachedEvaluator) Evaluate(ctx context.Context, profile domain.Profile, perm permset.Permission, scope domain.ScopeRef) domain.Decision {
	now := e.now()
	key := e.cache.Key(profile.Fingerprint(), perm, scope)

	if d, ok := e.cache.Get(key, now); ok {
		return d
	}

	e.metrics.IncEvaluations()
	d := e.inner.Evaluate(ctx, profile, perm, scope)
	if d.Reason != domain.DeniedBackendUnavailable {
		e.cache.Put(key, profile.UserID, d, now)
	}
	return d
}

func (e *CachedEvaluator) EvaluateAny(ctx context.Context, profile domain.Profile, perms []permset.Permission, scope domain.ScopeRef) domain.Decision {
	return evaluateAny(ctx, e, profile, perms, scope, e.now)
}
