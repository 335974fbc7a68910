package service

import (
	"context"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
	"github.com/verdantops/canopy/internal/obs"
	"github.com/verdantops/canopy/pkg/slogx"
)

// Gateway is the engine's single public decision surface. Authorization
// questions always come back as a typed Decision; the only errors it
// returns belong to the session lifecycle (login and logout).
type Gateway struct {
	sessions *SessionManager
	users    store.Users
	eval     Evaluator
	registry *RoleRegistry

	metrics *obs.Metrics
	now     func() time.Time
}

func NewGateway(sessions *SessionManager, users store.Users, eval Evaluator, registry *RoleRegistry, metrics *obs.Metrics) *Gateway {
	return &Gateway{
		sessions: sessions,
		users:    users,
		eval:     eval,
		registry: registry,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Authorize decides whether the session behind the token may perform the
// named permission at a scope. A comma action list requires every listed
// action. A failure to reach the profile store denies with
// DeniedBackendUnavailable: the engine never guesses.
func (g *Gateway) Authorize(ctx context.Context, token, permission string, scope domain.ScopeRef) domain.Decision {
	profile, denied, ok := g.resolveProfile(ctx, token)
	if !ok {
		return g.observed(denied)
	}

	perms, err := g.registry.Catalogue().Parse(permission)
	if err != nil {
		slogx.FromContext(ctx).Error("unknown permission in authorization check",
			"permission", permission, "error", err)
		return g.observed(domain.Deny(domain.DeniedNoPermission, g.now()))
	}

	d := g.eval.Evaluate(ctx, profile, perms[0], scope)
	for _, perm := range perms[1:] {
		if !d.Allowed {
			break
		}
		d = g.eval.Evaluate(ctx, profile, perm, scope)
	}
	return g.observed(d)
}

// AuthorizeAny is Authorize with any-of semantics over a comma action list.
func (g *Gateway) AuthorizeAny(ctx context.Context, token, permission string, scope domain.ScopeRef) domain.Decision {
	profile, denied, ok := g.resolveProfile(ctx, token)
	if !ok {
		return g.observed(denied)
	}

	perms, err := g.registry.Catalogue().Parse(permission)
	if err != nil {
		slogx.FromContext(ctx).Error("unknown permission in authorization check",
			"permission", permission, "error", err)
		return g.observed(domain.Deny(domain.DeniedNoPermission, g.now()))
	}

	return g.observed(g.eval.EvaluateAny(ctx, profile, perms, scope))
}

// CanManageRole reports whether the acting role may administer the target
// role, per the static role table.
func (g *Gateway) CanManageRole(actingRole, targetRole string) bool {
	return g.registry.CanManage(actingRole, targetRole)
}

// ManageableRoles lists the roles the acting role may administer.
func (g *Gateway) ManageableRoles(actingRole string) []domain.RoleDefinition {
	return g.registry.ManageableRoles(actingRole)
}

// Login opens a session. See SessionManager.Login.
func (g *Gateway) Login(ctx context.Context, username, password, deviceID string) (string, domain.Session, error) {
	return g.sessions.Login(ctx, username, password, deviceID)
}

// Logout terminates the session behind the token.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	return g.sessions.Logout(ctx, token, LogoutUserRequest)
}

// CheckAuth resolves the token to its live session.
func (g *Gateway) CheckAuth(ctx context.Context, token string, forceNetwork bool) (domain.Session, error) {
	return g.sessions.CheckAuth(ctx, token, forceNetwork)
}

// resolveProfile turns a token into the authorization profile behind it.
// The third return is false when the caller should return the denial as-is.
func (g *Gateway) resolveProfile(ctx context.Context, token string) (domain.Profile, domain.Decision, bool) {
	sess, err := g.sessions.CheckAuth(ctx, token, false)
	if err != nil {
		reason := domain.DeniedInvalidSession
		if !isSessionError(err) {
			reason = domain.DeniedBackendUnavailable
		}
		return domain.Profile{}, domain.Deny(reason, g.now()), false
	}

	profile, err := g.users.GetProfile(ctx, sess.UserID)
	if err != nil {
		slogx.FromContext(ctx).Error("profile fetch failed, denying closed",
			"user_id", sess.UserID, "error", err)
		return domain.Profile{}, domain.Deny(domain.DeniedBackendUnavailable, g.now()), false
	}
	return profile, domain.Decision{}, true
}

func (g *Gateway) observed(d domain.Decision) domain.Decision {
	g.metrics.Decision(string(d.Reason))
	return d
}
