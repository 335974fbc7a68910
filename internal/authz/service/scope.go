package service

import (
	"context"
	"fmt"

	"github.com/verdantops/canopy/internal/authz/domain"
)

// OrgHierarchy is the organisational-tree collaborator. The engine never
// owns the tree; it only asks for ancestry paths. The sqlite store's
// org-node repository satisfies this directly.
type OrgHierarchy interface {
	// AncestryOf returns the path from the root down to the named node,
	// the node itself included.
	AncestryOf(ctx context.Context, scopeID string) ([]domain.ScopeNode, error)
}

// AncestryMemo caches ancestry lookups for the duration of one evaluation.
// A fresh memo is created per evaluation so no cross-request staleness can
// accumulate; within one evaluation the tree is assumed stable.
type AncestryMemo map[string][]domain.ScopeNode

// ScopeResolver answers scope containment questions against the org
// hierarchy. Collaborator failures surface as ErrBackendUnavailable so
// callers deny rather than guess.
type ScopeResolver struct {
	org OrgHierarchy
}

func NewScopeResolver(org OrgHierarchy) *ScopeResolver {
	return &ScopeResolver{org: org}
}

func (r *ScopeResolver) ancestry(ctx context.Context, memo AncestryMemo, scopeID string) ([]domain.ScopeNode, error) {
	if memo != nil {
		if path, ok := memo[scopeID]; ok {
			return path, nil
		}
	}

	path, err := r.org.AncestryOf(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("%w: ancestry of %q: %v", ErrBackendUnavailable, scopeID, err)
	}

	if memo != nil {
		memo[scopeID] = path
	}
	return path, nil
}

// IsWithin reports whether the requested scope falls under any of the
// assigned scope roots. The wildcard marker grants everything; an empty
// assignment grants nothing. An unscoped request carries no constraint and
// is always within.
func (r *ScopeResolver) IsWithin(ctx context.Context, memo AncestryMemo, assigned []string, requested domain.ScopeRef) (bool, error) {
	for _, id := range assigned {
		if id == domain.ScopeAll {
			return true, nil
		}
	}
	if requested.IsZero() {
		return true, nil
	}
	if len(assigned) == 0 {
		return false, nil
	}

	path, err := r.ancestry(ctx, memo, requested.ID)
	if err != nil {
		return false, err
	}

	roots := make(map[string]struct{}, len(assigned))
	for _, id := range assigned {
		roots[id] = struct{}{}
	}
	for _, node := range path {
		if _, ok := roots[node.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Descends reports whether scopeID is maybeAncestorID or one of its
// descendants.
func (r *ScopeResolver) Descends(ctx context.Context, memo AncestryMemo, scopeID, maybeAncestorID string) (bool, error) {
	if scopeID == maybeAncestorID {
		return true, nil
	}

	path, err := r.ancestry(ctx, memo, scopeID)
	if err != nil {
		return false, err
	}
	for _, node := range path {
		if node.ID == maybeAncestorID {
			return true, nil
		}
	}
	return false, nil
}
