package service

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/stretchr/testify/require"
)

// fakeHierarchy serves ancestry paths from a parent map and counts lookups.
type fakeHierarchy struct {
	parents map[string]string
	types   map[string]domain.ScopeType
	calls   int
	err     error
}

func (f *fakeHierarchy) AncestryOf(_ context.Context, scopeID string) ([]domain.ScopeNode, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.parents[scopeID]; !ok {
		return nil, errors.New("no such node")
	}

	var path []domain.ScopeNode
	for id := scopeID; id != ""; id = f.parents[id] {
		path = append([]domain.ScopeNode{{ID: id, Type: f.types[id], ParentID: f.parents[id]}}, path...)
	}
	return path, nil
}

// plantationTree is the fixture used across scope and evaluator tests:
// company C1 with estates E1 and E2; E1 holds divisions D1 and D2; D1 holds
// block B1.
func plantationTree() *fakeHierarchy {
	return &fakeHierarchy{
		parents: map[string]string{
			"C1": "",
			"E1": "C1", "E2": "C1",
			"D1": "E1", "D2": "E1",
			"B1": "D1",
		},
		types: map[string]domain.ScopeType{
			"C1": domain.ScopeCompany,
			"E1": domain.ScopeEstate, "E2": domain.ScopeEstate,
			"D1": domain.ScopeDivision, "D2": domain.ScopeDivision,
			"B1": domain.ScopeBlock,
		},
	}
}

func TestIsWithin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	resolver := NewScopeResolver(plantationTree())
	estate := func(id string) domain.ScopeRef { return domain.ScopeRef{Type: domain.ScopeEstate, ID: id} }

	t.Run("node under an assigned root", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, domain.ScopeRef{Type: domain.ScopeDivision, ID: "D1"})
		require.NoError(t, err)
		require.True(t, within)
	})

	t.Run("assigned root itself", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, estate("E1"))
		require.NoError(t, err)
		require.True(t, within)
	})

	t.Run("sibling estate is outside", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, estate("E2"))
		require.NoError(t, err)
		require.False(t, within)
	})

	t.Run("ancestor of the root is outside", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, domain.ScopeRef{Type: domain.ScopeCompany, ID: "C1"})
		require.NoError(t, err)
		require.False(t, within)
	})

	t.Run("multiple roots", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E2", "D1"}, domain.ScopeRef{Type: domain.ScopeBlock, ID: "B1"})
		require.NoError(t, err)
		require.True(t, within)
	})

	t.Run("wildcard marker grants everything", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{domain.ScopeAll}, estate("E2"))
		require.NoError(t, err)
		require.True(t, within)
	})

	t.Run("empty assignment grants nothing", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, nil, estate("E1"))
		require.NoError(t, err)
		require.False(t, within)
	})

	t.Run("unscoped request carries no constraint", func(t *testing.T) {
		within, err := resolver.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, domain.ScopeRef{})
		require.NoError(t, err)
		require.True(t, within)
	})

	t.Run("hierarchy failure fails closed", func(t *testing.T) {
		broken := plantationTree()
		broken.err = errors.New("connection refused")
		r := NewScopeResolver(broken)

		_, err := r.IsWithin(ctx, AncestryMemo{}, []string{"E1"}, estate("E2"))
		require.ErrorIs(t, err, ErrBackendUnavailable)
	})
}

func TestDescends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resolver := NewScopeResolver(plantationTree())

	within, err := resolver.Descends(ctx, AncestryMemo{}, "B1", "D1")
	require.NoError(t, err)
	require.True(t, within)

	within, err = resolver.Descends(ctx, AncestryMemo{}, "B1", "D2")
	require.NoError(t, err)
	require.False(t, within)

	within, err = resolver.Descends(ctx, AncestryMemo{}, "D1", "D1")
	require.NoError(t, err)
	require.True(t, within)

	// An ancestor does not descend from its child.
	within, err = resolver.Descends(ctx, AncestryMemo{}, "E1", "D1")
	require.NoError(t, err)
	require.False(t, within)
}

func TestAncestryMemoShortCircuits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tree := plantationTree()
	resolver := NewScopeResolver(tree)
	memo := AncestryMemo{}
	ref := domain.ScopeRef{Type: domain.ScopeDivision, ID: "D1"}

	_, err := resolver.IsWithin(ctx, memo, []string{"E1"}, ref)
	require.NoError(t, err)
	_, err = resolver.IsWithin(ctx, memo, []string{"E2"}, ref)
	require.NoError(t, err)

	require.Equal(t, 1, tree.calls)
}
