package service

import (
	"testing"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/pkg/permset"
	"github.com/stretchr/testify/require"
)

func TestDecisionCacheTTL(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Minute, 10, nil)
	now := time.Now()
	perm := permset.New("harvest", "read")
	key := cache.Key("fp-1", perm, domain.ScopeRef{})
	grant := domain.Grant(domain.GrantedRole, now)

	cache.Put(key, "user-1", grant, now)

	t.Run("fresh entry hits", func(t *testing.T) {
		d, ok := cache.Get(key, now.Add(30*time.Second))
		require.True(t, ok)
		require.True(t, d.Allowed)
	})

	t.Run("expired entry misses and is dropped", func(t *testing.T) {
		_, ok := cache.Get(key, now.Add(2*time.Minute))
		require.False(t, ok)
		require.Zero(t, cache.Len())
	})
}

func TestDecisionCacheKeys(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Minute, 10, nil)
	perm := permset.New("harvest", "read")
	scope := domain.ScopeRef{Type: domain.ScopeEstate, ID: "E1"}

	// Different fingerprint, permission, or scope must never collide.
	require.NotEqual(t, cache.Key("fp-1", perm, scope), cache.Key("fp-2", perm, scope))
	require.NotEqual(t, cache.Key("fp-1", perm, scope), cache.Key("fp-1", permset.New("harvest", "create"), scope))
	require.NotEqual(t, cache.Key("fp-1", perm, scope), cache.Key("fp-1", perm, domain.ScopeRef{}))
}

func TestDecisionCacheLRUBound(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Hour, 2, nil)
	now := time.Now()
	d := domain.Grant(domain.GrantedRole, now)

	cache.Put("k1", "u1", d, now)
	cache.Put("k2", "u2", d, now)

	// Touch k1 so k2 is the eviction candidate.
	_, ok := cache.Get("k1", now)
	require.True(t, ok)

	cache.Put("k3", "u3", d, now)
	require.Equal(t, 2, cache.Len())

	_, ok = cache.Get("k2", now)
	require.False(t, ok)
	_, ok = cache.Get("k1", now)
	require.True(t, ok)
}

func TestDecisionCacheInvalidate(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Hour, 10, nil)
	now := time.Now()
	d := domain.Grant(domain.GrantedRole, now)

	cache.Put("k1", "u1", d, now)
	cache.Put("k2", "u1", d, now)
	cache.Put("k3", "u2", d, now)

	require.Equal(t, 2, cache.Invalidate("u1"))
	require.Equal(t, 1, cache.Len())

	_, ok := cache.Get("k3", now)
	require.True(t, ok)
}

func TestDecisionCachePurgeExpired(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Minute, 10, nil)
	now := time.Now()
	d := domain.Deny(domain.DeniedNoPermission, now)

	cache.Put("k1", "u1", d, now)
	cache.Put("k2", "u2", d, now.Add(30*time.Second))

	require.Equal(t, 1, cache.PurgeExpired(now.Add(70*time.Second)))
	require.Equal(t, 1, cache.Len())
}

func TestDecisionCacheStats(t *testing.T) {
	t.Parallel()

	cache := NewDecisionCache(time.Minute, 10, nil)
	now := time.Now()

	_, _ = cache.Get("missing", now)
	cache.Put("k1", "u1", domain.Grant(domain.GrantedRole, now), now)
	_, _ = cache.Get("k1", now)
	_, _ = cache.Get("k1", now)

	hits, misses := cache.Stats()
	require.EqualValues(t, 2, hits)
	require.EqualValues(t, 1, misses)
}
