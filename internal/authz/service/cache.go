package service

import (
	"container/list"
	"sync"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/obs"
	"github.com/verdantops/canopy/pkg/cryptox"
	"github.com/verdantops/canopy/pkg/permset"
)

// DecisionCache memoizes authorization decisions under a TTL and an LRU
// bound. It is purely an optimisation: a miss falls through to a full
// evaluation and a stale entry can at worst survive until its TTL, bounded
// further by the fingerprint baked into every key. Entries remember their
// user so an override mutation can drop a user's decisions immediately.
type DecisionCache struct {
	mu  sync.Mutex
	ttl time.Duration
	max int

	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	byUser  map[string]map[string]struct{}

	hits    uint64
	misses  uint64
	metrics *obs.Metrics
}

type cacheEntry struct {
	key       string
	userID    string
	decision  domain.Decision
	expiresAt time.Time
}

func NewDecisionCache(ttl time.Duration, maxEntries int, metrics *obs.Metrics) *DecisionCache {
	return &DecisionCache{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		byUser:  make(map[string]map[string]struct{}),
		metrics: metrics,
	}
}

// Key derives the cache key for one decision. The profile fingerprint is
// part of the key, so any role, scope, or override change orphans every old
// entry without needing an explicit purge.
func (c *DecisionCache) Key(fingerprint string, perm permset.Permission, scope domain.ScopeRef) string {
	return cryptox.Fingerprint(fingerprint, perm.String(), scope.Hash())
}

func (c *DecisionCache) Get(key string, now time.Time) (domain.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		c.metrics.IncCacheMisses()
		return domain.Decision{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.After(now) {
		c.removeLocked(elem)
		c.misses++
		c.metrics.IncCacheMisses()
		return domain.Decision{}, false
	}

	c.lru.MoveToFront(elem)
	c.hits++
	c.metrics.IncCacheHits()
	return entry.decision, true
}

func (c *DecisionCache) Put(key, userID string, d domain.Decision, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.decision = d
		entry.expiresAt = now.Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}

	for c.max > 0 && c.lru.Len() >= c.max {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	entry := &cacheEntry{key: key, userID: userID, decision: d, expiresAt: now.Add(c.ttl)}
	c.entries[key] = c.lru.PushFront(entry)

	keys, ok := c.byUser[userID]
	if !ok {
		keys = make(map[string]struct{})
		c.byUser[userID] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate drops every cached decision for a user.
func (c *DecisionCache) Invalidate(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key := range c.byUser[userID] {
		if elem, ok := c.entries[key]; ok {
			c.removeLocked(elem)
			dropped++
		}
	}
	return dropped
}

// PurgeExpired removes entries past their TTL. Called by the background
// sweep; expiry is otherwise lazy at Get time.
func (c *DecisionCache) PurgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var purged int
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*cacheEntry); !entry.expiresAt.After(now) {
			c.removeLocked(elem)
			purged++
		}
		elem = prev
	}
	return purged
}

// Stats returns the hit and miss counters since construction.
func (c *DecisionCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *DecisionCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)

	if keys, ok := c.byUser[entry.userID]; ok {
		delete(keys, entry.key)
		if len(keys) == 0 {
			delete(c.byUser, entry.userID)
		}
	}
}
