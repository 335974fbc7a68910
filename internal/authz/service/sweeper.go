package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/verdantops/canopy/internal/authz/store"
)

// Sweeper periodically removes expired records so lazy expiry never turns
// into unbounded growth: expired overrides, stale decision-cache entries,
// expired sessions, and lapsed lockout counters.
type Sweeper struct {
	Store    store.Store
	Cache    *DecisionCache
	Sessions *SessionManager
	Lockouts *LockoutTracker
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates the background sweeper. If interval is 0 or negative,
// defaults to 1 minute.
func NewSweeper(st store.Store, cache *DecisionCache, sessions *SessionManager, lockouts *LockoutTracker, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		Store:    st,
		Cache:    cache,
		Sessions: sessions,
		Lockouts: lockouts,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut the
// worker down gracefully.
func (s *Sweeper) Start() {
	go s.run()
	s.Logger.Info("sweeper started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep ends.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run once immediately on startup
	s.Sweep()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one pass. Components are always swept in the same order
// (override store, then decision cache, then session state) so a sweep can
// never deadlock against the override-mutation path, which takes the same
// order. Each step is independent: a failing store does not stop the
// in-memory purges.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	overrides, err := s.Store.Overrides().DeleteExpired(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired overrides", "error", err)
	}

	cacheEntries := s.Cache.PurgeExpired(now)
	sessions := s.Sessions.PurgeExpired()
	lockouts := s.Lockouts.PurgeExpired()

	s.Logger.Debug("sweep completed",
		"overrides", overrides,
		"cache_entries", cacheEntries,
		"sessions", sessions,
		"lockouts", lockouts,
	)
}
