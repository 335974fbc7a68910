package service

import (
	"sync"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/obs"
)

// LockoutTracker counts authentication failures per login identifier inside
// a sliding window and suppresses the identifier once the threshold is
// crossed. State is in-memory: a restart forgives outstanding counters,
// which is acceptable for a throttle that exists to slow guessing, not to
// be an audit record.
type LockoutTracker struct {
	mu      sync.Mutex
	records map[string]*domain.LockoutRecord

	threshold int
	window    time.Duration
	duration  time.Duration

	now     func() time.Time
	metrics *obs.Metrics
}

func NewLockoutTracker(threshold int, window, duration time.Duration, metrics *obs.Metrics) *LockoutTracker {
	return &LockoutTracker{
		records:   make(map[string]*domain.LockoutRecord),
		threshold: threshold,
		window:    window,
		duration:  duration,
		now:       time.Now,
		metrics:   metrics,
	}
}

// Locked reports whether the identifier is currently suppressed. A lockout
// whose duration has elapsed clears the record entirely, so the failure
// counter restarts from zero.
func (t *LockoutTracker) Locked(identifier string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identifier]
	if !ok {
		return false, time.Time{}
	}

	now := t.now()
	if rec.LockedUntil != nil && !now.Before(*rec.LockedUntil) {
		delete(t.records, identifier)
		return false, time.Time{}
	}
	if rec.LockedAt(now) {
		return true, *rec.LockedUntil
	}
	return false, time.Time{}
}

// Failure records one failed attempt and returns true when this attempt
// crossed the threshold and triggered a lockout.
func (t *LockoutTracker) Failure(identifier string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[identifier]
	if !ok || now.Sub(rec.WindowStart) > t.window {
		rec = &domain.LockoutRecord{Identifier: identifier, WindowStart: now}
		t.records[identifier] = rec
	}

	rec.FailureCount++
	if rec.FailureCount >= t.threshold && rec.LockedUntil == nil {
		until := now.Add(t.duration)
		rec.LockedUntil = &until
		t.metrics.IncLockouts()
		return true
	}
	return false
}

// Reset clears the identifier's record after a successful authentication.
func (t *LockoutTracker) Reset(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, identifier)
}

// PurgeExpired drops records whose window or lockout has lapsed.
func (t *LockoutTracker) PurgeExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var purged int
	for id, rec := range t.records {
		lockLapsed := rec.LockedUntil != nil && !now.Before(*rec.LockedUntil)
		windowLapsed := rec.LockedUntil == nil && now.Sub(rec.WindowStart) > t.window
		if lockLapsed || windowLapsed {
			delete(t.records, id)
			purged++
		}
	}
	return purged
}
