package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockoutTracker(t *testing.T) {
	t.Parallel()

	now := time.Now()
	newTracker := func() (*LockoutTracker, *time.Time) {
		clock := now
		tracker := NewLockoutTracker(3, 10*time.Minute, 15*time.Minute, nil)
		tracker.now = func() time.Time { return clock }
		return tracker, &clock
	}

	t.Run("locks at the threshold", func(t *testing.T) {
		tracker, _ := newTracker()

		require.False(t, tracker.Failure("mandor1"))
		require.False(t, tracker.Failure("mandor1"))

		locked, _ := tracker.Locked("mandor1")
		require.False(t, locked)

		require.True(t, tracker.Failure("mandor1"))
		locked, until := tracker.Locked("mandor1")
		require.True(t, locked)
		require.Equal(t, now.Add(15*time.Minute), until)
	})

	t.Run("lockout clears after its duration and the counter restarts", func(t *testing.T) {
		tracker, clock := newTracker()
		for i := 0; i < 3; i++ {
			tracker.Failure("mandor1")
		}

		*clock = now.Add(15*time.Minute + time.Second)
		locked, _ := tracker.Locked("mandor1")
		require.False(t, locked)

		// One more failure must not lock immediately.
		require.False(t, tracker.Failure("mandor1"))
	})

	t.Run("window lapse resets the counter", func(t *testing.T) {
		tracker, clock := newTracker()
		tracker.Failure("mandor1")
		tracker.Failure("mandor1")

		*clock = now.Add(11 * time.Minute)
		require.False(t, tracker.Failure("mandor1"))
		require.False(t, tracker.Failure("mandor1"))
		require.True(t, tracker.Failure("mandor1"))
	})

	t.Run("success resets", func(t *testing.T) {
		tracker, _ := newTracker()
		tracker.Failure("mandor1")
		tracker.Failure("mandor1")
		tracker.Reset("mandor1")

		require.False(t, tracker.Failure("mandor1"))
		require.False(t, tracker.Failure("mandor1"))
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		tracker, _ := newTracker()
		for i := 0; i < 3; i++ {
			tracker.Failure("mandor1")
		}

		locked, _ := tracker.Locked("mandor2")
		require.False(t, locked)
	})

	t.Run("purge drops lapsed records", func(t *testing.T) {
		tracker, clock := newTracker()
		tracker.Failure("a")
		for i := 0; i < 3; i++ {
			tracker.Failure("b")
		}

		*clock = now.Add(16 * time.Minute)
		require.Equal(t, 2, tracker.PurgeExpired())
	})
}
