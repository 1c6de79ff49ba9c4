package shared

import (
	"sync/atomic"
	"time"
)

// DefaultAccessTimeout bounds how long a status accessor may wait for the
// lock before degrading. Matches the 10ms budget the firmware grants
// non-real-time readers.
const DefaultAccessTimeout = 10 * time.Millisecond

// StatusStore guards the shared status snapshot. The lock is a 1-slot
// channel so acquisition can carry a deadline; every successful write also
// refreshes an atomically published copy, which is what readers fall back
// to when they lose the race. Lock timeouts are silent and non-fatal here
// on purpose: stalling the motion task (or making a reader panic) is worse
// than a one-tick-stale answer.
type StatusStore struct {
	lock      chan struct{}
	live      Status
	lastKnown atomic.Pointer[Status]
}

// NewStatusStore returns a store holding the given initial snapshot.
func NewStatusStore(initial Status) *StatusStore {
	s := &StatusStore{lock: make(chan struct{}, 1)}
	s.live = initial
	snap := initial
	s.lastKnown.Store(&snap)
	return s
}

// acquire takes the lock within timeout. timeout <= 0 degrades to a single
// non-blocking attempt.
func (s *StatusStore) acquire(timeout time.Duration) bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (s *StatusStore) release() {
	<-s.lock
}

// Read returns a copy of the status. If the lock cannot be acquired within
// timeout it silently returns the last known snapshot; this is not an
// error condition.
func (s *StatusStore) Read(timeout time.Duration) Status {
	if !s.acquire(timeout) {
		return *s.lastKnown.Load()
	}
	snap := s.live
	s.release()
	return snap
}

// Snapshot is Read with the default access timeout.
func (s *StatusStore) Snapshot() Status {
	return s.Read(DefaultAccessTimeout)
}

// Write applies fn to the live status under the lock and republishes the
// snapshot. Returns false, skipping the update entirely, if the lock is
// not available within timeout. The motion task calls this once per tick
// and treats false as "publish again next tick".
func (s *StatusStore) Write(timeout time.Duration, fn func(*Status)) bool {
	if !s.acquire(timeout) {
		return false
	}
	fn(&s.live)
	snap := s.live
	s.lastKnown.Store(&snap)
	s.release()
	return true
}
