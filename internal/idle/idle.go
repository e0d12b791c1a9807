// Package idle provides a shutdown timer for provd's -idle flag
// (SPEC_FULL.md B.2): shut down after a period with no ingested events,
// useful for ephemeral CI ingestion sidecars.
package idle

import (
	"sync"
	"time"
)

// Timer fires a shutdown signal after timeout elapses with no call to
// Activity. Each Activity call restarts the countdown. Adapted from
// internal/server/idle.go's IdleTimer, which counts active environments
// instead of events — provd has no notion of "active" beyond "something
// was just ingested," so the active-count bookkeeping collapses to a
// plain reset-on-activity timer.
type Timer struct {
	timeout  time.Duration
	timer    *time.Timer
	shutdown chan struct{}
	once     sync.Once
}

// New creates a Timer that fires after timeout with no Activity calls.
// Pass zero to disable (the timer never fires).
func New(timeout time.Duration) *Timer {
	t := &Timer{
		timeout:  timeout,
		shutdown: make(chan struct{}),
	}
	if timeout > 0 {
		t.timer = time.AfterFunc(timeout, t.fire)
	}
	return t
}

func (t *Timer) fire() {
	t.once.Do(func() { close(t.shutdown) })
}

// Activity restarts the countdown. No-op if the timer is disabled or has
// already fired.
func (t *Timer) Activity() {
	if t.timeout == 0 {
		return
	}
	t.timer.Reset(t.timeout)
}

// ShutdownCh returns a channel that is closed when the idle timeout fires.
func (t *Timer) ShutdownCh() <-chan struct{} {
	return t.shutdown
}
