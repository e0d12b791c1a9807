// Package queue is the hand-off point between HTTP handler goroutines
// (producers) and the processor (consumer): a thread-safe FIFO of
// model.ParsedRequest supporting Push and TakeAll (spec §4.1).
package queue

import (
	"sync"

	"github.com/provtrace/provtrace/model"
)

// ParsedRequestQueue is a mutex-protected FIFO. Push appends and never
// blocks beyond acquiring the mutex; TakeAll atomically swaps the
// internal buffer with a fresh empty one and returns the old contents,
// preserving insertion order. Both operations are O(1) amortized, so a
// producer is never blocked on consumer work (spec §5).
type ParsedRequestQueue struct {
	mu     sync.Mutex
	buf    []model.ParsedRequest
	notify chan struct{} // closed and replaced on each Push; see Notify
}

// New returns an empty queue.
func New() *ParsedRequestQueue {
	return &ParsedRequestQueue{
		notify: make(chan struct{}),
	}
}

// Push appends r to the queue. Safe for concurrent use by any number of
// producer goroutines; FIFO is preserved per-caller (spec §5, "across
// requests from a single handler thread: FIFO").
func (q *ParsedRequestQueue) Push(r model.ParsedRequest) {
	q.mu.Lock()
	q.buf = append(q.buf, r)
	ch := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()

	close(ch) // wake anyone waiting on Notify
}

// TakeAll atomically swaps the internal buffer with an empty one and
// returns the old contents in insertion order. Returns nil (not an
// error) when the queue is empty — "queue empty" is not an error
// condition (spec §7).
func (q *ParsedRequestQueue) TakeAll() []model.ParsedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// Len reports the number of requests currently buffered. Intended for
// metrics (queue-depth gauge), not for control flow — the length can
// change the instant after this call returns.
func (q *ParsedRequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Notify returns a channel that is closed the next time Push is called.
// It lets a consumer replace the drain-then-sleep polling loop (spec
// §4.2, §9) with a wakeup-on-push wait, without changing observable
// behavior — the channel is re-armed (a fresh one) on every Push, so a
// consumer must re-call Notify after each wakeup.
func (q *ParsedRequestQueue) Notify() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notify
}
