package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/provtrace/provtrace/model"
)

// AuditEventType identifies the kind of audit event recorded as the
// processor handles requests. These are operator-visible only — they
// play no part in provenance folding itself.
type AuditEventType string

const (
	// AuditJobStarted is recorded when a Start request creates a new
	// in-flight job entry.
	AuditJobStarted AuditEventType = "job.started"
	// AuditExecFolded is recorded each time an Exec batch is folded into
	// an in-flight job.
	AuditExecFolded AuditEventType = "job.exec_folded"
	// AuditJobEmitted is recorded when an End request completes a job and
	// it is handed to the sink.
	AuditJobEmitted AuditEventType = "job.emitted"
	// AuditOrphanIgnored is recorded when an Exec or End arrives for a
	// key with no in-flight Start (spec §7).
	AuditOrphanIgnored AuditEventType = "job.orphan_ignored"
	// AuditDuplicateStart is recorded when a Start overwrites an existing
	// in-flight entry for the same key (spec §7).
	AuditDuplicateStart AuditEventType = "job.duplicate_start"
)

// AuditEvent is a single entry in the audit log.
type AuditEvent struct {
	Seq         uint64                  `json:"seq"`
	Type        AuditEventType          `json:"type"`
	JobKey      string                  `json:"job_key"`
	JobID       string                  `json:"job_id"`
	ClusterName string                  `json:"cluster_name"`
	StepName    string                  `json:"step_name,omitempty"`
	Job         *model.ProcessedJobData `json:"job,omitempty"`
	Detail      string                  `json:"detail,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// AuditLog is an in-memory, ordered log of AuditEvents, published by the
// processor and streamed to operators over the SSE endpoint. It is not
// part of the provenance model — losing it on restart has no effect on
// correctness (spec's Non-goals excludes persistence).
type AuditLog struct {
	mu     sync.RWMutex
	events []AuditEvent
	seq    uint64
	notify chan struct{} // closed and replaced on each Publish
}

// NewAuditLog returns an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{notify: make(chan struct{})}
}

// Publish appends event with the next sequence number and the current
// timestamp, then wakes all waiters.
func (l *AuditLog) Publish(event AuditEvent) {
	l.mu.Lock()
	l.seq++
	event.Seq = l.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.events = append(l.events, event)
	ch := l.notify
	l.notify = make(chan struct{})
	l.mu.Unlock()

	close(ch)
}

// Events returns a snapshot of every event recorded so far.
func (l *AuditLog) Events() []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Since returns all events with sequence number greater than seq.
func (l *AuditLog) Since(seq uint64) []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.since(seq)
}

// since returns events with Seq > seq. Caller must hold at least
// l.mu.RLock. Uses binary search since sequence numbers are strictly
// increasing and gap-free within the slice.
func (l *AuditLog) since(seq uint64) []AuditEvent {
	i := sort.Search(len(l.events), func(i int) bool {
		return l.events[i].Seq > seq
	})
	if i >= len(l.events) {
		return nil
	}
	out := make([]AuditEvent, len(l.events)-i)
	copy(out, l.events[i:])
	return out
}

// RecordJobStarted implements processor.AuditRecorder.
func (l *AuditLog) RecordJobStarted(key, jobID, clusterName string) {
	l.Publish(AuditEvent{Type: AuditJobStarted, JobKey: key, JobID: jobID, ClusterName: clusterName})
}

// RecordExecFolded implements processor.AuditRecorder.
func (l *AuditLog) RecordExecFolded(key, jobID, clusterName, stepName string) {
	l.Publish(AuditEvent{Type: AuditExecFolded, JobKey: key, JobID: jobID, ClusterName: clusterName, StepName: stepName})
}

// RecordJobEmitted implements processor.AuditRecorder.
func (l *AuditLog) RecordJobEmitted(job *model.ProcessedJobData) {
	l.Publish(AuditEvent{
		Type:        AuditJobEmitted,
		JobKey:      job.Key(),
		JobID:       job.JobID,
		ClusterName: job.ClusterName,
		Job:         job,
	})
}

// RecordOrphan implements processor.AuditRecorder.
func (l *AuditLog) RecordOrphan(key, jobID, clusterName, detail string) {
	l.Publish(AuditEvent{Type: AuditOrphanIgnored, JobKey: key, JobID: jobID, ClusterName: clusterName, Detail: detail})
}

// RecordDuplicateStart implements processor.AuditRecorder.
func (l *AuditLog) RecordDuplicateStart(key, jobID, clusterName string) {
	l.Publish(AuditEvent{Type: AuditDuplicateStart, JobKey: key, JobID: jobID, ClusterName: clusterName})
}

// Subscribe returns a channel that first replays every event with
// Seq > fromSeq, then streams new events as they are published. The
// channel is closed when ctx is cancelled.
//
// The channel is buffered (256). If a subscriber falls behind and the
// buffer fills, new events are dropped for that subscriber — Publish
// must never block on a slow reader.
func (l *AuditLog) Subscribe(ctx context.Context, fromSeq uint64) <-chan AuditEvent {
	ch := make(chan AuditEvent, 256)

	go func() {
		defer close(ch)

		cursor := fromSeq

		for {
			l.mu.RLock()
			batch := l.since(cursor)
			notify := l.notify
			l.mu.RUnlock()

			for _, e := range batch {
				select {
				case ch <- e:
				case <-ctx.Done():
					return
				default:
					// subscriber fell behind — drop event
				}
				cursor = e.Seq
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
