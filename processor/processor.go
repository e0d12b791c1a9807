// Package processor implements the provenance processor (spec §4.2–§4.5):
// the stateful reducer that drains the parsed-request queue and folds
// each request into the in-flight job map, emitting a completed summary
// whenever a job ends.
package processor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/provtrace/provtrace/model"
	"github.com/provtrace/provtrace/queue"

	"github.com/matgreaves/run"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDrainInterval is the sleep duration between empty drains (spec
// §4.2, "≈100 ms").
const DefaultDrainInterval = 100 * time.Millisecond

// AuditRecorder receives operator-visible notifications of processor
// activity (job lifecycle transitions, warnings). It is additive — the
// spec's own semantics never depend on whether one is wired. The
// server package's AuditLog implements this interface.
type AuditRecorder interface {
	RecordJobStarted(key, jobID, clusterName string)
	RecordExecFolded(key, jobID, clusterName, stepName string)
	RecordJobEmitted(job *model.ProcessedJobData)
	RecordOrphan(key, jobID, clusterName, detail string)
	RecordDuplicateStart(key, jobID, clusterName string)
}

// noopAuditRecorder discards every notification.
type noopAuditRecorder struct{}

func (noopAuditRecorder) RecordJobStarted(string, string, string)          {}
func (noopAuditRecorder) RecordExecFolded(string, string, string, string)  {}
func (noopAuditRecorder) RecordJobEmitted(*model.ProcessedJobData)         {}
func (noopAuditRecorder) RecordOrphan(string, string, string, string)      {}
func (noopAuditRecorder) RecordDuplicateStart(string, string, string)      {}

// Processor owns the map of in-flight jobs and folds the parsed-request
// queue into it. A Processor must not be shared across goroutines other
// than the one running Run — per spec §5 ("Isolation"), the job map is
// owned exclusively by the processor task, which is what lets the
// reducer itself be lock-free.
type Processor struct {
	queue *queue.ParsedRequestQueue
	sink  Sink

	// DrainInterval overrides DefaultDrainInterval; zero means use the
	// default. Exposed for tests that don't want to wait 100ms per tick.
	DrainInterval time.Duration

	// Warn receives one-line diagnostics for the non-fatal error kinds
	// spec §7 calls for (orphan Exec/End, duplicate Start, dropped
	// events). New sets it to a function that discards every warning;
	// StderrWarner builds one that writes via fmt.Fprintf, matching the
	// diagnostic-logging idiom the rest of this codebase uses.
	Warn func(format string, args ...any)

	// Audit receives operator-visible notifications; defaults to a
	// no-op so wiring one in is optional.
	Audit AuditRecorder

	jobs map[string]*model.ProcessedJobData

	instruments instruments
}

// instruments bundles the otel metric handles recorded by Run and
// foldExecution's caller. Built once in New so Run's hot path never
// allocates an instrument.
type instruments struct {
	meter           metric.Meter
	tracer          trace.Tracer
	queueDepth      metric.Int64Gauge
	inFlightJobs    metric.Int64Gauge
	drainBatchSize  metric.Int64Histogram
	startCount      metric.Int64Counter
	execCount       metric.Int64Counter
	endCount        metric.Int64Counter
	orphanCount     metric.Int64Counter
	duplicateCount  metric.Int64Counter
	droppedEvents   metric.Int64Counter
}

// New returns a Processor that drains q and emits completed jobs to
// sink. Set Warn (for example to StderrWarner(os.Stderr)) to customize
// diagnostic output; the default Warn silently discards.
func New(q *queue.ParsedRequestQueue, sink Sink) *Processor {
	p := &Processor{
		queue: q,
		sink:  sink,
		jobs:  make(map[string]*model.ProcessedJobData),
		Warn:  func(string, ...any) {},
		Audit: noopAuditRecorder{},
	}
	p.instruments = newInstruments()
	return p
}

func newInstruments() instruments {
	meter := otel.Meter("github.com/provtrace/provtrace/processor")
	tracer := otel.Tracer("github.com/provtrace/provtrace/processor")

	queueDepth, _ := meter.Int64Gauge("provtrace.queue.depth",
		metric.WithDescription("number of parsed requests currently buffered"))
	inFlightJobs, _ := meter.Int64Gauge("provtrace.jobs.in_flight",
		metric.WithDescription("number of jobs with a Start but no End yet"))
	drainBatchSize, _ := meter.Int64Histogram("provtrace.drain.batch_size",
		metric.WithDescription("number of requests returned by a single TakeAll"))
	startCount, _ := meter.Int64Counter("provtrace.requests.start")
	execCount, _ := meter.Int64Counter("provtrace.requests.exec")
	endCount, _ := meter.Int64Counter("provtrace.requests.end")
	orphanCount, _ := meter.Int64Counter("provtrace.requests.orphan")
	duplicateCount, _ := meter.Int64Counter("provtrace.requests.duplicate_start")
	droppedEvents, _ := meter.Int64Counter("provtrace.events.dropped")

	return instruments{
		meter:          meter,
		tracer:         tracer,
		queueDepth:     queueDepth,
		inFlightJobs:   inFlightJobs,
		drainBatchSize: drainBatchSize,
		startCount:     startCount,
		execCount:      execCount,
		endCount:       endCount,
		orphanCount:    orphanCount,
		duplicateCount: duplicateCount,
		droppedEvents:  droppedEvents,
	}
}

// Runner returns a run.Runner that runs the processor's main loop until
// ctx is cancelled. On cancellation it drains once more and returns —
// no in-flight job is flushed; incomplete jobs are discarded (spec §5,
// "Cancellation").
func (p *Processor) Runner() run.Runner {
	return run.Func(p.Run)
}

// Run is the processor's main loop (spec §4.2): drain, dispatch, sleep
// if nothing was drained, repeat until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.DrainInterval
	if interval <= 0 {
		interval = DefaultDrainInterval
	}

	for {
		reqs := p.queue.TakeAll()
		p.instruments.drainBatchSize.Record(ctx, int64(len(reqs)))
		p.instruments.queueDepth.Record(ctx, int64(p.queue.Len()))

		for _, r := range reqs {
			p.dispatch(ctx, r)
		}
		p.instruments.inFlightJobs.Record(ctx, int64(len(p.jobs)))

		if len(reqs) > 0 {
			// Work was available — check again immediately rather than
			// sleeping, so a burst drains without the ≈100ms latency tax.
			select {
			case <-ctx.Done():
				for _, r := range p.queue.TakeAll() {
					p.dispatch(ctx, r)
				}
				return nil
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			for _, r := range p.queue.TakeAll() {
				p.dispatch(ctx, r)
			}
			return nil
		case <-time.After(interval):
		}
	}
}

func (p *Processor) dispatch(ctx context.Context, r model.ParsedRequest) {
	key := r.Key()

	switch r.Type {
	case model.CallStart:
		p.handleStart(ctx, key, r)
	case model.CallExec:
		p.handleExec(ctx, key, r)
	case model.CallEnd:
		p.handleEnd(ctx, key, r)
	default:
		// ParseRequest already rejects unknown call types, so this is
		// only reachable if a caller constructs a ParsedRequest directly.
		p.Warn("dropping request for %q: unknown call type %q", key, r.Type)
	}
}

func (p *Processor) handleStart(ctx context.Context, key string, r model.ParsedRequest) {
	if _, exists := p.jobs[key]; exists {
		p.instruments.duplicateCount.Add(ctx, 1)
		p.Warn("duplicate Start for job %q: discarding prior in-flight entry", key)
		p.Audit.RecordDuplicateStart(key, r.JobID, r.ClusterName)
	}
	p.instruments.startCount.Add(ctx, 1)
	p.jobs[key] = &model.ProcessedJobData{
		JobID:       r.JobID,
		ClusterName: r.ClusterName,
		Path:        r.Path,
		StartTime:   r.Payload.StartOrEnd.TS,
	}
	p.Audit.RecordJobStarted(key, r.JobID, r.ClusterName)
}

func (p *Processor) handleExec(ctx context.Context, key string, r model.ParsedRequest) {
	job, ok := p.jobs[key]
	if !ok {
		p.instruments.orphanCount.Add(ctx, 1)
		p.Warn("orphan Exec for job %q: no Start on record, ignoring", key)
		p.Audit.RecordOrphan(key, r.JobID, r.ClusterName, "exec")
		return
	}
	p.instruments.execCount.Add(ctx, 1)

	batch := *r.Payload.Exec
	ctx, span := p.instruments.tracer.Start(ctx, "processor.foldExecution",
		trace.WithAttributes(
			attribute.String("job.key", key),
			attribute.String("exec.step_name", batch.StepName),
			attribute.Int("exec.event_count", len(batch.Events)),
		))
	defer span.End()

	dropped := 0
	exec := foldExecution(batch, func(format string, args ...any) {
		dropped++
		p.Warn("job %q: "+format, append([]any{key}, args...)...)
	})
	if dropped > 0 {
		p.instruments.droppedEvents.Add(ctx, int64(dropped))
		span.SetAttributes(attribute.Int("exec.dropped_events", dropped))
	}

	job.ExecProvDataQueue = append(job.ExecProvDataQueue, exec)
	p.Audit.RecordExecFolded(key, r.JobID, r.ClusterName, batch.StepName)
}

func (p *Processor) handleEnd(ctx context.Context, key string, r model.ParsedRequest) {
	job, ok := p.jobs[key]
	if !ok {
		p.instruments.orphanCount.Add(ctx, 1)
		p.Warn("orphan End for job %q: no Start on record, ignoring", key)
		p.Audit.RecordOrphan(key, r.JobID, r.ClusterName, "end")
		return
	}
	p.instruments.endCount.Add(ctx, 1)

	job.EndTime = r.Payload.StartOrEnd.TS
	delete(p.jobs, key)

	p.sink.Emit(job)
	p.Audit.RecordJobEmitted(job)
}

// StderrWarner returns a Warn function that writes to w with a
// "provd: " prefix, matching the plain fmt.Fprintf(os.Stderr, ...)
// diagnostic-logging style used throughout this codebase (no structured
// logging library).
func StderrWarner(w io.Writer) func(format string, args ...any) {
	var mu sync.Mutex
	return func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "provd: "+format+"\n", args...)
	}
}
