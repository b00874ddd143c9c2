package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"media-task-queue/internal/models"
	"media-task-queue/internal/queue"
	"media-task-queue/internal/store"
	"media-task-queue/internal/telemetry"
	"media-task-queue/internal/webhook"
)

// Handler executes one job and returns the response payload to persist on
// success.
type Handler func(ctx context.Context, entry models.QueueEntry) (any, error)

// Pool runs worker loops over the shared queue. It owns every status
// transition after intake: each dequeued job belongs to exactly one worker
// for its whole lifetime, so writes to a given record are never concurrent.
type Pool struct {
	queue          queue.Queue
	store          store.RecordStore
	notifier       *webhook.Notifier
	handlers       map[string]Handler
	defaultHandler Handler
	queueID        string
	workerID       string
	workers        int
}

// New constructs a pool. queueID identifies this service instance in every
// record it writes; workerID identifies the executing worker process.
func New(q queue.Queue, st store.RecordStore, n *webhook.Notifier, queueID, workerID string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:          q,
		store:          st,
		notifier:       n,
		handlers:       make(map[string]Handler),
		defaultHandler: SimulateHandler(),
		queueID:        queueID,
		workerID:       workerID,
		workers:        workers,
	}
}

// Register binds a handler to a job type.
func (p *Pool) Register(jobType string, h Handler) {
	if jobType == "" || h == nil {
		return
	}
	p.handlers[jobType] = h
}

// ResolveWorkerID picks a stable worker identity: WORKER_ID env, then
// hostname, then a pid-derived fallback.
func ResolveWorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if hostname, _ := os.Hostname(); hostname != "" {
		return hostname
	}
	return fmt.Sprintf("worker-%d", os.Getpid())
}

// Run starts the worker loops and blocks until ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		entry, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		p.process(ctx, entry)
	}
}

// process drives one job through running -> done|error and fires the
// webhook. Task failures are contained here; they never crash the loop.
func (p *Pool) process(ctx context.Context, entry models.QueueEntry) {
	queueTime := time.Since(entry.EnqueuedAt)

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	rec := models.JobRecord{
		JobID:      entry.JobID,
		JobStatus:  models.StatusRunning,
		QueueID:    p.queueID,
		ProcessID:  p.workerID,
		EchoID:     entry.EchoID,
		WebhookURL: entry.WebhookURL,
	}
	p.put(ctx, rec)

	started := time.Now()
	result, err := p.run(ctx, entry)
	runTime := time.Since(started)

	rec.QueueTime = models.Seconds(queueTime)
	rec.RunTime = models.Seconds(runTime)
	rec.TotalTime = models.Seconds(queueTime + runTime)
	if err != nil {
		rec.JobStatus = models.StatusError
		rec.Response = err.Error()
		telemetry.JobsFailed.Inc()
		log.Printf("job %s failed: %v", entry.JobID, err)
	} else {
		rec.JobStatus = models.StatusDone
		rec.Response = result
		telemetry.JobsCompleted.Inc()
	}
	p.put(ctx, rec)

	p.notifier.Notify(ctx, entry.WebhookURL, rec)
}

// run invokes the handler registered for the entry's type, converting
// panics into ordinary task errors.
func (p *Pool) run(ctx context.Context, entry models.QueueEntry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	handler, ok := p.handlers[entry.Type]
	if !ok {
		handler = p.defaultHandler
	}
	if handler == nil {
		return nil, fmt.Errorf("no handler registered for type %q", entry.Type)
	}
	return handler(ctx, entry)
}

// put persists a snapshot. A failed write means the job's true state is
// unobservable, which is an operational alarm, not a task failure; it is
// never retried here.
func (p *Pool) put(ctx context.Context, rec models.JobRecord) {
	if err := p.store.Put(ctx, rec); err != nil {
		telemetry.RecordWriteFailures.Inc()
		log.Printf("ALARM: record store unavailable, job %s state %q not persisted: %v", rec.JobID, rec.JobStatus, err)
	}
}
