package queue

import (
	"context"
	"sync"

	"media-task-queue/internal/models"
)

// Queue is the handoff between request intake and the worker pool.
//
// Enqueue never blocks the caller on capacity: intake always accepts.
// Dequeue blocks until an entry is available or ctx is done. Order is
// strict FIFO across all producers; concurrent consumers never receive the
// same entry twice. Size is an observability hint only.
type Queue interface {
	Enqueue(ctx context.Context, e models.QueueEntry) error
	Dequeue(ctx context.Context) (models.QueueEntry, error)
	Size(ctx context.Context) (int, error)
}

// MemoryQueue is the default in-process backend: an unbounded FIFO list
// guarded by a mutex, with a condition variable to park idle workers.
type MemoryQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []models.QueueEntry
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, e models.QueueEntry) error {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (models.QueueEntry, error) {
	// Wake every waiter on cancellation; each re-checks ctx below.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 {
		if err := ctx.Err(); err != nil {
			return models.QueueEntry{}, err
		}
		q.cond.Wait()
	}
	e := q.entries[0]
	q.entries[0] = models.QueueEntry{}
	q.entries = q.entries[1:]
	return e, nil
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}
