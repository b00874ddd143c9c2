package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"media-task-queue/internal/models"
	"media-task-queue/internal/queue"
	"media-task-queue/internal/store"
	"media-task-queue/internal/webhook"
)

// memStore is an in-memory RecordStore that also tracks the sequence of
// statuses written per job.
type memStore struct {
	mu      sync.Mutex
	recs    map[string]models.JobRecord
	history map[string][]string
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]models.JobRecord), history: make(map[string][]string)}
}

func (m *memStore) Put(_ context.Context, rec models.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.recs[rec.JobID] = rec
	m.history[rec.JobID] = append(m.history[rec.JobID], rec.JobStatus)
	return nil
}

func (m *memStore) Get(_ context.Context, jobID string) (models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[jobID]
	if !ok {
		return models.JobRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) statuses(jobID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history[jobID]))
	copy(out, m.history[jobID])
	return out
}

func startPool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = p.Run(ctx) }()
}

func waitForTerminal(t *testing.T, st store.RecordStore, jobID string) models.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := st.Get(context.Background(), jobID)
		if err == nil && (rec.JobStatus == models.StatusDone || rec.JobStatus == models.StatusError) {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return models.JobRecord{}
}

func TestPoolSuccessTransitionsAndTimings(t *testing.T) {
	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)
	p.Register("ok", func(_ context.Context, _ models.QueueEntry) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return map[string]any{"filename": "out.mp4"}, nil
	})
	startPool(t, p)

	entry := models.QueueEntry{JobID: "job-1", Type: "ok", EnqueuedAt: time.Now()}
	if err := q.Enqueue(context.Background(), entry); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := waitForTerminal(t, st, "job-1")
	if rec.JobStatus != models.StatusDone {
		t.Fatalf("status = %s, want done", rec.JobStatus)
	}
	if rec.ProcessID != "w-1" || rec.QueueID != "q-1" {
		t.Fatalf("ownership fields wrong: %+v", rec)
	}
	resp, ok := rec.Response.(map[string]any)
	if !ok || resp["filename"] != "out.mp4" {
		t.Fatalf("unexpected response: %v", rec.Response)
	}
	if got := st.statuses("job-1"); len(got) != 2 || got[0] != models.StatusRunning || got[1] != models.StatusDone {
		t.Fatalf("status sequence %v, want [running done]", got)
	}
	if rec.RunTime <= 0 {
		t.Fatalf("run_time = %v, want > 0", rec.RunTime)
	}
	if diff := math.Abs(rec.TotalTime - (rec.QueueTime + rec.RunTime)); diff > 0.002 {
		t.Fatalf("total_time %v != queue_time %v + run_time %v", rec.TotalTime, rec.QueueTime, rec.RunTime)
	}
}

func TestPoolFailureIsolation(t *testing.T) {
	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)
	p.Register("boom", func(_ context.Context, _ models.QueueEntry) (any, error) {
		return nil, errors.New("task exploded")
	})
	p.Register("ok", func(_ context.Context, _ models.QueueEntry) (any, error) {
		return map[string]any{"message": "fine"}, nil
	})
	startPool(t, p)

	ctx := context.Background()
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "bad", Type: "boom", EnqueuedAt: time.Now()})
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "good", Type: "ok", EnqueuedAt: time.Now()})

	bad := waitForTerminal(t, st, "bad")
	if bad.JobStatus != models.StatusError {
		t.Fatalf("bad status = %s, want error", bad.JobStatus)
	}
	if bad.Response != "task exploded" {
		t.Fatalf("bad response = %v, want failure description", bad.Response)
	}

	// The failure must not have killed the loop.
	good := waitForTerminal(t, st, "good")
	if good.JobStatus != models.StatusDone {
		t.Fatalf("good status = %s, want done", good.JobStatus)
	}
}

func TestPoolPanicRecovered(t *testing.T) {
	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)
	p.Register("panic", func(_ context.Context, _ models.QueueEntry) (any, error) {
		panic("boom")
	})
	startPool(t, p)

	ctx := context.Background()
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "panicky", Type: "panic", EnqueuedAt: time.Now()})
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "after", Type: "simulate", EnqueuedAt: time.Now()})

	rec := waitForTerminal(t, st, "panicky")
	if rec.JobStatus != models.StatusError {
		t.Fatalf("status = %s, want error", rec.JobStatus)
	}
	if after := waitForTerminal(t, st, "after"); after.JobStatus != models.StatusDone {
		t.Fatalf("job after panic = %s, want done", after.JobStatus)
	}
}

func TestPoolSingleWorkerFIFOCompletion(t *testing.T) {
	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)

	var mu sync.Mutex
	var order []string
	p.Register("track", func(_ context.Context, e models.QueueEntry) (any, error) {
		mu.Lock()
		order = append(order, e.JobID)
		mu.Unlock()
		return map[string]any{"message": "ok"}, nil
	})
	startPool(t, p)

	ctx := context.Background()
	const jobs = 10
	for i := 0; i < jobs; i++ {
		_ = q.Enqueue(ctx, models.QueueEntry{JobID: fmt.Sprintf("job-%d", i), Type: "track", EnqueuedAt: time.Now()})
	}
	waitForTerminal(t, st, fmt.Sprintf("job-%d", jobs-1))

	mu.Lock()
	defer mu.Unlock()
	if len(order) != jobs {
		t.Fatalf("executed %d jobs, want %d", len(order), jobs)
	}
	for i, id := range order {
		if want := fmt.Sprintf("job-%d", i); id != want {
			t.Fatalf("completion order %v, want submission order", order)
		}
	}
}

func TestPoolWebhookReceivesTerminalRecord(t *testing.T) {
	received := make(chan models.JobRecord, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec models.JobRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err == nil {
			received <- rec
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)
	startPool(t, p)

	entry := models.QueueEntry{JobID: "hooked", Type: "simulate", WebhookURL: srv.URL, EnqueuedAt: time.Now()}
	_ = q.Enqueue(context.Background(), entry)

	select {
	case rec := <-received:
		if rec.JobID != "hooked" || rec.JobStatus != models.StatusDone {
			t.Fatalf("webhook got %+v", rec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestPoolWebhookFailureDoesNotAffectRecord(t *testing.T) {
	st := newMemStore()
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(100*time.Millisecond), "q-1", "w-1", 1)
	startPool(t, p)

	// Nothing listens on this port; delivery must fail silently.
	entry := models.QueueEntry{JobID: "orphan-hook", Type: "simulate", WebhookURL: "http://127.0.0.1:1/hook", EnqueuedAt: time.Now()}
	_ = q.Enqueue(context.Background(), entry)

	rec := waitForTerminal(t, st, "orphan-hook")
	if rec.JobStatus != models.StatusDone {
		t.Fatalf("status = %s, want done despite webhook failure", rec.JobStatus)
	}
	if rec.Response == nil {
		t.Fatal("terminal record lost its response")
	}
}

func TestPoolRecordWriteFailureDoesNotCrashLoop(t *testing.T) {
	st := newMemStore()
	st.putErr = errors.New("disk gone")
	q := queue.NewMemoryQueue()
	p := New(q, st, webhook.New(time.Second), "q-1", "w-1", 1)

	executed := make(chan string, 2)
	p.Register("track", func(_ context.Context, e models.QueueEntry) (any, error) {
		executed <- e.JobID
		return nil, nil
	})
	startPool(t, p)

	ctx := context.Background()
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "first", Type: "track", EnqueuedAt: time.Now()})
	_ = q.Enqueue(ctx, models.QueueEntry{JobID: "second", Type: "track", EnqueuedAt: time.Now()})

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-executed:
			if got != want {
				t.Fatalf("executed %s, want %s", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("job %s never executed after store failure", want)
		}
	}
}
