package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logx "mtcbot/pkg/logx"
)

type seenJob struct {
	id, name string
}

// AsyncTracker records sightings on a single background worker so the
// intake path never waits on storage. When the queue is full the sighting
// is dropped and counted.
type AsyncTracker struct {
	inner   Tracker
	log     logx.Logger
	timeout time.Duration

	// mu orders sends against close(q).
	mu      sync.RWMutex
	closed  bool
	q       chan seenJob
	done    chan struct{}
	dropped atomic.Uint64
}

func NewAsyncTracker(inner Tracker, queue int, log logx.Logger) *AsyncTracker {
	if queue <= 0 {
		queue = 256
	}
	t := &AsyncTracker{
		inner:   inner,
		log:     log,
		timeout: 5 * time.Second,
		q:       make(chan seenJob, queue),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// RecordSeen enqueues and returns immediately. It never reports an error.
func (t *AsyncTracker) RecordSeen(_ context.Context, id, displayName string) error {
	if id == "" {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil
	}
	select {
	case t.q <- seenJob{id: id, name: displayName}:
	default:
		if n := t.dropped.Add(1); n == 1 || n%100 == 0 {
			t.log.Warn("record-seen queue full, dropping", logx.Uint64("dropped", n))
		}
	}
	return nil
}

func (t *AsyncTracker) Dropped() uint64 { return t.dropped.Load() }

func (t *AsyncTracker) run() {
	defer close(t.done)
	for j := range t.q {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.inner.RecordSeen(ctx, j.id, j.name); err != nil {
			t.log.Warn("record seen failed", logx.Sender(j.id), logx.Err(err))
		}
		cancel()
	}
}

// Close stops intake and waits for queued sightings to be written, or for
// ctx to end.
func (t *AsyncTracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.q)
	}
	t.mu.Unlock()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
