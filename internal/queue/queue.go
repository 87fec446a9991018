package queue

import (
	"container/list"
	"context"
	"sync"

	"media-catalog/internal/metrics"
)

// Op is a deferred unit of scan or generation work.
type Op func(ctx context.Context) error

type item struct {
	key string
	op  Op
}

// Queue is an unbounded FIFO of (key, operation) pairs that drops duplicate
// keys while they are still queued. It serializes scan and derivation work:
// with a single dequeuer, the same identifier is never processed twice
// concurrently.
//
// Dedup is best-effort by design: a key is released when its item is
// dequeued, not when the operation finishes, so a duplicate arriving while
// the first run is executing is accepted and will run again. Re-scans are
// idempotent, so the occasional double run only costs time.
type Queue struct {
	mu      sync.Mutex
	items   *list.List
	pending map[string]bool
	wake    chan struct{}
	closed  bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items:   list.New(),
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends (key, op). If key is already queued and not yet dequeued,
// the call is a no-op and the earlier operation is kept.
func (q *Queue) Enqueue(key string, op Op) {
	q.mu.Lock()
	if q.closed || q.pending[key] {
		q.mu.Unlock()
		if !q.closed {
			metrics.QueueDedupHits.Inc()
		}
		return
	}
	q.pending[key] = true
	q.items.PushBack(item{key: key, op: op})
	metrics.QueueDepth.Set(float64(q.items.Len()))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue blocks until an item is available or ctx is cancelled. The key is
// only used internally for dedup and is released here, before the operation
// runs.
func (q *Queue) Dequeue(ctx context.Context) (Op, error) {
	for {
		q.mu.Lock()
		if front := q.items.Front(); front != nil {
			it := q.items.Remove(front).(item)
			delete(q.pending, it.key)
			remaining := q.items.Len()
			metrics.QueueDepth.Set(float64(remaining))
			q.mu.Unlock()
			if remaining > 0 {
				// Pass the wakeup on so additional dequeuers don't sleep
				// through items enqueued in one burst.
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return it.op, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close drops all queued items and makes further enqueues no-ops. Blocked
// dequeuers still return via their context.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items.Init()
	q.pending = make(map[string]bool)
	metrics.QueueDepth.Set(0)
}
