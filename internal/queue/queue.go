// internal/queue/queue.go
package queue

import (
	"container/heap"
	"context"
	"sync"
)

// Priority orders items. Lower values are served first.
type Priority int

const (
	// PriorityUrgent is served before any normal item regardless of arrival order.
	PriorityUrgent Priority = 1
	// PriorityNormal is the default tier.
	PriorityNormal Priority = 5
)

// Queue is a priority-first, FIFO-within-priority queue safe for any number
// of producers and consumers. Every operation holds one mutex, so a consumer
// never observes a partially applied DrainAll or FilterRemove.
type Queue[T any] struct {
	name string

	mu    sync.Mutex
	items entries[T]
	seq   uint64

	// ready is closed (and replaced) on every push; waiters park on it.
	ready chan struct{}
}

// New creates an empty queue. The name is used for logs only.
func New[T any](name string) *Queue[T] {
	return &Queue[T]{
		name:  name,
		ready: make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Push inserts item at the given priority. It never fails.
func (q *Queue[T]) Push(item T, prio Priority) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, entry[T]{item: item, prio: prio, seq: q.seq})
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

// TryPop removes the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop blocks until an item is available or ctx is done.
// Only the caller is suspended; producers and other operations proceed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// DrainAll removes and returns every queued item in delivery order.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(entry[T]).item)
	}
	return out
}

// FilterRemove removes every queued item for which match returns true and
// reports how many were removed. The remaining items keep their relative order.
func (q *Queue[T]) FilterRemove(match func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if match(e.item) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// zero the tail so removed items can be collected
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = entry[T]{}
	}
	q.items = kept
	heap.Init(&q.items)
	return removed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) popLocked() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.items).(entry[T]).item, true
}
