// Package queue provides an unbounded FIFO used as the mailbox of the
// signaling writer and the negotiator.
package queue

import "sync"

// Queue is an unbounded FIFO. Push never blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// notify holds at most one token and is signalled on every Push.
	notify chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
	}
}

// Push appends v. It reports false if the queue has been closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return true
}

// Pop blocks until an item is available or done is closed.
func (q *Queue[T]) Pop(done <-chan struct{}) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-done:
			var zero T
			return zero, false
		}
	}
}

// Close rejects further pushes and drops pending items.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
