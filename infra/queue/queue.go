// Package queue is an unbounded multi-producer queue with cooperative
// shutdown.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Shutdown.
var ErrClosed = errors.New("queue: closed")

// Queue is safe for any number of producers and consumers. Push never
// blocks; Pop blocks until an item arrives, the queue is shut down and
// drained, or ctx ends.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	// notify holds at most one pending wakeup
	notify chan struct{}
	done   chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends v and wakes one waiting consumer.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop returns the oldest item. After Shutdown it keeps returning queued
// items and reports false once the queue is empty. Once ctx is done it
// reports false even if items are queued.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		if ctx.Err() != nil {
			return zero, false
		}
		if v, ok := q.TryPop(); ok {
			return v, true
		}
		select {
		case <-q.notify:
		case <-q.done:
			return q.TryPop()
		case <-ctx.Done():
			return zero, false
		}
	}
}

// TryPop never blocks.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	q.mu.Lock()
	n := len(q.items) - q.head
	if n == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 > len(q.items):
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	q.mu.Unlock()

	// pass the wakeup on if another consumer may be waiting
	if n > 1 {
		q.signal()
	}
	return v, true
}

// Shutdown stops accepting items and wakes every waiter. Idempotent.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len is the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Done is closed by Shutdown.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
