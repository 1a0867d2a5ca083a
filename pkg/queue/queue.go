// Package queue provides an unbounded, thread-safe FIFO queue with blocking
// receive and explicit close semantics.
//
// A Queue decouples producers from a consumer: Put never blocks (bounded only
// by memory), Next blocks until an item arrives or the queue is closed.
// CloseWrite ends the queue gracefully, letting the consumer drain remaining
// items before ErrDone. CloseWithError tears the queue down immediately,
// discarding buffered items and unblocking all waiters with the given error.
package queue

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrDone is returned by Next when the queue is closed for writing and all
// buffered items have been consumed.
var ErrDone = errors.New("queue: done")

// Queue is an unbounded FIFO queue of T.
//
// Producers call Put; a consumer calls Next. The zero value is not usable;
// use New.
type Queue[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	items      []T
}

// New creates a Queue with an initial capacity hint of n items. The queue
// grows beyond n as needed.
func New[T any](n int) *Queue[T] {
	return &Queue[T]{
		writeNotify: make(chan struct{}, 1),
		items:       make([]T, 0, n),
	}
}

// Put appends v to the queue without blocking. It returns an error if the
// queue is closed.
func (q *Queue[T]) Put(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return fmt.Errorf("queue: put to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return fmt.Errorf("queue: put to closed queue: %w", io.ErrClosedPipe)
	}
	q.items = append(q.items, v)
	select {
	case q.writeNotify <- struct{}{}:
	default:
	}
	return nil
}

// Next removes and returns the oldest item, blocking until one is available.
// It returns ErrDone after CloseWrite once the queue is empty, or the close
// error after CloseWithError.
func (q *Queue[T]) Next() (v T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closeErr != nil {
			err = q.closeErr
			return
		}
		if len(q.items) > 0 {
			v = q.items[0]
			q.items = q.items[1:]
			return
		}
		if q.closeWrite {
			err = ErrDone
			return
		}
		q.mu.Unlock()
		<-q.writeNotify
		q.mu.Lock()
	}
}

// CloseWrite closes the queue for writing. Buffered items remain readable;
// Next returns ErrDone once they are consumed. Safe to call more than once.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	close(q.writeNotify)
	return nil
}

// CloseWithError closes both ends of the queue, discarding any buffered items
// and unblocking all waiters with err. If err is nil, io.ErrClosedPipe is
// used. The first close error is retained; later calls are no-ops.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.items = nil
	if !q.closeWrite {
		q.closeWrite = true
		close(q.writeNotify)
	}
	return nil
}

// Error returns the error passed to CloseWithError, or nil if the queue has
// not been closed with an error.
func (q *Queue[T]) Error() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}

// Reset discards all buffered items without closing the queue.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
