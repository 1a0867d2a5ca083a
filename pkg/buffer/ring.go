// Package buffer provides a fixed-size sliding window over a stream of
// values. Writes never block: once the window is full, each Add drops the
// oldest value. The replay tooling uses it to keep the tail of a transcript
// without holding the whole session in memory.
package buffer

import (
	"slices"
	"sync"
)

// Ring is a sliding window of the most recent values added. It is safe for
// concurrent use.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
}

// RingN creates a Ring keeping the last size values. Size must be positive.
func RingN[T any](size int) *Ring[T] {
	if size <= 0 {
		panic("buffer: ring size must be positive")
	}
	return &Ring[T]{buf: make([]T, size)}
}

// Add appends a value, dropping the oldest when the window is full.
func (r *Ring[T]) Add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.tail%int64(len(r.buf))] = v
	r.tail++
	if r.tail-r.head > int64(len(r.buf)) {
		r.head++
	}
}

// Len reports the number of values currently in the window.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Values returns the window contents, oldest first. The returned slice is a
// copy and safe to retain.
func (r *Ring[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == r.tail {
		return nil
	}
	h := r.head % int64(len(r.buf))
	t := r.tail % int64(len(r.buf))
	if h < t {
		return slices.Clone(r.buf[h:t])
	}
	return slices.Concat(r.buf[h:], r.buf[:t])
}

// Reset empties the window. Retained values are released for collection.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.tail = 0, 0
}
