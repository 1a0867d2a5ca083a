// Package merge combines independently progressing event sources into one
// tagged, arrival-ordered stream.
//
// Each source is pulled by its own goroutine, so per-source order is always
// preserved while cross-source order is simply arrival order. An exhausted
// source leaves the merge silently; the merged stream ends only when every
// source is exhausted. A source failure travels through the stream in band
// and terminates it; values produced before the failure are delivered first.
//
// Sources may be added while the merge is running, so event producers created
// later can join an existing consumption loop.
package merge

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// ErrClosed is returned by Next after Close terminates the merge.
var ErrClosed = errors.New("merge: closed")

// ErrDone is returned by Add once the merge has finished and can no longer
// accept sources.
var ErrDone = errors.New("merge: done")

// Tagged pairs a value with the name of the source that produced it.
type Tagged[T any] struct {
	Source string
	Value  T
}

// Source is a lazy sequence of values. Next returns io.EOF when the source is
// exhausted; any other error terminates the merge consuming it.
type Source[T any] interface {
	Next() (T, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func() (T, error)

// Next calls f.
func (f SourceFunc[T]) Next() (T, error) { return f() }

// item carries either a value or a source failure through the output channel,
// so failures arrive in stream order.
type item[T any] struct {
	v   Tagged[T]
	err error
}

// Mux merges named sources into one stream of Tagged values.
type Mux[T any] struct {
	out  chan item[T]
	stop chan struct{}

	stopOnce sync.Once

	mu       sync.Mutex
	names    map[string]bool
	active   int
	finished bool
	err      error
}

// New creates an empty Mux. Sources are attached with Add; the merge finishes
// once at least one source has been added and all of them are exhausted.
func New[T any]() *Mux[T] {
	return &Mux[T]{
		out:   make(chan item[T]),
		stop:  make(chan struct{}),
		names: make(map[string]bool),
	}
}

// Add attaches a named source to the merge. It may be called concurrently
// with consumption. Adding a duplicate active name is an error, as is adding
// to a merge that has already finished, failed, or been closed.
func (m *Mux[T]) Add(name string, src Source[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished || m.err != nil {
		return fmt.Errorf("merge: add %q: %w", name, ErrDone)
	}
	if m.names[name] {
		return fmt.Errorf("merge: duplicate source %q", name)
	}
	m.names[name] = true
	m.active++
	go m.pull(name, src)
	return nil
}

// pull drains one source into the shared output channel.
func (m *Mux[T]) pull(name string, src Source[T]) {
	defer m.leave(name)
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		v, err := src.Next()
		if err != nil {
			if err != io.EOF {
				select {
				case m.out <- item[T]{err: fmt.Errorf("merge: source %q: %w", name, err)}:
				case <-m.stop:
				}
			}
			return
		}
		select {
		case m.out <- item[T]{v: Tagged[T]{Source: name, Value: v}}:
		case <-m.stop:
			return
		}
	}
}

// leave removes a source from the active set, finishing the merge when the
// last one leaves.
func (m *Mux[T]) leave(name string) {
	m.mu.Lock()
	delete(m.names, name)
	m.active--
	last := m.active == 0
	if last {
		m.finished = true
	}
	m.mu.Unlock()
	if last {
		close(m.out)
	}
}

// fail records the first terminal error and stops all pulls.
func (m *Mux[T]) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stop) })
}

// terminal returns the sticky terminal error, io.EOF for a clean finish.
func (m *Mux[T]) terminal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	return io.EOF
}

// Next returns the next value from whichever source became ready first.
// It returns io.EOF once all sources are exhausted, or the first source
// failure otherwise. The terminal error is sticky.
func (m *Mux[T]) Next() (Tagged[T], error) {
	select {
	case <-m.stop:
		return Tagged[T]{}, m.terminal()
	default:
	}
	select {
	case it, ok := <-m.out:
		if !ok {
			return Tagged[T]{}, m.terminal()
		}
		if it.err != nil {
			m.fail(it.err)
			return Tagged[T]{}, it.err
		}
		return it.v, nil
	case <-m.stop:
		return Tagged[T]{}, m.terminal()
	}
}

// All iterates the merged stream. Iteration stops at io.EOF; any other
// terminal error is yielded once with a zero value.
func (m *Mux[T]) All() iter.Seq2[Tagged[T], error] {
	return func(yield func(Tagged[T], error) bool) {
		for {
			v, err := m.Next()
			if err != nil {
				if err != io.EOF {
					yield(Tagged[T]{}, err)
				}
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Close terminates the merge, stopping all source goroutines and unblocking
// the consumer. Sources blocked inside their own Next call return on their
// own schedule; their values are discarded. After Close, Next reports
// ErrClosed unless the merge had already finished cleanly or failed.
func (m *Mux[T]) Close() error {
	m.mu.Lock()
	if !m.finished && m.err == nil {
		m.err = ErrClosed
	}
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
