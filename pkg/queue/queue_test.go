package queue

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestQueue_PutNext(t *testing.T) {
	q := New[int](4)

	for i := 1; i <= 3; i++ {
		if err := q.Put(i); err != nil {
			t.Fatalf("Put(%d) error: %v", i, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	// FIFO order
	for i := 1; i <= 3; i++ {
		v, err := q.Next()
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		if v != i {
			t.Fatalf("Next() = %d, want %d", v, i)
		}
	}
}

func TestQueue_CloseWriteThenDrain(t *testing.T) {
	q := New[string](4)
	q.Put("a")
	q.Put("b")
	q.CloseWrite()

	v, err := q.Next()
	if err != nil || v != "a" {
		t.Fatalf("Next() = %q, %v, want \"a\", nil", v, err)
	}
	v, err = q.Next()
	if err != nil || v != "b" {
		t.Fatalf("Next() = %q, %v, want \"b\", nil", v, err)
	}

	_, err = q.Next()
	if !errors.Is(err, ErrDone) {
		t.Fatalf("expected ErrDone, got %v", err)
	}

	// Put after CloseWrite fails
	if err := q.Put("c"); err == nil {
		t.Fatal("Put should fail after CloseWrite")
	}
}

func TestQueue_BlockingNext(t *testing.T) {
	q := New[int](4)

	done := make(chan struct{})
	go func() {
		v, err := q.Next()
		if err != nil {
			t.Errorf("Next error: %v", err)
			return
		}
		if v != 42 {
			t.Errorf("Next() = %d, want 42", v)
		}
		close(done)
	}()

	// Give the consumer time to block
	time.Sleep(50 * time.Millisecond)
	q.Put(42)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock")
	}
}

func TestQueue_CloseWithErrorDiscards(t *testing.T) {
	q := New[int](4)
	q.Put(1)
	q.Put(2)

	customErr := errors.New("session torn down")
	q.CloseWithError(customErr)

	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after CloseWithError", q.Len())
	}
	if _, err := q.Next(); !errors.Is(err, customErr) {
		t.Fatalf("Next error = %v, want %v", err, customErr)
	}
	if err := q.Put(3); err == nil {
		t.Fatal("Put should fail after CloseWithError")
	}
	if q.Error() != customErr {
		t.Fatalf("Error() = %v, want %v", q.Error(), customErr)
	}
}

func TestQueue_CloseWithErrorUnblocksWaiter(t *testing.T) {
	q := New[int](4)
	customErr := errors.New("closed")

	done := make(chan struct{})
	go func() {
		_, err := q.Next()
		if !errors.Is(err, customErr) {
			t.Errorf("Next error = %v, want %v", err, customErr)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	q.CloseWithError(customErr)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on CloseWithError")
	}
}

func TestQueue_DoubleClose(t *testing.T) {
	q := New[int](4)
	err1 := errors.New("first")
	err2 := errors.New("second")

	q.CloseWithError(err1)
	q.CloseWithError(err2)

	// First error is retained
	if q.Error() != err1 {
		t.Fatalf("Error() = %v, want %v", q.Error(), err1)
	}

	if err := q.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite after close error: %v", err)
	}
}

func TestQueue_NilCloseError(t *testing.T) {
	q := New[int](4)
	q.CloseWithError(nil)

	_, err := q.Next()
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Next error = %v, want io.ErrClosedPipe", err)
	}
}

func TestQueue_Reset(t *testing.T) {
	q := New[int](4)
	q.Put(1)
	q.Put(2)
	q.Reset()

	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}

	// Queue still usable after Reset
	q.Put(3)
	v, err := q.Next()
	if err != nil || v != 3 {
		t.Fatalf("Next() = %d, %v, want 3, nil", v, err)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](16)

	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Put(base + i); err != nil {
					t.Errorf("Put error: %v", err)
					return
				}
			}
		}(p * 1000)
	}

	go func() {
		wg.Wait()
		q.CloseWrite()
	}()

	seen := make(map[int]bool)
	perSource := make(map[int]int)
	for {
		v, err := q.Next()
		if err != nil {
			if errors.Is(err, ErrDone) {
				break
			}
			t.Fatalf("Next error: %v", err)
		}
		if seen[v] {
			t.Fatalf("value %d delivered twice", v)
		}
		seen[v] = true
		// Per-producer order: values from one producer arrive ascending.
		base := v / 1000 * 1000
		if off := v - base; off < perSource[base] {
			t.Fatalf("producer %d out of order: got %d after %d", base, off, perSource[base])
		} else {
			perSource[base] = off
		}
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("received %d values, want %d", len(seen), producers*perProducer)
	}
}
