package archive

import (
	"context"
	"io"
	"os"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeObject(t *testing.T, s Store, path, data string) {
	t.Helper()
	ctx := context.Background()
	w, err := s.Write(ctx, path)
	if err != nil {
		t.Fatalf("Write(%s): %v", path, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func listAll(t *testing.T, s Store, prefix string) []string {
	t.Helper()
	var paths []string
	for p, err := range s.List(context.Background(), prefix) {
		if err != nil {
			t.Fatalf("List(%s): %v", prefix, err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestLocalWriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	writeObject(t, s, "sessions/sess_a/transcript.jsonl", "line one\n")

	r, err := s.Read(ctx, "sessions/sess_a/transcript.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "line one\n" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalReadNotExist(t *testing.T) {
	s := newTestLocal(t)

	_, err := s.Read(context.Background(), "no-such-object")
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLocalDeleteIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}

	writeObject(t, s, "tmp", "x")
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(ctx, "tmp")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("object should be gone after delete")
	}
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
}

func TestLocalList(t *testing.T) {
	s := newTestLocal(t)

	writeObject(t, s, "sessions/sess_b/transcript.jsonl", "b")
	writeObject(t, s, "sessions/sess_a/transcript.jsonl", "a")
	writeObject(t, s, "notes/readme.txt", "n")

	got := listAll(t, s, "sessions/")
	want := []string{"sessions/sess_a/transcript.jsonl", "sessions/sess_b/transcript.jsonl"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List = %v, want %v", got, want)
		}
	}

	if all := listAll(t, s, ""); len(all) != 3 {
		t.Fatalf("List(\"\") = %v, want 3 objects", all)
	}
}

func TestLocalListStopsEarly(t *testing.T) {
	s := newTestLocal(t)

	writeObject(t, s, "a", "1")
	writeObject(t, s, "b", "2")
	writeObject(t, s, "c", "3")

	n := 0
	for _, err := range s.List(context.Background(), "") {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("iterated %d objects after break", n)
	}
}
