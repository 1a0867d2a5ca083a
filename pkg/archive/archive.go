// Package archive moves finished session transcripts into cold storage.
//
// A Store is a flat object namespace; implementations exist for the local
// filesystem and for S3-compatible object stores. ExportSession renders one
// session's journal as JSON lines under sessions/<id>/transcript.jsonl, which
// is the layout the replay tooling expects.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"

	"github.com/haivivi/voicebridge/pkg/transcript"
)

// ErrNoRecords is returned by ExportSession when the session has nothing
// journaled. Nothing is written in that case.
var ErrNoRecords = errors.New("archive: session has no records")

// Store is a minimal object store for transcript archives.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Read opens the named object for reading. The caller must close the
	// returned ReadCloser. If the object does not exist, an error wrapping
	// os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named object for writing, truncating any previous
	// content. The caller must close the returned WriteCloser to flush.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List iterates the paths of stored objects under prefix, in sorted
	// order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}

// SessionPath returns the archive path for a session transcript.
func SessionPath(id string) string {
	return path.Join("sessions", id, "transcript.jsonl")
}

// ExportSession copies one session's journal from src into dst as JSON
// lines, one record per line, and returns the object path written. The
// object is only created once the first record arrives, so an unknown or
// empty session leaves the store untouched and returns ErrNoRecords.
func ExportSession(ctx context.Context, dst Store, src transcript.Store, id string) (string, error) {
	p := SessionPath(id)

	var w io.WriteCloser
	var enc *json.Encoder
	for rec, err := range src.Session(id) {
		if err != nil {
			if w != nil {
				w.Close()
			}
			return "", fmt.Errorf("archive: export %s: %w", id, err)
		}
		if w == nil {
			w, err = dst.Write(ctx, p)
			if err != nil {
				return "", fmt.Errorf("archive: export %s: %w", id, err)
			}
			enc = json.NewEncoder(w)
		}
		if err := enc.Encode(rec); err != nil {
			w.Close()
			return "", fmt.Errorf("archive: export %s: %w", id, err)
		}
	}
	if w == nil {
		return "", ErrNoRecords
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: export %s: %w", id, err)
	}
	return p, nil
}

// ReadSession decodes an archived transcript back into records.
func ReadSession(ctx context.Context, store Store, id string) ([]*transcript.Record, error) {
	r, err := store.Read(ctx, SessionPath(id))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var recs []*transcript.Record
	dec := json.NewDecoder(r)
	for {
		var rec transcript.Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("archive: read %s: %w", id, err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}
