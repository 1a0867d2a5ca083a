package s2s

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrClosed is returned by Start on a session that has already been
	// closed. Enqueue operations on a closed session are silent no-ops
	// instead.
	ErrClosed = errors.New("s2s: session closed")

	// ErrStarted is returned by Start on a session that is already active.
	ErrStarted = errors.New("s2s: session already started")

	// errModelEOS signals that the model stream ended cleanly. It travels
	// through the merge as a source failure so the consumption loop can
	// initiate an orderly shutdown.
	errModelEOS = errors.New("s2s: model stream ended")
)

// ConcurrencyViolation reports a tool-call announcement that arrived while a
// previous announcement was still unclaimed. The stale request is discarded
// in favor of the new one; the violation is surfaced so the caller can log
// the dropped request.
type ConcurrencyViolation struct {
	Stale *ToolRequest
	New   *ToolRequest
}

func (e *ConcurrencyViolation) Error() string {
	return fmt.Sprintf("s2s: tool call %s (%s) announced while %s (%s) was unclaimed; stale request dropped",
		e.New.ToolUseID, e.New.Name, e.Stale.ToolUseID, e.Stale.Name)
}

// DecodeError wraps a model-stream frame that could not be decoded. The
// session drops and logs such frames, terminating only after too many
// consecutive failures.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("s2s: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
