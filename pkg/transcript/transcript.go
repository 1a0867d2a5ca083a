// Package transcript journals every payload a session sends or receives, so
// conversations can be replayed and exported after the fact.
//
// Records are written through an Appender as the session runs and read back
// per session in sequence order. The durable implementation is backed by
// Badger; see Open.
package transcript

import "iter"

// Record directions.
const (
	DirSend = "send"
	DirRecv = "recv"
)

// Record is one journaled payload.
type Record struct {
	// Seq orders records within a session. Assigned by the store on
	// append.
	Seq uint64 `msgpack:"seq" json:"seq"`

	// Session is the owning session id.
	Session string `msgpack:"session" json:"session"`

	// Dir is DirSend for payloads bound to the model, DirRecv for
	// payloads received from it.
	Dir string `msgpack:"dir" json:"dir"`

	// Type is the frame classification at journal time.
	Type string `msgpack:"type" json:"type"`

	// At is the journal timestamp in Unix milliseconds.
	At int64 `msgpack:"at" json:"at"`

	// Payload is the wire payload.
	Payload []byte `msgpack:"payload" json:"payload"`
}

// Appender is the write half of a Store. Sessions hold only this.
type Appender interface {
	Append(rec *Record) error
}

// Store journals records and reads them back.
type Store interface {
	Appender

	// Session iterates one session's records in sequence order.
	Session(id string) iter.Seq2[*Record, error]

	// Sessions iterates the distinct session ids in the store, sorted.
	Sessions() iter.Seq2[string, error]

	Close() error
}
