package s2s

import "context"

// Transport is a bidirectional frame stream to the model vendor. The session
// core needs only these four operations; everything vendor-specific about the
// link (URLs, authentication, reconnects) lives in the implementation.
//
// Receive returns io.EOF when the remote end closes the stream cleanly; any
// other error is treated as fatal by the session. Implementations must allow
// Send and Receive from different goroutines and must make Close safe to
// call multiple times.
type Transport interface {
	// Open establishes the stream. The context bounds the handshake, not
	// the lifetime of the connection.
	Open(ctx context.Context) error

	// Send writes one frame payload.
	Send(ctx context.Context, payload []byte) error

	// Receive blocks for the next frame payload.
	Receive(ctx context.Context) ([]byte, error)

	// Close shuts the stream down.
	Close() error
}
