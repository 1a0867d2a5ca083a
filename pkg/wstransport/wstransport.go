// Package wstransport implements the s2s.Transport interface over a
// WebSocket connection. Both supported vendors speak JSON text frames over
// WebSocket, so one transport serves them all; the vendor-specific parts
// are the URL and headers the caller configures.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/gorilla/websocket"

	"github.com/haivivi/voicebridge/pkg/s2s"
)

var (
	// ErrNotConnected is returned by Send and Receive before Open succeeds.
	ErrNotConnected = errors.New("wstransport: not connected")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("wstransport: closed")
)

type payload struct {
	data []byte
	err  error
}

// Transport is a WebSocket implementation of s2s.Transport. A background
// reader pumps incoming frames into a buffered channel so Receive can honor
// its context without racing the connection's read state.
type Transport struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	log     *slog.Logger
	retries int

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	msgs      chan payload
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Option customizes a Transport.
type Option func(*Transport)

// WithHeader adds a header to the handshake request. Call it once per header.
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.header.Set(key, value) }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithDialRetries sets how many times Open re-dials after a failed attempt.
func WithDialRetries(n int) Option {
	return func(t *Transport) { t.retries = n }
}

// New creates a Transport for the given WebSocket URL. The connection is not
// established until Open.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:     url,
		header:  http.Header{},
		dialer:  websocket.DefaultDialer,
		log:     slog.Default(),
		retries: 3,
		msgs:    make(chan payload, 100),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open dials the server and starts the background reader. Failed dial
// attempts are retried with exponential backoff until the retry limit or
// the context runs out.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return errors.New("wstransport: already connected")
	}
	t.mu.Unlock()

	bo := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}

	var conn *websocket.Conn
	for attempt := 0; ; attempt++ {
		var resp *http.Response
		var err error
		conn, resp, err = t.dialer.DialContext(ctx, t.url, t.header)
		if err == nil {
			break
		}
		if attempt >= t.retries {
			if resp != nil {
				return fmt.Errorf("wstransport: dial %s: status %d: %w", t.url, resp.StatusCode, err)
			}
			return fmt.Errorf("wstransport: dial %s: %w", t.url, err)
		}
		t.log.Warn("wstransport: dial failed, retrying", "url", t.url, "attempt", attempt+1, "error", err)
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return fmt.Errorf("wstransport: dial %s: %w", t.url, err)
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.log.Debug("wstransport: connected", "url", t.url)

	go t.readLoop(conn)
	return nil
}

// Send writes one text frame.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wstransport: send: %w", err)
	}
	t.log.Debug("wstransport: sent", "len", len(data))
	return nil
}

// Receive blocks for the next frame. A clean close by the remote end is
// reported as io.EOF.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closeCh:
		return nil, io.EOF
	case p, ok := <-t.msgs:
		if !ok {
			return nil, io.EOF
		}
		if p.err != nil {
			return nil, p.err
		}
		return p.data, nil
	}
}

// Close tears the connection down. Safe to call multiple times and
// concurrently with Send and Receive.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer close(t.msgs)

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			} else {
				err = fmt.Errorf("wstransport: read: %w", err)
			}
			select {
			case <-t.closeCh:
			case t.msgs <- payload{err: err}:
			}
			return
		}
		t.log.Debug("wstransport: received", "len", len(message))

		select {
		case <-t.closeCh:
			return
		case t.msgs <- payload{data: message}:
		}
	}
}

var _ s2s.Transport = (*Transport)(nil)
