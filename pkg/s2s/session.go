// Package s2s coordinates one bidirectional speech-to-speech conversation:
// client audio flowing up to a realtime model and model events flowing back
// down, with tool calls detected in the stream, executed locally, and their
// results returned to the model mid-conversation.
//
// A Session owns three event sources merged into a single consumption loop:
// the client input queue, the model stream, and the tool result queue. The
// loop encodes and forwards input, decodes and timestamps model frames onto
// the output queue, announces tool-use boundaries on the dispatch gate, and
// turns finished tool executions into the vendor's result frame sequence.
// Vendor wire formats stay behind the Adapter interface and the link itself
// behind Transport, so the core is the same for every provider.
package s2s

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voicebridge/pkg/merge"
	"github.com/haivivi/voicebridge/pkg/queue"
	"github.com/haivivi/voicebridge/pkg/s2s/tool"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

// State is the session lifecycle phase.
type State int32

const (
	StateInit State = iota
	StateActive
	StateClosing
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateInit:
		return "init"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(st))
}

// Merge source names.
const (
	srcInput = "input"
	srcModel = "model"
	srcTool  = "tool"
)

const (
	defaultDecodeErrorLimit = 5
	defaultCloseTimeout     = 3 * time.Second
)

// Session is one live conversation. Create with New, begin with Start,
// consume frames with Next or Frames, and end with Close. All methods are
// safe for concurrent use; after Close, enqueue operations are silent
// no-ops and the output stream reports end-of-stream.
type Session struct {
	id       string
	tp       Transport
	adapter  Adapter
	registry *tool.Registry
	cfg      *SessionConfig
	log      *slog.Logger
	journal  transcript.Appender

	decodeLimit  int
	closeTimeout time.Duration

	input   *queue.Queue[*inputEvent]
	output  *queue.Queue[*Frame]
	results *queue.Queue[*ToolResult]

	gate *toolGate
	sv   *supervisor
	mux  *merge.Mux[any]

	ctx    context.Context
	cancel context.CancelFunc

	// decodeFails counts consecutive decode failures; only the consumption
	// loop touches it.
	decodeFails int

	// failFrame holds the pending error frame for a failed session; teardown
	// delivers it as the final output frame.
	failFrame atomic.Pointer[Frame]

	mu        sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithConfig sets the session configuration advertised to the vendor at
// start. Zero fields keep their defaults.
func WithConfig(cfg *SessionConfig) Option {
	return func(s *Session) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithTranscript journals every sent and received payload to j. Journal
// failures are logged and otherwise ignored.
func WithTranscript(j transcript.Appender) Option {
	return func(s *Session) { s.journal = j }
}

// WithDecodeErrorLimit sets how many consecutive undecodable model frames
// the session tolerates before treating the stream as corrupt. n <= 0
// disables the limit. Default 5.
func WithDecodeErrorLimit(n int) Option {
	return func(s *Session) { s.decodeLimit = n }
}

// WithCloseTimeout bounds how long Close waits for in-flight tool
// executions. Default 3s.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Session) { s.closeTimeout = d }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// New creates a Session over the given transport and adapter. A nil
// registry means no tools are advertised. The session does not touch the
// network until Start.
func New(tp Transport, adapter Adapter, registry *tool.Registry, opts ...Option) *Session {
	if registry == nil {
		registry = tool.NewRegistry()
	}
	s := &Session{
		id:           "sess_" + uuid.New().String()[:12],
		tp:           tp,
		adapter:      adapter,
		registry:     registry,
		log:          slog.Default(),
		decodeLimit:  defaultDecodeErrorLimit,
		closeTimeout: defaultCloseTimeout,
		input:        queue.New[*inputEvent](64),
		output:       queue.New[*Frame](128),
		results:      queue.New[*ToolResult](8),
		gate:         newToolGate(),
		mux:          merge.New[any](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = &SessionConfig{}
	}
	applyConfigDefaults(s.cfg)
	s.sv = newSupervisor(s.registry, s.gate, s.results, s.log)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func applyConfigDefaults(cfg *SessionConfig) {
	if cfg.PromptID == "" {
		cfg.PromptID = uuid.New().String()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}
	if cfg.InputSampleRate == 0 {
		cfg.InputSampleRate = 16000
	}
	if cfg.OutputSampleRate == 0 {
		cfg.OutputSampleRate = 24000
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// ToolsInFlight reports the number of tool executions currently running.
func (s *Session) ToolsInFlight() int { return s.sv.InFlight() }

// Start opens the transport, sends the session-start sequence advertising
// the registered tools, and begins the consumption loop. The context bounds
// the handshake only; the session runs until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateActive:
		return ErrStarted
	case StateClosing, StateClosed:
		return ErrClosed
	}

	if err := s.tp.Open(ctx); err != nil {
		return fmt.Errorf("s2s: open transport: %w", err)
	}
	frames, err := s.adapter.EncodeSessionStart(s.cfg, s.registry.Declarations())
	if err != nil {
		s.tp.Close()
		return fmt.Errorf("s2s: encode session start: %w", err)
	}
	for _, f := range frames {
		if err := s.tp.Send(ctx, f); err != nil {
			s.tp.Close()
			return fmt.Errorf("s2s: send session start: %w", err)
		}
		s.record(transcript.DirSend, "session_begin", f)
	}

	s.mux.Add(srcInput, queueSource(s.input))
	s.mux.Add(srcModel, merge.SourceFunc[any](s.receiveModel))
	s.mux.Add(srcTool, queueSource(s.results))
	go s.sv.run(s.ctx)
	go s.loop()

	s.state.Store(int32(StateActive))
	s.log.Info("s2s: session started", "session", s.id, "tools", s.registry.Names())
	return nil
}

// queueSource adapts a queue to a merge source. Both close flavors end the
// source silently; teardown must not read as a stream failure.
func queueSource[T any](q *queue.Queue[T]) merge.SourceFunc[any] {
	return func() (any, error) {
		v, err := q.Next()
		if err != nil {
			if errors.Is(err, queue.ErrDone) || errors.Is(err, ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}
		return v, nil
	}
}

// receiveModel pulls one payload from the transport. A clean remote close
// becomes errModelEOS so the loop can distinguish it from a failure.
func (s *Session) receiveModel() (any, error) {
	data, err := s.tp.Receive(s.ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errModelEOS
		}
		return nil, err
	}
	return data, nil
}

// loop is the single consumption loop: every input event, model payload,
// and tool result passes through here in arrival order, so per-source
// ordering holds without further locking.
func (s *Session) loop() {
	defer s.Close()
	for {
		ev, err := s.mux.Next()
		if err != nil {
			s.loopDone(err)
			return
		}
		if err := s.route(ev); err != nil {
			s.fail(err)
			return
		}
	}
}

// loopDone classifies the merge's terminal error.
func (s *Session) loopDone(err error) {
	switch {
	case errors.Is(err, io.EOF):
	case errors.Is(err, errModelEOS):
		s.log.Info("s2s: model ended stream", "session", s.id)
	case errors.Is(err, merge.ErrClosed), s.ctx.Err() != nil:
		// Teardown already under way.
	default:
		s.fail(err)
	}
}

// fail handles a fatal loop error: log it and stage an error frame for the
// deferred Close to deliver as the last output frame.
func (s *Session) fail(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.log.Error("s2s: session failed", "session", s.id, "error", err)
	s.failFrame.Store(&Frame{
		Type:       FrameError,
		Text:       err.Error(),
		ReceivedAt: time.Now().UnixMilli(),
	})
}

func (s *Session) route(ev merge.Tagged[any]) error {
	switch ev.Source {
	case srcInput:
		return s.sendInput(ev.Value.(*inputEvent))
	case srcModel:
		return s.handleModel(ev.Value.([]byte))
	case srcTool:
		return s.sendToolResult(ev.Value.(*ToolResult))
	}
	return nil
}

// sendInput encodes and forwards one client input event.
func (s *Session) sendInput(ev *inputEvent) error {
	switch {
	case ev.audio != nil:
		payload, err := s.adapter.EncodeAudioFrame(ev.audio)
		if err != nil {
			return fmt.Errorf("s2s: encode audio: %w", err)
		}
		return s.send(payload, "audio")
	case ev.raw != nil:
		return s.send(ev.raw, "raw")
	case ev.text != "":
		frames, err := s.adapter.EncodeText(ev.text)
		if err != nil {
			return fmt.Errorf("s2s: encode text: %w", err)
		}
		for _, f := range frames {
			if err := s.send(f, "text"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) send(payload []byte, typ string) error {
	if err := s.tp.Send(s.ctx, payload); err != nil {
		return fmt.Errorf("s2s: send: %w", err)
	}
	s.record(transcript.DirSend, typ, payload)
	return nil
}

// handleModel decodes one model payload and routes the stamped frame to the
// output stream. An undecodable payload is dropped and logged; too many in a
// row mean the stream itself is corrupt and end the session.
func (s *Session) handleModel(data []byte) error {
	frame, err := s.adapter.DecodeFrame(data)
	if err != nil {
		s.decodeFails++
		s.log.Warn("s2s: dropping undecodable frame",
			"session", s.id, "error", err, "consecutive", s.decodeFails)
		if s.decodeLimit > 0 && s.decodeFails >= s.decodeLimit {
			return &DecodeError{Raw: data, Err: err}
		}
		return nil
	}
	s.decodeFails = 0
	frame.ReceivedAt = time.Now().UnixMilli()
	s.record(transcript.DirRecv, string(frame.Type), data)

	if frame.ToolCall != nil {
		if err := s.gate.announce(frame.ToolCall); err != nil {
			s.log.Warn("s2s: tool call superseded", "session", s.id, "error", err)
		}
	}
	_ = s.output.Put(frame)
	return nil
}

// sendToolResult turns one finished execution into the vendor's result
// frame sequence, sending each frame and mirroring it onto the output
// stream with a fresh timestamp.
func (s *Session) sendToolResult(res *ToolResult) error {
	if res.Err != nil {
		s.log.Warn("s2s: returning tool error to model",
			"session", s.id, "tool", res.Name, "tool_use_id", res.ToolUseID, "error", res.Err)
	}
	frames, err := s.adapter.EncodeToolResult(res)
	if err != nil {
		s.log.Warn("s2s: encode tool result",
			"session", s.id, "tool", res.Name, "error", err)
		return nil
	}
	for _, f := range frames {
		if err := s.send(f, "tool_result"); err != nil {
			return err
		}
		_ = s.output.Put(&Frame{
			Type:       FrameToolResult,
			Raw:        f,
			ReceivedAt: time.Now().UnixMilli(),
		})
	}
	return nil
}

// record journals one payload when a transcript is attached.
func (s *Session) record(dir, typ string, payload []byte) {
	if s.journal == nil {
		return
	}
	err := s.journal.Append(&transcript.Record{
		Session: s.id,
		Dir:     dir,
		Type:    typ,
		At:      time.Now().UnixMilli(),
		Payload: payload,
	})
	if err != nil {
		s.log.Warn("s2s: transcript append failed", "session", s.id, "error", err)
	}
}

// AddAudio enqueues one client audio chunk. After Close it is a silent
// no-op.
func (s *Session) AddAudio(chunk *AudioChunk) error {
	_ = s.input.Put(&inputEvent{audio: chunk})
	return nil
}

// SendText enqueues one client text message.
func (s *Session) SendText(text string) error {
	if text == "" {
		return nil
	}
	_ = s.input.Put(&inputEvent{text: text})
	return nil
}

// SendRaw enqueues one pre-encoded vendor payload, bypassing the adapter.
// Callers own the payload's validity.
func (s *Session) SendRaw(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_ = s.input.Put(&inputEvent{raw: payload})
	return nil
}

// Next returns the next output frame, blocking until one is available. It
// returns io.EOF once the session has closed and the stream is drained.
func (s *Session) Next() (*Frame, error) {
	f, err := s.output.Next()
	if err != nil {
		if errors.Is(err, queue.ErrDone) {
			return nil, io.EOF
		}
		return nil, err
	}
	return f, nil
}

// Frames iterates the output stream. A terminal error other than
// end-of-stream is yielded once with a nil frame.
func (s *Session) Frames() iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		for {
			f, err := s.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Close ends the session: cancel in-flight tool executions, discard queued
// work, send the closing sequence best-effort, and shut the transport down.
// Safe to call multiple times and from multiple goroutines; every call
// returns after teardown has completed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.teardown() })
	return s.closeErr
}

func (s *Session) teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := State(s.state.Swap(int32(StateClosing)))
	s.log.Info("s2s: session closing", "session", s.id, "from", prev.String())
	s.cancel()

	if prev == StateActive {
		if !s.sv.wait(s.closeTimeout) {
			s.log.Warn("s2s: tool executions outlived close",
				"session", s.id, "inflight", s.sv.InFlight())
		}
	}

	s.input.CloseWithError(ErrClosed)
	s.results.CloseWithError(ErrClosed)
	s.output.Reset()
	if f := s.failFrame.Load(); f != nil {
		_ = s.output.Put(f)
	}
	s.output.CloseWrite()

	var err error
	if prev == StateActive {
		s.sendSessionEnd()
		err = s.tp.Close()
	}
	s.mux.Close()

	s.state.Store(int32(StateClosed))
	s.log.Info("s2s: session closed", "session", s.id)
	return err
}

// sendSessionEnd delivers the closing frame sequence on a short deadline.
// The transport is about to go away, so failures only mean a less polite
// goodbye.
func (s *Session) sendSessionEnd() {
	frames, err := s.adapter.EncodeSessionEnd()
	if err != nil || len(frames) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, f := range frames {
		if err := s.tp.Send(ctx, f); err != nil {
			return
		}
		s.record(transcript.DirSend, "session_end", f)
	}
}
