package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicebridge/pkg/archive"
	"github.com/haivivi/voicebridge/pkg/novasonic"
	"github.com/haivivi/voicebridge/pkg/openairt"
	"github.com/haivivi/voicebridge/pkg/s2s"
	"github.com/haivivi/voicebridge/pkg/s2s/tool"
	"github.com/haivivi/voicebridge/pkg/s2s/tool/builtin"
	"github.com/haivivi/voicebridge/pkg/transcript"
	"github.com/haivivi/voicebridge/pkg/wstransport"
)

// relay accepts client WebSocket connections and bridges each one to a
// model session.
type relay struct {
	ctx     context.Context
	cfg     *Config
	journal transcript.Store
	archive archive.Store // nil disables export
	log     *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*relayConn]struct{}
	wg    sync.WaitGroup
}

// newRelay builds a relay. ctx is the server lifetime: it bounds backend
// dials and, once canceled, closeAll tears the remaining connections down.
func newRelay(ctx context.Context, cfg *Config, journal transcript.Store, arch archive.Store, log *slog.Logger) *relay {
	return &relay{
		ctx:     ctx,
		cfg:     cfg,
		journal: journal,
		archive: arch,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*relayConn]struct{}),
	}
}

func (rl *relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (rl *relay) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		rl.handleWS(w, r)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	rl.handleHealth(w, r)
}

func (rl *relay) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.log.Warn("relay: upgrade failed", "error", err)
		return
	}
	c := &relayConn{
		rl:  rl,
		ws:  ws,
		log: rl.log.With("remote", ws.RemoteAddr().String()),
	}
	rl.mu.Lock()
	rl.conns[c] = struct{}{}
	rl.wg.Add(1)
	rl.mu.Unlock()
	c.run(rl.ctx)
}

// closeAll closes every live connection and waits for their sessions to
// retire.
func (rl *relay) closeAll() {
	rl.mu.Lock()
	conns := make([]*relayConn, 0, len(rl.conns))
	for c := range rl.conns {
		conns = append(conns, c)
	}
	rl.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
	rl.wg.Wait()
}

func (rl *relay) drop(c *relayConn) {
	rl.mu.Lock()
	delete(rl.conns, c)
	rl.mu.Unlock()
	rl.wg.Done()
}

// buildRegistry assembles the tool registry the relay advertises: the
// built-ins plus the knowledge base and delegating agent when configured.
// say delivers tool hold messages back through the session and may be nil.
func buildRegistry(cfg *Config, say func(ctx context.Context, text string) error) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	tools := []tool.Tool{
		builtin.Date(),
		builtin.SlowWeather(builtin.SlowWeatherOptions{
			Delay: time.Duration(cfg.SlowToolDelay) * time.Second,
			Say:   say,
		}),
	}
	if len(cfg.KB) > 0 {
		tools = append(tools, builtin.KnowledgeBase(cfg.KB))
	}
	if cfg.Agent.APIKey != "" {
		tools = append(tools, builtin.ExternalAgent(builtin.AgentConfig{
			APIKey:  cfg.Agent.APIKey,
			BaseURL: cfg.Agent.BaseURL,
			Model:   cfg.Agent.Model,
			System:  cfg.Agent.System,
		}))
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	return reg, nil
}

// newSession assembles the backend transport, adapter and per-session tool
// registry for one client connection.
func (rl *relay) newSession(cfg *s2s.SessionConfig, log *slog.Logger) (*s2s.Session, error) {
	// The weather tool's hold message goes back through the session, which
	// does not exist yet. The closure reads sess after New assigns it;
	// tools only run after Start, so the assignment is always visible.
	var sess *s2s.Session
	say := func(ctx context.Context, text string) error {
		return sess.SendText(text)
	}

	reg, err := buildRegistry(rl.cfg, say)
	if err != nil {
		return nil, err
	}

	tp, adapter, err := rl.backend(log)
	if err != nil {
		return nil, err
	}

	opts := []s2s.Option{
		s2s.WithLogger(log),
		s2s.WithConfig(cfg),
		s2s.WithTranscript(rl.journal),
	}
	if rl.cfg.DecodeErrorLimit > 0 {
		opts = append(opts, s2s.WithDecodeErrorLimit(rl.cfg.DecodeErrorLimit))
	}
	if rl.cfg.CloseTimeout > 0 {
		opts = append(opts, s2s.WithCloseTimeout(time.Duration(rl.cfg.CloseTimeout)*time.Second))
	}
	sess = s2s.New(tp, adapter, reg, opts...)
	return sess, nil
}

func (rl *relay) backend(log *slog.Logger) (s2s.Transport, s2s.Adapter, error) {
	opts := []wstransport.Option{wstransport.WithLogger(log)}
	if rl.cfg.DialRetries > 0 {
		opts = append(opts, wstransport.WithDialRetries(rl.cfg.DialRetries))
	}
	switch rl.cfg.Vendor {
	case VendorOpenAIRT:
		opts = append(opts,
			wstransport.WithHeader("Authorization", "Bearer "+rl.cfg.APIKey),
			wstransport.WithHeader("OpenAI-Beta", "realtime=v1"))
		return wstransport.New(rl.cfg.VendorURL, opts...), openairt.NewAdapter(), nil
	case VendorNovaSonic:
		if rl.cfg.APIKey != "" {
			opts = append(opts, wstransport.WithHeader("Authorization", "Bearer "+rl.cfg.APIKey))
		}
		return wstransport.New(rl.cfg.VendorURL, opts...), novasonic.NewAdapter(), nil
	}
	return nil, nil, fmt.Errorf("unknown vendor %q", rl.cfg.Vendor)
}

// relayConn is one client connection. The client's opening sequence
// (sessionStart, promptStart, contentStart) is accumulated into a session
// config; the model session starts when audio is announced.
type relayConn struct {
	rl  *relay
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex // serializes client writes

	mu            sync.Mutex
	sess          *s2s.Session
	sessCfg       s2s.SessionConfig
	systemContent string // contentName of a pending SYSTEM text block
	started       bool   // a session was started on this connection

	forwardWG sync.WaitGroup
}

func (c *relayConn) run(ctx context.Context) {
	defer c.rl.drop(c)
	defer c.ws.Close()

	c.log.Info("relay: client connected")
	c.resetConfig()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("relay: client disconnected")
			} else {
				c.log.Warn("relay: client read failed", "error", err)
			}
			break
		}
		if err := c.handle(ctx, data); err != nil {
			c.log.Warn("relay: client event rejected", "error", err)
		}
	}

	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		c.retire(sess)
	}
	c.forwardWG.Wait()
}

// resetConfig seeds the session config from the server defaults. A later
// sessionStart overlays the client's inference settings on top.
func (c *relayConn) resetConfig() {
	cfg := c.rl.cfg
	c.mu.Lock()
	c.sessCfg = s2s.SessionConfig{
		Voice:       cfg.Voice,
		System:      cfg.SystemPrompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	c.systemContent = ""
	c.started = false
	c.mu.Unlock()
}

func (c *relayConn) handle(ctx context.Context, data []byte) error {
	name, body, raw, err := decodeClientEvent(data)
	if err != nil {
		return err
	}

	switch name {
	case "sessionStart":
		return c.onSessionStart(body)
	case "promptStart":
		return c.onPromptStart(body)
	case "contentStart":
		return c.onContentStart(ctx, body)
	case "textInput":
		return c.onTextInput(body)
	case "audioInput":
		return c.onAudioInput(ctx, body)
	case "contentEnd":
		return c.onContentEnd(body, raw)
	case "sessionEnd":
		return c.onSessionEnd()
	default:
		return c.forwardRaw(name, raw)
	}
}

func (c *relayConn) onSessionStart(body json.RawMessage) error {
	var ev struct {
		InferenceConfiguration struct {
			MaxTokens   int     `json:"maxTokens"`
			TopP        float64 `json:"topP"`
			Temperature float64 `json:"temperature"`
		} `json:"inferenceConfiguration"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("sessionStart: %w", err)
	}

	// A fresh sessionStart on a live connection replaces the model side.
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		c.log.Info("relay: restarting session", "session", sess.ID())
		c.retire(sess)
	}
	c.resetConfig()

	c.mu.Lock()
	inf := ev.InferenceConfiguration
	if inf.MaxTokens > 0 {
		c.sessCfg.MaxTokens = inf.MaxTokens
	}
	if inf.TopP > 0 {
		c.sessCfg.TopP = inf.TopP
	}
	if inf.Temperature > 0 {
		c.sessCfg.Temperature = inf.Temperature
	}
	c.mu.Unlock()
	return nil
}

func (c *relayConn) onPromptStart(body json.RawMessage) error {
	var ev struct {
		PromptName               string `json:"promptName"`
		AudioOutputConfiguration struct {
			VoiceID         string `json:"voiceId"`
			SampleRateHertz int    `json:"sampleRateHertz"`
		} `json:"audioOutputConfiguration"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("promptStart: %w", err)
	}
	c.mu.Lock()
	if ev.PromptName != "" {
		c.sessCfg.PromptID = ev.PromptName
	}
	if ev.AudioOutputConfiguration.VoiceID != "" {
		c.sessCfg.Voice = ev.AudioOutputConfiguration.VoiceID
	}
	if ev.AudioOutputConfiguration.SampleRateHertz > 0 {
		c.sessCfg.OutputSampleRate = ev.AudioOutputConfiguration.SampleRateHertz
	}
	c.mu.Unlock()
	return nil
}

func (c *relayConn) onContentStart(ctx context.Context, body json.RawMessage) error {
	var ev struct {
		ContentName             string `json:"contentName"`
		Type                    string `json:"type"`
		Role                    string `json:"role"`
		AudioInputConfiguration struct {
			SampleRateHertz int `json:"sampleRateHertz"`
		} `json:"audioInputConfiguration"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("contentStart: %w", err)
	}

	switch {
	case ev.Type == "TEXT" && ev.Role == "SYSTEM":
		c.mu.Lock()
		c.systemContent = ev.ContentName
		c.mu.Unlock()
		return nil
	case ev.Type == "AUDIO":
		c.mu.Lock()
		if ev.AudioInputConfiguration.SampleRateHertz > 0 {
			c.sessCfg.InputSampleRate = ev.AudioInputConfiguration.SampleRateHertz
		}
		c.mu.Unlock()
		// Audio is announced: the opening sequence is complete, start
		// the model session.
		return c.startSession(ctx)
	}
	return nil
}

func (c *relayConn) onTextInput(body json.RawMessage) error {
	var ev struct {
		ContentName string `json:"contentName"`
		Content     string `json:"content"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("textInput: %w", err)
	}

	c.mu.Lock()
	if c.systemContent != "" && ev.ContentName == c.systemContent {
		c.sessCfg.System = ev.Content
		c.mu.Unlock()
		return nil
	}
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		c.log.Debug("relay: text before session start dropped")
		return nil
	}
	return sess.SendText(ev.Content)
}

func (c *relayConn) onAudioInput(ctx context.Context, body json.RawMessage) error {
	var ev struct {
		PromptName  string `json:"promptName"`
		ContentName string `json:"contentName"`
		Content     string `json:"content"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("audioInput: %w", err)
	}

	c.mu.Lock()
	sess, started := c.sess, c.started
	c.mu.Unlock()

	// Some clients skip the audio contentStart; the first chunk starts
	// the session then. A retired session is not restarted this way, that
	// takes a fresh opening sequence.
	if sess == nil {
		if started {
			return nil
		}
		if err := c.startSession(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		sess = c.sess
		c.mu.Unlock()
		if sess == nil {
			return nil
		}
	}

	pcm, err := base64.StdEncoding.DecodeString(ev.Content)
	if err != nil {
		return fmt.Errorf("audioInput: decode content: %w", err)
	}
	return sess.AddAudio(&s2s.AudioChunk{
		PromptID:  ev.PromptName,
		ContentID: ev.ContentName,
		Data:      pcm,
	})
}

func (c *relayConn) onContentEnd(body json.RawMessage, raw []byte) error {
	var ev struct {
		ContentName string `json:"contentName"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("contentEnd: %w", err)
	}
	c.mu.Lock()
	if c.systemContent != "" && ev.ContentName == c.systemContent {
		c.systemContent = ""
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.forwardRaw("contentEnd", raw)
}

func (c *relayConn) onSessionEnd() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	c.log.Info("relay: session end requested", "session", sess.ID())
	c.retire(sess)
	return nil
}

// forwardRaw passes an unhandled client event to the backend untouched.
// Only the novasonic backend speaks the client's dialect; for openairt the
// event is dropped.
func (c *relayConn) forwardRaw(name string, raw []byte) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		c.log.Debug("relay: event before session start dropped", "event", name)
		return nil
	}
	if c.rl.cfg.Vendor != VendorNovaSonic {
		c.log.Debug("relay: event has no openairt mapping, dropped", "event", name)
		return nil
	}
	return sess.SendRaw(raw)
}

func (c *relayConn) startSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return nil
	}
	cfg := c.sessCfg
	c.mu.Unlock()

	sess, err := c.rl.newSession(&cfg, c.log)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	c.sess = sess
	c.started = true
	c.mu.Unlock()
	c.log.Info("relay: session started", "session", sess.ID(), "vendor", c.rl.cfg.Vendor)

	c.forwardWG.Add(1)
	go c.forward(sess)
	return nil
}

// forward pumps the session's output stream back to the client. Frames are
// forwarded as their vendor payloads; synthesized error frames with no
// payload are wrapped in an error event.
func (c *relayConn) forward(sess *s2s.Session) {
	defer c.forwardWG.Done()
	for frame, err := range sess.Frames() {
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Warn("relay: session ended", "session", sess.ID(), "error", err)
			}
			break
		}
		raw := []byte(frame.Raw)
		if len(raw) == 0 {
			if frame.Type != s2s.FrameError {
				continue
			}
			raw = errorEvent(frame.Text)
		}
		if err := c.write(raw); err != nil {
			c.log.Warn("relay: client write failed", "error", err)
			break
		}
	}

	// The session is done either way; a later opening sequence may start
	// a new one on this connection.
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

func (c *relayConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// retire closes the session and exports its transcript when an archive is
// configured.
func (c *relayConn) retire(sess *s2s.Session) {
	if err := sess.Close(); err != nil {
		c.log.Warn("relay: session close failed", "session", sess.ID(), "error", err)
	}
	if c.rl.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	path, err := archive.ExportSession(ctx, c.rl.archive, c.rl.journal, sess.ID())
	switch {
	case errors.Is(err, archive.ErrNoRecords):
		c.log.Debug("relay: nothing to archive", "session", sess.ID())
	case err != nil:
		c.log.Warn("relay: archive failed", "session", sess.ID(), "error", err)
	default:
		c.log.Info("relay: transcript archived", "session", sess.ID(), "path", path)
	}
}

func errorEvent(msg string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event": map[string]any{
			"error": map[string]string{"message": msg},
		},
	})
	return b
}

// clientEnvelope is the outer shape of a client message: the event itself,
// or a JSON string body wrapping it.
type clientEnvelope struct {
	Body  string                     `json:"body"`
	Event map[string]json.RawMessage `json:"event"`
}

// decodeClientEvent unwraps the envelope and names the event by its single
// key under "event". The returned raw bytes are the unwrapped event, suited
// for verbatim forwarding.
func decodeClientEvent(data []byte) (name string, body json.RawMessage, raw []byte, err error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, nil, fmt.Errorf("decode client event: %w", err)
	}
	raw = data
	if env.Body != "" {
		raw = []byte(env.Body)
		env.Event = nil
		if err := json.Unmarshal(raw, &env); err != nil {
			return "", nil, nil, fmt.Errorf("decode client body: %w", err)
		}
	}
	if len(env.Event) != 1 {
		return "", nil, nil, fmt.Errorf("decode client event: want one event key, got %d", len(env.Event))
	}
	for name, body := range env.Event {
		return name, body, raw, nil
	}
	panic("unreachable")
}
