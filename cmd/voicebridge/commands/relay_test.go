package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicebridge/pkg/s2s/tool/builtin"
	"github.com/haivivi/voicebridge/pkg/transcript"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRelay(t *testing.T, cfg *Config) *relay {
	t.Helper()
	journal, err := transcript.Open(transcript.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return newRelay(context.Background(), cfg, journal, nil, quietLogger())
}

func relayServer(t *testing.T, rl *relay) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rl.handleHealth)
	mux.HandleFunc("/", rl.handleRoot)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeClientEvent(t *testing.T) {
	data := []byte(`{"event":{"audioInput":{"content":"QUJD"}}}`)
	name, body, raw, err := decodeClientEvent(data)
	if err != nil {
		t.Fatalf("decodeClientEvent: %v", err)
	}
	if name != "audioInput" {
		t.Errorf("name = %q", name)
	}
	var ev struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &ev); err != nil || ev.Content != "QUJD" {
		t.Errorf("body = %s (%v)", body, err)
	}
	if string(raw) != string(data) {
		t.Errorf("raw = %s", raw)
	}
}

func TestDecodeClientEventBodyWrapped(t *testing.T) {
	inner := `{"event":{"sessionStart":{"inferenceConfiguration":{"maxTokens":512}}}}`
	outer, err := json.Marshal(map[string]string{"body": inner})
	if err != nil {
		t.Fatal(err)
	}
	name, body, raw, err := decodeClientEvent(outer)
	if err != nil {
		t.Fatalf("decodeClientEvent: %v", err)
	}
	if name != "sessionStart" {
		t.Errorf("name = %q", name)
	}
	if string(raw) != inner {
		t.Errorf("raw = %s, want the unwrapped event", raw)
	}
	var ev struct {
		InferenceConfiguration struct {
			MaxTokens int `json:"maxTokens"`
		} `json:"inferenceConfiguration"`
	}
	if err := json.Unmarshal(body, &ev); err != nil || ev.InferenceConfiguration.MaxTokens != 512 {
		t.Errorf("body = %s (%v)", body, err)
	}
}

func TestDecodeClientEventRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"no event key", `{"other":1}`},
		{"two event keys", `{"event":{"a":{},"b":{}}}`},
		{"body not json", `{"body":"not json"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, _, err := decodeClientEvent([]byte(tc.data)); err == nil {
				t.Fatalf("decodeClientEvent(%s) accepted", tc.data)
			}
		})
	}
}

func TestBuildRegistryDefaults(t *testing.T) {
	reg, err := buildRegistry(&Config{}, nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	want := []string{"getdatetool", "getslowtool"}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBuildRegistryConfigured(t *testing.T) {
	cfg := &Config{
		KB:    []builtin.KBEntry{{Title: "Hours", Content: "Open 9 to 5."}},
		Agent: AgentConfig{APIKey: "sk-test"},
	}
	reg, err := buildRegistry(cfg, nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	want := []string{"externalagent", "getdatetool", "getkbtool", "getslowtool"}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestErrorEvent(t *testing.T) {
	var v struct {
		Event struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"event"`
	}
	if err := json.Unmarshal(errorEvent("backend gone"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Event.Error.Message != "backend gone" {
		t.Errorf("message = %q", v.Event.Error.Message)
	}
}

func TestRelayHealthRoute(t *testing.T) {
	rl := newTestRelay(t, &Config{Vendor: VendorNovaSonic})
	srv := relayServer(t, rl)

	for _, path := range []string{"/health", "/"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), "healthy") {
			t.Errorf("GET %s: body %s", path, body)
		}
	}

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope: status %d, want 404", resp.StatusCode)
	}
}

func TestRelayBridgesClientToBackend(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	// Fake vendor backend: collects everything the relay sends and emits
	// one canned model event after the first opening frame.
	received := make(chan []byte, 64)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		responded := false
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			received <- data
			if !responded {
				responded = true
				c.WriteMessage(websocket.TextMessage, []byte(`{"event":{"completionStart":{"promptName":"p1"}}}`))
			}
		}
	}))
	defer backend.Close()

	cfg := &Config{
		Vendor:    VendorNovaSonic,
		VendorURL: "ws" + strings.TrimPrefix(backend.URL, "http"),
	}
	rl := newTestRelay(t, cfg)
	srv := relayServer(t, rl)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/", nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer ws.Close()

	send := func(s string) {
		t.Helper()
		if err := ws.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(`{"event":{"sessionStart":{"inferenceConfiguration":{"maxTokens":256,"topP":0.9,"temperature":0.6}}}}`)
	send(`{"event":{"promptStart":{"promptName":"p1","audioOutputConfiguration":{"voiceId":"matthew"}}}}`)
	send(`{"event":{"contentStart":{"promptName":"p1","contentName":"sys1","type":"TEXT","role":"SYSTEM"}}}`)
	send(`{"event":{"textInput":{"promptName":"p1","contentName":"sys1","content":"You are a pirate."}}}`)
	send(`{"event":{"contentEnd":{"promptName":"p1","contentName":"sys1"}}}`)
	send(`{"event":{"contentStart":{"promptName":"p1","contentName":"audio1","type":"AUDIO","role":"USER","audioInputConfiguration":{"sampleRateHertz":16000}}}}`)

	// The canned model event comes back verbatim.
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, resp, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read relay: %v", err)
	}
	if !strings.Contains(string(resp), "completionStart") {
		t.Fatalf("forwarded = %s", resp)
	}

	// The relay dialed the backend with the accumulated opening sequence:
	// sessionStart, promptStart, the system block and the audio block.
	var opening []string
	deadline := time.After(5 * time.Second)
	for len(opening) < 6 {
		select {
		case data := <-received:
			opening = append(opening, string(data))
		case <-deadline:
			t.Fatalf("backend saw only %d opening frames", len(opening))
		}
	}
	all := strings.Join(opening, "\n")
	for _, want := range []string{`"maxTokens":256`, `"voiceId":"matthew"`, "You are a pirate.", `"promptName":"p1"`} {
		if !strings.Contains(all, want) {
			t.Fatalf("opening sequence missing %s:\n%s", want, all)
		}
	}

	// Audio flows through as audioInput.
	send(`{"event":{"audioInput":{"promptName":"p1","contentName":"audio1","content":"` +
		base64.StdEncoding.EncodeToString([]byte("pcm-bytes")) + `"}}}`)
	select {
	case data := <-received:
		if !strings.Contains(string(data), "audioInput") {
			t.Fatalf("backend got %s, want audioInput", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("audio never reached the backend")
	}

	send(`{"event":{"sessionEnd":{}}}`)
}
