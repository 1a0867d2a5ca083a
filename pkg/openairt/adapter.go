package openairt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haivivi/voicebridge/pkg/s2s"
	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// Adapter translates between the session core and the OpenAI Realtime
// protocol. Unlike Nova Sonic there is no explicit tool-use boundary event:
// response.function_call_arguments.done carries the complete call, so that
// frame announces the ToolRequest directly.
type Adapter struct{}

// NewAdapter creates an Adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// EncodeSessionStart produces a single session.update carrying the
// modalities, instructions, audio formats, and tool declarations.
func (a *Adapter) EncodeSessionStart(cfg *s2s.SessionConfig, tools []tool.Declaration) ([][]byte, error) {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	body := &SessionBody{
		Modalities:        []string{"text", "audio"},
		Instructions:      cfg.System,
		Voice:             voice,
		InputAudioFormat:  AudioFormatPCM16,
		OutputAudioFormat: AudioFormatPCM16,
	}
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		body.Temperature = &t
	}
	if cfg.MaxTokens != 0 {
		n := cfg.MaxTokens
		body.MaxResponseOutputTokens = &n
	}
	for _, t := range tools {
		params, err := schemaParameters(t)
		if err != nil {
			return nil, err
		}
		body.Tools = append(body.Tools, Tool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	data, err := json.Marshal(&ClientEvent{
		Type:    EventSessionUpdate,
		EventID: newEventID(),
		Session: body,
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// schemaParameters renders a tool's argument schema as the plain JSON object
// the session.update wants.
func schemaParameters(t tool.Declaration) (map[string]any, error) {
	if t.Schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(t.Schema)
	if err != nil {
		return nil, fmt.Errorf("openairt: schema for tool %q: %w", t.Name, err)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("openairt: schema for tool %q: %w", t.Name, err)
	}
	return params, nil
}

// EncodeAudioFrame produces an input_audio_buffer.append for one chunk.
func (a *Adapter) EncodeAudioFrame(chunk *s2s.AudioChunk) ([]byte, error) {
	return json.Marshal(&ClientEvent{
		Type:    EventInputAudioBufferAppend,
		EventID: newEventID(),
		Audio:   base64.StdEncoding.EncodeToString(chunk.Data),
	})
}

// EncodeText produces a user message item followed by a response.create, so
// the model answers the text without waiting for audio turn detection.
func (a *Adapter) EncodeText(text string) ([][]byte, error) {
	item, err := json.Marshal(&ClientEvent{
		Type:    EventConversationItemCreate,
		EventID: newEventID(),
		Item: &ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	respond, err := json.Marshal(&ClientEvent{
		Type:    EventResponseCreate,
		EventID: newEventID(),
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{item, respond}, nil
}

// EncodeToolResult produces a function_call_output item followed by a
// response.create, prompting the model to speak the result.
func (a *Adapter) EncodeToolResult(res *s2s.ToolResult) ([][]byte, error) {
	item, err := json.Marshal(&ClientEvent{
		Type:    EventConversationItemCreate,
		EventID: newEventID(),
		Item: &ConversationItem{
			Type:   "function_call_output",
			CallID: res.ToolUseID,
			Output: string(res.Payload),
		},
	})
	if err != nil {
		return nil, err
	}
	respond, err := json.Marshal(&ClientEvent{
		Type:    EventResponseCreate,
		EventID: newEventID(),
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{item, respond}, nil
}

// EncodeSessionEnd returns no frames; a Realtime session ends by closing
// the connection.
func (a *Adapter) EncodeSessionEnd() ([][]byte, error) {
	return nil, nil
}

// DecodeFrame classifies one server event.
func (a *Adapter) DecodeFrame(data []byte) (*s2s.Frame, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("openairt: decode event: %w", err)
	}
	frame := &s2s.Frame{Raw: data}

	switch ev.Type {
	case EventSessionCreated:
		frame.Type = s2s.FrameSessionBegin

	case EventResponseCreated:
		frame.Type = s2s.FrameTurnStart

	case EventResponseAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return nil, fmt.Errorf("openairt: decode audio delta: %w", err)
		}
		frame.Type = s2s.FrameAudio
		frame.Audio = audio
		frame.Role = "assistant"

	case EventResponseAudioTranscriptDelta, EventResponseTextDelta:
		frame.Type = s2s.FrameText
		frame.Text = ev.Delta
		frame.Role = "assistant"

	case EventInputAudioTranscriptionCompleted:
		frame.Type = s2s.FrameText
		frame.Text = ev.Transcript
		frame.Role = "user"

	case EventResponseContentPartAdded:
		frame.Type = s2s.FrameContentStart

	case EventResponseContentPartDone:
		frame.Type = s2s.FrameContentEnd

	case EventResponseFunctionCallArgumentsDone:
		frame.Type = s2s.FrameToolUse
		frame.ToolCall = &s2s.ToolRequest{
			ToolUseID: ev.CallID,
			Name:      ev.Name,
			Args:      json.RawMessage(ev.Arguments),
		}

	case EventResponseDone:
		frame.Type = s2s.FrameTurnEnd
		if ev.Response != nil {
			frame.StopReason = ev.Response.Status
		}

	case EventError:
		frame.Type = s2s.FrameError
		if ev.Error != nil {
			frame.Text = ev.Error.Message
		}
	}
	return frame, nil
}
