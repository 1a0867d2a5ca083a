package novasonic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haivivi/voicebridge/pkg/s2s"
	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// Adapter translates between the session core and the Nova Sonic event
// protocol. It keeps per-session state: the prompt name, the open audio
// content block, and the pending tool use between its announcement and the
// TOOL content end that completes it. An Adapter belongs to one session and
// is driven from its consumption loop only.
type Adapter struct {
	promptID     string
	voice        string
	audioContent string

	pending *s2s.ToolRequest
}

// NewAdapter creates an Adapter. Session parameters arrive with
// EncodeSessionStart.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func marshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(&Envelope{Event: ev})
}

// EncodeSessionStart produces the opening sequence: sessionStart,
// promptStart with the audio output and tool configuration, the system
// prompt as a SYSTEM text block when configured, and the contentStart that
// opens the long-lived client audio block.
func (a *Adapter) EncodeSessionStart(cfg *s2s.SessionConfig, tools []tool.Declaration) ([][]byte, error) {
	a.promptID = cfg.PromptID
	a.voice = cfg.Voice
	if a.voice == "" {
		a.voice = DefaultVoice
	}
	a.audioContent = uuid.New().String()

	var frames [][]byte
	add := func(ev Event) error {
		data, err := marshalEvent(ev)
		if err != nil {
			return err
		}
		frames = append(frames, data)
		return nil
	}

	if err := add(Event{SessionStart: &SessionStart{
		InferenceConfiguration: InferenceConfig{
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
			Temperature: cfg.Temperature,
		},
	}}); err != nil {
		return nil, err
	}

	promptStart := &PromptStart{
		PromptName:              a.promptID,
		TextOutputConfiguration: TextConfig{MediaType: MediaTypeText},
		AudioOutputConfiguration: AudioOutputConfig{
			MediaType:       MediaTypeAudio,
			SampleRateHertz: cfg.OutputSampleRate,
			SampleSizeBits:  16,
			ChannelCount:    1,
			VoiceID:         a.voice,
			Encoding:        "base64",
			AudioType:       "SPEECH",
		},
	}
	if len(tools) > 0 {
		tc := &ToolConfig{ToolChoice: map[string]any{"auto": map[string]any{}}}
		for _, t := range tools {
			schema, err := marshalSchema(t)
			if err != nil {
				return nil, err
			}
			tc.Tools = append(tc.Tools, ToolEntry{ToolSpec: ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: ToolInputSchema{JSON: schema},
			}})
		}
		promptStart.ToolConfiguration = tc
	}
	if err := add(Event{PromptStart: promptStart}); err != nil {
		return nil, err
	}

	if cfg.System != "" {
		sysContent := uuid.New().String()
		if err := add(Event{ContentStart: &ContentStart{
			PromptName:             a.promptID,
			ContentName:            sysContent,
			Type:                   ContentTypeText,
			Interactive:            true,
			Role:                   RoleSystem,
			TextInputConfiguration: &TextConfig{MediaType: MediaTypeText},
		}}); err != nil {
			return nil, err
		}
		if err := add(Event{TextInput: &TextInput{
			PromptName:  a.promptID,
			ContentName: sysContent,
			Content:     cfg.System,
		}}); err != nil {
			return nil, err
		}
		if err := add(Event{ContentEnd: &ContentEnd{
			PromptName:  a.promptID,
			ContentName: sysContent,
		}}); err != nil {
			return nil, err
		}
	}

	if err := add(Event{ContentStart: &ContentStart{
		PromptName:  a.promptID,
		ContentName: a.audioContent,
		Type:        ContentTypeAudio,
		Interactive: true,
		Role:        RoleUser,
		AudioInputConfiguration: &AudioInputConfig{
			MediaType:       MediaTypeAudio,
			SampleRateHertz: cfg.InputSampleRate,
			SampleSizeBits:  16,
			ChannelCount:    1,
			AudioType:       "SPEECH",
			Encoding:        "base64",
		},
	}}); err != nil {
		return nil, err
	}
	return frames, nil
}

func marshalSchema(t tool.Declaration) (string, error) {
	if t.Schema == nil {
		return `{"type":"object"}`, nil
	}
	data, err := json.Marshal(t.Schema)
	if err != nil {
		return "", fmt.Errorf("novasonic: schema for tool %q: %w", t.Name, err)
	}
	return string(data), nil
}

// EncodeAudioFrame produces the audioInput event for one chunk, bound to
// the open audio block unless the chunk names its own.
func (a *Adapter) EncodeAudioFrame(chunk *s2s.AudioChunk) ([]byte, error) {
	prompt := chunk.PromptID
	if prompt == "" {
		prompt = a.promptID
	}
	content := chunk.ContentID
	if content == "" {
		content = a.audioContent
	}
	return marshalEvent(Event{AudioInput: &AudioInput{
		PromptName:  prompt,
		ContentName: content,
		Content:     base64.StdEncoding.EncodeToString(chunk.Data),
	}})
}

// EncodeText produces a USER text block: contentStart, textInput,
// contentEnd.
func (a *Adapter) EncodeText(text string) ([][]byte, error) {
	content := uuid.New().String()
	start, err := marshalEvent(Event{ContentStart: &ContentStart{
		PromptName:             a.promptID,
		ContentName:            content,
		Type:                   ContentTypeText,
		Interactive:            true,
		Role:                   RoleUser,
		TextInputConfiguration: &TextConfig{MediaType: MediaTypeText},
	}})
	if err != nil {
		return nil, err
	}
	body, err := marshalEvent(Event{TextInput: &TextInput{
		PromptName:  a.promptID,
		ContentName: content,
		Content:     text,
	}})
	if err != nil {
		return nil, err
	}
	end, err := marshalEvent(Event{ContentEnd: &ContentEnd{
		PromptName:  a.promptID,
		ContentName: content,
	}})
	if err != nil {
		return nil, err
	}
	return [][]byte{start, body, end}, nil
}

// EncodeToolResult produces the TOOL block answering one tool use:
// contentStart binding the block to the toolUseId, the result payload, and
// contentEnd.
func (a *Adapter) EncodeToolResult(res *s2s.ToolResult) ([][]byte, error) {
	prompt := res.PromptID
	if prompt == "" {
		prompt = a.promptID
	}
	content := uuid.New().String()

	start, err := marshalEvent(Event{ContentStart: &ContentStart{
		PromptName:  prompt,
		ContentName: content,
		Type:        ContentTypeTool,
		Interactive: false,
		Role:        RoleTool,
		ToolResultInputConfiguration: &ToolResultInputConfig{
			ToolUseID:              res.ToolUseID,
			Type:                   ContentTypeText,
			TextInputConfiguration: TextConfig{MediaType: MediaTypeText},
		},
	}})
	if err != nil {
		return nil, err
	}
	body, err := marshalEvent(Event{ToolResult: &ToolResultInput{
		PromptName:  prompt,
		ContentName: content,
		ToolUseID:   res.ToolUseID,
		Content:     string(res.Payload),
	}})
	if err != nil {
		return nil, err
	}
	end, err := marshalEvent(Event{ContentEnd: &ContentEnd{
		PromptName:  prompt,
		ContentName: content,
	}})
	if err != nil {
		return nil, err
	}
	return [][]byte{start, body, end}, nil
}

// EncodeSessionEnd closes the open audio block, the prompt, and the
// session.
func (a *Adapter) EncodeSessionEnd() ([][]byte, error) {
	var frames [][]byte
	if a.audioContent != "" {
		data, err := marshalEvent(Event{ContentEnd: &ContentEnd{
			PromptName:  a.promptID,
			ContentName: a.audioContent,
		}})
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	promptEnd, err := marshalEvent(Event{PromptEnd: &PromptEnd{PromptName: a.promptID}})
	if err != nil {
		return nil, err
	}
	sessionEnd, err := marshalEvent(Event{SessionEnd: &SessionEnd{}})
	if err != nil {
		return nil, err
	}
	return append(frames, promptEnd, sessionEnd), nil
}

// DecodeFrame classifies one model payload. A toolUse event is held as
// pending until the TOOL contentEnd that marks the boundary; that frame
// carries the completed ToolRequest for the session to announce.
func (a *Adapter) DecodeFrame(data []byte) (*s2s.Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("novasonic: decode event: %w", err)
	}
	frame := &s2s.Frame{Raw: data}

	switch ev := &env.Event; {
	case ev.AudioOutput != nil:
		audio, err := base64.StdEncoding.DecodeString(ev.AudioOutput.Content)
		if err != nil {
			return nil, fmt.Errorf("novasonic: decode audio content: %w", err)
		}
		frame.Type = s2s.FrameAudio
		frame.Audio = audio
		frame.Role = RoleAssistant

	case ev.TextOutput != nil:
		frame.Type = s2s.FrameText
		frame.Text = ev.TextOutput.Content
		frame.Role = ev.TextOutput.Role

	case ev.ToolUse != nil:
		prompt := ev.ToolUse.PromptName
		if prompt == "" {
			prompt = a.promptID
		}
		a.pending = &s2s.ToolRequest{
			ToolUseID: ev.ToolUse.ToolUseID,
			Name:      ev.ToolUse.ToolName,
			PromptID:  prompt,
			Args:      json.RawMessage(ev.ToolUse.Content),
		}
		frame.Type = s2s.FrameToolUse

	case ev.ContentStart != nil:
		frame.Type = s2s.FrameContentStart
		frame.Role = ev.ContentStart.Role

	case ev.ContentEnd != nil:
		frame.Type = s2s.FrameContentEnd
		frame.StopReason = ev.ContentEnd.StopReason
		if ev.ContentEnd.Type == ContentTypeTool && a.pending != nil {
			frame.ToolCall = a.pending
			a.pending = nil
		}

	case ev.CompletionStart != nil:
		frame.Type = s2s.FrameTurnStart

	case ev.CompletionEnd != nil:
		frame.Type = s2s.FrameTurnEnd
		frame.StopReason = ev.CompletionEnd.StopReason

	case ev.UsageEvent != nil:
		frame.Type = s2s.FrameUsage
	}
	return frame, nil
}
