// Package novasonic speaks the Amazon Nova Sonic bidirectional event
// protocol: JSON envelopes of the form {"event":{"<name>":{...}}}, exactly
// one event per envelope. It provides the wire types and an s2s.Adapter
// that translates between them and the session core.
package novasonic

import "encoding/json"

// Media types.
const (
	MediaTypeAudio = "audio/lpcm"
	MediaTypeText  = "text/plain"
)

// Roles.
const (
	RoleUser      = "USER"
	RoleSystem    = "SYSTEM"
	RoleAssistant = "ASSISTANT"
	RoleTool      = "TOOL"
)

// Content block types.
const (
	ContentTypeText  = "TEXT"
	ContentTypeAudio = "AUDIO"
	ContentTypeTool  = "TOOL"
)

// DefaultVoice is used when the session config does not select one.
const DefaultVoice = "matthew"

// Envelope is the outer wire object.
type Envelope struct {
	Event Event `json:"event"`
}

// Event holds exactly one of the protocol's event payloads. Which pointer is
// non-nil identifies the event; Name returns its wire key.
type Event struct {
	// Client to model.
	SessionStart *SessionStart    `json:"sessionStart,omitempty"`
	PromptStart  *PromptStart     `json:"promptStart,omitempty"`
	ContentStart *ContentStart    `json:"contentStart,omitempty"`
	TextInput    *TextInput       `json:"textInput,omitempty"`
	AudioInput   *AudioInput      `json:"audioInput,omitempty"`
	ToolResult   *ToolResultInput `json:"toolResult,omitempty"`
	ContentEnd   *ContentEnd      `json:"contentEnd,omitempty"`
	PromptEnd    *PromptEnd       `json:"promptEnd,omitempty"`
	SessionEnd   *SessionEnd      `json:"sessionEnd,omitempty"`

	// Model to client.
	CompletionStart *CompletionStart `json:"completionStart,omitempty"`
	TextOutput      *TextOutput      `json:"textOutput,omitempty"`
	AudioOutput     *AudioOutput     `json:"audioOutput,omitempty"`
	ToolUse         *ToolUse         `json:"toolUse,omitempty"`
	CompletionEnd   *CompletionEnd   `json:"completionEnd,omitempty"`
	UsageEvent      *Usage           `json:"usageEvent,omitempty"`
}

// Name returns the wire key of the event carried by e, or "" when e carries
// none it knows about.
func (e *Event) Name() string {
	switch {
	case e.SessionStart != nil:
		return "sessionStart"
	case e.PromptStart != nil:
		return "promptStart"
	case e.ContentStart != nil:
		return "contentStart"
	case e.TextInput != nil:
		return "textInput"
	case e.AudioInput != nil:
		return "audioInput"
	case e.ToolResult != nil:
		return "toolResult"
	case e.ContentEnd != nil:
		return "contentEnd"
	case e.PromptEnd != nil:
		return "promptEnd"
	case e.SessionEnd != nil:
		return "sessionEnd"
	case e.CompletionStart != nil:
		return "completionStart"
	case e.TextOutput != nil:
		return "textOutput"
	case e.AudioOutput != nil:
		return "audioOutput"
	case e.ToolUse != nil:
		return "toolUse"
	case e.CompletionEnd != nil:
		return "completionEnd"
	case e.UsageEvent != nil:
		return "usageEvent"
	}
	return ""
}

// InferenceConfig tunes generation for the session.
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// SessionStart opens the stream.
type SessionStart struct {
	InferenceConfiguration InferenceConfig `json:"inferenceConfiguration"`
}

// TextConfig declares a text media type.
type TextConfig struct {
	MediaType string `json:"mediaType"`
}

// AudioOutputConfig declares the model's audio output format.
type AudioOutputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

// AudioInputConfig declares the client's audio input format.
type AudioInputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
}

// ToolSpec advertises one tool. InputSchema.JSON is the argument schema as a
// JSON-encoded string, not a nested object.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

type ToolInputSchema struct {
	JSON string `json:"json"`
}

// ToolEntry wraps a ToolSpec in the list element shape the protocol wants.
type ToolEntry struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

// ToolConfig carries the advertised tools.
type ToolConfig struct {
	Tools      []ToolEntry    `json:"tools"`
	ToolChoice map[string]any `json:"toolChoice,omitempty"`
}

// PromptStart opens a prompt within the session.
type PromptStart struct {
	PromptName               string            `json:"promptName"`
	TextOutputConfiguration  TextConfig        `json:"textOutputConfiguration"`
	AudioOutputConfiguration AudioOutputConfig `json:"audioOutputConfiguration"`
	ToolConfiguration        *ToolConfig       `json:"toolConfiguration,omitempty"`
}

// ToolResultInputConfig binds a TOOL content block to the tool use it
// answers.
type ToolResultInputConfig struct {
	ToolUseID              string     `json:"toolUseId"`
	Type                   string     `json:"type"`
	TextInputConfiguration TextConfig `json:"textInputConfiguration"`
}

// ContentStart opens a content block. Exactly one of the input
// configurations is set, matching Type.
type ContentStart struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type"`
	Interactive bool   `json:"interactive"`
	Role        string `json:"role,omitempty"`

	TextInputConfiguration       *TextConfig            `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *AudioInputConfig      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *ToolResultInputConfig `json:"toolResultInputConfiguration,omitempty"`
}

// TextInput carries one text payload within an open TEXT block.
type TextInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// AudioInput carries one base64 audio chunk within the open AUDIO block.
type AudioInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ToolResultInput returns a tool result within an open TOOL block. Content
// is the result as a JSON-encoded string.
type ToolResultInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	ToolUseID   string `json:"toolUseId,omitempty"`
	Content     string `json:"content"`
}

// ContentEnd closes a content block. Type and StopReason appear on
// model-emitted ends.
type ContentEnd struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type,omitempty"`
	StopReason  string `json:"stopReason,omitempty"`
}

// PromptEnd closes a prompt.
type PromptEnd struct {
	PromptName string `json:"promptName"`
}

// SessionEnd closes the stream. It has no fields; the wire shape is {}.
type SessionEnd struct{}

// CompletionStart marks the beginning of a model response turn.
type CompletionStart struct {
	PromptName   string `json:"promptName,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
}

// TextOutput carries model text, typically a transcript fragment.
type TextOutput struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	Content     string `json:"content"`
	Role        string `json:"role,omitempty"`
}

// AudioOutput carries one base64 chunk of model speech.
type AudioOutput struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	Content     string `json:"content"`
}

// ToolUse announces a tool invocation. Content is the argument payload as a
// JSON-encoded string and may be empty for argument-less tools.
type ToolUse struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	ToolName    string `json:"toolName"`
	ToolUseID   string `json:"toolUseId"`
	Content     string `json:"content,omitempty"`
}

// CompletionEnd marks the end of a model response turn.
type CompletionEnd struct {
	PromptName   string `json:"promptName,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
	StopReason   string `json:"stopReason,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptName        string          `json:"promptName,omitempty"`
	CompletionID      string          `json:"completionId,omitempty"`
	TotalInputTokens  int             `json:"totalInputTokens"`
	TotalOutputTokens int             `json:"totalOutputTokens"`
	TotalTokens       int             `json:"totalTokens"`
	Details           json.RawMessage `json:"details,omitempty"`
}
