// Package openairt speaks the OpenAI Realtime API event protocol: flat JSON
// objects discriminated by a "type" field. It provides the wire types and an
// s2s.Adapter that translates between them and the session core.
package openairt

import "encoding/json"

// Client event types.
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioBufferAppend = "input_audio_buffer.append"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
)

// Server event types.
const (
	EventError                             = "error"
	EventSessionCreated                    = "session.created"
	EventSessionUpdated                    = "session.updated"
	EventInputAudioTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	EventResponseCreated                   = "response.created"
	EventResponseDone                      = "response.done"
	EventResponseContentPartAdded          = "response.content_part.added"
	EventResponseContentPartDone           = "response.content_part.done"
	EventResponseTextDelta                 = "response.text.delta"
	EventResponseAudioDelta                = "response.audio.delta"
	EventResponseAudioTranscriptDelta      = "response.audio_transcript.delta"
	EventResponseFunctionCallArgumentsDone = "response.function_call_arguments.done"
)

// Voice options.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// DefaultVoice is used when the session config does not select one.
const DefaultVoice = VoiceAlloy

// AudioFormatPCM16 is 16-bit little-endian mono PCM at 24kHz.
const AudioFormatPCM16 = "pcm16"

// Tool declares one function tool in a session update.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitzero"`
	Parameters  map[string]any `json:"parameters,omitzero"`
}

// SessionBody carries the session parameters of a session.update.
type SessionBody struct {
	Modalities              []string `json:"modalities,omitzero"`
	Instructions            string   `json:"instructions,omitzero"`
	Voice                   string   `json:"voice,omitzero"`
	InputAudioFormat        string   `json:"input_audio_format,omitzero"`
	OutputAudioFormat       string   `json:"output_audio_format,omitzero"`
	Tools                   []Tool   `json:"tools,omitzero"`
	ToolChoice              any      `json:"tool_choice,omitzero"`
	Temperature             *float64 `json:"temperature,omitzero"`
	MaxResponseOutputTokens *int     `json:"max_response_output_tokens,omitzero"`
}

// ContentPart is one part of a conversation item's content.
type ContentPart struct {
	Type       string `json:"type,omitzero"`
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// ConversationItem is a message, function call, or function call output.
type ConversationItem struct {
	ID        string        `json:"id,omitzero"`
	Type      string        `json:"type,omitzero"`
	Role      string        `json:"role,omitzero"`
	Content   []ContentPart `json:"content,omitzero"`
	CallID    string        `json:"call_id,omitzero"`
	Name      string        `json:"name,omitzero"`
	Arguments string        `json:"arguments,omitzero"`
	Output    string        `json:"output,omitzero"`
}

// ClientEvent is one event bound for the server.
type ClientEvent struct {
	Type    string            `json:"type"`
	EventID string            `json:"event_id,omitzero"`
	Session *SessionBody      `json:"session,omitzero"`
	Item    *ConversationItem `json:"item,omitzero"`

	// Audio is the base64 payload of an input_audio_buffer.append.
	Audio string `json:"audio,omitzero"`
}

// APIError is the payload of an error event.
type APIError struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
}

// ResponseBody is the response resource on response.* lifecycle events.
type ResponseBody struct {
	ID     string          `json:"id,omitzero"`
	Status string          `json:"status,omitzero"`
	Usage  json.RawMessage `json:"usage,omitzero"`
}

// ServerEvent is one event received from the server. Which fields are
// populated depends on Type.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	Error    *APIError         `json:"error,omitzero"`
	Item     *ConversationItem `json:"item,omitzero"`
	Response *ResponseBody     `json:"response,omitzero"`
	Part     *ContentPart      `json:"part,omitzero"`

	// Delta carries incremental text, transcript, or base64 audio.
	Delta      string `json:"delta,omitzero"`
	Transcript string `json:"transcript,omitzero"`

	ItemID    string `json:"item_id,omitzero"`
	CallID    string `json:"call_id,omitzero"`
	Name      string `json:"name,omitzero"`
	Arguments string `json:"arguments,omitzero"`
}
