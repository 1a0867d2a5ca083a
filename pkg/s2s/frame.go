package s2s

import "encoding/json"

// FrameType classifies a decoded model-stream frame. Adapters map their
// vendor's event vocabulary onto these types; events with no mapping are
// passed through as FrameUnknown with the raw payload intact.
type FrameType string

const (
	FrameUnknown      FrameType = ""
	FrameSessionBegin FrameType = "session_begin"
	FrameTurnStart    FrameType = "turn_start"
	FrameContentStart FrameType = "content_start"
	FrameText         FrameType = "text"
	FrameAudio        FrameType = "audio"
	FrameToolUse      FrameType = "tool_use"
	FrameToolResult   FrameType = "tool_result"
	FrameContentEnd   FrameType = "content_end"
	FrameTurnEnd      FrameType = "turn_end"
	FrameSessionEnd   FrameType = "session_end"
	FrameUsage        FrameType = "usage"
	FrameError        FrameType = "error"
)

// Frame is one unit on the session's output stream: a decoded model-stream
// event, a mirrored outbound tool frame, or a raw passthrough for events the
// adapter did not recognize.
type Frame struct {
	// Type is the adapter's classification of this frame.
	Type FrameType

	// Raw is the vendor event payload as received or sent.
	Raw json.RawMessage

	// Audio holds the decoded audio payload for FrameAudio frames.
	Audio []byte

	// Text holds the text payload for FrameText and FrameError frames.
	Text string

	// Role identifies the speaker for content frames, when the vendor
	// reports one.
	Role string

	// StopReason is set on FrameContentEnd frames that carry one.
	StopReason string

	// ToolCall is set when this frame completes a tool-use boundary. The
	// session announces it on the tool-call gate.
	ToolCall *ToolRequest

	// ReceivedAt is the receipt timestamp in Unix milliseconds, stamped by
	// the session when the frame enters the output stream.
	ReceivedAt int64
}

// ToolRequest describes one model-issued tool invocation.
type ToolRequest struct {
	// ToolUseID correlates the invocation with its result.
	ToolUseID string

	// Name is the tool name as issued by the model.
	Name string

	// PromptID carries the prompt correlation id the invocation belongs to.
	PromptID string

	// Args is the raw argument payload. May be empty for argument-less
	// tools.
	Args json.RawMessage
}

// ToolResult is the outcome of one dispatched tool execution. Payload is
// always populated; when the execution failed, it carries the error payload
// sent back to the model and Err records the cause.
type ToolResult struct {
	ToolUseID string
	Name      string
	PromptID  string
	Payload   json.RawMessage
	Err       error
}

// AudioChunk is one client audio segment bound for the model.
type AudioChunk struct {
	PromptID  string
	ContentID string
	Data      []byte
}

// SessionConfig carries the vendor-neutral knobs adapters consume when
// opening a session. Zero fields fall back to adapter defaults.
type SessionConfig struct {
	// PromptID is the prompt correlation id. Generated when empty.
	PromptID string

	// Voice selects the vendor voice.
	Voice string

	// System is the system prompt text.
	System string

	MaxTokens   int
	Temperature float64
	TopP        float64

	// InputSampleRate and OutputSampleRate are in hertz. Defaults are
	// 16000 in, 24000 out.
	InputSampleRate  int
	OutputSampleRate int
}

// inputEvent is one entry on the session input queue: either an audio chunk
// to encode, a pre-encoded raw vendor event, or a text message.
type inputEvent struct {
	audio *AudioChunk
	raw   []byte
	text  string
}
