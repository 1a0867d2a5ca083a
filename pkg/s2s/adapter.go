package s2s

import "github.com/haivivi/voicebridge/pkg/s2s/tool"

// Adapter translates between the session core and one vendor's wire
// vocabulary. The core never inspects vendor payloads itself: it sends what
// the adapter encodes and routes what the adapter decodes.
//
// Encode methods that return multiple payloads produce the vendor's framing
// sequence for that operation (for example content-start / content-body /
// content-end); the session sends them in order. An adapter instance belongs
// to a single session and may keep per-session state, such as a pending
// tool-use record between its announcement and its completion boundary.
type Adapter interface {
	// EncodeSessionStart produces the opening frame sequence, advertising
	// the registered tools to the model.
	EncodeSessionStart(cfg *SessionConfig, tools []tool.Declaration) ([][]byte, error)

	// EncodeAudioFrame produces the frame carrying one client audio chunk.
	EncodeAudioFrame(chunk *AudioChunk) ([]byte, error)

	// EncodeText produces the frame sequence for one client text message.
	EncodeText(text string) ([][]byte, error)

	// EncodeToolResult produces the frame sequence returning one tool
	// result to the model.
	EncodeToolResult(res *ToolResult) ([][]byte, error)

	// EncodeSessionEnd produces the closing frame sequence. May return an
	// empty sequence for vendors that end sessions by closing the stream.
	EncodeSessionEnd() ([][]byte, error)

	// DecodeFrame classifies one model-stream payload. Unrecognized but
	// well-formed events decode to FrameUnknown with Raw populated;
	// malformed payloads return an error and are dropped by the session.
	DecodeFrame(data []byte) (*Frame, error)
}
