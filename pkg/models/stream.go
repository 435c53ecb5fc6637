package models

// StreamChunkKind tags the variant held by a StreamChunk.
type StreamChunkKind string

const (
	StreamChunkMessageStart      StreamChunkKind = "message_start"
	StreamChunkContentBlockStart StreamChunkKind = "content_block_start"
	StreamChunkContentBlockDelta StreamChunkKind = "content_block_delta"
	StreamChunkContentBlockStop  StreamChunkKind = "content_block_stop"
	StreamChunkMessageDelta      StreamChunkKind = "message_delta"
	StreamChunkMessageStop       StreamChunkKind = "message_stop"
	StreamChunkPing              StreamChunkKind = "ping"
	StreamChunkError             StreamChunkKind = "error"
)

// StreamDeltaKind distinguishes the payload of a ContentBlockDelta chunk.
type StreamDeltaKind string

const (
	StreamDeltaText      StreamDeltaKind = "text"
	StreamDeltaThinking  StreamDeltaKind = "thinking"
	StreamDeltaInputJSON StreamDeltaKind = "input_json"
)

// StreamChunk is one incremental unit of a streaming model response: a
// tagged union over the Anthropic-style event set. Content-block indices
// are stable across Start/Delta/Stop for a given block.
type StreamChunk struct {
	Kind StreamChunkKind `json:"kind"`

	// ContentBlockStart/Delta/Stop fields.
	BlockIndex int              `json:"block_index,omitempty"`
	BlockKind  ContentBlockKind `json:"block_kind,omitempty"`
	DeltaKind  StreamDeltaKind  `json:"delta_kind,omitempty"`
	Text       string           `json:"text,omitempty"`
	PartialJSON string          `json:"partial_json,omitempty"`

	// ContentBlockStart fields for a ContentBlockToolUse block: the tool's
	// name and call id are known up front, before any input_json deltas
	// arrive.
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`

	// MessageDelta fields.
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage,omitempty"`

	// Error field.
	Error string `json:"error,omitempty"`
}
