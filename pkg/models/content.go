package models

import "encoding/json"

// ContentBlockKind tags the variant held by a ContentBlock.
type ContentBlockKind string

const (
	ContentBlockText       ContentBlockKind = "text"
	ContentBlockToolUse    ContentBlockKind = "tool_use"
	ContentBlockToolResult ContentBlockKind = "tool_result"
	ContentBlockImage      ContentBlockKind = "image"
	ContentBlockThinking   ContentBlockKind = "thinking"
)

// ContentBlock is the atomic unit exchanged with model providers: a tagged
// union over text, a tool invocation, a tool result, an image, or a
// thinking trace. Only the field matching Kind is populated.
type ContentBlock struct {
	Kind ContentBlockKind `json:"kind"`

	Text string `json:"text,omitempty"`

	// ToolUse fields.
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`

	// ToolResult fields.
	ToolCallID    string `json:"tool_call_id,omitempty"`
	ResultContent string `json:"result_content,omitempty"`
	IsError       bool   `json:"is_error,omitempty"`

	// Image fields.
	ImageSource string `json:"image_source,omitempty"`

	// Thinking fields.
	Thinking string `json:"thinking,omitempty"`
}

// TextBlock builds a ContentBlockText block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentBlockText, Text: text}
}

// ToolUseBlock builds a ContentBlockToolUse block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Kind: ContentBlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock builds a ContentBlockToolResult block.
func ToolResultBlock(toolCallID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: ContentBlockToolResult, ToolCallID: toolCallID, ResultContent: content, IsError: isError}
}

// MessageContentKind tags the variant held by a MessageContent.
type MessageContentKind string

const (
	MessageContentText      MessageContentKind = "text"
	MessageContentBlocks    MessageContentKind = "blocks"
	MessageContentToolCalls MessageContentKind = "tool_calls"
)

// MessageContent is a tagged union over a plain string, a list of content
// blocks, or a list of tool calls — the three shapes a Message's body can
// take depending on which layer produced it.
type MessageContent struct {
	Kind      MessageContentKind `json:"kind"`
	Text      string             `json:"text,omitempty"`
	Blocks    []ContentBlock     `json:"blocks,omitempty"`
	ToolCalls []ToolCall         `json:"tool_calls,omitempty"`
}

// ToolContent is one piece of a ToolOutput.
type ToolContent struct {
	Kind ContentBlockKind `json:"kind"`
	Text string           `json:"text,omitempty"`
}

// ToolOutput is the result of a tool execution: a list of ToolContent
// pieces, with AsText() as the primary accessor for the concatenated
// textual payload.
type ToolOutput struct {
	Content []ToolContent `json:"content"`
}

// AsText concatenates every text-kind content piece.
func (o ToolOutput) AsText() string {
	var out string
	for _, c := range o.Content {
		out += c.Text
	}
	return out
}

// TextOutput builds a single-block text ToolOutput.
func TextOutput(text string) ToolOutput {
	return ToolOutput{Content: []ToolContent{{Kind: ContentBlockText, Text: text}}}
}

// ToolSpec is advertised to model providers verbatim: the tool's name,
// description, and JSON-schema input shape.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ModelResponse is a single-turn completion from a Model Client.
type ModelResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      TokenUsage     `json:"usage"`
}
