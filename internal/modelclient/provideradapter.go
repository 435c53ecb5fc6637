package modelclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgecraft-labs/agentcore/internal/agent"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// ProviderAdapter wraps one of the teacher-derived agent.LLMProvider
// implementations (AnthropicProvider, OpenAIProvider) behind the spec's
// Model Client contract, so the Agent Loop depends only on Client and
// never on a provider SDK directly.
type ProviderAdapter struct {
	provider agent.LLMProvider
	model    string
	maxTokens int
}

// NewProviderAdapter builds an adapter around provider, defaulting every
// request to model and maxTokens unless the loop overrides them per call
// (not yet exposed — the contract takes only messages and tools).
func NewProviderAdapter(provider agent.LLMProvider, model string, maxTokens int) *ProviderAdapter {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ProviderAdapter{provider: provider, model: model, maxTokens: maxTokens}
}

func (a *ProviderAdapter) Name() string { return a.provider.Name() }

func (a *ProviderAdapter) buildRequest(messages []models.Message, tools []models.ToolSpec) *agent.CompletionRequest {
	return &agent.CompletionRequest{
		Model:     a.model,
		Messages:  toCompletionMessages(messages),
		Tools:     toProviderTools(tools),
		MaxTokens: a.maxTokens,
	}
}

// Chat blocks until the provider's stream completes, folding every chunk
// into a single ModelResponse.
func (a *ProviderAdapter) Chat(ctx context.Context, messages []models.Message, tools []models.ToolSpec) (models.ModelResponse, error) {
	chunks, err := a.provider.Complete(ctx, a.buildRequest(messages, tools))
	if err != nil {
		return models.ModelResponse{}, a.wrapErr(err)
	}

	var text string
	var usage models.TokenUsage
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return models.ModelResponse{}, a.wrapErr(chunk.Error)
		}
		text += chunk.Text
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage = models.TokenUsage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
		}
	}

	content := make([]models.ContentBlock, 0, len(toolCalls)+1)
	if text != "" {
		content = append(content, models.TextBlock(text))
	}
	for _, tc := range toolCalls {
		content = append(content, models.ToolUseBlock(tc.ID, tc.Name, tc.Input))
	}
	stopReason := "end_turn"
	if len(toolCalls) > 0 {
		stopReason = "tool_use"
	}
	return models.ModelResponse{Model: a.model, Content: content, StopReason: stopReason, Usage: usage}, nil
}

// ChatStream translates the provider's CompletionChunk stream into
// StreamChunks, synthesizing ContentBlockStart/Delta/Stop boundaries since
// the teacher's provider chunk shape doesn't carry block indices itself.
func (a *ProviderAdapter) ChatStream(ctx context.Context, messages []models.Message, tools []models.ToolSpec) (<-chan models.StreamChunk, error) {
	chunks, err := a.provider.Complete(ctx, a.buildRequest(messages, tools))
	if err != nil {
		return nil, a.wrapErr(err)
	}

	out := make(chan models.StreamChunk, 16)
	go func() {
		defer close(out)
		out <- models.StreamChunk{Kind: models.StreamChunkMessageStart}

		textOpen := false
		blockIndex := 0
		for chunk := range chunks {
			if chunk.Error != nil {
				out <- models.StreamChunk{Kind: models.StreamChunkError, Error: chunk.Error.Error()}
				return
			}
			if chunk.Text != "" {
				if !textOpen {
					out <- models.StreamChunk{Kind: models.StreamChunkContentBlockStart, BlockIndex: blockIndex, BlockKind: models.ContentBlockText}
					textOpen = true
				}
				out <- models.StreamChunk{Kind: models.StreamChunkContentBlockDelta, BlockIndex: blockIndex, DeltaKind: models.StreamDeltaText, Text: chunk.Text}
			}
			if chunk.ToolCall != nil {
				if textOpen {
					out <- models.StreamChunk{Kind: models.StreamChunkContentBlockStop, BlockIndex: blockIndex}
					textOpen = false
					blockIndex++
				}
				out <- models.StreamChunk{Kind: models.StreamChunkContentBlockStart, BlockIndex: blockIndex, BlockKind: models.ContentBlockToolUse, ToolUseID: chunk.ToolCall.ID, ToolName: chunk.ToolCall.Name}
				out <- models.StreamChunk{Kind: models.StreamChunkContentBlockDelta, BlockIndex: blockIndex, DeltaKind: models.StreamDeltaInputJSON, PartialJSON: string(chunk.ToolCall.Input)}
				out <- models.StreamChunk{Kind: models.StreamChunkContentBlockStop, BlockIndex: blockIndex}
				blockIndex++
			}
			if chunk.Done {
				if textOpen {
					out <- models.StreamChunk{Kind: models.StreamChunkContentBlockStop, BlockIndex: blockIndex}
				}
				out <- models.StreamChunk{
					Kind:       models.StreamChunkMessageDelta,
					StopReason: "end_turn",
					Usage:      models.TokenUsage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens},
				}
				out <- models.StreamChunk{Kind: models.StreamChunkMessageStop}
				return
			}
		}
	}()
	return out, nil
}

func (a *ProviderAdapter) wrapErr(err error) error {
	return &Failure{Kind: FailureUnavailable, Provider: a.provider.Name(), Message: err.Error(), Cause: err}
}

func toCompletionMessages(messages []models.Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, agent.CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
			Attachments: m.Attachments,
		})
	}
	return out
}

func toProviderTools(tools []models.ToolSpec) []agent.Tool {
	// agent.Tool is an interface; the adapter only needs its JSON-schema
	// metadata for dispatch, so wrap each ToolSpec in a thin shim rather
	// than requiring a live agent.Tool implementation to be passed in.
	out := make([]agent.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, specTool{spec: t})
	}
	return out
}

// specTool adapts a models.ToolSpec to agent.Tool for schema-advertisement
// purposes only; Execute is never called on it (the orchestrator
// dispatches through internal/orchestrator.Tool instead).
type specTool struct {
	spec models.ToolSpec
}

func (t specTool) Name() string            { return t.spec.Name }
func (t specTool) Description() string     { return t.spec.Description }
func (t specTool) Schema() json.RawMessage { return t.spec.InputSchema }
func (t specTool) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("modelclient: specTool is schema-only and does not execute")
}
