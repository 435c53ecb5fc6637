package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgecraft-labs/agentcore/internal/orchestrator"
	"github.com/forgecraft-labs/agentcore/internal/rpc"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// defaultMaxToolIterations bounds the Agent Loop when
// cfg.Tools.Execution.MaxIterations is unset, so a model that never stops
// requesting tools can't wedge a chat request open forever.
const defaultMaxToolIterations = 10

// handleChat runs the Agent Loop for one turn (spec §4.4): append the user
// message, then repeatedly stream the model's reply, dispatch any
// requested tools through the orchestrator, and feed their results back as
// the next turn's context, until the model stops requesting tools or the
// iteration cap is reached. Every message and tool result is persisted to
// the rollout log as it's produced.
func (s *server) handleChat(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.ChatParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, rpc.NewError(rpc.ErrInvalidParams, err.Error())
	}

	sessionID := s.currentSession()
	if sessionID == "" {
		return nil, rpc.NewError(rpc.ErrServer, "no active session; call session.create first")
	}

	requestID := uuid.NewString()
	chatCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelChat = cancel
	s.mu.Unlock()
	defer cancel()

	history, err := s.loadHistory(chatCtx, sessionID)
	if err != nil {
		return nil, rpc.NewError(rpc.ErrServer, "load session history: "+err.Error())
	}

	userMsg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   params.Message,
		CreatedAt: time.Now(),
	}
	if err := s.rec.AppendLine(chatCtx, sessionID, &models.RolloutLine{Kind: models.RolloutKindMessage, Message: &userMsg}); err != nil {
		return nil, rpc.NewError(rpc.ErrServer, "persist user message: "+err.Error())
	}
	history = append(history, userMsg)

	maxIter := s.cfg.Tools.Execution.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxToolIterations
	}

	var finalText string
	var totalUsage models.TokenUsage
	for iter := 0; iter < maxIter; iter++ {
		stream, err := s.client.ChatStream(chatCtx, history, s.toolSpecs)
		if err != nil {
			return nil, rpc.NewError(rpc.ErrServer, "model stream: "+err.Error())
		}

		assistantText, toolCalls, usage, streamErr := s.drainStream(requestID, stream)
		if streamErr != "" {
			return nil, rpc.NewError(rpc.ErrServer, streamErr)
		}
		totalUsage = totalUsage.Add(usage)
		finalText = assistantText

		assistantMsg := models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleAssistant,
			Content:   assistantText,
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		}
		if err := s.rec.AppendLine(chatCtx, sessionID, &models.RolloutLine{Kind: models.RolloutKindMessage, Message: &assistantMsg}); err != nil {
			return nil, rpc.NewError(rpc.ErrServer, "persist assistant message: "+err.Error())
		}
		history = append(history, assistantMsg)

		if len(toolCalls) == 0 {
			break
		}

		results := make([]models.ToolResult, 0, len(toolCalls))
		for _, call := range toolCalls {
			result := s.runTool(chatCtx, sessionID, call)
			results = append(results, result)
			_ = s.rec.AppendLine(chatCtx, sessionID, &models.RolloutLine{Kind: models.RolloutKindToolResult, ToolResult: &result})
			_ = s.rpc.Notify(rpc.EventParams{Type: rpc.EventChunk, ChatRequestID: requestID, Content: result.Content, Channel: "tool_result"})
		}

		toolMsg := models.Message{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			Role:        models.RoleTool,
			ToolResults: results,
			CreatedAt:   time.Now(),
		}
		if err := s.rec.AppendLine(chatCtx, sessionID, &models.RolloutLine{Kind: models.RolloutKindMessage, Message: &toolMsg}); err != nil {
			return nil, rpc.NewError(rpc.ErrServer, "persist tool result message: "+err.Error())
		}
		history = append(history, toolMsg)
	}

	_ = s.rec.AppendLine(chatCtx, sessionID, &models.RolloutLine{
		Kind: models.RolloutKindTurn,
		Turn: &models.TurnMarker{Usage: totalUsage, Timestamp: time.Now()},
	})

	usageJSON, _ := json.Marshal(totalUsage)
	_ = s.rpc.Notify(rpc.EventParams{Type: rpc.EventDone, ChatRequestID: requestID, Usage: json.RawMessage(usageJSON)})

	return map[string]any{"request_id": requestID, "content": finalText, "usage": totalUsage}, nil
}

// drainStream forwards StreamChunks as chat.event notifications and folds
// them into the assistant's final text, tool calls, and usage.
func (s *server) drainStream(requestID string, stream <-chan models.StreamChunk) (text string, calls []models.ToolCall, usage models.TokenUsage, errMsg string) {
	var pendingID, pendingToolName, pendingJSON string
	for chunk := range stream {
		switch chunk.Kind {
		case models.StreamChunkContentBlockStart:
			if chunk.BlockKind == models.ContentBlockToolUse {
				pendingID, pendingToolName, pendingJSON = chunk.ToolUseID, chunk.ToolName, ""
			}
		case models.StreamChunkContentBlockDelta:
			switch chunk.DeltaKind {
			case models.StreamDeltaText:
				text += chunk.Text
				_ = s.rpc.Notify(rpc.EventParams{Type: rpc.EventChunk, ChatRequestID: requestID, Content: chunk.Text, Channel: "text"})
			case models.StreamDeltaInputJSON:
				pendingJSON += chunk.PartialJSON
			}
		case models.StreamChunkContentBlockStop:
			if pendingToolName != "" {
				id := pendingID
				if id == "" {
					id = uuid.NewString()
				}
				calls = append(calls, models.ToolCall{ID: id, Name: pendingToolName, Input: json.RawMessage(pendingJSON)})
				pendingID, pendingToolName, pendingJSON = "", "", ""
			}
		case models.StreamChunkMessageDelta:
			usage = usage.Add(chunk.Usage)
		case models.StreamChunkError:
			errMsg = chunk.Error
		}
	}
	return text, calls, usage, errMsg
}

// runTool dispatches one assistant tool call through the orchestrator and
// converts the result into a models.ToolResult for the transcript.
func (s *server) runTool(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	result := s.orch.Dispatch(ctx, orchestrator.Invocation{
		ToolName:      call.Name,
		Input:         call.Input,
		SessionID:     sessionID,
		SandboxPolicy: s.defaultSandboxPolicy(),
	})
	if result.Err != nil {
		_ = s.rpc.Notify(rpc.EventParams{Type: rpc.EventToolCall, Tool: call.Name, Args: call.Input})
		return models.ToolResult{ToolCallID: call.ID, Content: result.Err.Message, IsError: true}
	}
	return models.ToolResult{ToolCallID: call.ID, Content: result.Output.AsText()}
}

func (s *server) defaultSandboxPolicy() orchestrator.SandboxPolicy {
	if !s.cfg.Tools.Sandbox.Enabled {
		return orchestrator.SandboxPolicy{Kind: orchestrator.SandboxPolicyFullAccess}
	}
	return orchestrator.SandboxPolicy{Kind: orchestrator.SandboxPolicyWorkspaceWrite, Root: s.cfg.Workspace.Path}
}

// loadHistory replays every prior message in sessionID's rollout log.
func (s *server) loadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	resume, err := s.rec.Replay(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return resume.Messages, nil
}

func (s *server) currentSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}
