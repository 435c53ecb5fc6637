// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for an agentcore process, plus the context
// correlation keys threaded through the agent loop and tool orchestrator.
package telemetry

import "context"

// ContextKey is the type for context keys used throughout telemetry.
type ContextKey string

const (
	ThreadIDKey   ContextKey = "thread_id"
	SessionIDKey  ContextKey = "session_id"
	AgentIDKey    ContextKey = "agent_id"
	MessageIDKey  ContextKey = "message_id"
	ToolCallIDKey ContextKey = "tool_call_id"
	RequestIDKey  ContextKey = "request_id"
)

// AddThreadID attaches the active conversation thread's id to ctx.
func AddThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ThreadIDKey, threadID)
}

// GetThreadID retrieves the thread id from ctx, or "" if unset.
func GetThreadID(ctx context.Context) string {
	id, _ := ctx.Value(ThreadIDKey).(string)
	return id
}

// AddSessionID attaches a session id to ctx.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID retrieves the session id from ctx, or "" if unset.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// AddAgentID attaches an agent id to ctx.
func AddAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetAgentID retrieves the agent id from ctx, or "" if unset.
func GetAgentID(ctx context.Context) string {
	id, _ := ctx.Value(AgentIDKey).(string)
	return id
}

// AddMessageID attaches a message id to ctx.
func AddMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

// GetMessageID retrieves the message id from ctx, or "" if unset.
func GetMessageID(ctx context.Context) string {
	id, _ := ctx.Value(MessageIDKey).(string)
	return id
}

// AddToolCallID attaches the id of the tool call currently executing to ctx.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

// GetToolCallID retrieves the tool call id from ctx, or "" if unset.
func GetToolCallID(ctx context.Context) string {
	id, _ := ctx.Value(ToolCallIDKey).(string)
	return id
}

// AddRequestID attaches a JSON-RPC request id to ctx.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the JSON-RPC request id from ctx, or "" if unset.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
