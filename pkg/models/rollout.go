package models

import (
	"encoding/json"
	"time"
)

// RolloutKind tags the variant of a RolloutLine.
type RolloutKind string

const (
	RolloutKindSessionMeta RolloutKind = "session_meta"
	RolloutKindMessage     RolloutKind = "message"
	RolloutKindToolCall    RolloutKind = "tool_call"
	RolloutKindToolResult  RolloutKind = "tool_result"
	RolloutKindTurn        RolloutKind = "turn"
	RolloutKindEvent       RolloutKind = "event"
)

// SessionMeta is the first line of every rollout file.
type SessionMeta struct {
	SessionID         string    `json:"session_id"`
	Model             string    `json:"model"`
	Provider          string    `json:"provider"`
	Cwd               string    `json:"cwd"`
	SandboxPolicyRepr string    `json:"sandbox_policy_repr"`
	CreatedAt         time.Time `json:"created_at"`
}

// TurnMarker records the boundary between conversation turns.
type TurnMarker struct {
	Turn      int        `json:"turn"`
	Usage     TokenUsage `json:"usage"`
	Timestamp time.Time  `json:"timestamp"`
}

// TokenUsage accumulates token counts for a turn or session.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// Add accumulates u into a running total.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:         u.InputTokens + other.InputTokens,
		OutputTokens:        u.OutputTokens + other.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + other.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + other.CacheCreationTokens,
	}
}

// RolloutLine is a single append-only tagged record in a session's rollout
// log. Exactly one of the pointer fields matching Kind is populated.
type RolloutLine struct {
	Kind      RolloutKind     `json:"kind"`
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`

	SessionMeta *SessionMeta    `json:"session_meta,omitempty"`
	Message     *Message        `json:"message,omitempty"`
	ToolCall    *ToolCall       `json:"tool_call,omitempty"`
	ToolResult  *ToolResult     `json:"tool_result,omitempty"`
	Turn        *TurnMarker     `json:"turn,omitempty"`
	Event       *AgentEvent     `json:"event,omitempty"`
}

// MarshalJSONL renders the line as a single compact JSON document suitable
// for one line of a JSONL file.
func (l RolloutLine) MarshalJSONL() ([]byte, error) {
	return json.Marshal(l)
}
