// Package modelclient defines the Model Client contract: the two
// operations (chat, chat_stream) the Agent Loop consumes from any model
// provider, plus the fixed failure taxonomy providers report through
// rather than ad-hoc errors.
package modelclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// Client is implemented once per provider (Anthropic, OpenAI, ...); the
// Agent Loop depends only on this interface, never on a concrete provider.
type Client interface {
	// Chat is a blocking single-turn completion.
	Chat(ctx context.Context, messages []models.Message, tools []models.ToolSpec) (models.ModelResponse, error)

	// ChatStream delivers the same completion incrementally. The returned
	// channel is closed after exactly one terminating StreamChunk
	// (StreamChunkMessageStop or StreamChunkError) has been sent.
	ChatStream(ctx context.Context, messages []models.Message, tools []models.ToolSpec) (<-chan models.StreamChunk, error)

	// Name identifies the provider for logging and per-provider-prefix
	// concurrency resolution (internal/tasks).
	Name() string
}

// FailureKind tags the fixed taxonomy a Client may report (spec §4.1).
// The core never retries these itself — retry policy lives above the
// core, in whatever drives the Agent Loop.
type FailureKind string

const (
	FailureRateLimited   FailureKind = "rate_limited"
	FailureUnavailable   FailureKind = "unavailable"
	FailureNetwork       FailureKind = "network"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureConfiguration FailureKind = "configuration"
	FailureStreamError   FailureKind = "stream_error"
)

// Failure is the error type every Client implementation wraps provider
// errors in, so callers can branch on Kind without depending on a
// specific provider SDK's error types.
type Failure struct {
	Kind         FailureKind
	Provider     string
	Message      string
	RetryAfterMs int // FailureRateLimited only
	Cause        error
}

func (f *Failure) Error() string {
	if f.Provider != "" {
		return fmt.Sprintf("modelclient: %s (%s): %s", f.Kind, f.Provider, f.Message)
	}
	return fmt.Sprintf("modelclient: %s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// AsFailure unwraps err to a *Failure, if any wraps one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// RateLimited builds a FailureRateLimited.
func RateLimited(provider string, retryAfterMs int, cause error) *Failure {
	return &Failure{Kind: FailureRateLimited, Provider: provider, Message: "rate limited", RetryAfterMs: retryAfterMs, Cause: cause}
}

// Unavailable builds a FailureUnavailable.
func Unavailable(provider string, cause error) *Failure {
	return &Failure{Kind: FailureUnavailable, Provider: provider, Message: "provider unavailable", Cause: cause}
}
