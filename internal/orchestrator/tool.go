// Package orchestrator implements the Tool Orchestrator: the single gate
// every tool invocation passes through, chaining permission evaluation,
// approval-cache lookup, interactive approval, sandbox selection, and
// execute-with-retry into one ordered pipeline.
package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// SandboxPreference is a per-tool hint combined with the session's
// SandboxPolicy to select a concrete sandbox type.
type SandboxPreference string

const (
	SandboxAuto   SandboxPreference = "auto"
	SandboxForbid SandboxPreference = "forbid"
	SandboxPrefer SandboxPreference = "prefer"
)

// SandboxPolicyKind tags the variant held by a SandboxPolicy.
type SandboxPolicyKind string

const (
	SandboxPolicyReadOnly      SandboxPolicyKind = "read_only"
	SandboxPolicyWorkspaceWrite SandboxPolicyKind = "workspace_write"
	SandboxPolicyFullAccess    SandboxPolicyKind = "full_access"
)

// SandboxPolicy is the session-level confinement policy; Root is populated
// only for WorkspaceWrite.
type SandboxPolicy struct {
	Kind SandboxPolicyKind
	Root string
}

// SandboxType is the concrete confinement the sandbox manager resolves to
// and injects into the tool's execution context.
type SandboxType string

const (
	SandboxNone      SandboxType = "none"
	SandboxReadOnlyFS SandboxType = "read_only_fs"
	SandboxWorkspace SandboxType = "workspace"
	SandboxFull      SandboxType = "full"
)

// ResolveSandbox maps a tool's SandboxPreference and the session's
// SandboxPolicy to a concrete SandboxType, per spec §4.3 step 5.
func ResolveSandbox(pref SandboxPreference, policy SandboxPolicy) SandboxType {
	if pref == SandboxForbid {
		return SandboxNone
	}
	switch policy.Kind {
	case SandboxPolicyFullAccess:
		if pref == SandboxPrefer {
			return SandboxWorkspace
		}
		return SandboxFull
	case SandboxPolicyWorkspaceWrite:
		return SandboxWorkspace
	case SandboxPolicyReadOnly:
		return SandboxReadOnlyFS
	default:
		return SandboxReadOnlyFS
	}
}

// ToolError is the structured failure a Tool's Execute may return, as
// distinct from a Go error: the orchestrator inspects its Kind to decide
// whether to retry, escalate, or finalize.
type ToolError struct {
	Kind      ToolErrorKind
	Message   string
	Retryable bool
}

func (e *ToolError) Error() string { return e.Message }

// ToolErrorKind tags the variant of a ToolError.
type ToolErrorKind string

const (
	ToolErrorSandboxDenied    ToolErrorKind = "sandbox_denied"
	ToolErrorExecutionFailed  ToolErrorKind = "execution_failed"
	ToolErrorPermissionDenied ToolErrorKind = "permission_denied"
	ToolErrorForbidden        ToolErrorKind = "forbidden"
	ToolErrorCachedDenial     ToolErrorKind = "cached_denial"
	ToolErrorApprovalTimeout  ToolErrorKind = "approval_timeout"
	ToolErrorApprovalDenied   ToolErrorKind = "approval_denied"
)

// ExecContext is threaded through a tool's Execute call; Sandbox is
// populated by the orchestrator's sandbox-selection step before the first
// execution attempt.
type ExecContext struct {
	Sandbox   SandboxType
	SessionID string
	Cwd       string
}

// Tool is the spec §4.2 Tool Router contract: every orchestrated tool
// advertises its schema, its per-input approval requirement, its sandbox
// preference, and whether a generic execution failure should be escalated
// to a no-sandbox retry.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage

	ApprovalRequirement(input json.RawMessage) models.ApprovalRequirement
	SandboxPreference() SandboxPreference
	SupportsParallel() bool
	EscalateOnFailure() bool

	Execute(ctx context.Context, input json.RawMessage, execCtx ExecContext) (models.ToolOutput, *ToolError)
}

// IsShellShaped reports whether a tool's invocations should be treated as
// shell commands for path-extraction and approval-key purposes (the
// "command" field fallback and cwd-embedded cache keys).
type IsShellShaped interface {
	IsShellShaped() bool
}

// fallbackPolicy is the provider-backed approval policy for tool names not
// registered in the router (spec §4.3 final paragraph).
func fallbackPolicy(toolName string, input json.RawMessage) models.ApprovalRequirement {
	switch toolName {
	case "ast_replace":
		if !dryRun(input) {
			return models.NeedsApproval("ast_replace without dryRun mutates source")
		}
		return models.Skip(false)
	case "lsp_rename":
		return models.NeedsApproval("lsp_rename mutates source across the workspace")
	default:
		return models.Skip(false)
	}
}

func dryRun(input json.RawMessage) bool {
	var fields struct {
		DryRun bool `json:"dryRun"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return false
	}
	return fields.DryRun
}
