package models

import "time"

// ApprovalRequirementKind tags the variant held by an ApprovalRequirement.
type ApprovalRequirementKind string

const (
	// ApprovalSkip proceeds directly to execution, optionally bypassing the sandbox.
	ApprovalSkip ApprovalRequirementKind = "skip"
	// ApprovalNeedsApproval routes the invocation through the approval pipeline.
	ApprovalNeedsApproval ApprovalRequirementKind = "needs_approval"
	// ApprovalForbidden aborts the invocation unconditionally.
	ApprovalForbidden ApprovalRequirementKind = "forbidden"
)

// ApprovalRequirement is computed per-invocation from the tool input by a
// tool's ApprovalRequirement(input) method.
type ApprovalRequirement struct {
	Kind         ApprovalRequirementKind `json:"kind"`
	BypassSandbox bool                   `json:"bypass_sandbox,omitempty"` // Skip only
	Reason       string                  `json:"reason,omitempty"`         // NeedsApproval/Forbidden only
}

// Skip builds an ApprovalSkip requirement.
func Skip(bypassSandbox bool) ApprovalRequirement {
	return ApprovalRequirement{Kind: ApprovalSkip, BypassSandbox: bypassSandbox}
}

// NeedsApproval builds an ApprovalNeedsApproval requirement.
func NeedsApproval(reason string) ApprovalRequirement {
	return ApprovalRequirement{Kind: ApprovalNeedsApproval, Reason: reason}
}

// Forbidden builds an ApprovalForbidden requirement.
func Forbidden(reason string) ApprovalRequirement {
	return ApprovalRequirement{Kind: ApprovalForbidden, Reason: reason}
}

// ReviewDecisionKind tags the variant held by a ReviewDecision.
type ReviewDecisionKind string

const (
	ReviewApprove      ReviewDecisionKind = "approve"
	ReviewApproveOnce  ReviewDecisionKind = "approve_once"
	ReviewApproveAll   ReviewDecisionKind = "approve_all" // pattern-wide, session-scoped
	ReviewDeny         ReviewDecisionKind = "deny"
	ReviewEdit         ReviewDecisionKind = "edit"
)

// ReviewDecision is the human operator's answer to a PendingApproval
// request, delivered over its response channel.
type ReviewDecision struct {
	Kind      ReviewDecisionKind `json:"kind"`
	Reason    string             `json:"reason,omitempty"`    // Deny only
	NewInput  []byte             `json:"new_input,omitempty"` // Edit only
}

// CacheDecisionKind tags the variant held by a CacheDecision.
type CacheDecisionKind string

const (
	// CacheApproveOnce is never written to the cache.
	CacheApproveOnce     CacheDecisionKind = "approve_once"
	CacheApproveSession  CacheDecisionKind = "approve_session"
	CacheApprovePattern  CacheDecisionKind = "approve_pattern"
	CacheDenySession     CacheDecisionKind = "deny_session"
)

// CacheDecision is the form a ReviewDecision takes once persisted into the
// Approval Cache.
type CacheDecision struct {
	Kind      CacheDecisionKind `json:"kind"`
	DecidedAt time.Time         `json:"decided_at"`
}

// FromReviewDecision maps a ReviewDecision to the CacheDecision it should be
// stored as, or ok=false if the decision is never cached (ApproveOnce, Edit,
// or an outright Deny that the orchestrator aborts on rather than caches).
func FromReviewDecision(d ReviewDecisionKind) (kind CacheDecisionKind, cacheable bool) {
	switch d {
	case ReviewApprove:
		return CacheApproveSession, true
	case ReviewApproveAll:
		return CacheApprovePattern, true
	default:
		return "", false
	}
}

// ApprovalKey identifies a cache slot: the tool name plus a pattern derived
// from the invocation's path-shaped argument (see the permission package's
// path-extraction helper, shared verbatim with the Permission Evaluator).
type ApprovalKey struct {
	ToolName string `json:"tool_name"`
	Pattern  string `json:"pattern"`
}

// String renders the key as a stable map/log key.
func (k ApprovalKey) String() string {
	return k.ToolName + "\x00" + k.Pattern
}

// AgentState is the Agent Loop's state machine position. Terminal states
// are Complete, Cancelled, and Failed.
type AgentState string

const (
	AgentStateIdle              AgentState = "idle"
	AgentStateThinking          AgentState = "thinking"
	AgentStateExecutingTool     AgentState = "executing_tool"
	AgentStateWaitingForApproval AgentState = "waiting_for_approval"
	AgentStateWaitingForUser    AgentState = "waiting_for_user"
	AgentStateComplete          AgentState = "complete"
	AgentStateCancelled         AgentState = "cancelled"
	AgentStateFailed            AgentState = "failed"
)

// Terminal reports whether further transitions are disallowed from this state.
func (s AgentState) Terminal() bool {
	switch s {
	case AgentStateComplete, AgentStateCancelled, AgentStateFailed:
		return true
	default:
		return false
	}
}

// RalphState tracks one Ralph Supervisor's exit-gating and circuit-breaker
// bookkeeping across iterations of a supervised Agent Loop.
type RalphState struct {
	Active               bool       `json:"active"`
	Iteration             int        `json:"iteration"`
	MaxIterations          int        `json:"max_iterations"`
	CompletionPromise      string     `json:"completion_promise"`
	MinConfidence          int        `json:"min_confidence"` // 0-100
	RequireDualCondition   bool       `json:"require_dual_condition"`
	SessionHours           float64    `json:"session_hours"`
	GitBranch              string     `json:"git_branch,omitempty"`
	CircuitBreakerTripped  bool       `json:"circuit_breaker_tripped"`
	CircuitBreakerReason   string     `json:"circuit_breaker_reason,omitempty"`
	StartedAt              time.Time  `json:"started_at"`
	LastCheckedAt          time.Time  `json:"last_checked_at"`
}
