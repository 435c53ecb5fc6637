package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/forgecraft-labs/agentcore/internal/approval"
	"github.com/forgecraft-labs/agentcore/internal/permission"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// ApprovalTimeout is the default wait for an interactive ReviewDecision
// before a PendingApproval aborts (spec §4.3 step 4).
const ApprovalTimeout = 300 * time.Second

// Registry resolves a tool name to a Tool, falling back to the
// provider-backed policy for unregistered names.
type Registry interface {
	Get(name string) (Tool, bool)
}

// PendingApproval is the out-of-band request emitted on step 4; the
// orchestrator blocks on Response until a ReviewDecision arrives or
// ApprovalTimeout elapses.
type PendingApproval struct {
	ID       string
	ToolName string
	Input    json.RawMessage
	Reason   string
	Response chan models.ReviewDecision
}

// ApprovalSink receives PendingApproval requests for interactive review
// (typically forwarded to a JSON-RPC client as a chat.event notification).
type ApprovalSink interface {
	RequestApproval(ctx context.Context, req PendingApproval) (models.ReviewDecision, error)
}

// Invocation is one tool call to orchestrate.
type Invocation struct {
	ToolName      string
	Input         json.RawMessage
	SessionID     string
	Cwd           string
	SandboxPolicy SandboxPolicy
	FullAuto      bool
	// SkipApproval is set by the Agent Loop's tool batch step, which has
	// already consulted approval_requirement itself (spec §4.4 step 6b);
	// the orchestrator then only does permission evaluation, sandbox
	// selection, and execution.
	SkipApproval bool
}

// Result is what dispatch returns: at most one of Output/Err is set.
type Result struct {
	Output models.ToolOutput
	Err    *ToolError
}

// Orchestrator chains permission evaluation, approval-cache lookup,
// interactive approval, sandbox selection, and execute-with-retry into
// the spec's single gate for tool execution.
type Orchestrator struct {
	registry  Registry
	evaluator *permission.Evaluator // nil disables step 1
	cache     *approval.Cache
	sink      ApprovalSink

	mu      sync.Mutex
	idSeq   int64
}

// New builds an Orchestrator. evaluator may be nil to skip permission
// evaluation entirely (step 1 becomes a no-op, falling through to step 2).
func New(registry Registry, evaluator *permission.Evaluator, cache *approval.Cache, sink ApprovalSink) *Orchestrator {
	return &Orchestrator{registry: registry, evaluator: evaluator, cache: cache, sink: sink}
}

func (o *Orchestrator) nextApprovalID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.idSeq++
	return fmt.Sprintf("appr_%d", o.idSeq)
}

// Dispatch runs inv through the full seven-step pipeline and returns the
// resulting Result. It never returns a Go error; all failure reporting is
// through Result.Err.
func (o *Orchestrator) Dispatch(ctx context.Context, inv Invocation) Result {
	tool, ok := o.registry.Get(inv.ToolName)
	if !ok {
		return o.dispatchFallback(ctx, inv)
	}

	input := inv.Input
	cwd := inv.Cwd

	// Step 1: permission evaluation.
	if o.evaluator != nil {
		decision, _ := o.evaluator.Evaluate(inv.ToolName, input)
		switch decision {
		case permission.Deny:
			return denyResult(ToolErrorPermissionDenied, "permission evaluator denied this invocation")
		case permission.Allow:
			// Bypasses approval but still runs under sandbox unless the
			// tool itself reports Forbidden.
			return o.executeWithSandbox(ctx, tool, inv, input)
		case permission.Ask:
			// fall through to step 2
		}
	}

	if inv.SkipApproval {
		return o.executeWithSandbox(ctx, tool, inv, input)
	}

	// Step 2: approval requirement.
	req := tool.ApprovalRequirement(input)
	switch req.Kind {
	case models.ApprovalForbidden:
		return denyResult(ToolErrorForbidden, req.Reason)
	case models.ApprovalSkip:
		return o.executeWithSandbox(ctx, tool, inv, input)
	case models.ApprovalNeedsApproval:
		if inv.FullAuto {
			return o.executeWithSandbox(ctx, tool, inv, input)
		}
		// fall through to step 3
	}

	// Step 3: approval cache lookup.
	shellShaped := false
	if sa, ok := tool.(IsShellShaped); ok {
		shellShaped = sa.IsShellShaped()
	}
	keyCwd := ""
	if shellShaped {
		keyCwd = cwd
	}
	key := approval.DeriveKey(inv.ToolName, input, keyCwd)
	if cached, ok := o.cache.Lookup(inv.SessionID, key); ok {
		switch cached {
		case models.CacheApproveSession, models.CacheApprovePattern:
			return o.executeWithSandbox(ctx, tool, inv, input)
		case models.CacheDenySession:
			return denyResult(ToolErrorCachedDenial, "a prior decision in this session denied this invocation")
		}
	}

	// Step 4: interactive approval.
	if o.sink == nil {
		return denyResult(ToolErrorApprovalTimeout, "no approval sink configured")
	}
	approvalCtx, cancel := context.WithTimeout(ctx, ApprovalTimeout)
	defer cancel()
	decision, err := o.sink.RequestApproval(approvalCtx, PendingApproval{
		ID:       o.nextApprovalID(),
		ToolName: inv.ToolName,
		Input:    input,
		Reason:   req.Reason,
	})
	if err != nil {
		return denyResult(ToolErrorApprovalTimeout, "approval request timed out or failed: "+err.Error())
	}

	switch decision.Kind {
	case models.ReviewDeny:
		o.cache.RecordDecision(inv.SessionID, key, decision.Kind)
		return denyResult(ToolErrorApprovalDenied, decision.Reason)
	case models.ReviewEdit:
		input = decision.NewInput
	case models.ReviewApprove, models.ReviewApproveOnce, models.ReviewApproveAll:
		o.cache.RecordDecision(inv.SessionID, key, decision.Kind)
	}

	return o.executeWithSandbox(ctx, tool, inv, input)
}

// dispatchFallback applies the provider-backed approval policy (spec §4.3
// final paragraph) for a tool name absent from the registry, then fails
// execution outright since there is no registered tool to run: the
// fallback policy only governs whether an unregistered name would have
// needed approval, it does not synthesize an executable tool.
func (o *Orchestrator) dispatchFallback(ctx context.Context, inv Invocation) Result {
	req := fallbackPolicy(inv.ToolName, inv.Input)
	if req.Kind == models.ApprovalForbidden {
		return denyResult(ToolErrorForbidden, req.Reason)
	}
	return denyResult(ToolErrorExecutionFailed, fmt.Sprintf("tool %q is not registered", inv.ToolName))
}

// executeWithSandbox runs steps 5-7: sandbox selection, execute with
// retry-on-sandbox-denial (up to 2 attempts), escalate-on-failure, and the
// optional post-process pass.
func (o *Orchestrator) executeWithSandbox(ctx context.Context, tool Tool, inv Invocation, input json.RawMessage) Result {
	sandboxType := ResolveSandbox(tool.SandboxPreference(), inv.SandboxPolicy)
	execCtx := ExecContext{Sandbox: sandboxType, SessionID: inv.SessionID, Cwd: inv.Cwd}

	output, toolErr := tool.Execute(ctx, input, execCtx)
	if toolErr != nil && toolErr.Kind == ToolErrorSandboxDenied && toolErr.Retryable {
		output, toolErr = tool.Execute(ctx, input, execCtx)
		if toolErr != nil && toolErr.Kind == ToolErrorSandboxDenied {
			toolErr.Retryable = false
			return Result{Err: toolErr}
		}
	}

	if toolErr != nil && toolErr.Kind == ToolErrorExecutionFailed && tool.EscalateOnFailure() {
		noSandboxCtx := execCtx
		noSandboxCtx.Sandbox = SandboxNone
		output, toolErr = tool.Execute(ctx, input, noSandboxCtx)
	}

	if toolErr != nil {
		return Result{Err: toolErr}
	}
	return Result{Output: postProcess(tool, output)}
}

// postProcess applies an optional comment-warning pass on write-shaped
// tools (spec §4.3 step 7). Tools opt in by implementing PostProcessor.
func postProcess(tool Tool, output models.ToolOutput) models.ToolOutput {
	if pp, ok := tool.(PostProcessor); ok {
		return pp.PostProcess(output)
	}
	return output
}

// PostProcessor is an optional hook a write-shaped tool implements to
// append an advisory section (e.g. a lint or diff warning) to its output.
type PostProcessor interface {
	PostProcess(models.ToolOutput) models.ToolOutput
}

func denyResult(kind ToolErrorKind, message string) Result {
	return Result{Err: &ToolError{Kind: kind, Message: message}}
}
