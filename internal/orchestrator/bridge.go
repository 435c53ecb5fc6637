package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/forgecraft-labs/agentcore/internal/agent"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// AgentTool is the subset of internal/agent.Tool the bridge depends on,
// declared locally so this package never imports internal/agent's wider
// surface (Runtime, providers, etc.) just to accept a tool.
type AgentTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error)
}

// mutatingTools lists the agent.Tool names whose invocations change
// workspace or process state and therefore default to requiring approval,
// mirroring the router's own fallbackPolicy treatment of ast_replace/
// lsp_rename for names outside the registry.
var mutatingTools = map[string]bool{
	"write":          true,
	"edit":           true,
	"apply_patch":    true,
	"spawn_subagent": true,
}

// shellShapedTools lists the agent.Tool names whose "command" field should
// be used for path-extraction and cwd-scoped approval-cache keys.
var shellShapedTools = map[string]bool{
	"exec": true,
}

// AgentToolAdapter wraps an internal/agent.Tool (the teacher's tool
// contract: Name/Description/Schema/Execute with no approval, sandbox, or
// parallelism metadata) behind the Tool Orchestrator's richer Tool
// interface, so the teacher's existing tool implementations run through
// the full permission/approval/sandbox pipeline instead of sitting
// unreachable behind an interface the orchestrator doesn't speak.
type AgentToolAdapter struct {
	tool     AgentTool
	sandbox  SandboxPreference
	parallel bool
}

// WrapAgentTool builds the default adapter for tool: sandboxed execution
// preferred, single invocation at a time (matches the teacher's own tools,
// none of which claim to be safely reentrant), escalating a generic
// execution failure to a no-sandbox retry once.
func WrapAgentTool(tool AgentTool) *AgentToolAdapter {
	return &AgentToolAdapter{tool: tool, sandbox: SandboxAuto, parallel: false}
}

func (a *AgentToolAdapter) Name() string            { return a.tool.Name() }
func (a *AgentToolAdapter) Description() string     { return a.tool.Description() }
func (a *AgentToolAdapter) Schema() json.RawMessage { return a.tool.Schema() }

// ApprovalRequirement flags the known write/exec-shaped tools as needing
// approval and leaves everything else (read, facts_extract, the sessions/
// subagent query tools) to proceed without one, matching this module's
// Tool Router default of approving only state-changing invocations.
func (a *AgentToolAdapter) ApprovalRequirement(input json.RawMessage) models.ApprovalRequirement {
	if mutatingTools[a.tool.Name()] {
		return models.NeedsApproval(a.tool.Name() + " mutates the workspace")
	}
	return models.Skip(false)
}

func (a *AgentToolAdapter) SandboxPreference() SandboxPreference { return a.sandbox }
func (a *AgentToolAdapter) SupportsParallel() bool               { return a.parallel }
func (a *AgentToolAdapter) EscalateOnFailure() bool              { return true }

// IsShellShaped reports whether this tool's invocations should use its
// cwd in the approval-cache key, satisfying orchestrator.IsShellShaped.
func (a *AgentToolAdapter) IsShellShaped() bool { return shellShapedTools[a.tool.Name()] }

// Execute adapts the teacher's (ctx, params) (*agent.ToolResult, error)
// shape to this package's (ctx, input, execCtx) (models.ToolOutput,
// *ToolError) shape. execCtx.Sandbox isn't consulted here: the wrapped
// tools enforce their own workspace confinement via files.Resolver, so
// sandbox selection only governs whether the orchestrator is willing to
// retry without it on an execution failure.
func (a *AgentToolAdapter) Execute(ctx context.Context, input json.RawMessage, execCtx ExecContext) (models.ToolOutput, *ToolError) {
	result, err := a.tool.Execute(ctx, input)
	if err != nil {
		return models.ToolOutput{}, &ToolError{Kind: ToolErrorExecutionFailed, Message: err.Error(), Retryable: false}
	}
	if result.IsError {
		return models.ToolOutput{}, &ToolError{Kind: ToolErrorExecutionFailed, Message: result.Content, Retryable: true}
	}
	return models.TextOutput(result.Content), nil
}

// StaticRegistry is a fixed name-to-Tool lookup built once at startup from
// the session's available tools.
type StaticRegistry struct {
	tools map[string]Tool
}

// NewStaticRegistry indexes tools by name; a later duplicate name
// overwrites an earlier one.
func NewStaticRegistry(tools ...Tool) *StaticRegistry {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &StaticRegistry{tools: m}
}

func (r *StaticRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs renders every registered tool's schema for advertisement to a
// Model Client, in no particular order.
func (r *StaticRegistry) Specs() []models.ToolSpec {
	out := make([]models.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, models.ToolSpec{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}
