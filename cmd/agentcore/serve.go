package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forgecraft-labs/agentcore/internal/agent"
	"github.com/forgecraft-labs/agentcore/internal/agent/providers"
	"github.com/forgecraft-labs/agentcore/internal/approval"
	"github.com/forgecraft-labs/agentcore/internal/config"
	"github.com/forgecraft-labs/agentcore/internal/modelclient"
	"github.com/forgecraft-labs/agentcore/internal/orchestrator"
	"github.com/forgecraft-labs/agentcore/internal/permission"
	"github.com/forgecraft-labs/agentcore/internal/rollout"
	"github.com/forgecraft-labs/agentcore/internal/rpc"
	"github.com/forgecraft-labs/agentcore/internal/tasks"
	"github.com/forgecraft-labs/agentcore/internal/tools/exec"
	"github.com/forgecraft-labs/agentcore/internal/tools/facts"
	"github.com/forgecraft-labs/agentcore/internal/tools/files"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC stdio server for one agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			srv, err := newServer(cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			slog.Info("agentcore: serving on stdio", "transport", cfg.RPC.Transport)
			return srv.rpc.Serve(ctx)
		},
	}
}

// server wires every spec-core component behind the JSON-RPC protocol: the
// Model Client adapter, the Tool Orchestrator, the Approval Cache and
// Permission Evaluator it depends on, the Background Task Manager, and the
// Rollout Recorder. It holds one client-visible chat session's active
// cancel func at a time; session.create/session.list track additional
// sessions by id without a live chat loop until "chat" targets them.
type server struct {
	cfg       *config.Config
	rpc       *rpc.Server
	client    modelclient.Client
	orch      *orchestrator.Orchestrator
	toolSpecs []models.ToolSpec
	cache     *approval.Cache
	rec       *rollout.Recorder
	tasks     *tasks.Manager

	mu         sync.Mutex
	sessions   map[string]*models.SessionMeta
	activeID   string
	cancelChat context.CancelFunc
	pending    map[string]chan models.ReviewDecision
}

func newServer(cfg *config.Config) (*server, error) {
	client, err := buildModelClient(cfg)
	if err != nil {
		return nil, err
	}

	dir := cfg.Session.RolloutDir
	if dir == "" {
		dir = cfg.Workspace.Path
	}
	if dir == "" {
		dir = "."
	}
	rec, err := rollout.NewRecorder(dir)
	if err != nil {
		return nil, fmt.Errorf("rollout recorder: %w", err)
	}

	evaluator := buildEvaluator(cfg.Tools.Approval)
	cache := approval.NewCache()
	registry := buildRegistry(cfg)

	s := &server{
		cfg:       cfg,
		client:    client,
		toolSpecs: registry.Specs(),
		cache:     cache,
		rec:       rec,
		tasks:     tasks.Default(cfg.Tasks),
		sessions:  make(map[string]*models.SessionMeta),
		pending:   make(map[string]chan models.ReviewDecision),
	}
	s.orch = orchestrator.New(registry, evaluator, cache, s)

	s.rpc = rpc.NewServer(os.Stdin, os.Stdout)
	s.rpc.Register("chat", s.handleChat)
	s.rpc.Register("cancel", s.handleCancel)
	s.rpc.Register("status", s.handleStatus)
	s.rpc.Register("session.create", s.handleSessionCreate)
	s.rpc.Register("session.list", s.handleSessionList)
	s.rpc.Register("model.list", s.handleModelList)
	s.rpc.Register("tool.approve", s.handleToolDecision(models.ReviewApprove))
	s.rpc.Register("tool.reject", s.handleToolDecision(models.ReviewDeny))
	return s, nil
}

// buildModelClient resolves cfg.LLM.DefaultProvider to a concrete
// agent.LLMProvider (the teacher's real anthropic-sdk-go/go-openai wiring)
// and wraps it in a modelclient.ProviderAdapter.
func buildModelClient(cfg *config.Config) (modelclient.Client, error) {
	name := cfg.LLM.DefaultProvider
	if name == "" {
		name = "anthropic"
	}
	pc := cfg.LLM.Providers[name]

	var provider agent.LLMProvider
	var err error
	switch name {
	case "anthropic":
		provider, err = providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
		})
	case "openai":
		provider = providers.NewOpenAIProvider(pc.APIKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("construct %s provider: %w", name, err)
	}
	return modelclient.NewProviderAdapter(provider, pc.DefaultModel, 4096), nil
}

// buildEvaluator seeds the permission evaluator's ordered rules from config:
// denylist first (highest priority), then allowlist, then require_approval,
// falling back to the configured default decision.
func buildEvaluator(cfg config.ApprovalConfig) *permission.Evaluator {
	var rules []permission.Rule
	for _, pattern := range cfg.Denylist {
		rules = append(rules, permission.Rule{ToolPattern: pattern, PathPattern: "*", Decision: permission.Deny})
	}
	for _, pattern := range cfg.RequireApproval {
		rules = append(rules, permission.Rule{ToolPattern: pattern, PathPattern: "*", Decision: permission.Ask})
	}
	for _, pattern := range cfg.Allowlist {
		rules = append(rules, permission.Rule{ToolPattern: pattern, PathPattern: "*", Decision: permission.Allow})
	}

	fallback := permission.Ask
	switch strings.ToLower(cfg.DefaultDecision) {
	case "allowed":
		fallback = permission.Allow
	case "denied":
		fallback = permission.Deny
	}
	return permission.NewEvaluator(rules, fallback)
}

// buildRegistry wires the teacher's filesystem and exec tools into the
// Tool Orchestrator via orchestrator.WrapAgentTool, scoped to the
// configured workspace. The sessions/subagent tool families additionally
// depend on a live internal/agent.Runtime (for cross-session messaging
// and subagent spawning) that cmd/agentcore does not construct — bypassing
// the teacher's Runtime entirely is this entrypoint's scope decision, so
// those tool families are left unregistered rather than half-wired against
// a Runtime stub.
func buildRegistry(cfg *config.Config) *orchestrator.StaticRegistry {
	fcfg := files.Config{Workspace: cfg.Workspace.Path}
	execMgr := exec.NewManager(cfg.Workspace.Path)

	return orchestrator.NewStaticRegistry(
		orchestrator.WrapAgentTool(files.NewReadTool(fcfg)),
		orchestrator.WrapAgentTool(files.NewWriteTool(fcfg)),
		orchestrator.WrapAgentTool(files.NewEditTool(fcfg)),
		orchestrator.WrapAgentTool(files.NewApplyPatchTool(fcfg)),
		orchestrator.WrapAgentTool(exec.NewExecTool("exec", execMgr)),
		orchestrator.WrapAgentTool(facts.NewExtractTool(0)),
	)
}

// RequestApproval implements orchestrator.ApprovalSink by forwarding the
// pending approval to the RPC client as a chat.event notification and
// blocking until tool.approve/tool.reject resolves it or ctx expires.
func (s *server) RequestApproval(ctx context.Context, req orchestrator.PendingApproval) (models.ReviewDecision, error) {
	ch := make(chan models.ReviewDecision, 1)
	s.mu.Lock()
	s.pending[req.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	args, _ := json.Marshal(req.Input)
	_ = s.rpc.Notify(rpc.EventParams{
		Type:      rpc.EventApprovalRequired,
		RequestID: req.ID,
		Tool:      req.ToolName,
		Args:      args,
		Reason:    req.Reason,
	})

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		return models.ReviewDecision{}, ctx.Err()
	}
}

func (s *server) handleToolDecision(kind models.ReviewDecisionKind) rpc.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
		var params rpc.ToolDecisionParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, rpc.NewError(rpc.ErrInvalidParams, err.Error())
		}
		s.mu.Lock()
		ch, ok := s.pending[params.RequestID]
		s.mu.Unlock()
		if !ok {
			return nil, rpc.NewError(rpc.ErrInvalidParams, "no pending approval with that request_id")
		}
		ch <- models.ReviewDecision{Kind: kind, Reason: params.Reason}
		return map[string]bool{"ok": true}, nil
	}
}

func (s *server) handleSessionCreate(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.SessionCreateParams
	_ = json.Unmarshal(raw, &params)

	cwd := s.cfg.Workspace.Path
	if params.BranchName != "" {
		cwd = cwd + "@" + params.BranchName
	}
	id := "sess_" + uuid.NewString()
	meta := &models.SessionMeta{
		SessionID: id,
		Model:     s.cfg.LLM.Providers[s.cfg.LLM.DefaultProvider].DefaultModel,
		Provider:  s.cfg.LLM.DefaultProvider,
		Cwd:       cwd,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.sessions[id] = meta
	s.activeID = id
	s.mu.Unlock()

	if err := s.rec.SessionMeta(id, *meta); err != nil {
		slog.Warn("serve: persist session meta failed", "error", err)
	}
	return meta, nil
}

func (s *server) handleSessionList(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	var params rpc.SessionListParams
	_ = json.Unmarshal(raw, &params)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SessionMeta, 0, len(s.sessions))
	for _, meta := range s.sessions {
		out = append(out, meta)
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *server) handleModelList(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	return map[string]any{
		"active_provider": s.client.Name(),
		"default_model":   s.cfg.LLM.Providers[s.cfg.LLM.DefaultProvider].DefaultModel,
	}, nil
}

func (s *server) handleStatus(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	s.mu.Lock()
	active := s.activeID
	n := len(s.sessions)
	s.mu.Unlock()
	return map[string]any{
		"active_session": active,
		"session_count":  n,
		"version":        version,
	}, nil
}

func (s *server) handleCancel(ctx context.Context, raw json.RawMessage) (any, *rpc.Error) {
	s.mu.Lock()
	cancel := s.cancelChat
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return map[string]bool{"ok": true}, nil
}
