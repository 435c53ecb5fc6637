package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for an agentcore process: the JSON-RPC
// server, the model providers it can route turns to, session/workspace
// defaults, tool execution and approval policy, background task concurrency,
// the Ralph supervisor, and ambient telemetry.
type Config struct {
	Server      ServerConfig         `yaml:"server"`
	Database    DatabaseConfig       `yaml:"database"`
	RPC         RPCConfig            `yaml:"rpc"`
	Session     SessionConfig        `yaml:"session"`
	Workspace   WorkspaceConfig      `yaml:"workspace"`
	LLM         LLMConfig            `yaml:"llm"`
	Tools       ToolsConfig          `yaml:"tools"`
	Tasks       BackgroundTaskConfig `yaml:"tasks"`
	Ralph       RalphConfig          `yaml:"ralph"`
	Telemetry   TelemetryConfig      `yaml:"telemetry"`
	Logging     LoggingConfig        `yaml:"logging"`
}

// ServerConfig configures the process's listening surfaces.
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// DatabaseConfig configures the optional SQL-backed rollout/task stores.
// When URL is empty, the file-based stores under Workspace.Path are used.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // "postgres" or "sqlite"
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RPCConfig configures the JSON-RPC transport.
type RPCConfig struct {
	// Transport selects "stdio" (default) or "websocket".
	Transport string `yaml:"transport"`
	// ListenAddr is used when Transport is "websocket".
	ListenAddr string `yaml:"listen_addr"`
	// JWTSecret signs bearer tokens for the websocket transport. Empty disables auth.
	JWTSecret string `yaml:"jwt_secret"`
}

// SessionConfig controls session defaults and rollout persistence.
type SessionConfig struct {
	DefaultAgentID string        `yaml:"default_agent_id"`
	RolloutDir     string        `yaml:"rollout_dir"`
	MaxMessages    int           `yaml:"max_messages"`
	Expiry         time.Duration `yaml:"expiry"`
}

// WorkspaceConfig resolves and validates a session's working directory.
type WorkspaceConfig struct {
	Path       string `yaml:"path"`
	MaxChars   int    `yaml:"max_chars"`
	AgentsFile string `yaml:"agents_file"`
}

// LLMConfig selects and configures the model client adapters.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	FallbackChain   []string                     `yaml:"fallback_chain"`
}

// LLMProviderConfig configures a single concrete ModelClient adapter.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// ToolsConfig controls tool dispatch, approval and sandbox behavior.
type ToolsConfig struct {
	Execution ToolExecutionConfig `yaml:"execution"`
	Approval  ApprovalConfig      `yaml:"approval"`
	Sandbox   SandboxConfig       `yaml:"sandbox"`
	Jobs      ToolJobsConfig      `yaml:"jobs"`
	Extern    []ExternToolConfig  `yaml:"extern"`
}

// ExternToolConfig registers an out-of-process tool plugin binary with the router.
type ExternToolConfig struct {
	Name string   `yaml:"name"`
	Cmd  string   `yaml:"cmd"`
	Args []string `yaml:"args"`
}

// ToolJobsConfig controls async tool job persistence.
type ToolJobsConfig struct {
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// ToolExecutionConfig controls the orchestrator's retry/timeout behavior.
type ToolExecutionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Parallelism   int           `yaml:"parallelism"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`
}

// ApprovalConfig seeds the permission evaluator's ordered allow/deny/ask rules.
type ApprovalConfig struct {
	Allowlist       []string      `yaml:"allowlist"`
	Denylist        []string      `yaml:"denylist"`
	RequireApproval []string      `yaml:"require_approval"`
	SafeBins        []string      `yaml:"safe_bins"`
	DefaultDecision string        `yaml:"default_decision"` // "allowed", "denied", or "pending"
	InteractiveWait time.Duration `yaml:"interactive_wait"` // timeout on WaitingForApproval
}

// SandboxConfig selects the default sandbox preference and its resource limits.
type SandboxConfig struct {
	Enabled bool `yaml:"enabled"`
	// Mode selects which agents get sandboxed: "off", "all", or "non-main".
	Mode string `yaml:"mode"`
	// Scope selects sandbox isolation granularity: "agent", "session", or "shared".
	Scope          string         `yaml:"scope"`
	Backend        string         `yaml:"backend"`
	NetworkEnabled bool           `yaml:"network_enabled"`
	Limits         ResourceLimits `yaml:"limits"`
}

// ResourceLimits bounds a sandboxed tool execution.
type ResourceLimits struct {
	MaxCPU    int    `yaml:"max_cpu"`
	MaxMemory string `yaml:"max_memory"`
}

// BackgroundTaskConfig controls the Background Task Manager's concurrency model.
type BackgroundTaskConfig struct {
	// MaxTotalTasks bounds running+queued tasks across all keys. Default: 10.
	MaxTotalTasks int `yaml:"max_total_tasks"`
	// DefaultConcurrency is the limit applied when a key matches no override.
	// 0 means unlimited. Default: 5.
	DefaultConcurrency int `yaml:"default_concurrency"`
	// PerModel overrides DefaultConcurrency for an exact model id.
	PerModel map[string]int `yaml:"per_model"`
	// PerProviderPrefix overrides DefaultConcurrency for a "provider:" key prefix.
	PerProviderPrefix map[string]int `yaml:"per_provider_prefix"`
	// StorageDir is where "<task_id>.json" snapshots are written on every transition.
	StorageDir string `yaml:"storage_dir"`
}

// RalphConfig configures the Ralph supervisor's exit gating and circuit breaker.
type RalphConfig struct {
	Enabled            bool          `yaml:"enabled"`
	SessionExpiry      time.Duration `yaml:"session_expiry"`
	SweepInterval      time.Duration `yaml:"sweep_interval"` // robfig/cron schedule for periodic sweeps
	MaxConfidence      int           `yaml:"max_confidence"`
	ZeroChangeLimit    int           `yaml:"zero_change_limit"`    // consecutive no-diff iterations before trip
	RepeatedErrorLimit int           `yaml:"repeated_error_limit"` // same error signature repeats before trip
	OutputDeclinePct   float64       `yaml:"output_decline_pct"`   // rolling-baseline decline fraction before trip
}

// TelemetryConfig enables OpenTelemetry tracing and Prometheus metrics export.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands, decodes and validates a YAML config file, applying
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyRPCDefaults(&cfg.RPC)
	applySessionDefaults(&cfg.Session)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyLLMDefaults(&cfg.LLM)
	applyToolsDefaults(&cfg.Tools)
	applyTaskDefaults(&cfg.Tasks)
	applyRalphDefaults(&cfg.Ralph)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

func applyRPCDefaults(cfg *RPCConfig) {
	if cfg.Transport == "" {
		cfg.Transport = "stdio"
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.DefaultAgentID == "" {
		cfg.DefaultAgentID = "main"
	}
	if cfg.RolloutDir == "" {
		cfg.RolloutDir = "rollouts"
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 1000
	}
	if cfg.Expiry == 0 {
		cfg.Expiry = 24 * time.Hour
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 20000
	}
	if cfg.AgentsFile == "" {
		cfg.AgentsFile = "AGENTS.md"
	}
}

// DefaultWorkspaceConfig returns a workspace config with defaults applied.
func DefaultWorkspaceConfig() WorkspaceConfig {
	cfg := WorkspaceConfig{}
	applyWorkspaceDefaults(&cfg)
	return cfg
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Execution.MaxIterations == 0 {
		cfg.Execution.MaxIterations = 50
	}
	if cfg.Execution.Parallelism == 0 {
		cfg.Execution.Parallelism = 5
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 30 * time.Second
	}
	if cfg.Execution.MaxAttempts == 0 {
		cfg.Execution.MaxAttempts = 2
	}
	if cfg.Execution.RetryBackoff == 0 {
		cfg.Execution.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.Approval.DefaultDecision == "" {
		cfg.Approval.DefaultDecision = "pending"
	}
	if cfg.Approval.InteractiveWait == 0 {
		cfg.Approval.InteractiveWait = 300 * time.Second
	}
	if cfg.Jobs.Retention == 0 {
		cfg.Jobs.Retention = 24 * time.Hour
	}
	if cfg.Jobs.PruneInterval == 0 {
		cfg.Jobs.PruneInterval = time.Hour
	}
}

func applyTaskDefaults(cfg *BackgroundTaskConfig) {
	if cfg.MaxTotalTasks == 0 {
		cfg.MaxTotalTasks = 10
	}
	if cfg.DefaultConcurrency == 0 {
		cfg.DefaultConcurrency = 5
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "tasks"
	}
}

func applyRalphDefaults(cfg *RalphConfig) {
	if cfg.SessionExpiry == 0 {
		cfg.SessionExpiry = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MaxConfidence == 0 {
		cfg.MaxConfidence = 100
	}
	if cfg.ZeroChangeLimit == 0 {
		cfg.ZeroChangeLimit = 3
	}
	if cfg.RepeatedErrorLimit == 0 {
		cfg.RepeatedErrorLimit = 5
	}
	if cfg.OutputDeclinePct == 0 {
		cfg.OutputDeclinePct = 0.7
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_JWT_SECRET")); value != "" {
		cfg.RPC.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		setProviderKey(cfg, "anthropic", value)
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		setProviderKey(cfg, "openai", value)
	}
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]LLMProviderConfig)
	}
	entry := cfg.LLM.Providers[provider]
	entry.APIKey = key
	cfg.LLM.Providers[provider] = entry
}

// ConfigValidationError reports one or more validation failures.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if cfg.Database.URL != "" && cfg.Database.Driver == "" {
		issues = append(issues, "database.driver is required when database.url is set")
	}
	if cfg.Tools.Approval.DefaultDecision != "allowed" &&
		cfg.Tools.Approval.DefaultDecision != "denied" &&
		cfg.Tools.Approval.DefaultDecision != "pending" {
		issues = append(issues, fmt.Sprintf("tools.approval.default_decision: invalid value %q", cfg.Tools.Approval.DefaultDecision))
	}
	if cfg.Tasks.MaxTotalTasks < 0 {
		issues = append(issues, "tasks.max_total_tasks must be >= 0")
	}
	if cfg.Tasks.DefaultConcurrency < 0 {
		issues = append(issues, "tasks.default_concurrency must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
