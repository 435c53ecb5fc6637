// Package main provides the agentcore CLI entry point.
//
// agentcore runs a single agent session as a JSON-RPC stdio server: an
// editor integration or terminal UI drives it over stdin/stdout with
// line-delimited JSON-RPC requests (chat, cancel, status, session.create,
// session.list, model.list, tool.approve, tool.reject) and receives
// chat.event notifications (chunk, tool_call, approval_required, done) as
// the agent works.
//
// # Basic Usage
//
// Start the server:
//
//	agentcore serve --config agentcore.yaml
//
// # Environment Variables
//
//   - AGENTCORE_CONFIG: path to configuration file (default: agentcore.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "agentcore",
		Short:   "agentcore - single-agent coding session server",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `agentcore drives one agent session (model loop, tool orchestration,
background tasks, rollout recording) behind a JSON-RPC stdio protocol.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildServeCmd(&configPath),
		buildStatusCmd(&configPath),
	)
	return rootCmd
}
