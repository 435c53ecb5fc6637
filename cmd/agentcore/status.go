package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecraft-labs/agentcore/internal/config"
)

func buildStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rpc transport:   %s\n", cfg.RPC.Transport)
			fmt.Fprintf(out, "default llm:     %s\n", cfg.LLM.DefaultProvider)
			fmt.Fprintf(out, "workspace:       %s\n", cfg.Workspace.Path)
			fmt.Fprintf(out, "rollout dir:     %s\n", cfg.Session.RolloutDir)
			fmt.Fprintf(out, "sandbox enabled: %v\n", cfg.Tools.Sandbox.Enabled)
			fmt.Fprintf(out, "ralph enabled:   %v\n", cfg.Ralph.Enabled)
			return nil
		},
	}
}
