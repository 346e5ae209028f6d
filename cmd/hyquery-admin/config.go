package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyvote/hyquery/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate HyQuery configuration",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <server-data-dir>",
		Short: "Load, default-fill, and validate a HyQuery config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverData := args[0]

			cfg, err := config.Load(serverData)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			for _, w := range cfg.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}

			if cfg.Network.Enabled && cfg.Network.Coordinator == "redis" && !cfg.Network.Redis.RequireAvailable {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: network.redis.requireAvailable=false is accepted but ignored; fail-closed semantics always apply")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "config OK: v1=%t v2=%t network=%t role=%s coordinator=%s\n",
				cfg.V1Enabled, cfg.V2Enabled, cfg.Network.Enabled, cfg.Network.Role, cfg.Network.Coordinator)
			return nil
		},
	}
}
