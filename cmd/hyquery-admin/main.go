// Command hyquery-admin is a small operator CLI for HyQuery: validating a
// config file, minting/verifying challenge tokens by hand, and querying a
// running primary's registry over the wire. Built with spf13/cobra,
// scaled down to the handful of subcommands an operator needs (§6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Flags double as env vars (HYQUERY_<FLAG>) via viper.
	viper.SetEnvPrefix("hyquery")
	viper.AutomaticEnv()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hyquery-admin",
		Short: "Operator tooling for HyQuery servers",
	}
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newRegistryCmd())
	return root
}
