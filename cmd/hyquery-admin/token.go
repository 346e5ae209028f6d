package main

import (
	"encoding/hex"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyvote/hyquery/internal/challenge"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or verify HyQuery V2 challenge tokens",
	}

	var secret string
	var validitySeconds int

	mint := &cobra.Command{
		Use:   "mint <addr>",
		Short: "Mint a challenge token for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip := net.ParseIP(args[0])
			if ip == nil {
				return fmt.Errorf("not a valid IP address: %q", args[0])
			}
			if secret == "" {
				secret = viper.GetString("challenge_secret")
			}
			svc, err := challenge.New(secret, validitySeconds)
			if err != nil {
				return err
			}
			token := svc.Mint(ip)
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(token[:]))
			return nil
		},
	}
	mint.Flags().StringVar(&secret, "secret", "", "HMAC secret (empty generates an ephemeral one, only useful for inspection)")
	mint.Flags().IntVar(&validitySeconds, "validity-seconds", challenge.WindowSeconds, "token validity window in seconds")

	verify := &cobra.Command{
		Use:   "verify <addr> <hex-token>",
		Short: "Verify a challenge token for an address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip := net.ParseIP(args[0])
			if ip == nil {
				return fmt.Errorf("not a valid IP address: %q", args[0])
			}
			raw, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("decoding token hex: %w", err)
			}
			if secret == "" {
				secret = viper.GetString("challenge_secret")
			}
			svc, err := challenge.New(secret, validitySeconds)
			if err != nil {
				return err
			}
			if svc.Verify(raw, ip) {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "invalid")
			return nil
		},
	}
	verify.Flags().StringVar(&secret, "secret", "", "HMAC secret used to mint the token")
	verify.Flags().IntVar(&validitySeconds, "validity-seconds", challenge.WindowSeconds, "token validity window in seconds")

	cmd.AddCommand(mint, verify)
	return cmd
}
