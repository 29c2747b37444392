package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/auth"
)

// tokenCmd issues a bearer token for local testing. Production tokens come
// from the session service sharing JWT_SECRET.
func tokenCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).Generate(memberID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id to issue the token for")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
