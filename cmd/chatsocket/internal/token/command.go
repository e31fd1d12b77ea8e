package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal"
	"github.com/orchestra-mcp/chatsocket/src/auth"
)

func NewTokenCommand() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "token <user-id>",
		Short:   "Mint a relay token signed with relay.jwt_secret",
		Args:    cobra.ExactArgs(1),
		Example: `  CHATSOCKET_RELAY_JWT_SECRET=dev chatsocket token alice --name Alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Relay.JWTSecret == "" {
				return errors.New("relay.jwt_secret is not set; without it the relay accepts the user ID as the token")
			}
			tok, err := auth.Mint(cfg.Relay.JWTSecret, args[0], name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
