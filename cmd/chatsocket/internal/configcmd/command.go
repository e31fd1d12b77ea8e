package configcmd

import (
	"github.com/spf13/cobra"

	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal"
)

const redacted = "REDACTED"

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as TOML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Realtime.Credential != "" {
				cfg.Realtime.Credential = redacted
			}
			if cfg.Relay.JWTSecret != "" {
				cfg.Relay.JWTSecret = redacted
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return cmd
}
