package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal"
	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal/configcmd"
	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal/connect"
	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal/serve"
	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal/token"
)

func NewChatsocketCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatsocket",
		Short:         "Realtime chat client and development relay",
		Example:       "chatsocket serve --addr :3001",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&internal.ConfigPath, "config", "", "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&internal.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		serve.NewServeCommand(),
		connect.NewConnectCommand(),
		token.NewTokenCommand(),
		configcmd.NewConfigCommand(),
	)

	return cmd
}

func main() {
	cmd := NewChatsocketCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
