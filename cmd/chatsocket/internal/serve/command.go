package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal"
	"github.com/orchestra-mcp/chatsocket/providers"
)

func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development relay",
		Args:  cobra.NoArgs,
		Example: `  chatsocket serve
  chatsocket serve --addr 127.0.0.1:4000`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := internal.Setup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Relay.Addr = addr
			}

			relay := providers.NewRelayServer(&cfg.Relay, logger)
			if err := relay.Activate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- relay.ListenAndServe() }()

			select {
			case err := <-errCh:
				_ = relay.Deactivate()
				return err
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
			}
			return relay.Deactivate()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides relay.addr)")

	return cmd
}
