// File: cmd/bridge.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/internal/observability"
	"github.com/Activer007/computer-use-ootb/internal/service"
)

// newBridgeCmd creates and configures the `bridge` command.
func newBridgeCmd() *cobra.Command {
	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serves the remote inference relay",
		Long: `Runs the stateless HTTP relay that performs model inference on behalf of
agents whose host cannot reach the provider directly. The relay holds the
provider credentials; agents send screenshots and receive decisions.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("bridge.host", cmd.Flags().Lookup("host")); err != nil {
				return err
			}
			return viper.BindPFlag("bridge.port", cmd.Flags().Lookup("port"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			loaded, err := reloadConfig()
			if err != nil {
				return err
			}

			srv, err := service.NewBridgeServer(loaded, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize bridge: %w", err)
			}

			logger.Info("Bridge starting",
				zap.String("host", loaded.Bridge.Host),
				zap.Int("port", loaded.Bridge.Port))

			// Blocks until the signal-aware context is cancelled.
			return srv.Start(ctx)
		},
	}

	bridgeCmd.Flags().String("host", "", "Listen host. (Overrides config/env)")
	bridgeCmd.Flags().Int("port", 0, "Listen port. (Overrides config/env)")

	return bridgeCmd
}
