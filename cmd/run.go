// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
	"github.com/Activer007/computer-use-ootb/internal/observability"
	"github.com/Activer007/computer-use-ootb/internal/service"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run \"instruction\"",
		Short: "Runs one desktop task to completion",
		Long: `Runs the perception-inference-action loop for a single natural-language
instruction, printing each step as it happens. Ctrl-C cancels the task
cooperatively: the current gesture finishes, then the loop stops.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("capture.pixel_budget", cmd.Flags().Lookup("pixel-budget")); err != nil {
				return err
			}
			if err := viper.BindPFlag("capture.save_dir", cmd.Flags().Lookup("save-dir")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Context from main.go is signal-aware: Ctrl-C cancels it.
			ctx := cmd.Context()
			logger := observability.GetLogger()
			instruction := args[0]

			// Re-load so the flag overrides bound in PreRunE take effect.
			loaded, err := reloadConfig()
			if err != nil {
				return err
			}

			watchAddr, _ := cmd.Flags().GetString("watch-addr")

			components, err := service.NewAgentComponents(ctx, loaded, logger, watchAddr != "")
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			runCtx, stopFeed := context.WithCancel(ctx)
			defer stopFeed()

			g, gctx := errgroup.WithContext(runCtx)
			if watchAddr != "" {
				g.Go(func() error {
					return serveEventFeed(gctx, watchAddr, components, logger)
				})
			}

			events, err := components.Orchestrator.RunTask(gctx, instruction)
			if err != nil {
				return err
			}

			var last schemas.AgentEvent
			for ev := range events {
				printEvent(ev)
				last = ev
			}

			// The task is over; release the event feed and collect its error.
			stopFeed()
			if err := g.Wait(); err != nil {
				logger.Warn("Event feed exited with error", zap.Error(err))
			}

			switch last.Status {
			case schemas.TaskDone:
				fmt.Println("\nTask complete.")
				return nil
			case schemas.TaskCancelled:
				if errors.Is(ctx.Err(), context.Canceled) {
					logger.Warn("Task aborted by user signal")
				}
				return fmt.Errorf("task cancelled")
			default:
				return fmt.Errorf("task failed: %s", last.Err)
			}
		},
	}

	runCmd.Flags().Int("max-iterations", 0, "Maximum loop iterations. (Overrides config/env)")
	runCmd.Flags().Int("pixel-budget", 0, "Downsample pixel budget. (Overrides config/env)")
	runCmd.Flags().String("save-dir", "", "Directory to save downsampled frames. (Overrides config/env)")
	runCmd.Flags().String("watch-addr", "", "Address for a live websocket event feed, e.g. 127.0.0.1:8090")

	return runCmd
}

// reloadConfig re-unmarshals after flag binding so command-line flags
// override file and env values with the right precedence.
func reloadConfig() (*config.Config, error) {
	loaded, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to re-load config with flag overrides: %w", err)
	}
	return loaded, nil
}

// printEvent renders one loop event for the terminal.
func printEvent(ev schemas.AgentEvent) {
	line := fmt.Sprintf("[%03d] %-10s", ev.Seq, ev.State)
	if ev.Decision != nil {
		line += "  " + ev.Decision.String()
	}
	if ev.Action != nil {
		line += fmt.Sprintf("  @(%d,%d) monitor %d", ev.Action.Point.X, ev.Action.Point.Y, ev.Action.MonitorID)
	}
	if ev.Outcome != nil && !ev.Outcome.OK {
		line += "  outcome: " + ev.Outcome.Reason
	}
	if ev.Err != "" {
		line += "  error: " + ev.Err
	}
	if ev.Status != schemas.TaskRunning {
		line += fmt.Sprintf("  => %s", ev.Status)
	}
	fmt.Println(line)
}

// serveEventFeed hosts the websocket endpoint a viewer connects to.
func serveEventFeed(ctx context.Context, addr string, components *service.Components, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", components.Hub.HandleWS)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("Event feed listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("event feed: %w", err)
	}
	return nil
}
