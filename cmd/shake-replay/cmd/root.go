package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/service/replay"
	"github.com/oshokin/shake-couplet/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// serverAddress overrides grpc_addr from the configuration.
	serverAddress string
	// speed scales the recorded timing.
	speed float64

	// rootCmd represents the base command for replaying a trace.
	rootCmd = &cobra.Command{
		Use:   "shake-replay [trace-file]",
		Short: "Stream a recorded accelerometer trace to the shake server.",
		Long: `Reads a CSV accelerometer trace and pushes its samples to the server,
keeping the recorded spacing between them (scaled by --speed, 0 sends at once).

The trace file can be provided as argument or loaded from trace_file in the
configuration. A failed replay is retried until one completes or the process
is interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var tracePath string
			if len(args) > 0 {
				tracePath = args[0]
			}

			options := &replay.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				TracePath:     tracePath,
				Speed:         speed,
			}

			return replay.Run(ctx, options)
		},
	}
)

// Execute runs the shake-replay CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	logger.AttachCobraLevelFlag(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&serverAddress, "server", "a", "", "server address, overrides grpc_addr")
	rootCmd.Flags().Float64VarP(&speed, "speed", "x", 1, "replay speed, 1 is real time, 0 sends at once")
}
