package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/service/server"
	"github.com/oshokin/shake-couplet/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the browser bridge listen address.
	httpAddress string
	// recordPath is the CSV file receiving every sample.
	recordPath string
	// simulate adds the built-in shaker as an input.
	simulate bool
	// followTrace tails trace_file from the configuration.
	followTrace bool

	// rootCmd represents the base command for running the shake server.
	rootCmd = &cobra.Command{
		Use:   "shake-server [grpc-listen-address]",
		Short: "Detect shakes from every connected motion source.",
		Long: `Runs one shake detector fed by all motion inputs and fans its shakes out.

Samples arrive over gRPC Push streams, the browser page WebSocket, NATS and the
optional local inputs (simulated shaker, followed trace file). Each accepted shake
is sent to gRPC Watch streams, browser clients and the NATS shake subject.
Only the port from the configured addresses is used for listening; the gRPC
listen address can be provided as argument (e.g., :9090, 0.0.0.0:50061).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var grpcAddress string
			if len(args) > 0 {
				grpcAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:  configPath,
				GRPCAddress: grpcAddress,
				HTTPAddress: httpAddress,
				RecordPath:  recordPath,
				Simulate:    simulate,
				FollowTrace: followTrace,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the shake-server CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVar(&httpAddress, "http", "", "browser page listen address, overrides http_addr")
	rootCmd.Flags().StringVarP(&recordPath, "record", "r", "", "append every received sample to this CSV trace")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "add the simulated shaker as a motion input")
	rootCmd.Flags().BoolVar(&followTrace, "follow-trace", false, "follow trace_file as a motion input")
}
