package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/service/watcher"
	"github.com/oshokin/shake-couplet/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// watchOptions holds the flags forwarded to the watcher.
	watchOptions watcher.Options

	// rootCmd represents the base command for following shakes.
	rootCmd = &cobra.Command{
		Use:   "shake-watch [server-address] [-- command args...]",
		Short: "Log every shake detected by the server.",
		Long: `Connects to the shake server and logs each accepted shake.

The current detector state is printed on every connection. When the stream
breaks the watcher reconnects on a fixed interval. An optional command given
after -- is executed, without a shell, for every shake.
Server address can be provided as argument or loaded from configuration file.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Arguments before -- name the server, the rest is the hook command.
			positional := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
				watchOptions.Command = args[dash:]
			}

			if len(positional) > 1 {
				return cobra.MaximumNArgs(1)(cmd, positional)
			}

			if len(positional) > 0 {
				watchOptions.ServerAddress = positional[0]
			}

			watchOptions.ConfigPath = configPath

			return watcher.Run(ctx, &watchOptions)
		},
	}
)

// Execute runs the shake-watch CLI and exits with non-zero status on error.
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
	rootCmd.Flags().DurationVarP(&watchOptions.ReconnectInterval, "reconnect", "r",
		watcher.DefaultReconnectInterval, "pause between two connection attempts")
	rootCmd.Flags().IntVarP(&watchOptions.Limit, "limit", "n", 0, "exit after this many shakes, 0 watches forever")
}
