package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/service/page"
	"github.com/oshokin/shake-couplet/internal/source"
	"github.com/oshokin/shake-couplet/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// sourceName selects the local motion source.
	sourceName string
	// logFile receives the logs while the page is shown.
	logFile string
	// replace stops a page that is already running.
	replace bool
	// mute disables the chime.
	mute bool

	// rootCmd represents the base command for the terminal page.
	rootCmd = &cobra.Command{
		Use:   "shake-page [server-address]",
		Short: "Shake to draw a New Year couplet.",
		Long: `Shows the couplet page in the terminal.

Without arguments shakes are detected locally from the selected motion source.
With a server address the page follows the server's shake stream instead.
Keys: space reveals at once, s shares, a shakes again, q or Esc quits.
Logs go to a file because the page owns the terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise detect locally.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &page.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Source:        sourceName,
				LogFile:       logFile,
				Replace:       replace,
				Mute:          mute,
			}

			return page.Run(ctx, options)
		},
	}
)

// Execute runs the shake-page CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&sourceName, "source", "s", string(source.KindSim),
		fmt.Sprintf("local motion source: %s", strings.Join(source.Kinds(), ", ")))
	rootCmd.Flags().StringVarP(&logFile, "log-file", "l", page.DefaultLogFile, "file receiving the logs")
	rootCmd.Flags().BoolVar(&replace, "replace", false, "stop a page that is already running")
	rootCmd.Flags().BoolVarP(&mute, "mute", "m", false, "do not play the chime")
}
