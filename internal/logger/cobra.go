package logger

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraLevelFlag adds a persistent --log-level flag to root and applies it
// before any subcommand runs.
func AttachCobraLevelFlag(root *cobra.Command) {
	var level string

	root.PersistentFlags().StringVar(&level, "log-level", Level().String(),
		"log level: debug, info, warn, error")

	next := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		parsed, ok := ParseLogLevel(level)
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownLevel, level)
		}

		SetLevel(parsed)

		if next != nil {
			return next(cmd, args)
		}

		return nil
	}
}
