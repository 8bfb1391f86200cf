package logger

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestAttachCobraLevelFlag changes the global level, so it does not run in parallel.
func TestAttachCobraLevelFlag(t *testing.T) {
	previous := Level()
	t.Cleanup(func() { SetLevel(previous) })

	var chained bool

	root := &cobra.Command{
		Use: "level-test",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			chained = true
			return nil
		},
		RunE: func(*cobra.Command, []string) error { return nil },
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	AttachCobraLevelFlag(root)

	root.SetArgs([]string{"--log-level", "debug"})
	require.NoError(t, root.Execute())
	require.Equal(t, zapcore.DebugLevel, Level())
	require.True(t, chained)

	root.SetArgs([]string{"--log-level", "loud"})
	require.ErrorIs(t, root.Execute(), errUnknownLevel)
}
