package watcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	pb "github.com/oshokin/shake-couplet/internal/pb/v1"
	"github.com/oshokin/shake-couplet/internal/service/common"
)

// Options controls the watcher reconnect behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// ReconnectInterval defines the pause between two connection attempts.
	ReconnectInterval time.Duration
	// Limit stops the watcher after that many shakes. Zero watches forever.
	Limit int
	// Command is run, without a shell, after every shake.
	Command []string
}

// DefaultReconnectInterval defines the fixed delay before reconnecting.
const DefaultReconnectInterval = 5 * time.Second

// errLimitReached stops the Watch stream once enough shakes were seen.
var errLimitReached = errors.New("shake limit reached")

// stream is the part of common.Client used by the watcher.
type stream interface {
	State(ctx context.Context) (*structpb.Struct, error)
	Watch(ctx context.Context, fn func(at time.Time)) error
}

// Run follows the shake stream until the context is canceled or the limit is reached.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-watch")

	// Load settings from configuration file.
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Use default reconnect interval unless overridden.
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}

	// Determine server address: command line argument overrides config.
	serverAddress := cfg.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// The connection is lazy, so Dial only fails on a malformed address.
	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Watching shakes",
		"server_address", serverAddress,
		"reconnect_interval", opts.ReconnectInterval.String(),
	)

	return watch(ctx, client, opts)
}

// watch runs the reconnect loop. It returns nil on cancellation and when the limit is reached.
func watch(ctx context.Context, client stream, opts *Options) error {
	var seen int

	onShake := func(at time.Time) {
		seen++

		logger.InfoKV(ctx, "Shake", "at", at.Local().Format(time.RFC3339Nano), "count", seen)

		runCommand(ctx, opts.Command)
	}

	// Connect immediately, then retry on a fixed ticker.
	ticker := time.NewTicker(opts.ReconnectInterval)
	defer ticker.Stop()

	for {
		err := session(ctx, client, opts.Limit, &seen, onShake)

		switch {
		case ctx.Err() != nil:
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case errors.Is(err, errLimitReached):
			logger.InfoKV(ctx, "Shake limit reached, exiting", "limit", opts.Limit)
			return nil
		case err != nil:
			logger.ErrorKV(ctx, "Watch failed, will reconnect", "error", err)
		default:
			logger.Warn(ctx, "Server closed the stream, will reconnect")
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
		}
	}
}

// session runs one connection: it reports the detector state, then streams shakes.
func session(ctx context.Context, client stream, limit int, seen *int, onShake func(time.Time)) error {
	state, err := client.State(ctx)
	if err != nil {
		return err
	}

	fields := state.GetFields()
	logger.InfoKV(ctx, "Connected to detector",
		"running", fields[pb.FieldRunning].GetBoolValue(),
		"threshold", fields[pb.FieldThreshold].GetNumberValue(),
		"timeout_ms", fields[pb.FieldTimeoutMs].GetNumberValue(),
		"emitted", fields[pb.FieldEmitted].GetNumberValue(),
	)

	if limit <= 0 {
		return client.Watch(ctx, onShake)
	}

	// Cancel the stream from inside the callback once the limit is hit.
	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	err = client.Watch(streamCtx, func(at time.Time) {
		onShake(at)

		if *seen >= limit {
			cancel(errLimitReached)
		}
	})

	if cause := context.Cause(streamCtx); errors.Is(cause, errLimitReached) {
		return errLimitReached
	}

	return err
}

// runCommand executes the post-shake hook. Failures are logged only.
func runCommand(ctx context.Context, command []string) {
	if len(command) == 0 {
		return
	}

	//nolint:gosec // The command comes from the operator's own command line.
	output, err := exec.CommandContext(ctx, command[0], command[1:]...).CombinedOutput()
	if err != nil {
		logger.WarnKV(ctx, "Shake command failed", "command", command[0], "error", err, "output", string(output))
		return
	}

	logger.DebugKV(ctx, "Shake command finished", "command", command[0], "output", string(output))
}
