package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/repository/trace"
	"github.com/oshokin/shake-couplet/internal/service/common"
)

// Options configures a replay.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// TracePath is the CSV trace to replay. Empty uses trace_file from the config.
	TracePath string
	// Speed scales the recorded timing: 1 replays in real time, 2 twice as fast,
	// 0 sends every sample immediately.
	Speed float64
}

// defaultRetryInterval defines the delay between two replay attempts.
const defaultRetryInterval = 1 * time.Second

var (
	// errNoTrace is returned when neither the flag nor the config names a trace.
	errNoTrace = errors.New("no trace file given")
	// errNegativeSpeed is returned for a speed below zero.
	errNegativeSpeed = errors.New("speed must not be negative")
	// errEmptyTrace is returned for a trace without samples.
	errEmptyTrace = errors.New("trace holds no samples")
)

// pusher is the sample stream used by replay.
type pusher interface {
	Send(sample motion.Sample) error
	Close() (accepted, rejected int, err error)
}

// Run loads the trace and pushes it, retrying until one complete replay succeeds or ctx ends.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-replay")

	if opts.Speed < 0 {
		return errNegativeSpeed
	}

	// Load settings from configuration file.
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return err
	}

	tracePath := cfg.TraceFile
	if opts.TracePath != "" {
		tracePath = opts.TracePath
	}

	if tracePath == "" {
		return errNoTrace
	}

	records, err := trace.NewFileRepository(tracePath).Load(ctx)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}

	if len(records) == 0 {
		return errEmptyTrace
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Replaying trace",
		"server_address", serverAddress,
		"trace", tracePath,
		"samples", humanize.Comma(int64(len(records))),
		"duration", records[len(records)-1].Offset.String(),
		"speed", opts.Speed,
	)

	return retry(ctx, defaultRetryInterval, func() error {
		p, err := client.Push(ctx)
		if err != nil {
			return err
		}

		return replay(ctx, p, records, opts.Speed)
	})
}

// retry runs attempt immediately and then on every tick until it succeeds.
// Failures are logged; only cancellation ends the loop with an error.
func retry(ctx context.Context, interval time.Duration, attempt func() error) error {
	err := attempt()
	if err == nil {
		return nil
	}

	// Setup retry timer for subsequent attempts.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.ErrorKV(ctx, "Replay failed, retrying", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err = attempt(); err == nil {
				return nil
			}
		}
	}
}

// replay sends records on their recorded schedule scaled by speed and closes the stream.
func replay(ctx context.Context, p pusher, records []trace.Record, speed float64) error {
	start := time.Now()

	for _, record := range records {
		if speed > 0 {
			due := start.Add(time.Duration(float64(record.Offset) / speed))
			if err := sleepUntil(ctx, due); err != nil {
				return err
			}
		}

		if err := p.Send(record.Sample); err != nil {
			return err
		}
	}

	accepted, rejected, err := p.Close()
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Trace replayed", "accepted", accepted, "rejected", rejected,
		"elapsed", time.Since(start).Round(time.Millisecond).String())

	return nil
}

// sleepUntil waits for due or ctx, whichever comes first.
func sleepUntil(ctx context.Context, due time.Time) error {
	wait := time.Until(due)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
