package page

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/shake-couplet/internal/audio"
	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/pageflow"
	"github.com/oshokin/shake-couplet/internal/presenter/terminal"
	"github.com/oshokin/shake-couplet/internal/service/common"
	"github.com/oshokin/shake-couplet/internal/service/instance"
	"github.com/oshokin/shake-couplet/internal/shake"
	"github.com/oshokin/shake-couplet/internal/source"
)

// Options controls the shake-page process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress, when set, takes shakes from a remote server instead of a local detector.
	ServerAddress string
	// Source names the local motion source.
	Source string
	// LogFile receives the logs while the terminal is in use.
	LogFile string
	// Replace stops an already running page instead of refusing to start.
	Replace bool
	// Mute disables the chime even when audio is enabled in the settings.
	Mute bool
}

const (
	// DefaultLogFile is used when no log file is given.
	DefaultLogFile = "shake-page.log"
	// DefaultReconnectInterval is the pause between two Watch attempts.
	DefaultReconnectInterval = 2 * time.Second
)

// Run shows the page until the user quits or the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	logFile := opts.LogFile
	if logFile == "" {
		logFile = DefaultLogFile
	}

	// The terminal owns stdout and stderr, so the logger is replaced before
	// the context captures it.
	closeLog, err := logger.RedirectToFile(logFile)
	if err != nil {
		return err
	}

	defer func() {
		_ = closeLog()
	}()

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-page")

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err = instance.New().Ensure(ctx, instance.Executable(), opts.Replace); err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}

	if err = screen.Init(); err != nil {
		return fmt.Errorf("initialize terminal: %w", err)
	}

	defer screen.Fini()

	bus := shake.NewBus()

	group, groupCtx := errgroup.WithContext(ctx)
	pageCtx, stopPage := context.WithCancel(groupCtx)

	defer stopPage()

	if opts.ServerAddress != "" {
		client, dialErr := common.Dial(ctx, opts.ServerAddress, common.WithCallTimeout(cfg.Timeout))
		if dialErr != nil {
			return fmt.Errorf("dial server: %w", dialErr)
		}

		defer func() {
			_ = client.Close()
		}()

		logger.InfoKV(ctx, "Following remote shakes", "server_address", opts.ServerAddress)

		group.Go(func() error {
			return follow(pageCtx, client, bus, DefaultReconnectInterval)
		})
	} else {
		stopDetector, detectErr := detectLocally(ctx, cfg, opts.Source, bus)
		if detectErr != nil {
			return detectErr
		}

		defer stopDetector()
	}

	chime := audio.Open(ctx, cfg.Audio && !opts.Mute)
	defer chime.Close()

	group.Go(func() error {
		defer stopPage()

		return show(pageCtx, screen, bus, chime, pageflow.Timings{})
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Page closed")

	return nil
}

// detectLocally starts a detector on the selected source and returns the function stopping it.
func detectLocally(
	ctx context.Context,
	cfg *config.Config,
	sourceName string,
	dispatcher shake.Dispatcher,
) (func(), error) {
	kind, err := source.ParseKind(sourceName)
	if err != nil {
		return nil, err
	}

	src, closer, err := source.Open(ctx, kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", kind, err)
	}

	detector, err := shake.New(ctx, dispatcher, src, cfg.DetectorOptions()...)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("create detector: %w", err)
	}

	if err = detector.Start(); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("start detector: %w", err)
	}

	logger.InfoKV(ctx, "Detecting shakes locally", "source", kind, "available", src.Available())

	return func() {
		detector.Stop()
		closeQuietly(ctx, closer)
	}, nil
}

// show runs the page flow on screen until the user quits or ctx ends.
func show(
	ctx context.Context,
	screen tcell.Screen,
	shakes pageflow.ShakeSource,
	chime pageflow.Chime,
	timings pageflow.Timings,
) error {
	presenter := terminal.New(screen)

	controller, err := pageflow.NewController(ctx, pageflow.Options{
		Presenter: presenter,
		Shakes:    shakes,
		Chime:     chime,
		Timings:   timings,
	})
	if err != nil {
		return err
	}

	defer controller.Close()

	if err = controller.Boot(); err != nil {
		return err
	}

	return presenter.Run(ctx, controller)
}

// watcher is the part of common.Client used to follow a remote detector.
type watcher interface {
	Watch(ctx context.Context, fn func(at time.Time)) error
}

// follow turns the remote shake stream into local events, reconnecting after failures.
func follow(ctx context.Context, client watcher, dispatcher shake.Dispatcher, interval time.Duration) error {
	var seq uint64

	onShake := func(at time.Time) {
		seq++
		dispatcher.Dispatch(motion.NewEvent(at, seq))
	}

	for {
		err := client.Watch(ctx, onShake)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			logger.WarnKV(ctx, "Watch failed, will reconnect", "error", err)
		} else {
			logger.Warn(ctx, "Server closed the stream, will reconnect")
		}

		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func closeQuietly(ctx context.Context, closer io.Closer) {
	if err := closer.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close motion source", "error", err)
	}
}
