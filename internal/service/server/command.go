package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/shake-couplet/internal/api/grpc/shake"
	"github.com/oshokin/shake-couplet/internal/api/ws"
	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/source/natsbus"
	"github.com/oshokin/shake-couplet/internal/source/sim"
	"github.com/oshokin/shake-couplet/internal/source/trace"
	"github.com/oshokin/shake-couplet/internal/version"
)

const (
	// readHeaderTimeout bounds slow HTTP clients.
	readHeaderTimeout = 5 * time.Second
	// hubBuffer is the number of shakes the browser bridge may lag behind before events are dropped.
	hubBuffer = 16
)

// Options controls the shake-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// GRPCAddress provides an optional listen address override for the gRPC server.
	GRPCAddress string
	// HTTPAddress provides an optional listen address override for the browser bridge.
	HTTPAddress string
	// RecordPath, when set, records the samples of every stream into a CSV trace of its own.
	RecordPath string
	// Simulate feeds the detector from the built-in shaker simulation.
	Simulate bool
	// FollowTrace tails the configured trace file as an extra input.
	FollowTrace bool
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the gRPC server, the browser bridge and the optional NATS bridge,
// and blocks until the context is canceled or one of them fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-server")

	settings, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	grpcAddress, err := resolveListenAddress(settings.GRPCAddress, opts.GRPCAddress)
	if err != nil {
		return fmt.Errorf("resolve gRPC address: %w", err)
	}

	httpAddress, err := resolveListenAddress(settings.HTTPAddress, opts.HTTPAddress)
	if err != nil {
		return fmt.Errorf("resolve HTTP address: %w", err)
	}

	svc, err := newService(ctx, settings, opts.RecordPath)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		if stopErr := svc.stop(ctx); stopErr != nil {
			logger.ErrorKV(ctx, "Failed to release motion inputs", "error", stopErr)
		}
	}()

	if err = attachInputs(ctx, svc, settings, opts); err != nil {
		return err
	}

	if err = svc.start(); err != nil {
		return fmt.Errorf("start detector: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// Browser bridge.
	hub := ws.NewHub(groupCtx, svc, nil)

	// Pages are written to off the detector's dispatch path.
	events := svc.bus.Listen(groupCtx, hubBuffer)

	group.Go(func() error {
		hub.Follow(events)
		return nil
	})

	httpServer := &http.Server{
		Addr:              httpAddress,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return groupCtx },
	}

	// gRPC transport; Watch streams end with groupCtx so GracefulStop can finish.
	grpcServer := grpc.NewServer()
	api.NewServer(groupCtx, svc, svc.bus, svc.detector).Register(grpcServer)

	lc := net.ListenConfig{}

	grpcListener, err := lc.Listen(ctx, "tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", grpcAddress, err)
	}

	httpListener, err := lc.Listen(ctx, "tcp", httpAddress)
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("listen on %s: %w", httpAddress, err)
	}

	logger.InfoKV(ctx, "Shake server listening",
		"grpc_address", grpcAddress,
		"http_address", httpAddress,
		"threshold", svc.detector.Options().Threshold,
		"timeout", svc.detector.Options().Timeout,
	)

	group.Go(func() error {
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down servers")

		hub.Close()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Shake server stopped")

	return nil
}

// attachInputs connects the optional local motion inputs and the NATS bridge.
func attachInputs(ctx context.Context, svc *service, settings *config.Config, opts *Options) error {
	if opts.Simulate {
		simulator, err := sim.New(ctx, sim.DefaultConfig())
		if err != nil {
			return fmt.Errorf("create simulator: %w", err)
		}

		if err = svc.attach(ctx, "sim", simulator, nil); err != nil {
			return err
		}
	}

	if opts.FollowTrace && settings.TraceFile != "" {
		if err := svc.attach(ctx, "trace", trace.NewFollower(ctx, settings.TraceFile), nil); err != nil {
			return err
		}
	}

	if settings.NATS.URL == "" {
		return nil
	}

	conn, err := natsbus.Connect(ctx, settings.NATS.URL, version.UserAgent("shake-server"))
	if err != nil {
		return err
	}

	source := natsbus.NewSource(ctx, conn, settings.NATS.SampleSubject)
	available := source.Available()

	// attach closes conn when the source is unavailable or its subscription fails.
	if err = svc.attach(ctx, "nats", source, conn); err != nil || !available {
		return err
	}

	svc.bus.Subscribe(natsbus.NewPublisher(ctx, conn, settings.NATS.ShakeSubject))

	return nil
}

// resolveListenAddress determines a listen address.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	// Use override address if provided (e.g., ":9090", "0.0.0.0:8080").
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Parse the address to extract port.
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Return port-only listen address to bind on all interfaces.
	return ":" + port, nil
}
