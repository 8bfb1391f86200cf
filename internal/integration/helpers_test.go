package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-couplet/internal/config"
	pb "github.com/oshokin/shake-couplet/internal/pb/v1"
	"github.com/oshokin/shake-couplet/internal/service/common"
	"github.com/oshokin/shake-couplet/internal/service/server"
)

// testServer is a shake-server running in the background.
type testServer struct {
	grpcAddress string
	httpAddress string
	configPath  string
}

// reservePort returns a free local address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startServer writes a temporary configuration and runs the server until the test ends.
// Debouncing is disabled so consecutive shakes are all accepted.
func startServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		grpcAddress: reservePort(t),
		httpAddress: reservePort(t),
		configPath:  filepath.Join(t.TempDir(), "settings.yaml"),
	}

	noDebounce := int64(0)

	require.NoError(t, config.Save(ts.configPath, &config.Config{
		Detector:    config.Detector{Threshold: 15, TimeoutMs: &noDebounce},
		GRPCAddress: ts.grpcAddress,
		HTTPAddress: ts.httpAddress,
		Timeout:     3 * time.Second,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: ts.configPath})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	// Wait until the gRPC side answers.
	client, err := common.Dial(ctx, ts.grpcAddress, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		_, stateErr := client.State(context.Background())
		return stateErr == nil
	}, 5*time.Second, 20*time.Millisecond)

	return ts
}

// watchShakes follows the server's Watch stream and forwards every shake.
func watchShakes(t *testing.T, address string) <-chan time.Time {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := common.Dial(ctx, address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	shakes := make(chan time.Time, 16)

	go func() {
		_ = client.Watch(ctx, func(at time.Time) { shakes <- at }) //nolint:errcheck // Ends with the test.
	}()

	// Watch counts the subscriber once the stream is open.
	require.Eventually(t, func() bool {
		state, stateErr := client.State(context.Background())
		return stateErr == nil && state.GetFields()[pb.FieldWatchers].GetNumberValue() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	return shakes
}

// awaitShake fails the test when no shake arrives in time.
func awaitShake(t *testing.T, shakes <-chan time.Time) time.Time {
	t.Helper()

	select {
	case at := <-shakes:
		return at
	case <-time.After(5 * time.Second):
		t.Fatal("no shake received")
		return time.Time{}
	}
}

// watcherCount reads the number of open Watch streams.
func watcherCount(t *testing.T, address string) int {
	t.Helper()

	client, err := common.Dial(context.Background(), address, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	state, err := client.State(context.Background())
	if err != nil {
		return -1
	}

	return int(state.GetFields()[pb.FieldWatchers].GetNumberValue())
}
