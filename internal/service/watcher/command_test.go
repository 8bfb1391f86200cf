package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

// errTestUnavailable simulates a server that is not reachable.
var errTestUnavailable = errors.New("unavailable")

// fakeStream replays a scripted list of sessions.
type fakeStream struct {
	mu sync.Mutex
	// sessions holds the shakes of each Watch call; a nil entry blocks until ctx ends.
	sessions [][]time.Time
	// stateErrs fails the State call of the matching attempt.
	stateErrs []error
	// attempts counts State calls.
	attempts int
}

// State implements stream.
func (f *fakeStream) State(context.Context) (*structpb.Struct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++

	if i := f.attempts - 1; i < len(f.stateErrs) && f.stateErrs[i] != nil {
		return nil, f.stateErrs[i]
	}

	return structpb.NewStruct(map[string]any{"running": true})
}

// Watch implements stream.
func (f *fakeStream) Watch(ctx context.Context, fn func(time.Time)) error {
	f.mu.Lock()

	var shakes []time.Time
	if len(f.sessions) > 0 {
		shakes, f.sessions = f.sessions[0], f.sessions[1:]
	}
	f.mu.Unlock()

	if shakes == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	for _, at := range shakes {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fn(at)
	}

	return nil
}

// TestWatch_LimitStopsWatcher verifies the watcher exits after the configured number of shakes.
func TestWatch_LimitStopsWatcher(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		now := time.Now()
		client := &fakeStream{sessions: [][]time.Time{{now, now, now, now}}}

		err := watch(context.Background(), client, &Options{ReconnectInterval: time.Second, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, 1, client.attempts)
	})
}

// TestWatch_ReconnectsOnFixedInterval verifies failed sessions are retried on the reconnect ticker.
func TestWatch_ReconnectsOnFixedInterval(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		now := time.Now()
		client := &fakeStream{
			stateErrs: []error{errTestUnavailable},
			// The second attempt ends cleanly after one shake, the third delivers the last one.
			sessions: [][]time.Time{{now}, {now}},
		}

		start := time.Now()

		err := watch(context.Background(), client, &Options{ReconnectInterval: time.Second, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, 3, client.attempts)
		require.Equal(t, 2*time.Second, time.Since(start))
	})
}

// TestWatch_CancelExits verifies cancellation ends a blocked stream without error.
func TestWatch_CancelExits(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client := &fakeStream{sessions: [][]time.Time{nil}}

		done := make(chan error, 1)

		go func() {
			done <- watch(ctx, client, &Options{ReconnectInterval: time.Second})
		}()

		synctest.Wait()
		cancel()

		require.NoError(t, <-done)
	})
}

// TestRunCommand_Failures ensures hook failures are swallowed.
func TestRunCommand_Failures(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		runCommand(context.Background(), nil)
		runCommand(context.Background(), []string{"definitely-not-a-real-binary-shake"})
	})
}
