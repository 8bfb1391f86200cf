package shake

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
)

// recorder is a Dispatcher that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []motion.Event
}

// Dispatch stores the event.
func (r *recorder) Dispatch(event motion.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

// list returns a copy of the recorded events.
func (r *recorder) list() []motion.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]motion.Event(nil), r.events...)
}

// newStartedDetector builds a running detector attached to an available feed.
func newStartedDetector(t *testing.T, opts ...Option) (*Detector, *Feed, *recorder) {
	t.Helper()

	rec := new(recorder)
	feed := NewFeed(true)

	d, err := New(context.Background(), rec, feed, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	return d, feed, rec
}

// leaveInitialWindow sleeps past the debounce window opened by Start.
func leaveInitialWindow() {
	time.Sleep(DefaultTimeout + time.Millisecond)
}

// TestNew_RequiresDispatcher verifies construction fails without an event dispatcher.
func TestNew_RequiresDispatcher(t *testing.T) {
	t.Parallel()

	d, err := New(context.Background(), nil, NewFeed(true))
	require.ErrorIs(t, err, ErrNoDispatcher)
	require.Nil(t, d)
}

// TestNew_RejectsMalformedOptions verifies invalid options fail construction.
func TestNew_RejectsMalformedOptions(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), new(recorder), nil, WithThreshold(0))
	require.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = New(context.Background(), new(recorder), nil, WithTimeout(-time.Second))
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

// TestNew_StartsStoppedWithDefaults checks the initial state after construction.
func TestNew_StartsStoppedWithDefaults(t *testing.T) {
	t.Parallel()

	d, err := New(context.Background(), new(recorder), NewFeed(true))
	require.NoError(t, err)

	require.Equal(t, DefaultOptions(), d.Options())

	snapshot := d.Snapshot()
	require.False(t, snapshot.Running)
	require.False(t, snapshot.Subscribed)
	require.Nil(t, snapshot.Baseline)
	require.False(t, snapshot.LastTrigger.IsZero())
}

// TestDetector_FirstSampleIsBaseline ensures the first sample never fires and becomes the baseline.
func TestDetector_FirstSampleIsBaseline(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, feed, rec := newStartedDetector(t)
		leaveInitialWindow()

		first := motion.Sample{X: 100, Y: -100, Z: 50}
		feed.Push(first)

		require.Empty(t, rec.list())

		snapshot := d.Snapshot()
		require.NotNil(t, snapshot.Baseline)
		require.Equal(t, first, *snapshot.Baseline)
	})
}

// TestDetector_SingleAxisSpikeIgnored ensures one axis over threshold does not fire.
func TestDetector_SingleAxisSpikeIgnored(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithThreshold(15))
		leaveInitialWindow()

		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20})
		feed.Push(motion.Sample{X: 20, Y: 0, Z: -30})

		require.Empty(t, rec.list())
	})
}

// TestDetector_TwoAxisTrigger verifies every pair of axes over threshold fires.
func TestDetector_TwoAxisTrigger(t *testing.T) {
	t.Parallel()

	cases := map[string]motion.Sample{
		"x and y": {X: 20, Y: 20},
		"x and z": {X: -20, Z: 20},
		"y and z": {Y: 16, Z: -16},
		"all":     {X: 30, Y: 30, Z: 30},
	}

	for name, sample := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			synctest.Test(t, func(t *testing.T) {
				_, feed, rec := newStartedDetector(t, WithThreshold(15))
				leaveInitialWindow()

				feed.Push(motion.Sample{})
				feed.Push(sample)

				events := rec.list()
				require.Len(t, events, 1)
				require.Equal(t, motion.ShakeEventName, events[0].Name)
				require.Equal(t, uint64(1), events[0].Seq)
			})
		})
	}
}

// TestDetector_DeltaEqualToThresholdDoesNotFire verifies the comparison is strict.
func TestDetector_DeltaEqualToThresholdDoesNotFire(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithThreshold(15))
		leaveInitialWindow()

		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 15, Y: 15})

		require.Empty(t, rec.list())
	})
}

// TestDetector_DeltasAreFrameToFrame verifies the baseline moves with every sample.
func TestDetector_DeltasAreFrameToFrame(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithThreshold(15))
		leaveInitialWindow()

		// A slow drift never exceeds the threshold between two consecutive samples.
		for i := range 10 {
			step := float64(i * 10)
			feed.Push(motion.Sample{X: step, Y: step})
		}

		require.Empty(t, rec.list())
	})
}

// TestDetector_DebounceWindow verifies one event per timeout window.
func TestDetector_DebounceWindow(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithThreshold(15), WithTimeout(time.Second))

		// Inside the window opened by Start.
		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20, Y: 20})
		require.Empty(t, rec.list())

		leaveInitialWindow()
		feed.Push(motion.Sample{})
		require.Len(t, rec.list(), 1)

		time.Sleep(500 * time.Millisecond)
		feed.Push(motion.Sample{X: 20, Y: 20})
		require.Len(t, rec.list(), 1)

		// Exactly one timeout after the accepted shake is still inside the window.
		time.Sleep(500 * time.Millisecond)
		feed.Push(motion.Sample{})
		require.Len(t, rec.list(), 1)

		time.Sleep(10 * time.Millisecond)
		feed.Push(motion.Sample{X: 20, Y: 20})

		events := rec.list()
		require.Len(t, events, 2)
		require.Equal(t, time.Second+10*time.Millisecond, events[1].At.Sub(events[0].At))
	})
}

// TestDetector_ZeroTimeoutFiresOnEveryQualifyingSample verifies the window can be disabled.
func TestDetector_ZeroTimeoutFiresOnEveryQualifyingSample(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithTimeout(0))

		feed.Push(motion.Sample{})

		for i := range 3 {
			time.Sleep(time.Millisecond)

			if i%2 == 0 {
				feed.Push(motion.Sample{X: 20, Y: 20})
			} else {
				feed.Push(motion.Sample{})
			}
		}

		require.Len(t, rec.list(), 3)
	})
}

// TestDetector_StopStartClearsBaseline verifies a restart treats the next sample as a fresh baseline.
func TestDetector_StopStartClearsBaseline(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, feed, rec := newStartedDetector(t)

		feed.Push(motion.Sample{})
		require.NotNil(t, d.Snapshot().Baseline)

		d.Stop()
		require.Nil(t, d.Snapshot().Baseline)
		require.Zero(t, feed.Subscribers())

		require.NoError(t, d.Start())
		leaveInitialWindow()

		feed.Push(motion.Sample{X: 20, Y: 20})
		require.Empty(t, rec.list())

		snapshot := d.Snapshot()
		require.NotNil(t, snapshot.Baseline)
		require.Equal(t, motion.Sample{X: 20, Y: 20}, *snapshot.Baseline)
	})
}

// TestDetector_StartResetsTriggerTime verifies Start opens a new debounce window.
func TestDetector_StartResetsTriggerTime(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, _, _ := newStartedDetector(t)
		before := d.Snapshot().LastTrigger

		time.Sleep(5 * time.Second)
		require.NoError(t, d.Start())

		require.Equal(t, 5*time.Second, d.Snapshot().LastTrigger.Sub(before))
	})
}

// TestDetector_StartTwiceKeepsSingleSubscription verifies Start is idempotent for the source.
func TestDetector_StartTwiceKeepsSingleSubscription(t *testing.T) {
	t.Parallel()

	d, feed, _ := newStartedDetector(t)
	require.NoError(t, d.Start())
	require.Equal(t, 1, feed.Subscribers())

	d.Stop()
	d.Stop()
	require.Zero(t, feed.Subscribers())
	require.False(t, d.Running())
}

// TestDetector_IgnoresSamplesWhileStopped verifies a stopped detector neither fires nor records a baseline.
func TestDetector_IgnoresSamplesWhileStopped(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := new(recorder)

		d, err := New(context.Background(), rec, nil, WithTimeout(0))
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		d.HandleMotion(motion.Sample{})
		d.HandleMotion(motion.Sample{X: 20, Y: 20})

		require.Empty(t, rec.list())
		require.Nil(t, d.Snapshot().Baseline)
	})
}

// TestDetector_WithoutMotionCapability verifies Start skips the subscription but still runs.
func TestDetector_WithoutMotionCapability(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := new(recorder)
		feed := NewFeed(false)

		d, err := New(context.Background(), rec, feed)
		require.NoError(t, err)
		require.NoError(t, d.Start())

		snapshot := d.Snapshot()
		require.True(t, snapshot.Running)
		require.False(t, snapshot.Subscribed)
		require.Zero(t, feed.Subscribers())

		leaveInitialWindow()
		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20, Y: 20})
		require.Empty(t, rec.list())

		d.Stop()
		require.False(t, d.Running())
	})
}

// TestDetector_NilSourceIsSafe verifies the lifecycle works without any source.
func TestDetector_NilSourceIsSafe(t *testing.T) {
	t.Parallel()

	d, err := New(context.Background(), new(recorder), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	d.Stop()
	require.NoError(t, d.Start())
	require.True(t, d.Running())
}

// TestDetector_DropsNonFiniteSamples verifies NaN input leaves the baseline untouched.
func TestDetector_DropsNonFiniteSamples(t *testing.T) {
	t.Parallel()

	d, feed, _ := newStartedDetector(t)

	feed.Push(motion.Sample{X: 1})
	feed.Push(motion.Sample{X: nan()})

	snapshot := d.Snapshot()
	require.NotNil(t, snapshot.Baseline)
	require.Equal(t, motion.Sample{X: 1}, *snapshot.Baseline)
}

// TestDetector_MonotonicTriggerTime verifies accepted events are ordered in time and sequence.
func TestDetector_MonotonicTriggerTime(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		_, feed, rec := newStartedDetector(t, WithTimeout(100*time.Millisecond))

		samples := []motion.Sample{{}, {X: 20, Y: 20}}

		for i := range 40 {
			time.Sleep(37 * time.Millisecond)
			feed.Push(samples[i%2])
		}

		events := rec.list()
		require.NotEmpty(t, events)

		for i := 1; i < len(events); i++ {
			require.False(t, events[i].At.Before(events[i-1].At))
			require.Greater(t, events[i].At.Sub(events[i-1].At), 100*time.Millisecond)
			require.Equal(t, events[i-1].Seq+1, events[i].Seq)
		}
	})
}

// TestDetector_FanOut verifies two observers receive every event exactly once.
func TestDetector_FanOut(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		bus := NewBus()
		feed := NewFeed(true)

		var first, second []motion.Event

		bus.Subscribe(ObserverFunc(func(e motion.Event) { first = append(first, e) }))
		bus.Subscribe(ObserverFunc(func(e motion.Event) { second = append(second, e) }))

		d, err := New(context.Background(), bus, feed)
		require.NoError(t, err)
		require.NoError(t, d.Start())

		leaveInitialWindow()
		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20, Z: 20})

		require.Len(t, first, 1)
		require.Len(t, second, 1)
		require.Equal(t, first[0].ID, second[0].ID)
	})
}

// TestDetector_ObserverMayStopDetector verifies stopping from inside a notification does not deadlock.
func TestDetector_ObserverMayStopDetector(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		bus := NewBus()
		feed := NewFeed(true)

		d, err := New(context.Background(), bus, feed, WithTimeout(0))
		require.NoError(t, err)

		calls := 0
		bus.Subscribe(ObserverFunc(func(motion.Event) {
			calls++
			d.Stop()
		}))

		require.NoError(t, d.Start())
		time.Sleep(time.Millisecond)

		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20, Y: 20})
		feed.Push(motion.Sample{})

		require.Equal(t, 1, calls)
		require.False(t, d.Running())
		require.Zero(t, feed.Subscribers())
	})
}

// TestDetector_StreamsKeepSeparateBaselines verifies two devices at rest in
// opposite tilts never shake, however their samples interleave.
func TestDetector_StreamsKeepSeparateBaselines(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, _, rec := newStartedDetector(t, WithThreshold(10), WithTimeout(0))

		first := d.OpenStream("page-a")
		second := d.OpenStream("page-b")

		defer first.Close()
		defer second.Close()

		require.Equal(t, 2, d.Snapshot().Streams)

		time.Sleep(time.Millisecond)

		for range 20 {
			first.HandleMotion(motion.Sample{X: 6.9, Y: 6.9})
			second.HandleMotion(motion.Sample{X: -6.9, Y: -6.9})
		}

		require.Empty(t, rec.list())

		// A real shake on one stream still fires.
		second.HandleMotion(motion.Sample{X: 10, Y: 10})
		require.Len(t, rec.list(), 1)
	})
}

// TestDetector_StreamsShareDebounceWindow verifies one window covers every stream.
func TestDetector_StreamsShareDebounceWindow(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, feed, rec := newStartedDetector(t, WithThreshold(15), WithTimeout(time.Second))
		leaveInitialWindow()

		phone := d.OpenStream("phone")
		defer phone.Close()

		feed.Push(motion.Sample{})
		feed.Push(motion.Sample{X: 20, Y: 20})
		require.Len(t, rec.list(), 1)

		phone.HandleMotion(motion.Sample{})
		phone.HandleMotion(motion.Sample{X: 20, Y: 20})
		require.Len(t, rec.list(), 1)

		time.Sleep(time.Second + time.Millisecond)

		phone.HandleMotion(motion.Sample{})
		require.Len(t, rec.list(), 2)
	})
}

// TestDetector_ClosedStreamIsIgnored verifies a closed stream neither fires nor keeps a baseline.
func TestDetector_ClosedStreamIsIgnored(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		d, _, rec := newStartedDetector(t, WithTimeout(0))

		s := d.OpenStream("gone")
		time.Sleep(time.Millisecond)

		s.HandleMotion(motion.Sample{})
		require.NotNil(t, d.Snapshot().Baseline)

		s.Close()
		s.Close()
		require.Nil(t, d.Snapshot().Baseline)
		require.Zero(t, d.Snapshot().Streams)

		s.HandleMotion(motion.Sample{X: 50, Y: 50})
		require.Empty(t, rec.list())
	})
}
