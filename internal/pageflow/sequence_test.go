package pageflow

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
)

// stepLog records when named steps ran.
type stepLog struct {
	mu    sync.Mutex
	start time.Time
	runs  map[string]time.Duration
}

func newStepLog() *stepLog {
	return &stepLog{start: time.Now(), runs: make(map[string]time.Duration)}
}

func (l *stepLog) step(name string, delay time.Duration) Step {
	return Step{Name: name, Delay: delay, Run: func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.runs[name] = time.Since(l.start)
	}}
}

func (l *stepLog) snapshot() map[string]time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make(map[string]time.Duration, len(l.runs))
	for k, v := range l.runs {
		result[k] = v
	}

	return result
}

// TestSequence_ChainsDelays verifies each delay counts from the previous step.
func TestSequence_ChainsDelays(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		log := newStepLog()
		seq := NewSequence()

		seq.Schedule(
			log.step("a", time.Second),
			log.step("b", 2*time.Second),
			log.step("c", 500*time.Millisecond),
		)
		seq.Schedule(log.step("parallel", 1500*time.Millisecond))

		time.Sleep(10 * time.Second)
		synctest.Wait()

		require.Equal(t, map[string]time.Duration{
			"a":        time.Second,
			"b":        3 * time.Second,
			"c":        3500 * time.Millisecond,
			"parallel": 1500 * time.Millisecond,
		}, log.snapshot())
		require.Zero(t, seq.Pending())
	})
}

// TestSequence_Cancel verifies cancelled steps never run and chains stop advancing.
func TestSequence_Cancel(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		log := newStepLog()
		seq := NewSequence()

		seq.Schedule(log.step("a", time.Second), log.step("b", time.Second))
		seq.Schedule(log.step("c", 3*time.Second))

		time.Sleep(1500 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, 2, seq.Pending())
		require.Equal(t, 2, seq.Cancel())
		require.Zero(t, seq.Cancel())

		time.Sleep(10 * time.Second)
		synctest.Wait()

		require.Equal(t, map[string]time.Duration{"a": time.Second}, log.snapshot())

		// The sequence is reusable after Cancel.
		seq.Schedule(log.step("d", time.Second))
		time.Sleep(time.Second)
		synctest.Wait()
		require.Contains(t, log.snapshot(), "d")
	})
}

// TestSequence_CancelFromStep verifies a step can cancel its own sequence.
func TestSequence_CancelFromStep(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		log := newStepLog()
		seq := NewSequence()

		seq.Schedule(
			Step{Name: "cancel", Delay: time.Second, Run: func() { seq.Cancel() }},
			log.step("never", time.Second),
		)

		time.Sleep(5 * time.Second)
		synctest.Wait()

		require.Empty(t, log.snapshot())
	})
}

// TestToken_Cancel verifies a token reports whether it stopped a pending step.
func TestToken_Cancel(t *testing.T) {
	t.Parallel()

	token := new(Token)
	require.True(t, token.Cancel())
	require.False(t, token.Cancel())
	require.False(t, token.claim())
}
