package pageflow

import (
	"sync"
	"time"
)

// Step is one scheduled action. Delay is relative to the previous step of
// the same chain, or to the Schedule call for the first step.
type Step struct {
	// Name identifies the step in logs and tests.
	Name string
	// Delay is waited before Run is called.
	Delay time.Duration
	// Run performs the step.
	Run func()
}

// Token is the cancellation handle of one scheduled step.
type Token struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	done      bool
}

// Cancel prevents the step from running. It reports whether the step was still pending.
func (t *Token) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.done {
		return false
	}

	t.cancelled = true

	if t.timer != nil {
		t.timer.Stop()
	}

	return true
}

// claim marks the step as running unless it was cancelled first.
func (t *Token) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return false
	}

	t.done = true

	return true
}

// Sequence runs chains of delayed steps and cancels all of them at once.
type Sequence struct {
	mu      sync.Mutex
	pending map[*Token]struct{}
	// generation changes on every Cancel so chains scheduled earlier stop advancing.
	generation uint64
}

// NewSequence creates an idle sequence.
func NewSequence() *Sequence {
	return &Sequence{
		pending: make(map[*Token]struct{}),
	}
}

// Schedule starts a chain: every step is armed only after the previous one ran.
func (s *Sequence) Schedule(steps ...Step) {
	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	s.arm(generation, steps)
}

// Cancel stops every pending step of every chain. Steps already running finish,
// but their chains do not advance.
func (s *Sequence) Cancel() int {
	s.mu.Lock()
	s.generation++
	pending := s.pending
	s.pending = make(map[*Token]struct{})
	s.mu.Unlock()

	cancelled := 0

	for token := range pending {
		if token.Cancel() {
			cancelled++
		}
	}

	return cancelled
}

// Pending returns the number of armed steps.
func (s *Sequence) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// arm schedules the first of steps and, once it ran, the rest.
func (s *Sequence) arm(generation uint64, steps []Step) {
	if len(steps) == 0 {
		return
	}

	step, rest := steps[0], steps[1:]
	token := new(Token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return
	}

	s.pending[token] = struct{}{}

	token.mu.Lock()
	token.timer = time.AfterFunc(step.Delay, func() {
		s.mu.Lock()
		delete(s.pending, token)
		stale := s.generation != generation
		s.mu.Unlock()

		if stale || !token.claim() {
			return
		}

		if step.Run != nil {
			step.Run()
		}

		s.arm(generation, rest)
	})
	token.mu.Unlock()
}
