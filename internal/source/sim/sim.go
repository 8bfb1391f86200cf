package sim

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/shake"
)

const (
	// Gravity is the resting acceleration on the Z axis.
	Gravity = 9.81
	// DefaultInterval is the sampling period of a typical phone sensor.
	DefaultInterval = 20 * time.Millisecond
	// DefaultPeriod is the time between the starts of two shake bursts.
	DefaultPeriod = 4 * time.Second
	// DefaultBurst is how long a shake lasts.
	DefaultBurst = 400 * time.Millisecond
	// DefaultAmplitude is the peak acceleration added while shaking.
	DefaultAmplitude = 25.0
	// DefaultNoise is the peak sensor noise per axis.
	DefaultNoise = 0.3
)

var (
	// ErrInvalidInterval is returned for a non-positive sampling interval.
	ErrInvalidInterval = errors.New("sampling interval must be positive")
	// ErrInvalidBurst is returned when a burst does not fit into its period.
	ErrInvalidBurst = errors.New("burst must be shorter than period")
)

// Config describes the simulated device.
type Config struct {
	Interval  time.Duration
	Period    time.Duration
	Burst     time.Duration
	Amplitude float64
	Noise     float64
	// Seed makes the noise reproducible.
	Seed uint64
}

// DefaultConfig returns a device that shakes once every four seconds.
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		Period:    DefaultPeriod,
		Burst:     DefaultBurst,
		Amplitude: DefaultAmplitude,
		Noise:     DefaultNoise,
	}
}

// Validate checks the timing relations.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}

	if c.Burst >= c.Period {
		return ErrInvalidBurst
	}

	return nil
}

// Generator computes samples from elapsed time. It is not safe for concurrent use.
type Generator struct {
	cfg  Config
	rand *rand.Rand
	tick uint64
}

// NewGenerator creates a generator for cfg.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:  cfg,
		rand: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)), //nolint:gosec // Simulation noise.
	}
}

// Shaking reports whether elapsed falls inside a burst.
func (g *Generator) Shaking(elapsed time.Duration) bool {
	if g.cfg.Period <= 0 || elapsed < 0 {
		return false
	}

	return elapsed%g.cfg.Period < g.cfg.Burst
}

// Next returns the sample at elapsed. While shaking, X and Y swing in
// opposite directions and flip sign on every sample.
func (g *Generator) Next(elapsed time.Duration) motion.Sample {
	g.tick++

	sample := motion.Sample{
		X: g.noise(),
		Y: g.noise(),
		Z: Gravity + g.noise(),
	}

	if g.Shaking(elapsed) {
		swing := g.cfg.Amplitude
		if g.tick%2 == 0 {
			swing = -swing
		}

		sample.X += swing
		sample.Y -= swing
	}

	return sample
}

func (g *Generator) noise() float64 {
	if g.cfg.Noise == 0 {
		return 0
	}

	return (g.rand.Float64()*2 - 1) * g.cfg.Noise
}

// Source delivers generated samples on a ticker. It implements shake.Source.
type Source struct {
	ctx context.Context //nolint:containedctx // Scopes logging of the ticker goroutine.
	cfg Config

	mu       sync.Mutex
	handlers map[uint64]shake.MotionHandler
	nextID   uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a simulated source.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Source{
		ctx:      logger.WithName(ctx, "sim"),
		cfg:      cfg,
		handlers: make(map[uint64]shake.MotionHandler),
	}, nil
}

// Available always reports true.
func (s *Source) Available() bool {
	return true
}

// Subscribe attaches h. The ticker runs while at least one handler is attached.
func (s *Source) Subscribe(h shake.MotionHandler) (shake.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.handlers[id] = h

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(s.ctx)
		s.cancel = cancel
		s.done = make(chan struct{})

		go s.run(ctx, s.done)
	}

	var once sync.Once

	return func() {
		once.Do(func() { s.remove(id) })
	}, nil
}

func (s *Source) remove(id uint64) {
	s.mu.Lock()
	delete(s.handlers, id)

	if len(s.handlers) > 0 || s.cancel == nil {
		s.mu.Unlock()
		return
	}

	// Not waiting for the goroutine lets a handler unsubscribe from inside
	// HandleMotion. Wait joins it.
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()
}

// Wait blocks until the ticker goroutine of the last subscription has exited.
func (s *Source) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Source) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	generator := NewGenerator(s.cfg)
	started := time.Now()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	logger.DebugKV(ctx, "Simulation started", "interval", s.cfg.Interval, "period", s.cfg.Period)

	for {
		select {
		case <-ctx.Done():
			logger.Debug(ctx, "Simulation stopped")
			return
		case now := <-ticker.C:
			sample := generator.Next(now.Sub(started))

			s.mu.Lock()
			// remove cancels under the lock, so a stopped ticker never takes a new snapshot.
			if ctx.Err() != nil {
				s.mu.Unlock()
				return
			}

			handlers := make([]shake.MotionHandler, 0, len(s.handlers))

			for _, h := range s.handlers {
				handlers = append(handlers, h)
			}
			s.mu.Unlock()

			for _, h := range handlers {
				h.HandleMotion(sample)
			}
		}
	}
}
