package shake

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultThreshold is the minimum per-axis acceleration delta considered significant.
	DefaultThreshold = 15.0
	// DefaultTimeout is the minimum time between two accepted shakes.
	DefaultTimeout = time.Second
)

var (
	// ErrInvalidThreshold is returned for a non-positive or non-finite threshold.
	ErrInvalidThreshold = errors.New("threshold must be a positive finite number")
	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("timeout must not be negative")
)

// Options is the detector configuration. It is fixed once the detector is built.
type Options struct {
	// Threshold is compared against the absolute per-axis delta of consecutive samples.
	Threshold float64
	// Timeout is the debounce window between two accepted shakes.
	Timeout time.Duration
}

// Option overrides a single recognized configuration key.
type Option func(*Options) error

// DefaultOptions returns the configuration used when no option is given.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		Timeout:   DefaultTimeout,
	}
}

// WithThreshold overrides the per-axis threshold.
func WithThreshold(threshold float64) Option {
	return func(o *Options) error {
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
		}

		o.Threshold = threshold

		return nil
	}
}

// WithTimeout overrides the debounce window.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
		}

		o.Timeout = timeout

		return nil
	}
}

// WithTimeoutMillis overrides the debounce window expressed in milliseconds.
func WithTimeoutMillis(ms int64) Option {
	return WithTimeout(time.Duration(ms) * time.Millisecond)
}

// Merge applies opts over base and returns the result. base is not modified.
func Merge(base Options, opts ...Option) (Options, error) {
	merged := base

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&merged); err != nil {
			return base, err
		}
	}

	return merged, nil
}
