package shake

import (
	"sync"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
)

// MotionHandler receives motion samples from a Source, one at a time and in order.
type MotionHandler interface {
	HandleMotion(sample motion.Sample)
}

// SampleStream is one producer's samples, in order. Close releases its state
// and is safe to call more than once.
type SampleStream interface {
	MotionHandler
	Close()
}

// StreamOpener hands out independent sample streams. *Detector implements it.
type StreamOpener interface {
	OpenStream(name string) SampleStream
}

// Unsubscribe detaches a handler from its source. Calling it more than once is safe.
type Unsubscribe func()

// Source is a push-based provider of motion samples.
type Source interface {
	// Available reports whether the host can sense motion at all.
	Available() bool
	// Subscribe registers h until the returned Unsubscribe is called.
	Subscribe(h MotionHandler) (Unsubscribe, error)
}

// Feed is an in-process Source driven by explicit Push calls.
type Feed struct {
	mu        sync.Mutex
	available bool
	nextID    uint64
	handlers  map[uint64]MotionHandler
	order     []uint64
}

// NewFeed creates a feed. available is reported verbatim by Available.
func NewFeed(available bool) *Feed {
	return &Feed{
		available: available,
		handlers:  make(map[uint64]MotionHandler),
	}
}

// Available implements Source.
func (f *Feed) Available() bool {
	return f.available
}

// Subscribe implements Source.
func (f *Feed) Subscribe(h MotionHandler) (Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.handlers[id] = h
	f.order = append(f.order, id)

	var once sync.Once

	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			delete(f.handlers, id)
		})
	}, nil
}

// Subscribers returns the number of attached handlers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.handlers)
}

// HandleMotion implements MotionHandler, so one source can be forwarded into a feed.
func (f *Feed) HandleMotion(sample motion.Sample) {
	f.Push(sample)
}

// Push delivers sample to every attached handler synchronously.
func (f *Feed) Push(sample motion.Sample) {
	f.mu.Lock()

	handlers := make([]MotionHandler, 0, len(f.handlers))
	order := f.order[:0]

	for _, id := range f.order {
		h, ok := f.handlers[id]
		if !ok {
			continue
		}

		order = append(order, id)
		handlers = append(handlers, h)
	}

	f.order = order
	f.mu.Unlock()

	for _, h := range handlers {
		h.HandleMotion(sample)
	}
}
