package shake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
)

// ErrNoDispatcher is returned when a detector is built without anywhere to send events.
var ErrNoDispatcher = errors.New("event dispatcher is not available")

// sourceStream keys the samples delivered by the detector's own source.
const sourceStream uint64 = 0

// state is the mutable part of the detector.
type state struct {
	// baselines holds the previous sample of every stream seen since the reset.
	// A stream without an entry has no baseline.
	baselines map[uint64]motion.Sample
	// latest is the stream that delivered the last evaluated sample.
	latest uint64
	// lastTrigger is when the last shake was accepted, or when state was reset.
	// It is shared by all streams.
	lastTrigger time.Time
}

// Snapshot is a read-only copy of the detector state.
type Snapshot struct {
	// Baseline is the previous sample of the stream that delivered the latest one.
	// It is nil until a sample arrives after a reset, and after that stream closes.
	Baseline *motion.Sample
	// LastTrigger is the time of the last accepted shake or reset.
	LastTrigger time.Time
	// Running reports whether the detector is between Start and Stop.
	Running bool
	// Subscribed reports whether the detector is attached to its source.
	Subscribed bool
	// Emitted counts accepted shakes since construction.
	Emitted uint64
	// Streams is the number of open streams besides the source.
	Streams int
}

// Detector converts motion samples into debounced shake events.
// It implements MotionHandler so sources can feed it directly. Independent
// producers get their own baseline through OpenStream and share the debounce window.
type Detector struct {
	opts       Options
	dispatcher Dispatcher
	source     Source
	log        *zap.SugaredLogger

	// mu guards everything below.
	mu          sync.Mutex
	state       state
	running     bool
	unsubscribe Unsubscribe
	emitted     uint64
	nextStream  uint64
	streams     map[uint64]string

	// emitMu keeps dispatches in the order their samples were processed.
	emitMu sync.Mutex
}

// New builds a stopped detector. source may be nil when every sample arrives
// through OpenStream. The logger is taken from ctx.
func New(ctx context.Context, dispatcher Dispatcher, source Source, opts ...Option) (*Detector, error) {
	if dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	merged, err := Merge(DefaultOptions(), opts...)
	if err != nil {
		return nil, fmt.Errorf("detector options: %w", err)
	}

	d := &Detector{
		opts:       merged,
		dispatcher: dispatcher,
		source:     source,
		log:        logger.FromContext(ctx),
		streams:    make(map[uint64]string),
	}
	d.reset(time.Now())

	return d, nil
}

// Options returns the effective configuration.
func (d *Detector) Options() Options {
	return d.opts
}

// Start resets the state and attaches to the source when it can sense motion.
// Calling Start on a running detector only resets the state.
func (d *Detector) Start() error {
	d.mu.Lock()
	d.reset(time.Now())
	d.running = true
	needSubscribe := d.unsubscribe == nil
	d.mu.Unlock()

	if !needSubscribe {
		return nil
	}

	if d.source == nil {
		d.log.Debugw("Detector started without a source, waiting for streams",
			"threshold", d.opts.Threshold, "timeout", d.opts.Timeout)

		return nil
	}

	if !d.source.Available() {
		d.log.Debugw("Motion sensing unavailable, detector will stay silent")
		return nil
	}

	unsubscribe, err := d.source.Subscribe(d)
	if err != nil {
		return fmt.Errorf("subscribe to motion source: %w", err)
	}

	d.mu.Lock()
	if !d.running || d.unsubscribe != nil {
		// Stopped or started again while subscribing.
		d.mu.Unlock()
		unsubscribe()

		return nil
	}

	d.unsubscribe = unsubscribe
	d.mu.Unlock()

	d.log.Debugw("Detector started", "threshold", d.opts.Threshold, "timeout", d.opts.Timeout)

	return nil
}

// Stop detaches from the source and resets the state. Samples already in
// flight are discarded.
func (d *Detector) Stop() {
	d.mu.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.running = false
	d.reset(time.Now())
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	d.log.Debugw("Detector stopped")
}

// Running reports whether the detector is started.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := Snapshot{
		LastTrigger: d.state.lastTrigger,
		Running:     d.running,
		Subscribed:  d.unsubscribe != nil,
		Emitted:     d.emitted,
		Streams:     len(d.streams),
	}

	if baseline, ok := d.state.baselines[d.state.latest]; ok {
		snapshot.Baseline = &baseline
	}

	return snapshot
}

// HandleMotion implements MotionHandler for the detector's own source. It must
// not be called re-entrantly from an observer.
func (d *Detector) HandleMotion(sample motion.Sample) {
	d.handle(sourceStream, sample)
}

// OpenStream registers an independent producer of samples. Each stream is
// compared frame to frame with its own previous sample only.
func (d *Detector) OpenStream(name string) SampleStream {
	d.mu.Lock()
	d.nextStream++
	id := d.nextStream
	d.streams[id] = name
	d.mu.Unlock()

	d.log.Debugw("Motion stream opened", "stream", name)

	return &stream{detector: d, id: id, name: name}
}

// stream is a SampleStream backed by a detector.
type stream struct {
	detector *Detector
	id       uint64
	name     string
	once     sync.Once
}

// HandleMotion implements MotionHandler.
func (s *stream) HandleMotion(sample motion.Sample) {
	s.detector.handle(s.id, sample)
}

// Close implements SampleStream.
func (s *stream) Close() {
	s.once.Do(func() {
		d := s.detector

		d.mu.Lock()
		delete(d.streams, s.id)
		delete(d.state.baselines, s.id)
		d.mu.Unlock()

		d.log.Debugw("Motion stream closed", "stream", s.name)
	})
}

// handle evaluates one sample of stream id.
func (d *Detector) handle(id uint64, sample motion.Sample) {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		return
	}

	if _, open := d.streams[id]; id != sourceStream && !open {
		d.mu.Unlock()
		return
	}

	if !sample.IsFinite() {
		d.mu.Unlock()
		d.log.Debugw("Dropping non-finite sample", "sample", sample)

		return
	}

	event, fire := d.evaluate(id, sample, time.Now())
	if !fire {
		d.mu.Unlock()
		return
	}

	// Take the emit lock before releasing state so a later sample cannot
	// overtake this dispatch.
	d.emitMu.Lock()
	d.mu.Unlock()

	defer d.emitMu.Unlock()

	d.log.Debugw("Shake detected", "seq", event.Seq, "event_id", event.ID)
	d.dispatcher.Dispatch(event)
}

// evaluate updates the state of stream id with sample and reports whether a shake was accepted.
func (d *Detector) evaluate(id uint64, sample motion.Sample, now time.Time) (motion.Event, bool) {
	baseline, ok := d.state.baselines[id]
	d.state.baselines[id] = sample
	d.state.latest = id

	if !ok {
		return motion.Event{}, false
	}

	dx, dy, dz := baseline.Delta(sample)

	if !exceedsOnTwoAxes(dx, dy, dz, d.opts.Threshold) {
		return motion.Event{}, false
	}

	if now.Sub(d.state.lastTrigger) <= d.opts.Timeout {
		return motion.Event{}, false
	}

	d.state.lastTrigger = now
	d.emitted++

	return motion.NewEvent(now, d.emitted), true
}

// reset clears every baseline and restarts the debounce window at now.
func (d *Detector) reset(now time.Time) {
	d.state = state{
		baselines:   make(map[uint64]motion.Sample),
		lastTrigger: now,
	}
}

// exceedsOnTwoAxes reports whether at least two of the deltas are above threshold.
func exceedsOnTwoAxes(dx, dy, dz, threshold float64) bool {
	x, y, z := dx > threshold, dy > threshold, dz > threshold

	return (x && y) || (x && z) || (y && z)
}
