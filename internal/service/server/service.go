package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/repository/trace"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// input is a local motion source forwarded into its own detector stream.
type input struct {
	// name identifies the input in logs.
	name string
	// unsubscribe detaches the input from its stream.
	unsubscribe shake.Unsubscribe
	// stream holds the input's baseline.
	stream shake.SampleStream
	// closer releases the input's connection, if any.
	closer io.Closer
}

// service wires every motion input into one detector and fans its shakes out.
// Each input and transport connection gets its own stream, so samples of two
// devices are never compared. Shakes are observed on bus.
type service struct {
	ctx context.Context //nolint:containedctx // Scopes logging of streams opened by transports.

	// bus fans accepted shakes out to the transports.
	bus *shake.Bus
	// detector turns the samples of every stream into shakes.
	detector *shake.Detector
	// recordPath optionally names the trace files, one per stream.
	recordPath string

	// mu protects everything below.
	mu         sync.Mutex
	inputs     []input
	recordings map[*recordedStream]struct{}
	recorded   int
}

// newService creates the detector pipeline. recordPath may be empty.
func newService(ctx context.Context, settings *config.Config, recordPath string) (*service, error) {
	s := &service{
		ctx:        ctx,
		bus:        shake.NewBus(),
		recordPath: recordPath,
		recordings: make(map[*recordedStream]struct{}),
	}

	detector, err := shake.New(ctx, s.bus, nil, settings.DetectorOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	s.detector = detector

	if recordPath != "" {
		logger.InfoKV(ctx, "Recording samples, one trace per stream", "path", recordPath)
	}

	return s, nil
}

// OpenStream implements shake.StreamOpener. With recording enabled the stream
// is also written to its own trace file.
func (s *service) OpenStream(name string) shake.SampleStream {
	stream := s.detector.OpenStream(name)
	if s.recordPath == "" {
		return stream
	}

	s.mu.Lock()
	s.recorded++
	path := streamTracePath(s.recordPath, s.recorded, name)
	s.mu.Unlock()

	recorder, err := trace.CreateRecorder(path)
	if err != nil {
		logger.WarnKV(s.ctx, "Failed to record stream", "stream", name, "error", err)
		return stream
	}

	logger.InfoKV(s.ctx, "Recording stream", "stream", name, "path", path)

	// The feed hands each sample to the recorder first, then to the detector.
	feed := shake.NewFeed(true)
	_, _ = feed.Subscribe(recorder) //nolint:errcheck // A feed never refuses a handler.
	_, _ = feed.Subscribe(stream)   //nolint:errcheck // A feed never refuses a handler.

	recorded := &recordedStream{service: s, name: name, path: path, feed: feed, next: stream, recorder: recorder}

	s.mu.Lock()
	s.recordings[recorded] = struct{}{}
	s.mu.Unlock()

	return recorded
}

// attach forwards src into a stream of its own. A source without motion
// capability is skipped with a warning, the same way the detector treats one.
// closer is released whenever src cannot be attached.
func (s *service) attach(ctx context.Context, name string, src shake.Source, closer io.Closer) error {
	if !src.Available() {
		logger.WarnKV(ctx, "Motion input unavailable, skipping", "input", name)

		if closer != nil {
			return closer.Close()
		}

		return nil
	}

	stream := s.OpenStream(name)

	unsubscribe, err := src.Subscribe(stream)
	if err != nil {
		stream.Close()

		err = fmt.Errorf("attach %s: %w", name, err)
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}

		return err
	}

	s.mu.Lock()
	s.inputs = append(s.inputs, input{name: name, unsubscribe: unsubscribe, stream: stream, closer: closer})
	s.mu.Unlock()

	logger.InfoKV(ctx, "Motion input attached", "input", name)

	return nil
}

// start begins detection.
func (s *service) start() error {
	return s.detector.Start()
}

// stop halts detection, releases every input in reverse order and finishes
// the recordings of streams still open.
func (s *service) stop(_ context.Context) error {
	s.detector.Stop()

	s.mu.Lock()
	inputs := s.inputs
	s.inputs = nil
	s.mu.Unlock()

	var errs []error

	for i := len(inputs) - 1; i >= 0; i-- {
		in := inputs[i]
		in.unsubscribe()
		in.stream.Close()

		if in.closer == nil {
			continue
		}

		if err := in.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", in.name, err))
		}
	}

	s.mu.Lock()
	recordings := make([]*recordedStream, 0, len(s.recordings))
	for recorded := range s.recordings {
		recordings = append(recordings, recorded)
	}
	s.mu.Unlock()

	for _, recorded := range recordings {
		if err := recorded.finish(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// recordedStream tees a detector stream into a trace file.
type recordedStream struct {
	service  *service
	name     string
	path     string
	feed     *shake.Feed
	next     shake.SampleStream
	recorder *trace.Recorder
	once     sync.Once
	err      error
}

// HandleMotion implements shake.MotionHandler.
func (r *recordedStream) HandleMotion(sample motion.Sample) {
	r.feed.Push(sample)
}

// Close implements shake.SampleStream.
func (r *recordedStream) Close() {
	if err := r.finish(); err != nil {
		logger.ErrorKV(r.service.ctx, "Failed to finish recording", "stream", r.name, "error", err)
	}
}

// finish closes the stream and its trace once.
func (r *recordedStream) finish() error {
	r.once.Do(func() {
		r.next.Close()

		r.service.mu.Lock()
		delete(r.service.recordings, r)
		r.service.mu.Unlock()

		if r.err = r.recorder.Close(); r.err != nil {
			r.err = fmt.Errorf("finish recording of %s: %w", r.name, r.err)
			return
		}

		logger.InfoKV(r.service.ctx, "Recording finished",
			"stream", r.name,
			"path", r.path,
			"rows", humanize.Comma(int64(r.recorder.Rows())),
		)
	})

	return r.err
}

// streamTracePath inserts the stream number and a file-safe stream name
// before the extension of base: rec.csv becomes rec.1-ws-127.0.0.1-5000.csv.
func streamTracePath(base string, seq int, name string) string {
	ext := filepath.Ext(base)

	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, name)

	return strings.TrimSuffix(base, ext) + "." + strconv.Itoa(seq) + "-" + safe + ext
}
