package trace

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/repository/trace"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// ErrAlreadySubscribed is returned when a second handler subscribes to the same follower.
var ErrAlreadySubscribed = errors.New("trace follower already has a subscriber")

// Follower tails a trace file. It implements shake.Source for a single subscriber.
type Follower struct {
	ctx  context.Context //nolint:containedctx // Scopes logging of the background reader.
	path string

	mu      sync.Mutex
	running bool
}

// NewFollower creates a follower for path. The file does not need to exist until Subscribe.
func NewFollower(ctx context.Context, path string) *Follower {
	path = filepath.Clean(path)

	return &Follower{
		ctx:  logger.WithKV(ctx, "trace", path),
		path: path,
	}
}

// Available reports whether the trace file exists.
func (f *Follower) Available() bool {
	info, err := os.Stat(f.path)

	return err == nil && !info.IsDir()
}

// Subscribe starts tailing the file and delivers each row to h.
func (f *Follower) Subscribe(h shake.MotionHandler) (shake.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil, ErrAlreadySubscribed
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err = watcher.Add(f.path); err != nil {
		_ = watcher.Close()
		_ = file.Close()

		return nil, fmt.Errorf("watch trace file: %w", err)
	}

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan struct{})
	f.running = true

	tail := &tailer{
		reader:  bufio.NewReader(file),
		handler: h,
		layout:  trace.DefaultLayout(),
		header:  true,
	}

	go func() {
		defer close(done)
		defer func() {
			_ = watcher.Close()
			_ = file.Close()
		}()

		f.run(ctx, watcher, tail)
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			cancel()
			<-done

			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
		})
	}, nil
}

func (f *Follower) run(ctx context.Context, watcher *fsnotify.Watcher, tail *tailer) {
	logger.Debug(ctx, "Following trace")
	tail.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				tail.drain(ctx)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				logger.Warn(ctx, "Trace file went away, stopping")
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.WarnKV(ctx, "Watcher error", "error", err)
		}
	}
}

// tailer turns appended bytes into samples. A trailing row without a newline
// is kept until the rest of it arrives.
type tailer struct {
	reader  *bufio.Reader
	handler shake.MotionHandler
	layout  trace.Layout
	header  bool
	partial strings.Builder
}

func (t *tailer) drain(ctx context.Context) {
	for {
		chunk, err := t.reader.ReadString('\n')
		t.partial.WriteString(chunk)

		if errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			logger.WarnKV(ctx, "Failed to read trace", "error", err)
			return
		}

		line := strings.TrimSpace(t.partial.String())
		t.partial.Reset()

		if line != "" {
			t.line(ctx, line)
		}
	}
}

func (t *tailer) line(ctx context.Context, line string) {
	row, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		logger.WarnKV(ctx, "Skipping unreadable trace row", "row", line, "error", err)
		return
	}

	if t.header {
		t.header = false

		if layout, ok := trace.DetectLayout(row); ok {
			t.layout = layout
			return
		}
	}

	record, err := trace.ParseRow(t.layout, row)
	if err != nil {
		logger.WarnKV(ctx, "Skipping malformed trace row", "row", line, "error", err)
		return
	}

	t.handler.HandleMotion(record.Sample)
}
