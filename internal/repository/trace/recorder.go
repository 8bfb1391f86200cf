package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
)

// ErrRecorderClosed is returned by Close when the recorder was already closed.
var ErrRecorderClosed = errors.New("recorder closed")

// Recorder appends incoming samples to a CSV trace. It satisfies shake.MotionHandler.
type Recorder struct {
	mu      sync.Mutex
	writer  *csv.Writer
	closer  io.Closer
	started time.Time
	now     func() time.Time
	rows    int
	err     error
	closed  bool
}

// NewRecorder writes the header to w and returns a recorder appending to it.
// closer may be nil.
func NewRecorder(w io.Writer, closer io.Closer) (*Recorder, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return nil, fmt.Errorf("write trace header: %w", err)
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush trace header: %w", err)
	}

	return &Recorder{
		writer:  writer,
		closer:  closer,
		started: time.Now(),
		now:     time.Now,
	}, nil
}

// CreateRecorder truncates path and records into it.
func CreateRecorder(path string) (*Recorder, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	recorder, err := NewRecorder(file, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return recorder, nil
}

// HandleMotion appends a row. Each row is flushed so followers see it immediately.
// The first write error is kept and reported by Err and Close.
func (r *Recorder) HandleMotion(sample motion.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.err != nil {
		return
	}

	record := Record{Offset: r.now().Sub(r.started), Sample: sample}
	if err := r.writer.Write(FormatRow(record)); err != nil {
		r.err = fmt.Errorf("write trace row: %w", err)
		return
	}

	r.writer.Flush()

	if err := r.writer.Error(); err != nil {
		r.err = fmt.Errorf("flush trace row: %w", err)
		return
	}

	r.rows++
}

// Rows returns the number of rows written.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rows
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Close stops recording and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	r.closed = true

	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			return fmt.Errorf("close trace file: %w", err)
		}
	}

	return r.err
}
