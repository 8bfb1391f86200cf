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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
)

// Record is one sample with its offset from the start of the trace.
type Record struct {
	// Offset is the time since the first record.
	Offset time.Duration
	// Sample is the accelerometer reading.
	Sample motion.Sample
}

// Repository defines persistence operations for motion traces.
type Repository interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Header is the column layout written by this package.
//
//nolint:gochecknoglobals // Constant slice.
var Header = []string{"offset_ms", "x", "y", "z"}

const (
	// filePermissions restricts trace files to the owner.
	filePermissions = 0o600
	// floatPrecision is the number of decimals written per axis.
	floatPrecision = 4
)

var (
	// ErrNotFound is returned when the trace file does not exist yet.
	ErrNotFound = errors.New("trace not found")
	// ErrMalformedRow is returned for rows that do not hold three numeric axes.
	ErrMalformedRow = errors.New("malformed trace row")
)

// Layout maps CSV columns onto a record.
type Layout struct {
	// Offset is the offset column, -1 when absent.
	Offset int
	// OffsetUnit converts the offset column value to a duration.
	OffsetUnit time.Duration
	// X, Y, Z are the axis columns.
	X, Y, Z int
}

// DefaultLayout is used for files without a recognizable header: x,y,z.
func DefaultLayout() Layout {
	return Layout{Offset: -1, X: 0, Y: 1, Z: 2}
}

// DetectLayout recognizes a header row. ok is false when row is data.
//
// Supported headers are this package's own (offset_ms,x,y,z) and IMU logger
// exports (timestamp_ns,accel_x,accel_y,accel_z,...).
func DetectLayout(row []string) (Layout, bool) {
	columns := make(map[string]int, len(row))
	for i, name := range row {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	find := func(names ...string) int {
		for _, name := range names {
			if i, ok := columns[name]; ok {
				return i
			}
		}

		return -1
	}

	layout := Layout{
		Offset: -1,
		X:      find("x", "accel_x", "ax"),
		Y:      find("y", "accel_y", "ay"),
		Z:      find("z", "accel_z", "az"),
	}

	if layout.X < 0 || layout.Y < 0 || layout.Z < 0 {
		return DefaultLayout(), false
	}

	switch {
	case find("offset_ms") >= 0:
		layout.Offset, layout.OffsetUnit = find("offset_ms"), time.Millisecond
	case find("timestamp_ns") >= 0:
		layout.Offset, layout.OffsetUnit = find("timestamp_ns"), time.Nanosecond
	}

	return layout, true
}

// ParseRow converts a data row using layout. Offsets are returned as read;
// callers rebase them onto the first record.
func ParseRow(layout Layout, row []string) (Record, error) {
	axis := func(i int) (float64, error) {
		if i < 0 || i >= len(row) {
			return 0, fmt.Errorf("%w: missing column %d", ErrMalformedRow, i)
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrMalformedRow, err)
		}

		return v, nil
	}

	var (
		record Record
		err    error
	)

	if record.Sample.X, err = axis(layout.X); err != nil {
		return Record{}, err
	}

	if record.Sample.Y, err = axis(layout.Y); err != nil {
		return Record{}, err
	}

	if record.Sample.Z, err = axis(layout.Z); err != nil {
		return Record{}, err
	}

	if layout.Offset >= 0 {
		offset, err := axis(layout.Offset)
		if err != nil {
			return Record{}, err
		}

		record.Offset = time.Duration(offset * float64(layout.OffsetUnit))
	}

	return record, nil
}

// FormatRow renders a record with the package header layout.
func FormatRow(r Record) []string {
	return []string{
		strconv.FormatInt(r.Offset.Milliseconds(), 10),
		strconv.FormatFloat(r.Sample.X, 'f', floatPrecision, 64),
		strconv.FormatFloat(r.Sample.Y, 'f', floatPrecision, 64),
		strconv.FormatFloat(r.Sample.Z, 'f', floatPrecision, 64),
	}
}

// FileRepository persists a trace as a CSV file on disk.
type FileRepository struct {
	// path is the filesystem location of the trace.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes CSV at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the trace location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the whole trace. Offsets are rebased so the first record starts at zero.
func (r *FileRepository) Load(_ context.Context) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("open trace file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	records, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode trace file: %w", err)
	}

	return records, nil
}

// Save replaces the trace on disk.
func (r *FileRepository) Save(_ context.Context, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err = writer.Write(Header); err != nil {
		_ = file.Close()
		return fmt.Errorf("write trace header: %w", err)
	}

	for _, record := range records {
		if err = writer.Write(FormatRow(record)); err != nil {
			_ = file.Close()
			return fmt.Errorf("write trace row: %w", err)
		}
	}

	writer.Flush()

	if err = writer.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush trace file: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close trace file: %w", err)
	}

	return nil
}

// Decode reads every record from r. Rows that cannot be parsed are rejected.
func Decode(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records []Record
		layout  = DefaultLayout()
		first   = true
		base    time.Duration
	)

	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if first {
			first = false

			if detected, ok := DetectLayout(row); ok {
				layout = detected
				continue
			}
		}

		record, err := ParseRow(layout, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if len(records) == 0 {
			base = record.Offset
		}

		record.Offset -= base
		records = append(records, record)
	}
}
