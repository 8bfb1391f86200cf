// Package source opens the motion source selected on the command line.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/shake"
	"github.com/oshokin/shake-couplet/internal/source/natsbus"
	"github.com/oshokin/shake-couplet/internal/source/sim"
	"github.com/oshokin/shake-couplet/internal/source/trace"
	"github.com/oshokin/shake-couplet/internal/version"
)

// Kind names a motion source.
type Kind string

// Supported kinds.
const (
	KindSim   Kind = "sim"
	KindTrace Kind = "trace"
	KindNATS  Kind = "nats"
)

var (
	// ErrUnknownKind is returned for an unsupported source name.
	ErrUnknownKind = errors.New("unknown motion source")
	// ErrNoTraceFile is returned when the trace source is selected without a file.
	ErrNoTraceFile = errors.New("trace source needs trace_file")
	// ErrNoNATSURL is returned when the NATS source is selected without a URL.
	ErrNoNATSURL = errors.New("nats source needs nats.url")
)

// Kinds lists the supported kinds for flag help.
func Kinds() []string {
	return []string{string(KindSim), string(KindTrace), string(KindNATS)}
}

// ParseKind validates a source name.
func ParseKind(s string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(s))); kind {
	case KindSim, KindTrace, KindNATS:
		return kind, nil
	default:
		return "", fmt.Errorf("%w %q, want one of %s", ErrUnknownKind, s, strings.Join(Kinds(), ", "))
	}
}

// nopCloser is returned for sources without resources.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the source of the given kind from settings. The closer
// releases its connection and must be called after the detector stops.
func Open(ctx context.Context, kind Kind, settings *config.Config) (shake.Source, io.Closer, error) {
	switch kind {
	case KindSim:
		s, err := sim.New(ctx, sim.DefaultConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("create simulator: %w", err)
		}

		return s, nopCloser{}, nil
	case KindTrace:
		if settings.TraceFile == "" {
			return nil, nil, ErrNoTraceFile
		}

		return trace.NewFollower(ctx, settings.TraceFile), nopCloser{}, nil
	case KindNATS:
		if settings.NATS.URL == "" {
			return nil, nil, ErrNoNATSURL
		}

		conn, err := natsbus.Connect(ctx, settings.NATS.URL, version.UserAgent("shake-couplet"))
		if err != nil {
			return nil, nil, err
		}

		logger.InfoKV(ctx, "Reading motion from NATS", "url", settings.NATS.URL, "subject", settings.NATS.SampleSubject)

		return natsbus.NewSource(ctx, conn, settings.NATS.SampleSubject), conn, nil
	default:
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
}
