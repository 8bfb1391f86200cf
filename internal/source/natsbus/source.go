package natsbus

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// float32Triplet is the size of one binary sample: three little-endian float32 values.
const float32Triplet = 12

// Content types of motion messages, carried in the ContentTypeHeader header.
const (
	ContentTypeHeader = "Content-Type"
	// ContentTypeJSON is a sample object or an array of them. Messages without the header are JSON.
	ContentTypeJSON = "application/json"
	// ContentTypeFloat32 is a packed batch of little-endian float32 x,y,z triplets.
	ContentTypeFloat32 = "application/x-motion-float32le"
)

var (
	// ErrMalformedPayload is returned for messages that hold no decodable samples.
	ErrMalformedPayload = errors.New("malformed motion payload")
	// ErrUnsupportedContentType is returned for a content type other than the two above.
	ErrUnsupportedContentType = errors.New("unsupported motion content type")
)

// DecodeSamples decodes a message body of the given content type. An empty
// content type means JSON: a sample object or an array of samples.
func DecodeSamples(contentType string, data []byte) ([]motion.Sample, error) {
	switch contentType {
	case "", ContentTypeJSON:
		return decodeJSON(data)
	case ContentTypeFloat32:
		return decodeFloat32(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
}

func decodeJSON(data []byte) ([]motion.Sample, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrMalformedPayload
	}

	if trimmed[0] == '[' {
		var samples []motion.Sample
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}

		return samples, nil
	}

	var sample motion.Sample
	if err := json.Unmarshal(trimmed, &sample); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	return []motion.Sample{sample}, nil
}

func decodeFloat32(data []byte) ([]motion.Sample, error) {
	if len(data) == 0 || len(data)%float32Triplet != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrMalformedPayload, len(data))
	}

	samples := make([]motion.Sample, 0, len(data)/float32Triplet)

	for i := 0; i < len(data); i += float32Triplet {
		axis := func(offset int) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i+offset:])))
		}

		samples = append(samples, motion.Sample{X: axis(0), Y: axis(4), Z: axis(8)})
	}

	return samples, nil
}

// NewSamplesMsg builds a message carrying samples in the packed float32 layout.
func NewSamplesMsg(subject string, samples []motion.Sample) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(ContentTypeHeader, ContentTypeFloat32)
	msg.Data = EncodeSamples(samples)

	return msg
}

// EncodeSamples packs samples in the ContentTypeFloat32 layout.
func EncodeSamples(samples []motion.Sample) []byte {
	data := make([]byte, 0, len(samples)*float32Triplet)

	for _, s := range samples {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(s.X)))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(s.Y)))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(s.Z)))
	}

	return data
}

// Source delivers samples published on a NATS subject. It implements shake.Source.
// One subject carries the samples of one device.
type Source struct {
	ctx     context.Context //nolint:containedctx // Scopes logging of message callbacks.
	conn    Conn
	subject string

	mu       sync.Mutex
	dropped  uint64
	received uint64
}

// NewSource creates a source reading subject from conn.
func NewSource(ctx context.Context, conn Conn, subject string) *Source {
	return &Source{
		ctx:     logger.WithKV(ctx, "subject", subject),
		conn:    conn,
		subject: subject,
	}
}

// Available reports whether the connection is up.
func (s *Source) Available() bool {
	return s.conn != nil && s.conn.Connected()
}

// Subscribe implements shake.Source.
func (s *Source) Subscribe(h shake.MotionHandler) (shake.Unsubscribe, error) {
	unsubscribe, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		samples, err := DecodeSamples(msg.Header.Get(ContentTypeHeader), msg.Data)
		if err != nil {
			s.count(0, 1)
			logger.WarnKV(s.ctx, "Dropping motion message", "error", err)

			return
		}

		s.count(uint64(len(samples)), 0)

		for _, sample := range samples {
			h.HandleMotion(sample)
		}
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			if err := unsubscribe(); err != nil {
				logger.WarnKV(s.ctx, "Failed to unsubscribe", "error", err)
			}
		})
	}, nil
}

// Stats returns the number of delivered samples and dropped messages.
func (s *Source) Stats() (received, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.received, s.dropped
}

func (s *Source) count(received, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received += received
	s.dropped += dropped
}
