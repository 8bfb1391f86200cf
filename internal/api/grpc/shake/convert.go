package shake

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	pb "github.com/oshokin/shake-couplet/internal/pb/v1"
	"github.com/oshokin/shake-couplet/internal/shake"
)

var (
	// ErrMissingAxis is returned when a pushed sample lacks one of x, y or z.
	ErrMissingAxis = errors.New("sample axis missing")
	// ErrAxisNotNumber is returned when an axis holds a non-numeric value.
	ErrAxisNotNumber = errors.New("sample axis is not a number")
)

// ToSample converts a pushed {x, y, z} struct into a domain sample.
func ToSample(msg *structpb.Struct) (motion.Sample, error) {
	axis := func(name string) (float64, error) {
		value, ok := msg.GetFields()[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingAxis, name)
		}

		number, ok := value.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrAxisNotNumber, name)
		}

		return number.NumberValue, nil
	}

	var (
		sample motion.Sample
		err    error
	)

	if sample.X, err = axis(pb.FieldX); err != nil {
		return motion.Sample{}, err
	}

	if sample.Y, err = axis(pb.FieldY); err != nil {
		return motion.Sample{}, err
	}

	if sample.Z, err = axis(pb.FieldZ); err != nil {
		return motion.Sample{}, err
	}

	return sample, nil
}

// FromSample converts a domain sample into the pushed wire form.
func FromSample(sample motion.Sample) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			pb.FieldX: structpb.NewNumberValue(sample.X),
			pb.FieldY: structpb.NewNumberValue(sample.Y),
			pb.FieldZ: structpb.NewNumberValue(sample.Z),
		},
	}
}

// toProtoState converts a detector snapshot into the State response.
func toProtoState(snapshot shake.Snapshot, opts shake.Options, watchers int) *structpb.Struct {
	fields := map[string]*structpb.Value{
		pb.FieldRunning:    structpb.NewBoolValue(snapshot.Running),
		pb.FieldSubscribed: structpb.NewBoolValue(snapshot.Subscribed),
		pb.FieldEmitted:    structpb.NewNumberValue(float64(snapshot.Emitted)),
		pb.FieldWatchers:   structpb.NewNumberValue(float64(watchers)),
		pb.FieldStreams:    structpb.NewNumberValue(float64(snapshot.Streams)),
		pb.FieldThreshold:  structpb.NewNumberValue(opts.Threshold),
		pb.FieldTimeoutMs:  structpb.NewNumberValue(float64(opts.Timeout.Milliseconds())),
		// Time of the last accepted shake, or of the last Start/Stop when more recent.
		pb.FieldLastTrigger: structpb.NewStringValue(snapshot.LastTrigger.UTC().Format(time.RFC3339Nano)),
	}

	return &structpb.Struct{Fields: fields}
}
