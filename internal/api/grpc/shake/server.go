package shake

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	pb "github.com/oshokin/shake-couplet/internal/pb/v1"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// OriginMetadataKey carries "user@host" of the calling process.
const OriginMetadataKey = "x-shake-origin"

// watchBuffer is the number of shakes a slow watcher may lag behind before events are dropped.
const watchBuffer = 16

// Events is the outbound side of the detector, usually a *shake.Bus.
type Events interface {
	Listen(ctx context.Context, buffer int) <-chan motion.Event
}

// Detector exposes the state reported by State.
type Detector interface {
	Snapshot() shake.Snapshot
	Options() shake.Options
}

// Server implements the ShakeService gRPC API.
type Server struct {
	// ctx bounds every Watch stream, so GracefulStop does not wait on idle watchers.
	ctx context.Context //nolint:containedctx // Server lifetime.

	streams  shake.StreamOpener
	events   Events
	detector Detector

	// watchers counts open Watch streams.
	watchers atomic.Int64
}

var _ pb.ShakeServiceServer = (*Server)(nil)

// NewServer wires the detector plumbing into a gRPC handler. Every Push call
// gets its own stream from streams. Watch streams end when ctx is canceled.
func NewServer(ctx context.Context, streams shake.StreamOpener, events Events, detector Detector) *Server {
	return &Server{
		ctx:      ctx,
		streams:  streams,
		events:   events,
		detector: detector,
	}
}

// Register attaches the server to a gRPC registrar.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	pb.RegisterShakeServiceServer(registrar, s)
}

// Watchers returns the number of open Watch streams.
func (s *Server) Watchers() int {
	return int(s.watchers.Load())
}

// Push reads samples until the client closes the stream.
// Malformed samples are counted as rejected and skipped.
func (s *Server) Push(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx := withOrigin(s.ctx, stream.Context())

	var accepted, rejected int

	logger.Debug(ctx, "Push stream opened")

	samples := s.streams.OpenStream("grpc " + streamName(stream.Context()))
	defer samples.Close()

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.DebugKV(ctx, "Push stream closed", "accepted", accepted, "rejected", rejected)

			return stream.SendAndClose(&structpb.Struct{
				Fields: map[string]*structpb.Value{
					pb.FieldAccepted: structpb.NewNumberValue(float64(accepted)),
					pb.FieldRejected: structpb.NewNumberValue(float64(rejected)),
				},
			})
		}

		if err != nil {
			return err
		}

		sample, err := ToSample(msg)
		if err != nil {
			rejected++

			logger.WarnKV(ctx, "Rejected pushed sample", "error", err)

			continue
		}

		accepted++

		samples.HandleMotion(sample)
	}
}

// Watch sends the time of every shake until the client leaves or the server stops.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[timestamppb.Timestamp]) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	ctx = withOrigin(ctx, stream.Context())

	events := s.events.Listen(ctx, watchBuffer)

	s.watchers.Add(1)
	defer s.watchers.Add(-1)

	logger.Info(ctx, "Watcher connected")

	for event := range events {
		if err := stream.Send(timestamppb.New(event.At)); err != nil {
			logger.WarnKV(ctx, "Failed to send shake to watcher", "error", err)

			return err
		}
	}

	logger.Info(ctx, "Watcher disconnected")

	if s.ctx.Err() != nil {
		return status.Error(codes.Unavailable, "server shutting down")
	}

	return nil
}

// State returns the current detector snapshot.
func (s *Server) State(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.detector == nil {
		return nil, status.Error(codes.FailedPrecondition, "detector is not configured")
	}

	return toProtoState(s.detector.Snapshot(), s.detector.Options(), s.Watchers()), nil
}

// streamName identifies a pushing client by its origin, falling back to the peer address.
func streamName(streamCtx context.Context) string {
	if md, ok := metadata.FromIncomingContext(streamCtx); ok {
		if origin := md.Get(OriginMetadataKey); len(origin) > 0 {
			return origin[0]
		}
	}

	if p, ok := peer.FromContext(streamCtx); ok && p.Addr != nil {
		return p.Addr.String()
	}

	return "unknown"
}

// withOrigin copies the caller origin from the incoming metadata into the logging context.
func withOrigin(ctx, streamCtx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(streamCtx)
	if !ok {
		return ctx
	}

	if origin := md.Get(OriginMetadataKey); len(origin) > 0 {
		return logger.WithKV(ctx, "origin", origin[0])
	}

	return ctx
}
