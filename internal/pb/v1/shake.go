package pb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "shake.v1.ShakeService"

// Full method names.
const (
	ShakeService_Push_FullMethodName  = "/" + ServiceName + "/Push"  //nolint:revive,stylecheck // Generated-style name.
	ShakeService_Watch_FullMethodName = "/" + ServiceName + "/Watch" //nolint:revive,stylecheck // Generated-style name.
	ShakeService_State_FullMethodName = "/" + ServiceName + "/State" //nolint:revive,stylecheck // Generated-style name.
)

// Field names used inside the structpb messages.
const (
	FieldX           = "x"
	FieldY           = "y"
	FieldZ           = "z"
	FieldAccepted    = "accepted"
	FieldRejected    = "rejected"
	FieldRunning     = "running"
	FieldSubscribed  = "subscribed"
	FieldEmitted     = "emitted"
	FieldWatchers    = "watchers"
	FieldStreams     = "streams"
	FieldLastTrigger = "last_trigger"
	FieldThreshold   = "threshold"
	FieldTimeoutMs   = "timeout_ms"
)

// ShakeServiceServer is the server API for ShakeService.
type ShakeServiceServer interface {
	// Push streams samples ({x, y, z}) into the detector and returns
	// {accepted, rejected} counts when the client closes the stream.
	Push(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error
	// Watch streams the time of every accepted shake.
	Watch(req *emptypb.Empty, stream grpc.ServerStreamingServer[timestamppb.Timestamp]) error
	// State reports the detector snapshot.
	State(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterShakeServiceServer registers srv on s.
func RegisterShakeServiceServer(s grpc.ServiceRegistrar, srv ShakeServiceServer) {
	s.RegisterService(&ShakeService_ServiceDesc, srv)
}

//nolint:revive,stylecheck // Generated-style name.
func _ShakeService_Push_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ShakeServiceServer).Push(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

//nolint:revive,stylecheck // Generated-style name.
func _ShakeService_Watch_Handler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}

	return srv.(ShakeServiceServer).Watch(m, &grpc.GenericServerStream[emptypb.Empty, timestamppb.Timestamp]{ServerStream: stream})
}

//nolint:revive,stylecheck // Generated-style name.
func _ShakeService_State_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(ShakeServiceServer).State(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ShakeService_State_FullMethodName,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ShakeServiceServer).State(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

// ShakeService_ServiceDesc is the grpc.ServiceDesc for ShakeService.
//
//nolint:gochecknoglobals,revive,stylecheck // Registered by pointer, as generated descriptors are.
var ShakeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShakeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "State",
			Handler:    _ShakeService_State_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Push",
			Handler:       _ShakeService_Push_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "Watch",
			Handler:       _ShakeService_Watch_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "shake/v1/shake.proto",
}

// ShakeServiceClient is the client API for ShakeService.
type ShakeServiceClient interface {
	Push(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[structpb.Struct, structpb.Struct], error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[timestamppb.Timestamp], error)
	State(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type shakeServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewShakeServiceClient creates a client on cc.
func NewShakeServiceClient(cc grpc.ClientConnInterface) ShakeServiceClient {
	return &shakeServiceClient{cc: cc}
}

func (c *shakeServiceClient) Push(
	ctx context.Context,
	opts ...grpc.CallOption,
) (grpc.ClientStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ShakeService_ServiceDesc.Streams[0], ShakeService_Push_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}

	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}

func (c *shakeServiceClient) Watch(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[timestamppb.Timestamp], error) {
	stream, err := c.cc.NewStream(ctx, &ShakeService_ServiceDesc.Streams[1], ShakeService_Watch_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, timestamppb.Timestamp]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}

	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close watch request: %w", err)
	}

	return x, nil
}

func (c *shakeServiceClient) State(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ShakeService_State_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
