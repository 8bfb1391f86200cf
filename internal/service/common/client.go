//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/shake-couplet/internal/api/grpc/shake"
	"github.com/oshokin/shake-couplet/internal/config"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	pb "github.com/oshokin/shake-couplet/internal/pb/v1"
	"github.com/oshokin/shake-couplet/internal/version"
)

// Client wraps the gRPC ShakeService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the shake server.
	conn *grpc.ClientConn
	// api is the ShakeService client interface.
	api pb.ShakeServiceClient

	// callTimeout is the default timeout for unary calls. Streams are bounded by their context only.
	callTimeout time.Duration
	// origin is sent as metadata so the server can tell clients apart in its logs.
	origin string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithOrigin overrides the detected origin.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = origin
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial creates a client for the shake server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent("shake-client")),
	)
	if err != nil {
		return nil, fmt.Errorf("dial shake server: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         pb.NewShakeServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	if origin, err := DetectOrigin(); err == nil {
		client.origin = origin
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// State retrieves the detector snapshot.
func (c *Client) State(ctx context.Context) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.State(callCtx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("get detector state: %w", err)
	}

	return resp, nil
}

// Watch calls fn for every shake until ctx is canceled or the stream breaks.
// A canceled ctx is reported as ctx.Err().
func (c *Client) Watch(ctx context.Context, fn func(at time.Time)) error {
	stream, err := c.api.Watch(c.streamContext(ctx), &emptypb.Empty{})
	if err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}

	for {
		at, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("receive shake: %w", err)
		}

		fn(at.AsTime())
	}
}

// Pusher streams samples to the server.
type Pusher struct {
	stream grpc.ClientStreamingClient[structpb.Struct, structpb.Struct]
	sent   int
}

// Push opens a sample stream. Close must be called to learn how many samples were accepted.
func (c *Client) Push(ctx context.Context) (*Pusher, error) {
	stream, err := c.api.Push(c.streamContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("open push stream: %w", err)
	}

	return &Pusher{stream: stream}, nil
}

// Send pushes one sample.
func (p *Pusher) Send(sample motion.Sample) error {
	if err := p.stream.Send(api.FromSample(sample)); err != nil {
		return fmt.Errorf("push sample %d: %w", p.sent+1, err)
	}

	p.sent++

	return nil
}

// Sent returns the number of samples written so far.
func (p *Pusher) Sent() int {
	return p.sent
}

// Close finishes the stream and returns the server's accepted and rejected counts.
func (p *Pusher) Close() (accepted, rejected int, err error) {
	resp, err := p.stream.CloseAndRecv()
	if err != nil {
		return 0, 0, fmt.Errorf("close push stream: %w", err)
	}

	fields := resp.GetFields()

	return int(fields[pb.FieldAccepted].GetNumberValue()), int(fields[pb.FieldRejected].GetNumberValue()), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.streamContext(ctx)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// streamContext attaches the origin metadata.
func (c *Client) streamContext(ctx context.Context) context.Context {
	if c.origin == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, api.OriginMetadataKey, c.origin)
}
