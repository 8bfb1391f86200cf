package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/shake-couplet/internal/logger"
)

const (
	// connectTimeout bounds the initial dial.
	connectTimeout = 3 * time.Second
	// reconnectWait is the pause between reconnect attempts.
	reconnectWait = 500 * time.Millisecond
)

// Conn is the subset of a NATS connection used by this package.
type Conn interface {
	// Subscribe registers fn for subject. Messages arrive one at a time, in order.
	Subscribe(subject string, fn func(msg *nats.Msg)) (func() error, error)
	// Publish sends msg, headers included.
	Publish(msg *nats.Msg) error
	// Connected reports whether the connection is currently usable.
	Connected() bool
}

// Connect dials url and reconnects forever. Connection state changes are logged through ctx.
func Connect(ctx context.Context, url, name string) (*NATSConn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WarnKV(ctx, "NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.InfoKV(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	return &NATSConn{nc: nc}, nil
}

// NATSConn adapts *nats.Conn to Conn.
type NATSConn struct {
	nc *nats.Conn
}

// Subscribe implements Conn.
func (c *NATSConn) Subscribe(subject string, fn func(msg *nats.Msg)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	return sub.Unsubscribe, nil
}

// Publish implements Conn.
func (c *NATSConn) Publish(msg *nats.Msg) error {
	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}

	return nil
}

// Connected implements Conn.
func (c *NATSConn) Connected() bool {
	return c.nc.IsConnected()
}

// Close drains pending messages and closes the connection.
func (c *NATSConn) Close() error {
	if err := c.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}

	return nil
}
