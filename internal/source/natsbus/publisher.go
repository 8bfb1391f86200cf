package natsbus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
)

// Publisher publishes shake events as JSON. It implements shake.Observer.
type Publisher struct {
	ctx     context.Context //nolint:containedctx // Scopes logging of publish failures.
	conn    Conn
	subject string
}

// NewPublisher creates a publisher sending to subject.
func NewPublisher(ctx context.Context, conn Conn, subject string) *Publisher {
	return &Publisher{
		ctx:     logger.WithKV(ctx, "subject", subject),
		conn:    conn,
		subject: subject,
	}
}

// OnShake publishes event. Failures are logged; the bus must not block on the network.
func (p *Publisher) OnShake(event motion.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorKV(p.ctx, "Failed to encode shake event", "error", err)
		return
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(ContentTypeHeader, ContentTypeJSON)
	msg.Data = data

	if err = p.conn.Publish(msg); err != nil {
		logger.WarnKV(p.ctx, "Failed to publish shake event", "event_id", event.ID, "error", err)
		return
	}

	logger.DebugKV(p.ctx, "Published shake event", "event_id", event.ID, "seq", event.Seq)
}
