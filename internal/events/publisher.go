// Package events publishes subscription lifecycle events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
)

const (
	StreamName    = "SUBSCRIPTION_EVENTS"
	SubjectPrefix = "subscription.events"
)

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher is a notification sink that writes each event to the bus.
type Publisher struct {
	nc      *nats.Conn
	js      streamPublisher
	timeout time.Duration
	logger  *zap.Logger
}

// Connect dials NATS and makes sure the events stream exists.
func Connect(url string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tainment-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		logger.Warn("failed to ensure events stream", zap.String("stream", StreamName), zap.Error(err))
	}

	return &Publisher{nc: nc, js: js, timeout: 5 * time.Second, logger: logger}, nil
}

// Subject is the bus subject for an event kind.
func Subject(kind notification.EventKind) string {
	return SubjectPrefix + "." + string(kind)
}

// Notify publishes ev and waits for the stream ack. The event id is the
// JetStream message id, so a re-sent reminder is deduplicated by the stream.
func (p *Publisher) Notify(ctx context.Context, ev notification.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var opts []jetstream.PublishOpt
	if ev.ID != "" {
		opts = append(opts, jetstream.WithMsgID(ev.ID))
	}

	subject := Subject(ev.Kind)
	ack, err := p.js.Publish(ctx, subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}

	p.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_id", ev.ID),
		zap.Uint64("seq", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
