// internal/service/notification/sinks.go
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/websocket"
)

// LogSink writes every event to the log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, ev notification.Event) error {
	s.logger.Info("subscription event",
		zap.String("event_id", ev.ID),
		zap.Int64("account_id", ev.AccountID),
		zap.String("kind", string(ev.Kind)),
		zap.Any("payload", ev.Payload),
	)
	return nil
}

// EventPusher delivers raw lifecycle events to live connections.
type EventPusher interface {
	PushSubscriptionEvent(accountID int64, data *websocket.SubscriptionEventData) int
}

// PushSink forwards events to the websocket subscription channel.
type PushSink struct {
	pusher EventPusher
}

func NewPushSink(pusher EventPusher) *PushSink {
	return &PushSink{pusher: pusher}
}

func (s *PushSink) Notify(_ context.Context, ev notification.Event) error {
	s.pusher.PushSubscriptionEvent(ev.AccountID, &websocket.SubscriptionEventData{
		EventID:    ev.ID,
		Kind:       string(ev.Kind),
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt,
	})
	return nil
}

// Sink is one fanout target. A failing required sink fails the whole
// Notify; optional sink failures are only logged.
type Sink struct {
	Name     string
	Notifier notification.Notifier
	Required bool
}

// Fanout delivers each event to every sink in order.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, ev notification.Event) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Notifier.Notify(ctx, ev)
		if err == nil {
			continue
		}
		if s.Required {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		f.logger.Warn("optional notification sink failed",
			zap.String("sink", s.Name),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
	return errors.Join(errs...)
}
