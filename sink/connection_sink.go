package sink

import (
	"circles/domain/event"
	"circles/errors"
	"context"
	"log/slog"
	"sync/atomic"
)

// ConnectionSink buffers events for one realtime connection.
// Consume never blocks: a full buffer drops the event.
type ConnectionSink struct {
	log     *slog.Logger
	events  chan event.DomainEvent
	dropped atomic.Uint64
	onDrop  func()
}

func NewConnectionSink(log *slog.Logger, bufferSize int, onDrop func()) *ConnectionSink {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &ConnectionSink{log: log, events: make(chan event.DomainEvent, bufferSize), onDrop: onDrop}
}

// Consume is called by fanout
// The connection writer drains Events
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.dropped.Add(1)
		s.onDrop()
		s.log.Warn("Connection buffer full, event dropped", "channel", e.Channel(), "event", e.Name())
		return errors.ErrConnectionBacklog
	}
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

func (s *ConnectionSink) Dropped() uint64 {
	return s.dropped.Load()
}
