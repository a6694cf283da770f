package workers

import (
	"circles/contract"
	"circles/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventFanout delivers an event to every local sink of its channel.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. EventFanout is not a message broker.
// A slow sink is abandoned after sinkTimeout and never blocks the others.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, registry: registry, sinkTimeout: sinkTimeout}
}

// Fanout returns once every sink accepted, failed or timed out.
// It reports how many sinks accepted the event.
func (f *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) int {
	sinks := f.registry.GetSinksForChannel(evt.Channel())
	if len(sinks) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0
	for _, sink := range sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, evt); err != nil {
				f.log.Debug("Sink rejected event", "channel", evt.Channel(), "event", evt.Name(), "error", err)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(sink)
	}
	wg.Wait()
	return delivered
}
