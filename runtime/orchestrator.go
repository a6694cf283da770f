// Package runtime handles event propagation to connected clients.
// It wires the registry, the transport and the background workers without containing business rules.
package runtime

import (
	"circles/contract"
	"circles/domain/event"
	"circles/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator is the realtime hub of one server process.
// Published events go to the permanent sinks first, then to the transport,
// which reaches every subscriber of the event's channel.
type Orchestrator struct {
	mu             sync.RWMutex
	log            *slog.Logger
	permanentSinks []contract.EventSink
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	transport      contract.Publisher
	sinkTimeout    time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry,
	transport contract.Publisher, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		transport:   transport,
		sinkTimeout: sinkTimeout,
	}
}

// Add registers sinks that see every published event, like the search index.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Publish is best-effort: a failing permanent sink is logged and skipped.
// Only a transport failure is returned.
func (o *Orchestrator) Publish(ctx context.Context, e event.DomainEvent) error {
	o.mu.RLock()
	sinks := o.permanentSinks
	o.mu.RUnlock()

	for _, s := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, o.sinkTimeout)
		if err := s.Consume(sinkCtx, e); err != nil {
			o.log.Warn("Permanent sink failed", "event", e.Name(), "error", err)
		}
		cancel()
	}
	return o.transport.Publish(ctx, e)
}

// RegisterConnection attaches a connection sink to a channel.
func (o *Orchestrator) RegisterConnection(connectionID string, channel event.Channel, sink contract.EventSink) {
	o.registry.Subscribe(connectionID, channel, sink)
}

func (o *Orchestrator) UnregisterConnection(connectionID string, channel event.Channel) {
	o.registry.Unsubscribe(connectionID, channel)
}

// Disconnect removes the connection from every channel.
func (o *Orchestrator) Disconnect(connectionID string) {
	o.registry.UnsubscribeAll(connectionID)
}

// Start runs the background workers until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context, background ...contract.Worker) {
	o.supervisor.Add(background...).Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}

// LocalTransport delivers events to the subscribers of this process only.
type LocalTransport struct {
	fanout *workers.EventFanout
}

func NewLocalTransport(fanout *workers.EventFanout) *LocalTransport {
	return &LocalTransport{fanout: fanout}
}

func (t *LocalTransport) Publish(ctx context.Context, e event.DomainEvent) error {
	t.fanout.Fanout(ctx, e)
	return nil
}
