// Package realtime carries domain events between server processes over Redis pub/sub.
package realtime

import (
	"circles/domain/event"
	"circles/runtime/workers"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// url and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// RedisTransport publishes envelopes so that every process relays them to its own subscribers.
type RedisTransport struct {
	client *redis.Client
	prefix string
}

func NewRedisTransport(client *redis.Client, prefix string) *RedisTransport {
	return &RedisTransport{client: client, prefix: prefix}
}

func (t *RedisTransport) Publish(ctx context.Context, e event.DomainEvent) error {
	env, err := event.Encode(e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.prefix+string(env.Channel), payload).Err()
}

// RedisRelay is a worker feeding events received from Redis to the local fanout.
type RedisRelay struct {
	log    *slog.Logger
	client *redis.Client
	prefix string
	fanout *workers.EventFanout
}

func NewRedisRelay(log *slog.Logger, client *redis.Client, prefix string, fanout *workers.EventFanout) *RedisRelay {
	return &RedisRelay{log: log, client: client, prefix: prefix, fanout: fanout}
}

// Run returns nil on cancellation and an error when the subscription breaks,
// so the supervisor resubscribes.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx,
		r.prefix+string(event.ConversationKind)+"-*",
		r.prefix+string(event.UserKind)+"-*",
	)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis: psubscribe: %w", err)
	}
	r.log.Info("Realtime relay subscribed", "prefix", r.prefix)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis: subscription closed")
			}
			r.relay(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, payload string) {
	var env event.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("Malformed realtime envelope", "error", err)
		return
	}
	evt, err := event.Decode(env)
	if err != nil {
		r.log.Warn("Undecodable realtime envelope", "channel", env.Channel, "event", env.Event, "error", err)
		return
	}
	delivered := r.fanout.Fanout(ctx, evt)
	r.log.Debug("Relayed event", "channel", env.Channel, "event", env.Event, "delivered", delivered)
}
