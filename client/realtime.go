package client

import (
	"circles/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

type RealtimeConfig struct {
	Token                string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	EventBuffer          int
	HTTPClient           *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
}

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) nextDelay() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// Realtime keeps one websocket to the gateway and re-subscribes its channels after every reconnect.
// Decoded events are delivered on Events.
type Realtime struct {
	log     *slog.Logger
	baseURL string
	cfg     RealtimeConfig
	recon   *reconnector
	events  chan event.DomainEvent

	mu          sync.Mutex
	conn        *websocket.Conn
	channels    map[event.Channel]struct{}
	onReconnect []func()
}

func NewRealtime(log *slog.Logger, baseURL string, cfg RealtimeConfig) *Realtime {
	cfg.defaults()
	return &Realtime{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		recon: &reconnector{
			baseDelay:   cfg.ReconnectBaseDelay,
			maxDelay:    cfg.ReconnectMaxDelay,
			maxAttempts: cfg.MaxReconnectAttempts,
		},
		events:   make(chan event.DomainEvent, cfg.EventBuffer),
		channels: make(map[event.Channel]struct{}),
	}
}

func (r *Realtime) Events() <-chan event.DomainEvent {
	return r.events
}

// OnReconnect registers a callback run after a connection is re-established.
// Events published while disconnected are lost, so callers resync from the API there.
func (r *Realtime) OnReconnect(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReconnect = append(r.onReconnect, f)
}

// Run connects and keeps the connection alive until ctx is done.
// It returns an error once the reconnect attempts are exhausted.
func (r *Realtime) Run(ctx context.Context) error {
	connected := false
	for {
		err := r.session(ctx, connected)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			connected = true
			r.recon.reset()
		}
		if !r.recon.shouldReconnect() {
			return fmt.Errorf("realtime: giving up after %d attempts: %w", r.recon.attempt, err)
		}
		delay := r.recon.nextDelay()
		r.log.Warn("realtime disconnected", "error", err, "retry_in", delay, "attempt", r.recon.attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Subscribe joins a channel now if connected, and after every reconnect.
func (r *Realtime) Subscribe(ctx context.Context, channel event.Channel) error {
	r.mu.Lock()
	r.channels[channel] = struct{}{}
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeCommand(ctx, conn, event.Command{Type: event.SubscribeCommand, Channel: channel})
}

func (r *Realtime) Unsubscribe(ctx context.Context, channel event.Channel) error {
	r.mu.Lock()
	delete(r.channels, channel)
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeCommand(ctx, conn, event.Command{Type: event.UnsubscribeCommand, Channel: channel})
}

// session runs one connection. A nil error means the connection was up
// and ended without a dial or handshake failure.
func (r *Realtime) session(ctx context.Context, reconnected bool) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	// The gateway confirms the user channel first
	first, err := readEnvelope(ctx, conn)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if first.Event != event.SubscriptionSucceededName {
		return fmt.Errorf("unexpected handshake event %q", first.Event)
	}

	r.mu.Lock()
	r.conn = conn
	channels := make([]event.Channel, 0, len(r.channels))
	for c := range r.channels {
		channels = append(channels, c)
	}
	callbacks := append([]func(){}, r.onReconnect...)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
	}()

	for _, c := range channels {
		if err := writeCommand(ctx, conn, event.Command{Type: event.SubscribeCommand, Channel: c}); err != nil {
			return fmt.Errorf("resubscribe %s: %w", c, err)
		}
	}
	if reconnected {
		for _, f := range callbacks {
			go f()
		}
	}

	r.readLoop(ctx, conn)
	return nil
}

func (r *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(r.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/api/realtime?token=" + url.QueryEscape(r.cfg.Token)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: r.cfg.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Debug("realtime read ended", "error", err)
			}
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.log.Debug("skipping malformed frame", "error", err)
			continue
		}
		switch env.Event {
		case event.SubscriptionSucceededName:
			r.log.Debug("subscribed", "channel", env.Channel)
			continue
		case event.ErrorName:
			var payload event.ErrorPayload
			_ = json.Unmarshal(env.Data, &payload)
			r.log.Warn("realtime command rejected", "channel", env.Channel, "error", payload.Message)
			continue
		}
		e, err := event.Decode(env)
		if err != nil {
			r.log.Debug("skipping realtime frame", "event", env.Event, "error", err)
			continue
		}
		select {
		case r.events <- e:
		case <-ctx.Done():
			return
		}
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (event.Envelope, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return event.Envelope{}, err
	}
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return event.Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	return env, nil
}

func writeCommand(ctx context.Context, conn *websocket.Conn, cmd event.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
