package server

import (
	"circles/domain/event"
	"circles/errors"
	"circles/observability"
	"circles/runtime"
	"circles/services"
	"circles/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type RealtimeConfig struct {
	BufferSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OriginPatterns []string
}

// RealtimeServer is the websocket gateway.
// Each connection is subscribed to its user channel and may subscribe to
// the conversations its user participates in.
type RealtimeServer struct {
	log           *slog.Logger
	orchestrator  *runtime.Orchestrator
	conversations services.IConversationService
	monitoring    *observability.MonitoringManager
	cfg           RealtimeConfig
}

func NewRealtimeServer(log *slog.Logger, orchestrator *runtime.Orchestrator,
	conversations services.IConversationService, monitoring *observability.MonitoringManager,
	cfg RealtimeConfig) *RealtimeServer {
	return &RealtimeServer{log: log, orchestrator: orchestrator, conversations: conversations, monitoring: monitoring, cfg: cfg}
}

// connection is the state of one websocket, owned by Connect.
type connection struct {
	id      string
	userID  int64
	conn    *websocket.Conn
	sink    *sink.ConnectionSink
	control chan event.Envelope
}

// Connect blocks until the client disconnects.
// Cleanup removes the connection from every channel.
func (s *RealtimeServer) Connect(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		s.log.Debug("Websocket handshake failed", "user_id", userID, "error", err)
		return
	}
	defer conn.CloseNow()

	c := &connection{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		sink:    sink.NewConnectionSink(s.log, s.cfg.BufferSize, s.monitoring.IncrDroppedEvents),
		control: make(chan event.Envelope, 16),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.monitoring.ConnectionOpened()
	defer s.monitoring.ConnectionClosed()
	defer s.orchestrator.Disconnect(c.id)

	userChannel := event.UserChannel(userID)
	s.orchestrator.RegisterConnection(c.id, userChannel, c.sink)
	c.control <- event.Envelope{Channel: userChannel, Event: event.SubscriptionSucceededName}
	s.log.Info("Realtime client connected", "connection_id", c.id, "user_id", userID)

	go s.readLoop(ctx, cancel, c)
	if err := s.writeLoop(ctx, c); err != nil {
		s.log.Debug("Realtime client gone", "connection_id", c.id, "error", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *RealtimeServer) readLoop(ctx context.Context, cancel context.CancelFunc, c *connection) {
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd event.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(ctx, c, event.ErrorEnvelope("", fmt.Errorf("%w: malformed command", errors.ErrInvalidInput)))
			continue
		}
		if reply, ok := s.handle(ctx, c, cmd); ok {
			s.reply(ctx, c, reply)
		}
	}
}

// handle applies a client command and returns the envelope to send back, if any.
func (s *RealtimeServer) handle(ctx context.Context, c *connection, cmd event.Command) (event.Envelope, bool) {
	kind, id, err := cmd.Channel.Parse()
	if err != nil {
		return event.ErrorEnvelope(cmd.Channel, err), true
	}
	switch cmd.Type {
	case event.SubscribeCommand:
		if err := s.authorize(ctx, c.userID, kind, id); err != nil {
			return event.ErrorEnvelope(cmd.Channel, err), true
		}
		s.orchestrator.RegisterConnection(c.id, cmd.Channel, c.sink)
		return event.Envelope{Channel: cmd.Channel, Event: event.SubscriptionSucceededName}, true
	case event.UnsubscribeCommand:
		s.orchestrator.UnregisterConnection(c.id, cmd.Channel)
		return event.Envelope{}, false
	default:
		return event.ErrorEnvelope(cmd.Channel, fmt.Errorf("%w: unknown command %q", errors.ErrInvalidInput, cmd.Type)), true
	}
}

func (s *RealtimeServer) authorize(ctx context.Context, userID int64, kind event.ChannelKind, id int64) error {
	switch kind {
	case event.UserKind:
		if id != userID {
			return errors.ErrForbidden
		}
		return nil
	default:
		ok, err := s.conversations.IsParticipant(ctx, id, userID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrForbidden
		}
		return nil
	}
}

func (s *RealtimeServer) reply(ctx context.Context, c *connection, env event.Envelope) {
	select {
	case c.control <- env:
	case <-ctx.Done():
	}
}

// writeLoop is the only writer of the connection.
func (s *RealtimeServer) writeLoop(ctx context.Context, c *connection) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.control:
			if err := s.write(ctx, c, env); err != nil {
				return err
			}
		case evt := <-c.sink.Events():
			env, err := event.Encode(evt)
			if err != nil {
				s.log.Error("Cannot encode event", "event", evt.Name(), "error", err)
				continue
			}
			if err := s.write(ctx, c, env); err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *RealtimeServer) write(ctx context.Context, c *connection, env event.Envelope) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, env)
}
