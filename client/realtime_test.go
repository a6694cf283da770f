package client

import (
	"circles/domain"
	"circles/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// gateway is a scripted websocket server. Every connection gets the handshake,
// then reports its commands, and the first connection is dropped after one event.
type gateway struct {
	mu       sync.Mutex
	commands []event.Command
	conns    atomic.Int32
	token    string
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.token = r.URL.Query().Get("token")
	g.mu.Unlock()
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	n := g.conns.Add(1)
	ctx := r.Context()

	write := func(env event.Envelope) {
		data, _ := json.Marshal(env)
		_ = conn.Write(ctx, websocket.MessageText, data)
	}
	write(event.Envelope{Channel: event.UserChannel(alice), Event: event.SubscriptionSucceededName})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd event.Command
		_ = json.Unmarshal(data, &cmd)
		g.mu.Lock()
		g.commands = append(g.commands, cmd)
		g.mu.Unlock()

		write(event.Envelope{Channel: cmd.Channel, Event: event.SubscriptionSucceededName})
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
		env, _ := event.Encode(event.NewMessage{Message: domain.Message{ID: int64(n), ConversationID: conversationID, SenderID: bob, Content: "hey"}})
		write(env)
		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
	}
}

func (g *gateway) subscribes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.commands)
}

func TestRealtime_ReceivesAndResubscribesAfterReconnect(t *testing.T) {
	req := require.New(t)
	gw := &gateway{}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rt := NewRealtime(log, srv.URL, RealtimeConfig{Token: "tok", ReconnectBaseDelay: 10 * time.Millisecond})
	var reconnected atomic.Int32
	rt.OnReconnect(func() { reconnected.Add(1) })

	// Given a subscription registered before connecting
	req.NoError(rt.Subscribe(ctx, event.ConversationChannel(conversationID)))
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	// Then the first connection delivers its event, skipping the malformed frame
	first := <-rt.Events()
	req.Equal(int64(1), first.(event.NewMessage).Message.ID)
	req.Equal(conversationID, first.(event.NewMessage).Message.ConversationID)

	// And after the server drops it, the client reconnects and subscribes again
	second := <-rt.Events()
	req.Equal(int64(2), second.(event.NewMessage).Message.ID)
	req.Equal(2, gw.subscribes())
	req.Eventually(func() bool { return reconnected.Load() == 1 }, time.Second, 10*time.Millisecond)
	gw.mu.Lock()
	req.Equal("tok", gw.token)
	gw.mu.Unlock()

	// When the context ends, Run returns cleanly
	cancel()
	req.NoError(<-done)
}

func TestRealtime_GivesUpAfterMaxAttempts(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rt := NewRealtime(log, srv.URL, RealtimeConfig{
		Token:                "bad",
		MaxReconnectAttempts: 2,
		ReconnectBaseDelay:   time.Millisecond,
		ReconnectMaxDelay:    5 * time.Millisecond,
	})

	err := rt.Run(context.Background())

	req.Error(err)
	req.Contains(err.Error(), "giving up")
}
