package server

import (
	"circles/domain"
	"circles/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func (s stack) dial(t *testing.T, ctx context.Context, user string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(s.server.URL, "http://", "ws://", 1) + "/api/realtime?token=" + s.tokens[user]
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) event.Envelope {
	t.Helper()
	var env event.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func TestRealtimeServer_DeliversConversationAndUserEvents(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newStack(t)

	var created createdConversation
	req.Equal(http.StatusOK, s.call(t, "alice", http.MethodPost, "/api/conversations",
		map[string]any{"participantId": s.users["bob"].ID}, &created))
	convChannel := event.ConversationChannel(created.ID)

	// Given alice is connected and subscribed to the conversation
	conn := s.dial(t, ctx, "alice")
	env := readEnvelope(t, ctx, conn)
	req.Equal(event.SubscriptionSucceededName, env.Event)
	req.Equal(event.UserChannel(s.users["alice"].ID), env.Channel)

	req.NoError(wsjson.Write(ctx, conn, event.Command{Type: event.SubscribeCommand, Channel: convChannel}))
	env = readEnvelope(t, ctx, conn)
	req.Equal(event.SubscriptionSucceededName, env.Event)
	req.Equal(convChannel, env.Channel)

	// When bob sends a message
	req.Equal(http.StatusCreated, s.call(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", created.ID), map[string]any{"content": "hey alice"}, nil))

	// Then alice gets it on the conversation channel, then the notification on her own
	env = readEnvelope(t, ctx, conn)
	req.Equal(event.NewMessageName, env.Event)
	req.Equal(convChannel, env.Channel)
	decoded, err := event.Decode(env)
	req.NoError(err)
	req.Equal("hey alice", decoded.(event.NewMessage).Message.Content)

	env = readEnvelope(t, ctx, conn)
	req.Equal(event.NewMessageNotificationName, env.Event)
	var notification struct {
		ConversationID int64          `json:"conversationId"`
		Message        domain.Message `json:"message"`
	}
	req.NoError(json.Unmarshal(env.Data, &notification))
	req.Equal(created.ID, notification.ConversationID)

	// When bob types
	req.Equal(http.StatusOK, s.call(t, "bob", http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/typing", created.ID), map[string]any{"isTyping": true}, nil))
	env = readEnvelope(t, ctx, conn)
	req.Equal(event.TypingName, env.Event)
	decoded, err = event.Decode(env)
	req.NoError(err)
	req.Equal("bob", decoded.(event.Typing).User.Username)
	req.True(decoded.(event.Typing).IsTyping)
}

func TestRealtimeServer_RejectsForeignChannels(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newStack(t)

	var created createdConversation
	req.Equal(http.StatusOK, s.call(t, "alice", http.MethodPost, "/api/conversations",
		map[string]any{"participantId": s.users["bob"].ID}, &created))

	conn := s.dial(t, ctx, "carol")
	readEnvelope(t, ctx, conn)

	commands := []event.Command{
		{Type: event.SubscribeCommand, Channel: event.ConversationChannel(created.ID)},
		{Type: event.SubscribeCommand, Channel: event.UserChannel(s.users["alice"].ID)},
		{Type: event.SubscribeCommand, Channel: "lobby"},
		{Type: "shout", Channel: event.UserChannel(s.users["carol"].ID)},
	}
	for _, cmd := range commands {
		req.NoError(wsjson.Write(ctx, conn, cmd))
		env := readEnvelope(t, ctx, conn)
		req.Equal(event.ErrorName, env.Event)
		var payload event.ErrorPayload
		req.NoError(json.Unmarshal(env.Data, &payload))
		req.NotEmpty(payload.Message)
	}

	// Malformed frames are answered, not fatal
	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("{")))
	req.Equal(event.ErrorName, readEnvelope(t, ctx, conn).Event)
}

func TestRealtimeServer_UnsubscribesOnDisconnect(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newStack(t)

	conn := s.dial(t, ctx, "bob")
	readEnvelope(t, ctx, conn)
	req.Equal(1, s.registry.CountSubscribers())

	req.NoError(conn.Close(websocket.StatusNormalClosure, ""))
	req.Eventually(func() bool { return s.registry.CountSubscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeServer_RequiresToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newStack(t)

	url := strings.Replace(s.server.URL, "http://", "ws://", 1) + "/api/realtime"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
