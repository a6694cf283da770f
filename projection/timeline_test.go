package projection

import (
	"circles/domain"
	"circles/domain/event"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func msg(id int64, content string) domain.Message {
	return domain.Message{ID: id, ConversationID: 1, SenderID: 2, Content: content, CreatedAt: time.Unix(id, 0).UTC()}
}

func contents(t *Timeline) []string {
	var out []string
	for _, m := range t.Messages() {
		out = append(out, m.Content)
	}
	return out
}

func TestTimeline_Merge_OrdersAndDedupes(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)

	// Given a page and an older page merged out of order
	req.Equal(2, timeline.Merge(msg(3, "c"), msg(4, "d")))
	req.Equal(2, timeline.Merge(msg(1, "a"), msg(2, "b")))

	// When a duplicate and a foreign message arrive
	req.Zero(timeline.Merge(msg(3, "c")))
	foreign := msg(9, "other conversation")
	foreign.ConversationID = 2
	req.Zero(timeline.Merge(foreign))

	// Then the timeline is ordered by id, each message once
	req.Equal([]string{"a", "b", "c", "d"}, contents(timeline))
	last, ok := timeline.Last()
	req.True(ok)
	req.Equal(int64(4), last.ID)
}

func TestTimeline_Consume_NewMessage(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)

	req.True(timeline.Consume(event.NewMessage{Message: msg(1, "hello")}))
	req.False(timeline.Consume(event.NewMessage{Message: msg(1, "hello")}))
	req.False(timeline.Consume(event.Typing{ConversationID: 1, IsTyping: true}))
	req.Equal(1, timeline.Len())
}

func TestTimeline_OptimisticSend_ConfirmThenEcho(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)
	timeline.Merge(msg(1, "earlier"))

	// Given an optimistic entry
	local := timeline.AddOptimistic(7, "hi")
	req.Equal(StatusSending, local.Status)
	req.Equal(local.TempID, local.ClientID)
	req.Equal([]string{"earlier", "hi"}, contents(timeline))

	// When the server confirms it and the realtime echo follows
	server := domain.Message{ID: 5, ConversationID: 1, SenderID: 7, Content: "hi", ClientID: local.TempID}
	timeline.Confirm(local.TempID, server)
	req.Zero(timeline.Merge(server))

	// Then exactly one copy is shown, sent, with the same temp id
	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal(StatusSent, messages[1].Status)
	req.Equal(int64(5), messages[1].ID)
	req.Equal(local.TempID, messages[1].TempID)
}

func TestTimeline_OptimisticSend_EchoBeforeConfirm(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)
	local := timeline.AddOptimistic(7, "race")
	server := domain.Message{ID: 3, ConversationID: 1, SenderID: 7, Content: "race", ClientID: local.TempID}

	// When the echo beats the HTTP response
	req.Equal(1, timeline.Merge(server))
	timeline.Confirm(local.TempID, server)

	// Then there is still one entry
	req.Equal(1, timeline.Len())
	entry, ok := timeline.Entry(local.TempID)
	req.True(ok)
	req.Equal(StatusSent, entry.Status)
}

func TestTimeline_FailAndResend(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)
	local := timeline.AddOptimistic(7, "flaky")

	// A sending entry cannot be resent
	_, ok := timeline.Resend(local.TempID)
	req.False(ok)

	req.True(timeline.Fail(local.TempID))
	entry, _ := timeline.Entry(local.TempID)
	req.Equal(StatusFailed, entry.Status)
	req.False(timeline.Fail(local.TempID))

	resent, ok := timeline.Resend(local.TempID)
	req.True(ok)
	req.Equal(StatusSending, resent.Status)
	req.Equal(local.TempID, resent.TempID)

	timeline.Confirm(local.TempID, domain.Message{ID: 2, ConversationID: 1, SenderID: 7, Content: "flaky", ClientID: local.TempID})
	req.Equal(1, timeline.Len())
	entry, _ = timeline.Entry(local.TempID)
	req.Equal(StatusSent, entry.Status)

	_, ok = timeline.Resend("unknown")
	req.False(ok)
}

func TestTimeline_PendingStayAfterConfirmed(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(1)
	pending := timeline.AddOptimistic(7, "mine")

	// When someone else's message lands while mine is in flight
	timeline.Merge(msg(10, "theirs"))

	req.Equal([]string{"theirs", "mine"}, contents(timeline))

	timeline.Confirm(pending.TempID, domain.Message{ID: 11, ConversationID: 1, SenderID: 7, Content: "mine"})
	req.Equal([]string{"theirs", "mine"}, contents(timeline))
}
