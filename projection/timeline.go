// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and optimistic entries.
// Does not emit events or interact with UI directly.
package projection

import (
	"circles/domain"
	"circles/domain/event"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// LocalMessage is a message as the client shows it.
// TempID correlates an optimistic entry with its server copy and is the clientId sent on the wire.
type LocalMessage struct {
	domain.Message
	TempID string
	Status Status
}

// Timeline holds the local view of one conversation.
// Confirmed messages are ordered by id. Pending ones (sending or failed) follow in send order.
// Timeline is not safe for concurrent use.
type Timeline struct {
	ConversationID int64
	confirmed      []LocalMessage
	pending        []LocalMessage
	known          map[int64]struct{}
	now            func() time.Time
}

func NewTimeline(conversationID int64) *Timeline {
	return &Timeline{
		ConversationID: conversationID,
		known:          make(map[int64]struct{}),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Consume applies a realtime event. It reports whether the timeline changed.
func (t *Timeline) Consume(e event.DomainEvent) bool {
	switch evt := e.(type) {
	case event.NewMessage:
		return t.Merge(evt.Message) > 0
	default:
		return false
	}
}

// Merge adds server messages, skipping ones already present.
// A message whose ClientID matches a pending entry confirms that entry.
// It returns how many entries were added or confirmed.
func (t *Timeline) Merge(messages ...domain.Message) int {
	changed := 0
	for _, m := range messages {
		if m.ConversationID != t.ConversationID {
			continue
		}
		if _, ok := t.known[m.ID]; ok {
			continue
		}
		local := LocalMessage{Message: m, Status: StatusSent}
		if m.ClientID != "" {
			if i := t.pendingIndex(m.ClientID); i >= 0 {
				local.TempID = t.pending[i].TempID
				t.pending = slices.Delete(t.pending, i, i+1)
			}
		}
		t.insert(local)
		changed++
	}
	return changed
}

// AddOptimistic appends a sending entry and returns it.
func (t *Timeline) AddOptimistic(senderID int64, content string) LocalMessage {
	local := LocalMessage{
		Message: domain.Message{
			ConversationID: t.ConversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      t.now(),
		},
		TempID: uuid.NewString(),
		Status: StatusSending,
	}
	local.ClientID = local.TempID
	t.pending = append(t.pending, local)
	return local
}

// Confirm replaces the pending entry with the server copy.
// If the realtime echo already confirmed it, nothing changes.
func (t *Timeline) Confirm(tempID string, m domain.Message) {
	i := t.pendingIndex(tempID)
	if i < 0 {
		return
	}
	t.pending = slices.Delete(t.pending, i, i+1)
	if _, ok := t.known[m.ID]; ok {
		return
	}
	t.insert(LocalMessage{Message: m, TempID: tempID, Status: StatusSent})
}

// Fail marks a sending entry as failed.
func (t *Timeline) Fail(tempID string) bool {
	i := t.pendingIndex(tempID)
	if i < 0 || t.pending[i].Status != StatusSending {
		return false
	}
	t.pending[i].Status = StatusFailed
	return true
}

// Resend moves a failed entry back to sending, keeping its TempID.
func (t *Timeline) Resend(tempID string) (LocalMessage, bool) {
	i := t.pendingIndex(tempID)
	if i < 0 || t.pending[i].Status != StatusFailed {
		return LocalMessage{}, false
	}
	t.pending[i].Status = StatusSending
	return t.pending[i], true
}

// Entry looks up a pending or confirmed entry by TempID.
func (t *Timeline) Entry(tempID string) (LocalMessage, bool) {
	return lo.Find(t.Messages(), func(m LocalMessage) bool {
		return m.TempID == tempID
	})
}

// Messages returns a copy of the timeline, confirmed first.
func (t *Timeline) Messages() []LocalMessage {
	out := make([]LocalMessage, 0, len(t.confirmed)+len(t.pending))
	out = append(out, t.confirmed...)
	return append(out, t.pending...)
}

// Last returns the newest confirmed message.
func (t *Timeline) Last() (domain.Message, bool) {
	if len(t.confirmed) == 0 {
		return domain.Message{}, false
	}
	return t.confirmed[len(t.confirmed)-1].Message, true
}

func (t *Timeline) Len() int {
	return len(t.confirmed) + len(t.pending)
}

func (t *Timeline) pendingIndex(tempID string) int {
	return slices.IndexFunc(t.pending, func(m LocalMessage) bool {
		return m.TempID == tempID
	})
}

func (t *Timeline) insert(local LocalMessage) {
	i, _ := slices.BinarySearchFunc(t.confirmed, local.ID, func(m LocalMessage, id int64) int {
		switch {
		case m.ID < id:
			return -1
		case m.ID > id:
			return 1
		default:
			return 0
		}
	})
	t.confirmed = slices.Insert(t.confirmed, i, local)
	t.known[local.ID] = struct{}{}
}
