package client

import (
	"circles/domain"
	"circles/domain/event"
	"context"
	"fmt"
	"sort"
	"sync"
)

// Inbox keeps the conversation list of one user with unread badges.
// Notifications for the conversation currently open do not raise its badge.
type Inbox struct {
	api      API
	viewerID int64

	mu            sync.Mutex
	conversations map[int64]domain.ConversationSummary
	active        int64
}

func NewInbox(api API, viewerID int64) *Inbox {
	return &Inbox{api: api, viewerID: viewerID, conversations: make(map[int64]domain.ConversationSummary)}
}

// Load replaces the local list with the server view.
func (i *Inbox) Load(ctx context.Context) error {
	summaries, err := i.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load inbox: %w", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.conversations = make(map[int64]domain.ConversationSummary, len(summaries))
	for _, s := range summaries {
		if s.ID == i.active {
			s.UnreadCount = 0
		}
		i.conversations[s.ID] = s
	}
	return nil
}

// HandleEvent applies new-message notifications. It reports whether the
// conversation was unknown, in which case callers reload.
func (i *Inbox) HandleEvent(e event.DomainEvent) (unknown bool) {
	n, ok := e.(event.NewMessageNotification)
	if !ok || n.RecipientID != i.viewerID {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	summary, known := i.conversations[n.ConversationID]
	if !known {
		summary = domain.ConversationSummary{ID: n.ConversationID}
	}
	message := n.Message
	summary.LastMessage = &message
	if message.CreatedAt.After(summary.UpdatedAt) {
		summary.UpdatedAt = message.CreatedAt
	}
	if n.ConversationID != i.active && message.SenderID != i.viewerID {
		summary.UnreadCount++
	}
	i.conversations[n.ConversationID] = summary
	return !known
}

// Open marks a conversation as the one on screen and clears its badge.
func (i *Inbox) Open(conversationID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = conversationID
	if s, ok := i.conversations[conversationID]; ok {
		s.UnreadCount = 0
		i.conversations[conversationID] = s
	}
}

func (i *Inbox) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = 0
}

// Conversations returns the list, most recent activity first.
func (i *Inbox) Conversations() []domain.ConversationSummary {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]domain.ConversationSummary, 0, len(i.conversations))
	for _, s := range i.conversations {
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].UpdatedAt.Equal(out[b].UpdatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].UpdatedAt.After(out[b].UpdatedAt)
	})
	return out
}

func (i *Inbox) Unread(conversationID int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conversations[conversationID].UnreadCount
}

func (i *Inbox) TotalUnread() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	total := 0
	for _, s := range i.conversations {
		total += s.UnreadCount
	}
	return total
}
