// Package domain contains core concepts of the messaging system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

// Participant links a user to a conversation.
// A zero LastReadAt means the user never read anything.
type Participant struct {
	ConversationID int64     `json:"conversationId"`
	UserID         int64     `json:"userId"`
	LastReadAt     time.Time `json:"lastReadAt"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// IsUnread reports whether m counts as unread for this participant.
// A user's own messages are never unread.
func (p Participant) IsUnread(m Message) bool {
	return m.SenderID != p.UserID && m.CreatedAt.After(p.LastReadAt)
}
