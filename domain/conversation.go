// Package domain contains core concepts of the messaging system.
// This file defines direct conversations between two users.
package domain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Conversation is a direct thread. UpdatedAt moves forward on every message.
type Conversation struct {
	ID           int64
	Participants []Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Conversation) HasParticipant(userID int64) bool {
	_, ok := c.Participant(userID)
	return ok
}

func (c Conversation) Participant(userID int64) (Participant, bool) {
	return lo.Find(c.Participants, func(p Participant) bool {
		return p.UserID == userID
	})
}

// OtherParticipantIDs returns everyone but the viewer.
func (c Conversation) OtherParticipantIDs(viewerID int64) []int64 {
	return lo.FilterMap(c.Participants, func(p Participant, _ int) (int64, bool) {
		return p.UserID, p.UserID != viewerID
	})
}

func (c Conversation) ParticipantIDs() []int64 {
	return lo.Map(c.Participants, func(p Participant, _ int) int64 {
		return p.UserID
	})
}

// ConversationSummary is the inbox view of a conversation for one viewer.
type ConversationSummary struct {
	ID           int64     `json:"id"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"lastMessage"`
	UnreadCount  int       `json:"unreadCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
	IsNew        bool      `json:"isNew,omitempty"`
}

// PairKey identifies the unordered pair of a direct conversation.
func PairKey(a, b int64) string {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	return fmt.Sprintf("%019d:%019d", low, high)
}
