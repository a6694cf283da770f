// Package domain contains core concepts of the messaging system.
// This file defines Message and its content rules.
// Messages are immutable once persisted.
package domain

import (
	"time"
)

// MaxContentLength is counted in characters, after trimming.
const MaxContentLength = 5000

// MaxClientIDLength bounds the client correlation id.
const MaxClientIDLength = 64

// Message is a persisted unit of text in a conversation.
// IDs increase with CreatedAt inside a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	ClientID       string    `json:"clientId,omitempty"`
	Sender         *User     `json:"sender,omitempty"`
}

// WithSender attaches the public identity of the sender when known.
func (m Message) WithSender(users map[int64]User) Message {
	if u, ok := users[m.SenderID]; ok {
		m.Sender = &u
	}
	return m
}

// MessagePage is one page of history, oldest first.
// NextCursor is the id of the oldest message returned, nil when nothing older remains.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *int64    `json:"nextCursor"`
}
