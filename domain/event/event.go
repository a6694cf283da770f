package event

import (
	"circles/domain"
	"time"
)

type Name string

const (
	NewMessageName             Name = "new-message"
	NewMessageNotificationName Name = "new-message-notification"
	TypingName                 Name = "typing"
	MessagesReadName           Name = "messages-read"
)

// DomainEvent is anything published on a realtime channel.
type DomainEvent interface {
	Channel() Channel
	Name() Name
}

// NewMessage goes to the conversation channel once the message is durable.
type NewMessage struct {
	Message domain.Message `json:"message"`
}

func (e NewMessage) Channel() Channel { return ConversationChannel(e.Message.ConversationID) }
func (e NewMessage) Name() Name       { return NewMessageName }

// NewMessageNotification goes to each other participant's user channel.
type NewMessageNotification struct {
	RecipientID    int64          `json:"-"`
	ConversationID int64          `json:"conversationId"`
	Message        domain.Message `json:"message"`
}

func (e NewMessageNotification) Channel() Channel { return UserChannel(e.RecipientID) }
func (e NewMessageNotification) Name() Name       { return NewMessageNotificationName }

// Typing is ephemeral and never persisted.
type Typing struct {
	ConversationID int64       `json:"-"`
	User           domain.User `json:"user"`
	IsTyping       bool        `json:"isTyping"`
}

func (e Typing) Channel() Channel { return ConversationChannel(e.ConversationID) }
func (e Typing) Name() Name       { return TypingName }

// MessagesRead is the read receipt of one participant.
type MessagesRead struct {
	ConversationID int64     `json:"-"`
	UserID         int64     `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

func (e MessagesRead) Channel() Channel { return ConversationChannel(e.ConversationID) }
func (e MessagesRead) Name() Name       { return MessagesReadName }
