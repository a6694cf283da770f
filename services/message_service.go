//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"circles/contract"
	"circles/domain"
	"circles/domain/chat"
	"circles/domain/event"
	"circles/errors"
	"circles/observability"
	"circles/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultPageSize   = 50
	MaxPageSize       = 100
	DefaultSearchSize = 20
)

type IMessageService interface {
	ListMessages(ctx context.Context, cmd chat.ListMessagesCommand) (domain.MessagePage, error)
	SendMessage(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error)
	MarkRead(ctx context.Context, cmd chat.MarkReadCommand) (time.Time, error)
	SetTyping(ctx context.Context, cmd chat.SetTypingCommand) error
	Search(ctx context.Context, cmd chat.SearchCommand) ([]domain.Message, error)
}

// MessageService persists first and broadcasts second.
// A broadcast failure is logged and counted, never returned.
type MessageService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	publisher     contract.Publisher
	searcher      contract.MessageSearcher
	monitoring    *observability.MonitoringManager
	maxPageSize   int
	now           func() time.Time
}

func NewMessageService(log *slog.Logger, users repositories.IUserRepository,
	conversations repositories.IConversationRepository, messages repositories.IMessageRepository,
	publisher contract.Publisher, monitoring *observability.MonitoringManager) *MessageService {
	return &MessageService{
		log:           log,
		users:         users,
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		monitoring:    monitoring,
		maxPageSize:   MaxPageSize,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithSearcher enables Search. Without it Search fails with ErrSearchDisabled.
func (s *MessageService) WithSearcher(searcher contract.MessageSearcher) *MessageService {
	s.searcher = searcher
	return s
}

// WithMaxPageSize changes the limit above which page sizes are clamped.
func (s *MessageService) WithMaxPageSize(size int) *MessageService {
	if size > 0 {
		s.maxPageSize = size
	}
	return s
}

// ListMessages returns one page in chronological order and marks the conversation read.
func (s *MessageService) ListMessages(ctx context.Context, cmd chat.ListMessagesCommand) (domain.MessagePage, error) {
	if err := cmd.Validate(); err != nil {
		return domain.MessagePage{}, err
	}
	conversation, err := s.authorize(ctx, cmd.ConversationID, cmd.ViewerID)
	if err != nil {
		return domain.MessagePage{}, err
	}

	limit := cmd.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, s.maxPageSize)

	messages, next, err := s.messages.GetMessages(ctx, cmd.ConversationID, cmd.Cursor, limit)
	if err != nil {
		return domain.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(messages)

	users, err := s.users.GetUsers(ctx, conversation.ParticipantIDs())
	if err != nil {
		return domain.MessagePage{}, err
	}
	messages = lo.Map(messages, func(m domain.Message, _ int) domain.Message {
		return m.WithSender(users)
	})

	if _, err := s.conversations.MarkRead(ctx, cmd.ConversationID, cmd.ViewerID, s.now()); err != nil {
		s.log.Warn("Cannot advance last read", "conversation_id", cmd.ConversationID,
			"user_id", cmd.ViewerID, "error", err)
	}
	return domain.MessagePage{Messages: messages, NextCursor: next}, nil
}

// SendMessage persists the message then notifies the conversation and every other participant.
// A ClientID already used by the sender returns the stored message. Side effects run again
// only when the earlier attempt stopped before moving the conversation and the sender's read marker.
func (s *MessageService) SendMessage(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error) {
	cmd = cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return domain.Message{}, err
	}
	conversation, err := s.authorize(ctx, cmd.ConversationID, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}

	message, created, err := s.messages.StoreMessage(ctx, domain.Message{
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        cmd.Content,
		ClientID:       cmd.ClientID,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	if sender, err := s.users.GetUser(ctx, cmd.SenderID); err == nil {
		public := sender.Public()
		message.Sender = &public
	}
	if !created && sendCompleted(conversation, message) {
		s.log.Debug("Duplicate client id, returning stored message",
			"conversation_id", cmd.ConversationID, "client_id", cmd.ClientID, "message_id", message.ID)
		return message, nil
	}
	if !created {
		s.log.Info("Completing interrupted send",
			"conversation_id", cmd.ConversationID, "client_id", cmd.ClientID, "message_id", message.ID)
	}

	if err := s.conversations.Touch(ctx, cmd.ConversationID, message.CreatedAt); err != nil {
		return domain.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	own, _ := conversation.Participant(cmd.SenderID)
	if created || own.LastReadAt.Before(message.CreatedAt) {
		if _, err := s.conversations.MarkRead(ctx, cmd.ConversationID, cmd.SenderID, message.CreatedAt); err != nil {
			return domain.Message{}, fmt.Errorf("advance sender last read: %w", err)
		}
	}
	s.monitoring.IncrMessagesSent()

	s.broadcast(ctx, event.NewMessage{Message: message})
	for _, recipient := range conversation.OtherParticipantIDs(cmd.SenderID) {
		s.broadcast(ctx, event.NewMessageNotification{
			RecipientID:    recipient,
			ConversationID: cmd.ConversationID,
			Message:        message,
		})
	}
	return message, nil
}

// MarkRead sets the viewer's last read to now and publishes the receipt.
func (s *MessageService) MarkRead(ctx context.Context, cmd chat.MarkReadCommand) (time.Time, error) {
	if err := cmd.Validate(); err != nil {
		return time.Time{}, err
	}
	if _, err := s.authorize(ctx, cmd.ConversationID, cmd.ViewerID); err != nil {
		return time.Time{}, err
	}
	participant, err := s.conversations.MarkRead(ctx, cmd.ConversationID, cmd.ViewerID, s.now())
	if err != nil {
		return time.Time{}, fmt.Errorf("mark read: %w", err)
	}
	s.broadcast(ctx, event.MessagesRead{
		ConversationID: cmd.ConversationID,
		UserID:         cmd.ViewerID,
		ReadAt:         participant.LastReadAt,
	})
	return participant.LastReadAt, nil
}

// SetTyping only signals. Publishing is best effort.
func (s *MessageService) SetTyping(ctx context.Context, cmd chat.SetTypingCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if _, err := s.authorize(ctx, cmd.ConversationID, cmd.UserID); err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	evt := event.Typing{ConversationID: cmd.ConversationID, User: user.Public(), IsTyping: cmd.IsTyping}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Debug("Typing signal lost", "conversation_id", cmd.ConversationID, "error", err)
	}
	return nil
}

// Search returns matching messages of the conversation, newest first.
// Hits are re-sorted by id, so the index relevance order is not kept.
func (s *MessageService) Search(ctx context.Context, cmd chat.SearchCommand) ([]domain.Message, error) {
	if s.searcher == nil {
		return nil, errors.ErrSearchDisabled
	}
	cmd = cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	conversation, err := s.authorize(ctx, cmd.ConversationID, cmd.ViewerID)
	if err != nil {
		return nil, err
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = DefaultSearchSize
	}

	ids, err := s.searcher.Search(ctx, cmd.ConversationID, cmd.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	users, err := s.users.GetUsers(ctx, conversation.ParticipantIDs())
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.messages.GetMessage(ctx, cmd.ConversationID, id)
		if goerrors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, m.WithSender(users))
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID > messages[j].ID })
	return messages, nil
}

// sendCompleted reports whether the conversation and the sender's read marker
// already reached the stored message.
func sendCompleted(conversation domain.Conversation, message domain.Message) bool {
	sender, _ := conversation.Participant(message.SenderID)
	return !conversation.UpdatedAt.Before(message.CreatedAt) && !sender.LastReadAt.Before(message.CreatedAt)
}

// authorize hides whether a conversation exists from non-participants.
func (s *MessageService) authorize(ctx context.Context, conversationID, userID int64) (domain.Conversation, error) {
	conversation, err := s.conversations.GetConversation(ctx, conversationID)
	if goerrors.Is(err, errors.ErrNotFound) {
		return domain.Conversation{}, fmt.Errorf("conversation %d: %w", conversationID, errors.ErrForbidden)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(userID) {
		return domain.Conversation{}, fmt.Errorf("conversation %d: %w", conversationID, errors.ErrForbidden)
	}
	return conversation, nil
}

func (s *MessageService) broadcast(ctx context.Context, e event.DomainEvent) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.monitoring.IncrBroadcastFailures()
		s.log.Warn("Broadcast failed", "channel", e.Channel(), "event", e.Name(), "error", err)
	}
}
