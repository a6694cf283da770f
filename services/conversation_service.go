//go:generate go run go.uber.org/mock/mockgen -source=conversation_service.go -destination=../mocks/mock_conversation_service.go -package=mocks
package services

import (
	"circles/domain"
	"circles/domain/chat"
	"circles/errors"
	"circles/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

type IConversationService interface {
	FindOrCreate(ctx context.Context, cmd chat.FindOrCreateCommand) (domain.ConversationSummary, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

type ConversationService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
}

func NewConversationService(log *slog.Logger, users repositories.IUserRepository,
	conversations repositories.IConversationRepository, messages repositories.IMessageRepository) *ConversationService {
	return &ConversationService{log: log, users: users, conversations: conversations, messages: messages}
}

// FindOrCreate returns the direct conversation of the pair, creating it when missing.
// The summary lists the other participant and IsNew tells whether it was just created.
func (s *ConversationService) FindOrCreate(ctx context.Context, cmd chat.FindOrCreateCommand) (domain.ConversationSummary, error) {
	if err := cmd.Validate(); err != nil {
		return domain.ConversationSummary{}, err
	}
	if _, err := s.users.GetUser(ctx, cmd.ParticipantID); err != nil {
		return domain.ConversationSummary{}, err
	}

	conversation, created, err := s.conversations.CreateDirect(ctx, cmd.UserID, cmd.ParticipantID)
	if err != nil {
		return domain.ConversationSummary{}, fmt.Errorf("find or create conversation: %w", err)
	}
	if created {
		s.log.Info("Conversation created", "conversation_id", conversation.ID,
			"user_id", cmd.UserID, "participant_id", cmd.ParticipantID)
	}

	users, err := s.users.GetUsers(ctx, conversation.ParticipantIDs())
	if err != nil {
		return domain.ConversationSummary{}, err
	}
	return domain.ConversationSummary{
		ID:           conversation.ID,
		Participants: publicUsers(conversation.OtherParticipantIDs(cmd.UserID), users),
		UpdatedAt:    conversation.UpdatedAt,
		IsNew:        created,
	}, nil
}

// ListForUser builds the inbox of a user, most recent activity first.
func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := lo.Uniq(lo.FlatMap(conversations, func(c domain.Conversation, _ int) []int64 {
		return c.ParticipantIDs()
	}))
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		viewer, ok := c.Participant(userID)
		if !ok {
			continue
		}
		last, err := s.messages.LastMessage(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			withSender := last.WithSender(users)
			last = &withSender
		}
		unread, err := s.messages.CountUnread(ctx, c.ID, viewer)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.ConversationSummary{
			ID:           c.ID,
			Participants: publicUsers(c.OtherParticipantIDs(userID), users),
			LastMessage:  last,
			UnreadCount:  unread,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return summaries, nil
}

func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	_, err := s.conversations.GetParticipant(ctx, conversationID, userID)
	if goerrors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// publicUsers keeps the order of ids and skips unknown users.
func publicUsers(ids []int64, users map[int64]domain.User) []domain.User {
	return lo.FilterMap(ids, func(id int64, _ int) (domain.User, bool) {
		u, ok := users[id]
		return u.Public(), ok
	})
}
