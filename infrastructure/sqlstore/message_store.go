package sqlstore

import (
	"circles/domain"
	"circles/errors"
	"circles/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

var _ repositories.IMessageRepository = (*MessageStore)(nil)

type MessageStore struct {
	db  *gorm.DB
	now func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// StoreMessage inserts the message. A repeated (conversation, sender, client id)
// returns the stored message with created=false.
func (s *MessageStore) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ClientID != "" {
		existing, err := s.findByClientID(ctx, message)
		if err == nil {
			return existing, false, nil
		}
		if !goerrors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Message{}, false, err
		}
	}

	createdAt := s.now()
	if createdAt.Before(s.lastCreated) {
		createdAt = s.lastCreated
	}
	record := messageRecord{
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		CreatedAt:      createdAt,
	}
	if message.ClientID != "" {
		record.ClientID = lo.ToPtr(message.ClientID)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return domain.Message{}, false, err
	}
	s.lastCreated = createdAt
	return toDomainMessage(record), true, nil
}

func (s *MessageStore) GetMessage(ctx context.Context, conversationID, messageID int64) (domain.Message, error) {
	var record messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND id = ?", conversationID, messageID).
		First(&record).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Message{}, fmt.Errorf("message %d: %w", messageID, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(record), nil
}

// GetMessages returns up to limit messages strictly older than cursor, newest first.
func (s *MessageStore) GetMessages(ctx context.Context, conversationID int64, cursor *int64, limit int) ([]domain.Message, *int64, error) {
	query := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if cursor != nil {
		query = query.Where("id < ?", *cursor)
	}
	var records []messageRecord
	if err := query.Order("id DESC").Limit(limit + 1).Find(&records).Error; err != nil {
		return nil, nil, err
	}

	messages := lo.Map(records, func(r messageRecord, _ int) domain.Message {
		return toDomainMessage(r)
	})
	if len(messages) <= limit {
		return messages, nil, nil
	}
	messages = messages[:limit]
	next := messages[len(messages)-1].ID
	return messages, &next, nil
}

func (s *MessageStore) LastMessage(ctx context.Context, conversationID int64) (*domain.Message, error) {
	messages, _, err := s.GetMessages(ctx, conversationID, nil, 1)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

// CountUnread loads the messages after the reader's last read and applies Participant.IsUnread.
func (s *MessageStore) CountUnread(ctx context.Context, conversationID int64, reader domain.Participant) (int, error) {
	var records []messageRecord
	err := s.db.WithContext(ctx).Model(&messageRecord{}).
		Select("id", "sender_id", "created_at").
		Where("conversation_id = ? AND created_at > ?", conversationID, reader.LastReadAt.UTC()).
		Find(&records).Error
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range records {
		if reader.IsUnread(toDomainMessage(r)) {
			count++
		}
	}
	return count, nil
}

func (s *MessageStore) findByClientID(ctx context.Context, message domain.Message) (domain.Message, error) {
	var record messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id = ? AND client_id = ?", message.ConversationID, message.SenderID, message.ClientID).
		First(&record).Error
	if err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(record), nil
}
