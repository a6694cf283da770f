package sqlstore

import (
	"circles/domain"
	"circles/errors"
	"circles/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var _ repositories.IConversationRepository = (*ConversationStore)(nil)

type ConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *ConversationStore) FindDirect(ctx context.Context, userA, userB int64) (domain.Conversation, bool, error) {
	var record conversationRecord
	err := s.db.WithContext(ctx).Preload("Participants").
		Where("pair_key = ?", domain.PairKey(userA, userB)).
		First(&record).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return toDomainConversation(record), true, nil
}

// CreateDirect relies on the unique pair_key: the losing writer reads the winner back.
func (s *ConversationStore) CreateDirect(ctx context.Context, userA, userB int64) (domain.Conversation, bool, error) {
	if existing, found, err := s.FindDirect(ctx, userA, userB); err != nil || found {
		return existing, false, err
	}

	now := s.now()
	record := conversationRecord{
		PairKey:   domain.PairKey(userA, userB),
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []participantRecord{
			{UserID: userA, JoinedAt: now},
			{UserID: userB, JoinedAt: now},
		},
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	if err != nil {
		// Usually gorm.ErrDuplicatedKey; any insert failure is checked against a concurrent winner
		existing, found, findErr := s.FindDirect(ctx, userA, userB)
		if findErr != nil {
			return domain.Conversation{}, false, findErr
		}
		if found {
			return existing, false, nil
		}
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return toDomainConversation(record), true, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id int64) (domain.Conversation, error) {
	var record conversationRecord
	err := s.db.WithContext(ctx).Preload("Participants").First(&record, id).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, fmt.Errorf("conversation %d: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return toDomainConversation(record), nil
}

func (s *ConversationStore) GetParticipant(ctx context.Context, conversationID, userID int64) (domain.Participant, error) {
	var record participantRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&record).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Participant{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return toDomainParticipant(record), nil
}

func (s *ConversationStore) ListForUser(ctx context.Context, userID int64) ([]domain.Conversation, error) {
	var records []conversationRecord
	err := s.db.WithContext(ctx).Preload("Participants").
		Where("id IN (?)", s.db.Model(&participantRecord{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	conversations := make([]domain.Conversation, 0, len(records))
	for _, r := range records {
		conversations = append(conversations, toDomainConversation(r))
	}
	return conversations, nil
}

// Touch moves updated_at forward, never backward.
func (s *ConversationStore) Touch(ctx context.Context, conversationID int64, at time.Time) error {
	var record conversationRecord
	err := s.db.WithContext(ctx).Select("id").First(&record, conversationID).Error
	if goerrors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("conversation %d: %w", conversationID, errors.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&conversationRecord{}).
		Where("id = ? AND updated_at < ?", conversationID, at.UTC()).
		UpdateColumn("updated_at", at.UTC()).Error
}

func (s *ConversationStore) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) (domain.Participant, error) {
	result := s.db.WithContext(ctx).Model(&participantRecord{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("last_read_at", at.UTC())
	if result.Error != nil {
		return domain.Participant{}, result.Error
	}
	if result.RowsAffected == 0 {
		return domain.Participant{}, errors.ErrNotFound
	}
	return s.GetParticipant(ctx, conversationID, userID)
}
