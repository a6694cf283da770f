package sqlstore

import (
	"circles/domain"
	"time"
)

type userRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Name         string `gorm:"size:120"`
	ProfileImage string `gorm:"size:512"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

type conversationRecord struct {
	ID           int64               `gorm:"primaryKey;autoIncrement"`
	PairKey      string              `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt    time.Time           `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime:false;index"`
	Participants []participantRecord `gorm:"foreignKey:ConversationID"`
}

func (conversationRecord) TableName() string { return "conversations" }

type participantRecord struct {
	ConversationID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID         int64 `gorm:"primaryKey;autoIncrement:false;index"`
	LastReadAt     time.Time
	JoinedAt       time.Time
}

func (participantRecord) TableName() string { return "conversation_participants" }

// messageRecord keeps a null ClientID for sends without one, so the unique index ignores them.
type messageRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID int64     `gorm:"not null;index:idx_messages_conversation,priority:1;uniqueIndex:idx_messages_client,priority:1"`
	SenderID       int64     `gorm:"not null;uniqueIndex:idx_messages_client,priority:2"`
	ClientID       *string   `gorm:"size:64;uniqueIndex:idx_messages_client,priority:3"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;index:idx_messages_conversation,priority:2"`
}

func (messageRecord) TableName() string { return "messages" }

func toDomainUser(r userRecord) domain.User {
	return domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Name:         r.Name,
		ProfileImage: r.ProfileImage,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func toDomainParticipant(r participantRecord) domain.Participant {
	return domain.Participant{
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		LastReadAt:     r.LastReadAt.UTC(),
		JoinedAt:       r.JoinedAt.UTC(),
	}
}

func toDomainConversation(r conversationRecord) domain.Conversation {
	participants := make([]domain.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, toDomainParticipant(p))
	}
	return domain.Conversation{
		ID:           r.ID,
		Participants: participants,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toDomainMessage(r messageRecord) domain.Message {
	m := domain.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.ClientID != nil {
		m.ClientID = *r.ClientID
	}
	return m
}
