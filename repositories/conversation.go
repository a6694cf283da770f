//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"circles/domain"
	"circles/errors"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IConversationRepository interface {
	FindDirect(ctx context.Context, userA, userB int64) (domain.Conversation, bool, error)
	CreateDirect(ctx context.Context, userA, userB int64) (domain.Conversation, bool, error)
	GetConversation(ctx context.Context, id int64) (domain.Conversation, error)
	GetParticipant(ctx context.Context, conversationID, userID int64) (domain.Participant, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.Conversation, error)
	Touch(ctx context.Context, conversationID int64, at time.Time) error
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) (domain.Participant, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
	now func() time.Time
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) (*ConversationRepository, error) {
	seq, err := db.GetSequence([]byte(conversationSequence), sequenceBandwidth)
	if err != nil {
		return nil, err
	}
	return &ConversationRepository{
		db:  db,
		log: log,
		seq: seq,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// DiskConversation is the stored header of a conversation.
// Participants live under their own keys so read markers update independently.
type DiskConversation struct {
	ID        int64     `json:"id"`
	PairKey   string    `json:"pair_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DiskParticipant struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
	JoinedAt       time.Time `json:"joined_at"`
}

// FindDirect looks up the conversation of an unordered pair.
func (r *ConversationRepository) FindDirect(_ context.Context, userA, userB int64) (domain.Conversation, bool, error) {
	var conversation domain.Conversation
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		id, err := readPair(txn, domain.PairKey(userA, userB))
		if goerrors.Is(err, errors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		conversation, err = loadConversation(txn, id)
		found = err == nil
		return err
	})
	return conversation, found, err
}

// CreateDirect creates the pair conversation unless it already exists.
// The pair key is read inside the transaction, so two concurrent creators
// conflict on commit and the loser returns the winner's conversation.
func (r *ConversationRepository) CreateDirect(ctx context.Context, userA, userB int64) (domain.Conversation, bool, error) {
	pair := domain.PairKey(userA, userB)
	id, err := nextID(r.seq)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	now := r.now()

	var conversation domain.Conversation
	created := false
	err = r.db.Update(func(txn *badger.Txn) error {
		existingID, err := readPair(txn, pair)
		if err == nil {
			conversation, err = loadConversation(txn, existingID)
			return err
		}
		if !goerrors.Is(err, errors.ErrNotFound) {
			return err
		}

		header := DiskConversation{ID: id, PairKey: pair, CreatedAt: now, UpdatedAt: now}
		if err := setJSON(txn, conversationKey(id), header); err != nil {
			return err
		}
		var participants []domain.Participant
		for _, userID := range []int64{userA, userB} {
			part := DiskParticipant{ConversationID: id, UserID: userID, JoinedAt: now}
			if err := setJSON(txn, participantKey(id, userID), part); err != nil {
				return err
			}
			if err := txn.Set(membershipKey(userID, id), nil); err != nil {
				return err
			}
			participants = append(participants, toDomainParticipant(part))
		}
		if err := txn.Set(pairKey(pair), []byte(strconv.FormatInt(id, 10))); err != nil {
			return err
		}
		conversation = toDomainConversation(header, participants)
		created = true
		return nil
	})
	if goerrors.Is(err, badger.ErrConflict) {
		r.log.Debug("Concurrent conversation creation, reading the winner", "pair", pair)
		existing, found, findErr := r.FindDirect(ctx, userA, userB)
		if findErr != nil {
			return domain.Conversation{}, false, findErr
		}
		if !found {
			return domain.Conversation{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversation, created, nil
}

func (r *ConversationRepository) GetConversation(_ context.Context, id int64) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = loadConversation(txn, id)
		return err
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation %d: %w", id, err)
	}
	return conversation, nil
}

// GetParticipant returns errors.ErrNotFound when the user is not in the conversation.
func (r *ConversationRepository) GetParticipant(_ context.Context, conversationID, userID int64) (domain.Participant, error) {
	var part DiskParticipant
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, participantKey(conversationID, userID), &part)
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return toDomainParticipant(part), nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepository) ListForUser(_ context.Context, userID int64) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := membershipPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []int64
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		for _, id := range ids {
			conversation, err := loadConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByActivity(conversations)
	return conversations, nil
}

// Touch moves UpdatedAt forward, never backward.
func (r *ConversationRepository) Touch(_ context.Context, conversationID int64, at time.Time) error {
	return update(r.db, func(txn *badger.Txn) error {
		var header DiskConversation
		if err := getJSON(txn, conversationKey(conversationID), &header); err != nil {
			return err
		}
		if !at.After(header.UpdatedAt) {
			return nil
		}
		header.UpdatedAt = at.UTC()
		return setJSON(txn, conversationKey(conversationID), header)
	})
}

// MarkRead overwrites the read marker. Last write wins.
func (r *ConversationRepository) MarkRead(_ context.Context, conversationID, userID int64, at time.Time) (domain.Participant, error) {
	var part DiskParticipant
	err := update(r.db, func(txn *badger.Txn) error {
		if err := getJSON(txn, participantKey(conversationID, userID), &part); err != nil {
			return err
		}
		part.LastReadAt = at.UTC()
		return setJSON(txn, participantKey(conversationID, userID), part)
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return toDomainParticipant(part), nil
}

func (r *ConversationRepository) Close() error {
	return r.seq.Release()
}

func readPair(txn *badger.Txn, pair string) (int64, error) {
	item, err := txn.Get(pairKey(pair))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return 0, errors.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func loadConversation(txn *badger.Txn, id int64) (domain.Conversation, error) {
	var header DiskConversation
	if err := getJSON(txn, conversationKey(id), &header); err != nil {
		return domain.Conversation{}, err
	}

	prefix := participantPrefix(id)
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var participants []domain.Participant
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var part DiskParticipant
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &part)
		}); err != nil {
			return domain.Conversation{}, err
		}
		participants = append(participants, toDomainParticipant(part))
	}
	return toDomainConversation(header, participants), nil
}

func sortByActivity(conversations []domain.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		if conversations[i].UpdatedAt.Equal(conversations[j].UpdatedAt) {
			return conversations[i].ID > conversations[j].ID
		}
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
}

func toDomainConversation(header DiskConversation, participants []domain.Participant) domain.Conversation {
	return domain.Conversation{
		ID:           header.ID,
		Participants: participants,
		CreatedAt:    header.CreatedAt.UTC(),
		UpdatedAt:    header.UpdatedAt.UTC(),
	}
}

func toDomainParticipant(part DiskParticipant) domain.Participant {
	return domain.Participant{
		ConversationID: part.ConversationID,
		UserID:         part.UserID,
		LastReadAt:     part.LastReadAt.UTC(),
		JoinedAt:       part.JoinedAt.UTC(),
	}
}
