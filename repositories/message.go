//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"bytes"
	"circles/domain"
	"circles/errors"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) (domain.Message, bool, error)
	GetMessage(ctx context.Context, conversationID, messageID int64) (domain.Message, error)
	GetMessages(ctx context.Context, conversationID int64, cursor *int64, limit int) ([]domain.Message, *int64, error)
	LastMessage(ctx context.Context, conversationID int64) (*domain.Message, error)
	CountUnread(ctx context.Context, conversationID int64, reader domain.Participant) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
	now func() time.Time

	// mu keeps id order and CreatedAt order identical
	mu          sync.Mutex
	lastCreated time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequence), sequenceBandwidth)
	if err != nil {
		return nil, err
	}
	return &MessageRepository{
		db:  db,
		log: log,
		seq: seq,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

type DiskMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	ClientID       string    `json:"client_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StoreMessage assigns the id and CreatedAt, then persists the message.
// The key is formatted as "msg:{conversation_id}:{message_id}", both padded to 19 digits,
// so a prefix scan returns the conversation in chronological order.
// When the sender already stored a message with the same ClientID, that message
// is returned with created=false and nothing is written.
func (m *MessageRepository) StoreMessage(_ context.Context, message domain.Message) (domain.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if message.ClientID != "" {
		existing, err := m.findByClientID(message.ConversationID, message.SenderID, message.ClientID)
		if err == nil {
			return existing, false, nil
		}
		if !goerrors.Is(err, errors.ErrNotFound) {
			return domain.Message{}, false, err
		}
	}

	id, err := nextID(m.seq)
	if err != nil {
		return domain.Message{}, false, err
	}
	createdAt := m.now()
	if createdAt.Before(m.lastCreated) {
		createdAt = m.lastCreated
	}
	message.ID = id
	message.CreatedAt = createdAt
	message.Sender = nil

	err = update(m.db, func(txn *badger.Txn) error {
		if err := setJSON(txn, messageKey(message.ConversationID, id), fromDomainMessage(message)); err != nil {
			return err
		}
		if message.ClientID == "" {
			return nil
		}
		return txn.Set(clientIDKey(message.ConversationID, message.SenderID, message.ClientID),
			[]byte(strconv.FormatInt(id, 10)))
	})
	if err != nil {
		return domain.Message{}, false, err
	}
	m.lastCreated = createdAt
	return message, true, nil
}

func (m *MessageRepository) GetMessage(_ context.Context, conversationID, messageID int64) (domain.Message, error) {
	var disk DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messageKey(conversationID, messageID), &disk)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %d: %w", messageID, err)
	}
	return toDomainMessage(disk), nil
}

// GetMessages walks the conversation backwards from the cursor, exclusive.
// Messages come back newest first. The returned cursor is the id of the oldest
// message of the page, or nil when nothing older remains.
func (m *MessageRepository) GetMessages(_ context.Context, conversationID int64, cursor *int64, limit int) ([]domain.Message, *int64, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest position msg:{conv}:9999999999999999999
			seekKey = append(bytes.Clone(prefix), maxPaddedID...)
		default:
			seekKey = messageKey(conversationID, *cursor)
		}

		it.Seek(seekKey)
		// The cursor itself was already served by the previous page
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit+1 {
				break
			}
			var disk DiskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			messages = append(messages, toDomainMessage(disk))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(messages) <= limit {
		return messages, nil, nil
	}
	messages = messages[:limit]
	next := messages[len(messages)-1].ID
	return messages, &next, nil
}

func (m *MessageRepository) LastMessage(ctx context.Context, conversationID int64) (*domain.Message, error) {
	messages, _, err := m.GetMessages(ctx, conversationID, nil, 1)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

// CountUnread counts the messages the reader has not read yet.
// It walks backwards and stops at the first message not after the reader's last read.
func (m *MessageRepository) CountUnread(_ context.Context, conversationID int64, reader domain.Participant) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(bytes.Clone(prefix), maxPaddedID...)); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			message := toDomainMessage(disk)
			if !message.CreatedAt.After(reader.LastReadAt) {
				return nil
			}
			if reader.IsUnread(message) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func (m *MessageRepository) findByClientID(conversationID, senderID int64, clientID string) (domain.Message, error) {
	var disk DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(clientIDKey(conversationID, senderID, clientID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return err
		}
		return getJSON(txn, messageKey(conversationID, id), &disk)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(disk), nil
}

func fromDomainMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		ClientID:       message.ClientID,
		CreatedAt:      message.CreatedAt,
	}
}

func toDomainMessage(disk DiskMessage) domain.Message {
	return domain.Message{
		ID:             disk.ID,
		ConversationID: disk.ConversationID,
		SenderID:       disk.SenderID,
		Content:        disk.Content,
		ClientID:       disk.ClientID,
		CreatedAt:      disk.CreatedAt.UTC(),
	}
}
