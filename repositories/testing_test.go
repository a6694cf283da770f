package repositories

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type stores struct {
	db            *badger.DB
	users         *UserRepository
	conversations *ConversationRepository
	messages      *MessageRepository
}

func openStores(t *testing.T) stores {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)

	users, err := NewUserRepository(db)
	req.NoError(err)
	conversations, err := NewConversationRepository(db, log)
	req.NoError(err)
	messages, err := NewMessageRepository(db, log)
	req.NoError(err)

	t.Cleanup(func() {
		_ = users.Close()
		_ = conversations.Close()
		_ = messages.Close()
		_ = db.Close()
	})
	return stores{db: db, users: users, conversations: conversations, messages: messages}
}
