package services

import (
	"circles/domain"
	"circles/observability"
	"circles/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	log           *slog.Logger
	users         *repositories.UserRepository
	conversations *repositories.ConversationRepository
	messages      *repositories.MessageRepository
	monitoring    *observability.MonitoringManager
	alice         domain.User
	bob           domain.User
	carol         domain.User
}

// newFixture opens Badger in a temp dir and provisions alice, bob and carol.
func newFixture(t *testing.T) fixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)

	users, err := repositories.NewUserRepository(db)
	req.NoError(err)
	conversations, err := repositories.NewConversationRepository(db, log)
	req.NoError(err)
	messages, err := repositories.NewMessageRepository(db, log)
	req.NoError(err)
	t.Cleanup(func() {
		_ = users.Close()
		_ = conversations.Close()
		_ = messages.Close()
		_ = db.Close()
	})

	f := fixture{
		log:           log,
		users:         users,
		conversations: conversations,
		messages:      messages,
		monitoring:    observability.NewMonitoringManager(log, time.Minute),
	}
	f.alice = f.createUser(t, "alice", "Alice")
	f.bob = f.createUser(t, "bob", "Bob")
	f.carol = f.createUser(t, "carol", "")
	return f
}

func (f fixture) createUser(t *testing.T, username, name string) domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), domain.User{Username: username, Name: name})
	require.NoError(t, err)
	return u
}

func (f fixture) conversationService() *ConversationService {
	return NewConversationService(f.log, f.users, f.conversations, f.messages)
}
