package sqlstore

import (
	"circles/domain"
	"circles/errors"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "circles.db"), logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestUserStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	users := NewUserStore(openDB(t))

	alice, err := users.CreateUser(ctx, domain.User{Username: "alice", Name: "Alice"})
	req.NoError(err)
	req.Positive(alice.ID)

	_, err = users.CreateUser(ctx, domain.User{Username: "alice"})
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	fetched, err := users.GetUserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(alice.ID, fetched.ID)

	_, err = users.GetUser(ctx, 404)
	req.ErrorIs(err, errors.ErrNotFound)

	found, err := users.GetUsers(ctx, []int64{alice.ID, alice.ID, 404})
	req.NoError(err)
	req.Len(found, 1)
}

func TestConversationStore_CreateDirect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	conversations := NewConversationStore(openDB(t))

	created, isNew, err := conversations.CreateDirect(ctx, 1, 2)
	req.NoError(err)
	req.True(isNew)
	req.ElementsMatch([]int64{1, 2}, created.ParticipantIDs())

	again, isNew, err := conversations.CreateDirect(ctx, 2, 1)
	req.NoError(err)
	req.False(isNew)
	req.Equal(created.ID, again.ID)
}

func TestConversationStore_CreateDirect_Concurrent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	conversations := NewConversationStore(openDB(t))

	const attempts = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := map[int64]struct{}{}
	newCount := 0
	var errs []error
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conversation, isNew, err := conversations.CreateDirect(ctx, 3, 4)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[conversation.ID] = struct{}{}
			if isNew {
				newCount++
			}
		}()
	}
	wg.Wait()

	req.Empty(errs)
	req.Len(ids, 1)
	req.Equal(1, newCount)
}

func TestConversationStore_ListTouchMarkRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	conversations := NewConversationStore(openDB(t))

	first, _, err := conversations.CreateDirect(ctx, 1, 2)
	req.NoError(err)
	second, _, err := conversations.CreateDirect(ctx, 1, 3)
	req.NoError(err)

	// When the first conversation gets activity
	req.NoError(conversations.Touch(ctx, first.ID, time.Now().UTC().Add(time.Minute)))
	req.ErrorIs(conversations.Touch(ctx, 999, time.Now()), errors.ErrNotFound)

	// Then it is listed first
	list, err := conversations.ListForUser(ctx, 1)
	req.NoError(err)
	req.Len(list, 2)
	req.Equal(first.ID, list[0].ID)
	req.Equal(second.ID, list[1].ID)
	req.Len(list[0].Participants, 2)

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	part, err := conversations.MarkRead(ctx, first.ID, 2, at)
	req.NoError(err)
	req.True(part.LastReadAt.Equal(at))

	_, err = conversations.MarkRead(ctx, first.ID, 3, at)
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = conversations.GetParticipant(ctx, first.ID, 3)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageStore_Pagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	messages := NewMessageStore(openDB(t))

	var stored []int64
	for i := 0; i < 7; i++ {
		msg, created, err := messages.StoreMessage(ctx, domain.Message{ConversationID: 1, SenderID: 1, Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
		req.True(created)
		stored = append(stored, msg.ID)
	}

	var seen []int64
	var cursor *int64
	for {
		page, next, err := messages.GetMessages(ctx, 1, cursor, 3)
		req.NoError(err)
		for _, m := range page {
			seen = append(seen, m.ID)
		}
		if next == nil {
			break
		}
		req.Equal(page[len(page)-1].ID, *next)
		cursor = next
	}
	req.Len(seen, 7)
	req.ElementsMatch(stored, seen)
	req.Equal(stored[6], seen[0])

	last, err := messages.LastMessage(ctx, 1)
	req.NoError(err)
	req.Equal(stored[6], last.ID)
}

func TestMessageStore_ClientIDAndUnread(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	messages := NewMessageStore(openDB(t))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	messages.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, created, err := messages.StoreMessage(ctx, domain.Message{ConversationID: 1, SenderID: 1, Content: "a", ClientID: "c-1"})
	req.NoError(err)
	req.True(created)
	again, created, err := messages.StoreMessage(ctx, domain.Message{ConversationID: 1, SenderID: 1, Content: "a", ClientID: "c-1"})
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, again.ID)
	req.Equal("c-1", again.ClientID)

	_, _, err = messages.StoreMessage(ctx, domain.Message{ConversationID: 1, SenderID: 2, Content: "b"})
	req.NoError(err)
	_, _, err = messages.StoreMessage(ctx, domain.Message{ConversationID: 1, SenderID: 1, Content: "c"})
	req.NoError(err)

	count, err := messages.CountUnread(ctx, 1, domain.Participant{UserID: 2})
	req.NoError(err)
	req.Equal(2, count)

	count, err = messages.CountUnread(ctx, 1, domain.Participant{UserID: 2, LastReadAt: base.Add(2 * time.Second)})
	req.NoError(err)
	req.Equal(1, count)

	_, err = messages.GetMessage(ctx, 2, first.ID)
	req.ErrorIs(err, errors.ErrNotFound)
}
