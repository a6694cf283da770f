package search

import (
	"circles/domain"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMessageIndex_SearchIsScopedToConversation(t *testing.T) {
	req := require.New(t)
	index, err := Open(t.TempDir(), logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)
	defer index.Close()

	// Given messages in two conversations
	req.NoError(index.IndexBatch([]domain.Message{
		{ID: 1, ConversationID: 10, SenderID: 1, Content: "Lunch at the ramen place?"},
		{ID: 2, ConversationID: 10, SenderID: 2, Content: "Sure, see you at noon"},
		{ID: 3, ConversationID: 11, SenderID: 1, Content: "ramen again tomorrow"},
	}))

	// When searching one conversation
	ids, err := index.Search(context.Background(), 10, "ramen", 10)
	req.NoError(err)

	// Then only its messages match
	req.Equal([]int64{1}, ids)

	none, err := index.Search(context.Background(), 10, "pizza", 10)
	req.NoError(err)
	req.Empty(none)
}

func TestMessageIndex_IndexBatchIsAnUpsert(t *testing.T) {
	req := require.New(t)
	index, err := Open(t.TempDir(), logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)
	defer index.Close()

	msg := domain.Message{ID: 7, ConversationID: 1, SenderID: 1, Content: "deploy on friday"}
	req.NoError(index.IndexBatch([]domain.Message{msg}))
	req.NoError(index.IndexBatch([]domain.Message{msg}))
	req.NoError(index.IndexBatch(nil))

	ids, err := index.Search(context.Background(), 1, "friday", 10)
	req.NoError(err)
	req.Equal([]int64{7}, ids)
}
