package sink

import (
	"circles/domain/event"
	"circles/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestConnectionSink_DropsWhenFull(t *testing.T) {
	req := require.New(t)
	drops := 0
	s := NewConnectionSink(logs.GetLoggerFromLevel(slog.LevelDebug), 2, func() { drops++ })
	ctx := context.Background()

	// Given a buffer of two
	req.NoError(s.Consume(ctx, event.Typing{ConversationID: 1, IsTyping: true}))
	req.NoError(s.Consume(ctx, event.Typing{ConversationID: 1, IsTyping: false}))

	// When a third event arrives before the writer drained
	err := s.Consume(ctx, event.MessagesRead{ConversationID: 1})

	// Then it is dropped without blocking
	req.ErrorIs(err, errors.ErrConnectionBacklog)
	req.Equal(uint64(1), s.Dropped())
	req.Equal(1, drops)

	// And buffered events keep their order
	first := <-s.Events()
	req.True(first.(event.Typing).IsTyping)
	second := <-s.Events()
	req.False(second.(event.Typing).IsTyping)
}
