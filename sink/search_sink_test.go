package sink_test

import (
	"circles/domain"
	"circles/domain/event"
	"circles/mocks"
	"circles/sink"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMessage(id int64) event.NewMessage {
	return event.NewMessage{Message: domain.Message{ID: id, ConversationID: 1, SenderID: 1, Content: "hello"}}
}

func TestSearchSink_Consume(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockIndexer := mocks.NewMockMessageIndexer(ctrl)
	// Silencing logs for clean test output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Flush triggered by size limit", func(t *testing.T) {
		maxSize := 3
		s := sink.NewSearchSink(mockIndexer, logger, maxSize, 10*time.Second)

		mockIndexer.EXPECT().
			IndexBatch(gomock.Any()).
			DoAndReturn(func(messages []domain.Message) error {
				req.Len(messages, maxSize)
				return nil
			}).Times(1)

		for i := 0; i < maxSize; i++ {
			req.NoError(s.Consume(ctx, newMessage(int64(i+1))))
		}
	})

	t.Run("Flush triggered by timeout", func(t *testing.T) {
		timeout := 50 * time.Millisecond
		s := sink.NewSearchSink(mockIndexer, logger, 100, timeout)

		done := make(chan struct{})
		mockIndexer.EXPECT().
			IndexBatch(gomock.Any()).
			DoAndReturn(func(messages []domain.Message) error {
				req.Len(messages, 1)
				close(done)
				return nil
			}).Times(1)

		req.NoError(s.Consume(ctx, newMessage(1)))

		select {
		case <-done:
		case <-time.After(time.Second):
			req.Fail("timer flush did not happen")
		}
	})

	t.Run("Other events are ignored", func(t *testing.T) {
		s := sink.NewSearchSink(mockIndexer, logger, 1, time.Second)
		req.NoError(s.Consume(ctx, event.Typing{ConversationID: 1, IsTyping: true}))
		req.NoError(s.Flush())
	})

	t.Run("Concurrent access safety", func(t *testing.T) {
		numWorkers := 10
		messagesPerWorker := 10
		total := numWorkers * messagesPerWorker
		s := sink.NewSearchSink(mockIndexer, logger, total, 10*time.Second)

		var mu sync.Mutex
		indexed := 0
		mockIndexer.EXPECT().
			IndexBatch(gomock.Any()).
			DoAndReturn(func(messages []domain.Message) error {
				mu.Lock()
				indexed += len(messages)
				mu.Unlock()
				return nil
			}).Times(1)

		var wg sync.WaitGroup
		for w := 0; w < numWorkers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < messagesPerWorker; i++ {
					_ = s.Consume(ctx, newMessage(int64(w*messagesPerWorker+i+1)))
				}
			}(w)
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		req.Equal(total, indexed)
	})
}
