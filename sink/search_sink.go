package sink

import (
	"circles/contract"
	"circles/domain"
	"circles/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SearchSink batches new messages into the full text index.
// A batch is flushed when it reaches maxBatch or bufferTimeout after its first message.
type SearchSink struct {
	mu            sync.Mutex
	timer         *time.Timer
	indexer       contract.MessageIndexer
	log           *slog.Logger
	messages      []domain.Message
	maxBatch      int
	bufferTimeout time.Duration
}

func NewSearchSink(indexer contract.MessageIndexer, log *slog.Logger, maxBatch int, bufferTimeout time.Duration) *SearchSink {
	return &SearchSink{
		indexer:       indexer,
		log:           log,
		maxBatch:      maxBatch,
		bufferTimeout: bufferTimeout,
	}
}

// Consume only keeps NewMessage events, other events are ignored.
func (s *SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.messages = append(s.messages, evt.Message)

	// First message of a batch arms the timer so low traffic still gets indexed
	if len(s.messages) == 1 && s.timer == nil {
		s.timer = time.AfterFunc(s.bufferTimeout, func() {
			if err := s.Flush(); err != nil {
				s.log.Error("Batching: Timeout flush failed", "error", err)
			}
		})
	}
	isFull := len(s.messages) >= s.maxBatch
	s.mu.Unlock()

	if isFull {
		return s.Flush()
	}
	return nil
}

// Flush swaps the buffer out under the lock and indexes it outside.
func (s *SearchSink) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.messages
	s.messages = make([]domain.Message, 0, s.maxBatch)
	s.mu.Unlock()

	if err := s.indexer.IndexBatch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	s.log.Debug("Batch indexed", "count", len(batch))
	return nil
}
