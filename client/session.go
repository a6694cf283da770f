package client

import (
	"circles/domain"
	"circles/domain/event"
	"circles/errors"
	"circles/projection"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

type SessionConfig struct {
	PageSize    int
	TypingQuiet time.Duration
	TypingTTL   time.Duration
	CallTimeout time.Duration
}

func (c *SessionConfig) defaults() {
	if c.PageSize == 0 {
		c.PageSize = 50
	}
	if c.TypingQuiet == 0 {
		c.TypingQuiet = projection.DefaultTypingQuiet
	}
	if c.TypingTTL == 0 {
		c.TypingTTL = projection.DefaultTypingTTL
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
}

// Session is the state of one open chat view.
// All methods are safe for concurrent use. Changes signals every visible state change.
type Session struct {
	log            *slog.Logger
	api            API
	cfg            SessionConfig
	conversationID int64
	viewerID       int64

	mu           sync.Mutex
	timeline     *projection.Timeline
	nextCursor   *int64
	loaded       bool
	open         bool
	readReceipts map[int64]time.Time

	typing   *projection.TypingTracker
	notifier *projection.TypingNotifier

	typingMu     sync.Mutex
	typingCalls  chan bool
	typingClosed bool

	changes chan struct{}
	wg      sync.WaitGroup
}

func NewSession(log *slog.Logger, api API, conversationID, viewerID int64, cfg SessionConfig) *Session {
	cfg.defaults()
	s := &Session{
		log:            log.With("conversation_id", conversationID),
		api:            api,
		cfg:            cfg,
		conversationID: conversationID,
		viewerID:       viewerID,
		timeline:       projection.NewTimeline(conversationID),
		readReceipts:   make(map[int64]time.Time),
		typingCalls:    make(chan bool, 8),
		changes:        make(chan struct{}, 1),
	}
	s.typing = projection.NewTypingTracker(cfg.TypingTTL, s.changed)
	s.notifier = projection.NewTypingNotifier(cfg.TypingQuiet, s.enqueueTyping)

	s.wg.Add(1)
	go s.typingLoop()
	return s
}

func (s *Session) ConversationID() int64 { return s.conversationID }

// Changes is notified, without blocking, whenever the visible state moved.
func (s *Session) Changes() <-chan struct{} { return s.changes }

// Open loads the newest page. The server marks the conversation read as a side effect.
func (s *Session) Open(ctx context.Context) error {
	page, err := s.api.ListMessages(ctx, s.conversationID, nil, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("open conversation %d: %w", s.conversationID, err)
	}
	s.mu.Lock()
	s.timeline.Merge(page.Messages...)
	s.nextCursor = page.NextCursor
	s.loaded = true
	s.open = true
	s.mu.Unlock()
	s.changed()
	return nil
}

// LoadOlder fetches the page before the oldest loaded message.
// It returns how many messages were added, zero once history is exhausted.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	cursor := s.nextCursor
	s.mu.Unlock()
	if cursor == nil {
		return 0, nil
	}

	page, err := s.api.ListMessages(ctx, s.conversationID, cursor, s.cfg.PageSize)
	if err != nil {
		return 0, fmt.Errorf("load older messages: %w", err)
	}
	s.mu.Lock()
	added := s.timeline.Merge(page.Messages...)
	s.nextCursor = page.NextCursor
	s.mu.Unlock()
	if added > 0 {
		s.changed()
	}
	return added, nil
}

func (s *Session) HasOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCursor != nil
}

// Send appends an optimistic entry and posts it. The returned temp id identifies
// the entry whatever the outcome. A failed post leaves a failed entry and returns the error.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.NewInputError("content", "is required")
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return "", errors.NewInputError("content", fmt.Sprintf("must be at most %d characters", domain.MaxContentLength))
	}

	s.notifier.Stop()
	s.mu.Lock()
	local := s.timeline.AddOptimistic(s.viewerID, content)
	s.mu.Unlock()
	s.changed()

	return local.TempID, s.deliver(ctx, local)
}

// Retry resends a failed entry with the same temp id.
func (s *Session) Retry(ctx context.Context, tempID string) error {
	s.mu.Lock()
	local, ok := s.timeline.Resend(tempID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("retry %s: %w", tempID, errors.ErrInvalidOperation)
	}
	s.changed()
	return s.deliver(ctx, local)
}

func (s *Session) deliver(ctx context.Context, local projection.LocalMessage) error {
	m, err := s.api.SendMessage(ctx, s.conversationID, local.Content, local.TempID)
	s.mu.Lock()
	if err != nil {
		s.timeline.Fail(local.TempID)
	} else {
		s.timeline.Confirm(local.TempID, m)
	}
	s.mu.Unlock()
	s.changed()
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// HandleEvent applies a realtime event. Events for other conversations are ignored.
func (s *Session) HandleEvent(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.NewMessage:
		if evt.Message.ConversationID != s.conversationID {
			return
		}
		s.mu.Lock()
		added := s.timeline.Consume(evt)
		markRead := added && s.open && evt.Message.SenderID != s.viewerID
		if markRead {
			// Close waits on wg after clearing open under the same lock
			s.wg.Add(1)
		}
		s.mu.Unlock()
		if !added {
			return
		}
		s.changed()
		if markRead {
			go s.markRead()
		}
	case event.Typing:
		if evt.ConversationID != s.conversationID || evt.User.ID == s.viewerID {
			return
		}
		s.typing.Observe(evt.User, evt.IsTyping)
	case event.MessagesRead:
		if evt.ConversationID != s.conversationID {
			return
		}
		s.mu.Lock()
		if prev, ok := s.readReceipts[evt.UserID]; !ok || evt.ReadAt.After(prev) {
			s.readReceipts[evt.UserID] = evt.ReadAt
		}
		s.mu.Unlock()
		s.changed()
	}
}

// Keystroke reports local typing activity.
func (s *Session) Keystroke() {
	s.notifier.Keystroke()
}

// Resync merges the newest page, used after a realtime reconnect.
func (s *Session) Resync(ctx context.Context) error {
	page, err := s.api.ListMessages(ctx, s.conversationID, nil, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("resync conversation %d: %w", s.conversationID, err)
	}
	s.mu.Lock()
	added := s.timeline.Merge(page.Messages...)
	if !s.loaded {
		s.nextCursor = page.NextCursor
		s.loaded = true
	}
	s.mu.Unlock()
	if added > 0 {
		s.changed()
	}
	return nil
}

// Close stops local typing and waits for the pending typing calls.
func (s *Session) Close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()

	s.notifier.Stop()
	s.typing.Clear()

	s.typingMu.Lock()
	if !s.typingClosed {
		s.typingClosed = true
		close(s.typingCalls)
	}
	s.typingMu.Unlock()
	s.wg.Wait()
}

func (s *Session) Messages() []projection.LocalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

func (s *Session) Entry(tempID string) (projection.LocalMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entry(tempID)
}

func (s *Session) TypingUsers() []domain.User {
	return s.typing.Users()
}

func (s *Session) ReadReceipts() map[int64]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]time.Time, len(s.readReceipts))
	for k, v := range s.readReceipts {
		out[k] = v
	}
	return out
}

// markRead runs on its own goroutine; the caller has already added it to wg.
func (s *Session) markRead() {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()
	if _, err := s.api.MarkRead(ctx, s.conversationID); err != nil {
		s.log.Debug("mark read failed", "error", err)
	}
}

// enqueueTyping keeps typing calls ordered through a single goroutine.
func (s *Session) enqueueTyping(isTyping bool) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	if s.typingClosed {
		return
	}
	select {
	case s.typingCalls <- isTyping:
	default:
		s.log.Debug("typing queue full, dropping signal", "is_typing", isTyping)
	}
}

func (s *Session) typingLoop() {
	defer s.wg.Done()
	for isTyping := range s.typingCalls {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
		if err := s.api.SetTyping(ctx, s.conversationID, isTyping); err != nil {
			s.log.Debug("typing signal failed", "is_typing", isTyping, "error", err)
		}
		cancel()
	}
}

func (s *Session) changed() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
