package projection

import (
	"circles/domain"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTypingTTL is how long a remote typing signal lives without renewal.
	DefaultTypingTTL = 3 * time.Second
	// DefaultTypingQuiet is how long the local user must stop typing before the stop signal.
	DefaultTypingQuiet = 2 * time.Second
)

type typingEntry struct {
	user       domain.User
	timer      *time.Timer
	generation uint64
}

// TypingTracker keeps the remote users currently typing.
// Entries expire after ttl unless renewed. onChange runs outside the lock.
type TypingTracker struct {
	mu         sync.Mutex
	ttl        time.Duration
	entries    map[int64]*typingEntry
	generation uint64
	onChange   func()
}

func NewTypingTracker(ttl time.Duration, onChange func()) *TypingTracker {
	if onChange == nil {
		onChange = func() {}
	}
	return &TypingTracker{ttl: ttl, entries: make(map[int64]*typingEntry), onChange: onChange}
}

func (t *TypingTracker) Observe(user domain.User, isTyping bool) {
	t.mu.Lock()
	entry, exists := t.entries[user.ID]
	if exists {
		entry.timer.Stop()
	}
	if !isTyping {
		delete(t.entries, user.ID)
		t.mu.Unlock()
		if exists {
			t.onChange()
		}
		return
	}

	t.generation++
	generation := t.generation
	t.entries[user.ID] = &typingEntry{
		user:       user,
		generation: generation,
		timer:      time.AfterFunc(t.ttl, func() { t.expire(user.ID, generation) }),
	}
	t.mu.Unlock()
	if !exists {
		t.onChange()
	}
}

// expire ignores timers that were replaced by a renewal.
func (t *TypingTracker) expire(userID int64, generation uint64) {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok || entry.generation != generation {
		t.mu.Unlock()
		return
	}
	delete(t.entries, userID)
	t.mu.Unlock()
	t.onChange()
}

// Users returns who is typing, ordered by id.
func (t *TypingTracker) Users() []domain.User {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]domain.User, 0, len(t.entries))
	for _, e := range t.entries {
		users = append(users, e.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Clear stops every timer.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}

// TypingNotifier turns keystrokes into edge-triggered typing signals.
// The first keystroke sends true, quiet time without keystrokes sends false.
type TypingNotifier struct {
	mu         sync.Mutex
	quiet      time.Duration
	typing     bool
	timer      *time.Timer
	generation uint64
	notify     func(isTyping bool)
}

func NewTypingNotifier(quiet time.Duration, notify func(isTyping bool)) *TypingNotifier {
	return &TypingNotifier{quiet: quiet, notify: notify}
}

func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()
	started := !n.typing
	n.typing = true
	n.generation++
	generation := n.generation
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.quiet, func() { n.expire(generation) })
	n.mu.Unlock()

	if started {
		n.notify(true)
	}
}

// Stop ends typing now, e.g. when the message is sent.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	wasTyping := n.typing
	n.typing = false
	n.generation++
	if n.timer != nil {
		n.timer.Stop()
	}
	n.mu.Unlock()

	if wasTyping {
		n.notify(false)
	}
}

func (n *TypingNotifier) IsTyping() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.typing
}

func (n *TypingNotifier) expire(generation uint64) {
	n.mu.Lock()
	if generation != n.generation || !n.typing {
		n.mu.Unlock()
		return
	}
	n.typing = false
	n.mu.Unlock()
	n.notify(false)
}
