package event

import (
	"circles/errors"
	"fmt"
	"strconv"
	"strings"
)

// Channel is a named realtime topic: "conversation-{id}" or "user-{id}".
type Channel string

type ChannelKind string

const (
	ConversationKind ChannelKind = "conversation"
	UserKind         ChannelKind = "user"
)

func ConversationChannel(conversationID int64) Channel {
	return Channel(fmt.Sprintf("%s-%d", ConversationKind, conversationID))
}

func UserChannel(userID int64) Channel {
	return Channel(fmt.Sprintf("%s-%d", UserKind, userID))
}

// Parse splits a channel into its kind and numeric id.
func (c Channel) Parse() (ChannelKind, int64, error) {
	kind, raw, ok := strings.Cut(string(c), "-")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", errors.ErrInvalidChannel, c)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", errors.ErrInvalidChannel, c)
	}
	switch ChannelKind(kind) {
	case ConversationKind, UserKind:
		return ChannelKind(kind), id, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", errors.ErrInvalidChannel, c)
	}
}
