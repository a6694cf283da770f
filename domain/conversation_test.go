package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversation_OtherParticipantIDs(t *testing.T) {
	req := require.New(t)
	conversation := Conversation{
		ID: 7,
		Participants: []Participant{
			{ConversationID: 7, UserID: 1},
			{ConversationID: 7, UserID: 2},
		},
	}

	req.Equal([]int64{2}, conversation.OtherParticipantIDs(1))
	req.Equal([]int64{1, 2}, conversation.ParticipantIDs())
	req.True(conversation.HasParticipant(2))
	req.False(conversation.HasParticipant(3))
}

func TestPairKey_IsSymmetric(t *testing.T) {
	require.Equal(t, PairKey(4, 9), PairKey(9, 4))
	require.NotEqual(t, PairKey(4, 9), PairKey(4, 10))
}

func TestParticipant_IsUnread(t *testing.T) {
	req := require.New(t)
	readAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	viewer := Participant{UserID: 1, LastReadAt: readAt}

	req.True(viewer.IsUnread(Message{SenderID: 2, CreatedAt: readAt.Add(time.Second)}))
	req.False(viewer.IsUnread(Message{SenderID: 2, CreatedAt: readAt}))
	req.False(viewer.IsUnread(Message{SenderID: 1, CreatedAt: readAt.Add(time.Hour)}))
	req.True(Participant{UserID: 1}.IsUnread(Message{SenderID: 2, CreatedAt: readAt}))
}
