package services

import (
	"circles/domain/chat"
	"circles/errors"
	"circles/mocks"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestConversationService_FindOrCreate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := f.conversationService()

	// When alice opens a conversation with bob
	created, err := svc.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.bob.ID})
	req.NoError(err)
	req.True(created.IsNew)
	req.Len(created.Participants, 1)
	req.Equal("bob", created.Participants[0].Username)

	// Then bob opening it with alice gets the same one
	again, err := svc.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.bob.ID, ParticipantID: f.alice.ID})
	req.NoError(err)
	req.False(again.IsNew)
	req.Equal(created.ID, again.ID)
}

func TestConversationService_FindOrCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.conversationService()

	tests := []struct {
		name string
		cmd  chat.FindOrCreateCommand
		want error
	}{
		{"with yourself", chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.alice.ID}, errors.ErrInvalidOperation},
		{"missing participant", chat.FindOrCreateCommand{UserID: f.alice.ID}, errors.ErrInvalidInput},
		{"unknown participant", chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: 999}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FindOrCreate(ctx, tt.cmd)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConversationService_ListForUser_UnreadScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	conversations := f.conversationService()
	messages := NewMessageService(f.log, f.users, f.conversations, f.messages, publisher, f.monitoring)

	// Given alice started a conversation with bob and bob said hello
	conv, err := conversations.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.bob.ID})
	req.NoError(err)
	_, err = messages.SendMessage(ctx, chat.SendMessageCommand{ConversationID: conv.ID, SenderID: f.bob.ID, Content: "hello"})
	req.NoError(err)

	// Then alice sees one unread message from bob
	inbox, err := conversations.ListForUser(ctx, f.alice.ID)
	req.NoError(err)
	req.Len(inbox, 1)
	req.Equal(1, inbox[0].UnreadCount)
	req.Equal("hello", inbox[0].LastMessage.Content)
	req.Equal("bob", inbox[0].LastMessage.Sender.Username)
	req.Len(inbox[0].Participants, 1)
	req.Equal(f.bob.ID, inbox[0].Participants[0].ID)

	// And bob has nothing unread since he sent it
	bobInbox, err := conversations.ListForUser(ctx, f.bob.ID)
	req.NoError(err)
	req.Zero(bobInbox[0].UnreadCount)

	// When alice opens the conversation
	_, err = messages.ListMessages(ctx, chat.ListMessagesCommand{ConversationID: conv.ID, ViewerID: f.alice.ID})
	req.NoError(err)

	// Then the unread count drops to zero
	inbox, err = conversations.ListForUser(ctx, f.alice.ID)
	req.NoError(err)
	req.Zero(inbox[0].UnreadCount)
}

func TestConversationService_ListForUser_OrderedByActivity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	conversations := f.conversationService()
	messages := NewMessageService(f.log, f.users, f.conversations, f.messages, publisher, f.monitoring)

	withBob, err := conversations.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.bob.ID})
	req.NoError(err)
	withCarol, err := conversations.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.carol.ID})
	req.NoError(err)

	// When bob writes after the carol conversation was created
	_, err = messages.SendMessage(ctx, chat.SendMessageCommand{ConversationID: withBob.ID, SenderID: f.bob.ID, Content: "ping"})
	req.NoError(err)

	// Then bob's conversation comes first, carol's has no last message
	inbox, err := conversations.ListForUser(ctx, f.alice.ID)
	req.NoError(err)
	req.Len(inbox, 2)
	req.Equal(withBob.ID, inbox[0].ID)
	req.Equal(withCarol.ID, inbox[1].ID)
	req.Nil(inbox[1].LastMessage)
}

func TestConversationService_IsParticipant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := f.conversationService()
	conv, err := svc.FindOrCreate(ctx, chat.FindOrCreateCommand{UserID: f.alice.ID, ParticipantID: f.bob.ID})
	req.NoError(err)

	ok, err := svc.IsParticipant(ctx, conv.ID, f.bob.ID)
	req.NoError(err)
	req.True(ok)

	ok, err = svc.IsParticipant(ctx, conv.ID, f.carol.ID)
	req.NoError(err)
	req.False(ok)

	ok, err = svc.IsParticipant(ctx, 12345, f.alice.ID)
	req.NoError(err)
	req.False(ok)
}
