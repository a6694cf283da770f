package e2e

import (
	"circles/client"
	"circles/domain/event"
	"circles/projection"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type chatScenarioSuite struct {
	BaseSuite
}

func TestChatScenarioSuite(t *testing.T) {
	suite.Run(t, &chatScenarioSuite{})
}

func (s *chatScenarioSuite) TestDirectMessageFlow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	alice := s.API("alice", s.Config.AliceID)
	bob := s.API("bob", s.Config.BobID)

	var conversationID int64
	s.Run("Step 1: open the direct conversation from both sides", func() {
		fromAlice, err := alice.FindOrCreate(ctx, s.Config.BobID)
		s.Require().NoError(err)
		fromBob, err := bob.FindOrCreate(ctx, s.Config.AliceID)
		s.Require().NoError(err)
		s.Require().Equal(fromAlice.ID, fromBob.ID)
		s.Require().False(fromBob.IsNew)
		conversationID = fromAlice.ID
	})

	// Bob listens on his user channel and on the conversation
	rt := client.NewRealtime(log, s.Config.ServerURL, client.RealtimeConfig{Token: s.Token(s.Config.BobID)})
	s.Require().NoError(rt.Subscribe(ctx, event.ConversationChannel(conversationID)))
	go func() { _ = rt.Run(ctx) }()
	bobSession := client.NewSession(log, bob, conversationID, s.Config.BobID, client.SessionConfig{})
	defer bobSession.Close()
	s.Require().NoError(bobSession.Open(ctx))
	// The subscription is asynchronous, give it a moment to land
	time.Sleep(300 * time.Millisecond)

	var sent projection.LocalMessage
	s.Run("Step 2: alice sends with an optimistic entry", func() {
		aliceSession := client.NewSession(log, alice, conversationID, s.Config.AliceID, client.SessionConfig{})
		defer aliceSession.Close()
		s.Require().NoError(aliceSession.Open(ctx))

		tempID, err := aliceSession.Send(ctx, "hello from the end to end suite")
		s.Require().NoError(err)
		entry, ok := aliceSession.Entry(tempID)
		s.Require().True(ok)
		s.Require().Equal(projection.StatusSent, entry.Status)
		sent = entry
	})

	s.Run("Step 3: bob receives it live, once", func() {
		deadline := time.After(5 * time.Second)
		for {
			select {
			case e := <-rt.Events():
				bobSession.HandleEvent(e)
				if _, ok := e.(event.NewMessage); !ok {
					continue
				}
			case <-deadline:
				s.FailNow("no new-message event for bob")
			}
			messages := bobSession.Messages()
			if len(messages) > 0 && messages[len(messages)-1].ID == sent.ID {
				break
			}
		}
		count := 0
		for _, m := range bobSession.Messages() {
			if m.ID == sent.ID {
				count++
			}
		}
		s.Require().Equal(1, count)
	})

	s.Run("Step 4: the inbox shows the conversation without unread for the reader", func() {
		s.Require().Eventually(func() bool {
			summaries, err := bob.ListConversations(ctx)
			if err != nil {
				return false
			}
			for _, summary := range summaries {
				if summary.ID == conversationID {
					return summary.UnreadCount == 0 && summary.LastMessage != nil && summary.LastMessage.ID == sent.ID
				}
			}
			return false
		}, 5*time.Second, 100*time.Millisecond)
	})
}
