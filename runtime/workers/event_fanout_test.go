package workers

import (
	"circles/contract"
	"circles/domain/event"
	"circles/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Fanout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)

	evt := event.Typing{ConversationID: 4, IsTyping: true}

	// Given two connections on the conversation channel
	mockRegistry.EXPECT().GetSinksForChannel(event.ConversationChannel(4)).
		Return([]contract.EventSink{mockSink, mockSink}).Times(1)
	mockSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(2)

	// When the event is fanned out
	delivered := NewEventFanout(log, mockRegistry, time.Second).Fanout(context.Background(), evt)

	// Then both sinks got it
	req.Equal(2, delivered)
}

func TestEventFanout_NoSubscribers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockRegistry.EXPECT().GetSinksForChannel(gomock.Any()).Return(nil).Times(1)

	delivered := NewEventFanout(slog.Default(), mockRegistry, time.Second).
		Fanout(context.Background(), event.MessagesRead{ConversationID: 1})

	require.Zero(t, delivered)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	fastSink := mocks.NewMockEventSink(ctrl)

	mockRegistry.EXPECT().GetSinksForChannel(gomock.Any()).
		Return([]contract.EventSink{slowSink, fastSink}).Times(1)
	// Given a sink that never returns before its deadline
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	fastSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	start := time.Now()
	delivered := NewEventFanout(log, mockRegistry, 20*time.Millisecond).
		Fanout(context.Background(), event.Typing{ConversationID: 1})

	// Then the slow sink is abandoned without holding the fast one
	req.Equal(1, delivered)
	req.Less(time.Since(start), 500*time.Millisecond)
}
