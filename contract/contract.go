//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"circles/domain"
	"circles/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events for one consumer: a connection, an index, a log.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Publisher delivers an event to every current subscriber of its channel.
type Publisher interface {
	Publish(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Subscribe(subscriberID string, channel event.Channel, sink EventSink)
	Unsubscribe(subscriberID string, channel event.Channel)
	UnsubscribeAll(subscriberID string)
	GetSinksForChannel(channel event.Channel) []EventSink
	CountSubscribers() int
}

type MessageIndexer interface {
	IndexBatch(messages []domain.Message) error
}

// MessageSearcher returns matching message ids, best match first.
type MessageSearcher interface {
	Search(ctx context.Context, conversationID int64, text string, limit int) ([]int64, error)
}
