package event

import (
	"circles/errors"
	"encoding/json"
	"fmt"
)

// Control events sent by the gateway, never by the broadcaster.
const (
	SubscriptionSucceededName Name = "subscription-succeeded"
	ErrorName                 Name = "error"
)

// Envelope is the wire shape of every realtime frame.
type Envelope struct {
	Channel Channel         `json:"channel"`
	Event   Name            `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type CommandType string

const (
	SubscribeCommand   CommandType = "subscribe"
	UnsubscribeCommand CommandType = "unsubscribe"
)

// Command is sent by clients to manage their subscriptions.
type Command struct {
	Type    CommandType `json:"type"`
	Channel Channel     `json:"channel"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func Encode(e DomainEvent) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Channel: e.Channel(), Event: e.Name(), Data: data}, nil
}

// Decode rebuilds a domain event. Ids omitted from the payload come from the channel.
func Decode(env Envelope) (DomainEvent, error) {
	_, id, err := env.Channel.Parse()
	if err != nil {
		return nil, err
	}
	switch env.Event {
	case NewMessageName:
		var e NewMessage
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		e.Message.ConversationID = id
		return e, nil
	case NewMessageNotificationName:
		var e NewMessageNotification
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		e.RecipientID = id
		return e, nil
	case TypingName:
		var e Typing
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		e.ConversationID = id
		return e, nil
	case MessagesReadName:
		var e MessagesRead
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		e.ConversationID = id
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEvent, env.Event)
	}
}

// ErrorEnvelope reports a rejected command back to the connection.
func ErrorEnvelope(channel Channel, cause error) Envelope {
	data, _ := json.Marshal(ErrorPayload{Message: cause.Error()})
	return Envelope{Channel: channel, Event: ErrorName, Data: data}
}
