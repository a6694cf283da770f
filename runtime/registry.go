package runtime

import (
	"circles/contract"
	"circles/domain/event"
	"sync"
)

type Set map[string]struct{}

// Registry maps connected subscribers to the channels they listen on.
// A subscriber holds one sink, shared by all of its channels.
type Registry struct {
	mu             sync.RWMutex
	Sessions       map[string]contract.EventSink // map subscriber -> Sink
	ChannelMembers map[event.Channel]Set         // map channel -> subscribers
	subscriptions  map[string]map[event.Channel]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions:       make(map[string]contract.EventSink),
		ChannelMembers: make(map[event.Channel]Set),
		subscriptions:  make(map[string]map[event.Channel]struct{}),
	}
}

// GetSinksForChannel resolves the members of a channel into their sinks.
// Returns nil if nobody listens on the channel.
func (r *Registry) GetSinksForChannel(channel event.Channel) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.ChannelMembers[channel]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for subscriberID := range members {
		if sink, exists := r.Sessions[subscriberID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers the subscriber's sink and adds it to the channel.
// Subscribing twice to the same channel is a no-op.
func (r *Registry) Subscribe(subscriberID string, channel event.Channel, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions[subscriberID] = sink

	if _, ok := r.ChannelMembers[channel]; !ok {
		r.ChannelMembers[channel] = make(Set)
	}
	r.ChannelMembers[channel][subscriberID] = struct{}{}

	if _, ok := r.subscriptions[subscriberID]; !ok {
		r.subscriptions[subscriberID] = make(map[event.Channel]struct{})
	}
	r.subscriptions[subscriberID][channel] = struct{}{}
}

// Unsubscribe removes the subscriber from one channel.
// The session is dropped along with its last channel.
func (r *Registry) Unsubscribe(subscriberID string, channel event.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leave(subscriberID, channel)
	if len(r.subscriptions[subscriberID]) == 0 {
		delete(r.subscriptions, subscriberID)
		delete(r.Sessions, subscriberID)
	}
}

// UnsubscribeAll drops the subscriber from every channel, on disconnect.
func (r *Registry) UnsubscribeAll(subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.subscriptions[subscriberID] {
		r.leave(subscriberID, channel)
	}
	delete(r.subscriptions, subscriberID)
	delete(r.Sessions, subscriberID)
}

func (r *Registry) CountSubscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Sessions)
}

func (r *Registry) leave(subscriberID string, channel event.Channel) {
	delete(r.subscriptions[subscriberID], channel)
	if members, ok := r.ChannelMembers[channel]; ok {
		delete(members, subscriberID)

		// If no one is left on the channel, remove the entry entirely
		if len(members) == 0 {
			delete(r.ChannelMembers, channel)
		}
	}
}
