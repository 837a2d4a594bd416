package service

import (
	"sort"
	"sync"
)

// Subscriber receives published messages. Deliver must not block for long;
// it runs under the hub's read lock.
type Subscriber interface {
	ID() string
	Deliver(channel, message string)
}

// Hub routes PUBLISH messages to channel subscribers.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]Subscriber
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[string]Subscriber)}
}

// Subscribe adds s to channel. It reports whether s was newly added.
func (h *Hub) Subscribe(channel string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]Subscriber)
		h.channels[channel] = subs
	}
	if _, exists := subs[s.ID()]; exists {
		return false
	}
	subs[s.ID()] = s
	return true
}

// Unsubscribe removes s from channel.
func (h *Hub) Unsubscribe(channel string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		return false
	}
	if _, exists := subs[s.ID()]; !exists {
		return false
	}
	delete(subs, s.ID())
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	return true
}

// UnsubscribeAll removes s from every channel it joined.
func (h *Hub) UnsubscribeAll(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for channel, subs := range h.channels {
		delete(subs, s.ID())
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish delivers message to every subscriber of channel and returns the
// number of receivers.
func (h *Hub) Publish(channel, message string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.channels[channel]
	for _, s := range subs {
		s.Deliver(channel, message)
	}
	return len(subs)
}

// NumSub returns the subscriber count for channel.
func (h *Hub) NumSub(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns active channel names, sorted.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.channels))
	for c := range h.channels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
