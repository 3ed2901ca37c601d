// Package hub keeps the in-memory registry of live chat subscriptions and
// fans persisted messages out to them.
package hub

import (
	"sync"

	"parley.chat/internal/chat"
	"parley.chat/internal/obs"
)

const subscriptionBuffer = 16

// Subscription is one live connection's entry in the registry. Messages for
// the bound chat arrive on C; the channel is closed when the subscription is
// cancelled or the hub shuts down.
type Subscription struct {
	C <-chan chat.Message

	hub    *Hub
	chatID string
	id     int
	ch     chan chat.Message
}

// ChatID returns the chat this subscription is bound to.
func (s *Subscription) ChatID() string { return s.chatID }

// Close removes the subscription from the registry and closes its channel.
// Safe to call more than once; late Publish calls will no longer reach it.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is the process-wide mapping from chat id to the set of currently
// subscribed connections. It exists only in memory: a process restart drops
// every entry and clients reconnect.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[int]*Subscription
	next   int
	closed bool
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]map[int]*Subscription)}
}

// Subscribe registers a connection for a chat and returns its subscription.
// A single principal may hold any number of simultaneous subscriptions to the
// same chat; each is a distinct entry. After Shutdown the returned
// subscription is already closed.
func (h *Hub) Subscribe(chatID string) *Subscription {
	ch := make(chan chat.Message, subscriptionBuffer)
	sub := &Subscription{C: ch, hub: h, chatID: chatID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		sub.id = -1
		return sub
	}
	sub.id = h.next
	h.next++
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[int]*Subscription)
		h.rooms[chatID] = room
	}
	room[sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sub.chatID]
	if !ok {
		return
	}
	if _, ok := room[sub.id]; !ok {
		// Already removed: double-close race or hub shutdown.
		return
	}
	delete(room, sub.id)
	if len(room) == 0 {
		delete(h.rooms, sub.chatID)
	}
	close(sub.ch)
}

// Publish delivers msg to every subscription currently registered for the
// chat. Publishes are serialized under the hub lock, so every subscriber
// observes the same per-chat order. Delivery per subscriber is best effort:
// a full buffer means the message is dropped for that subscriber only.
func (h *Hub) Publish(chatID string, msg chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.rooms[chatID] {
		select {
		case sub.ch <- msg:
		default:
			// Slow subscriber; drop rather than block the fan-out.
			obs.DeliveryDropped()
		}
	}
	obs.MessagePublished()
}

// Count reports the number of live subscriptions for a chat.
func (h *Hub) Count(chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[chatID])
}

// Shutdown closes every subscription and drains the registry. Subsequent
// Subscribe calls return closed subscriptions and Publish becomes a no-op.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, room := range h.rooms {
		for _, sub := range room {
			close(sub.ch)
		}
	}
	h.rooms = make(map[string]map[int]*Subscription)
}
