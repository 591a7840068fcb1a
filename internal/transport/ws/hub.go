package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"glucoheart/internal/event"
)

// Hub tracks which connected clients listen on which topics on this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	users   map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		users:   make(map[uint]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if own, ok := h.users[c.userID]; ok {
		delete(own, c)
		if len(own) == 0 {
			delete(h.users, c.userID)
		}
	}
	for topic := range c.topics {
		h.dropLocked(c, topic)
	}
	c.topics = nil
	c.closeSend()
}

func (h *Hub) Subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(c, topic)
}

func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.topics == nil {
		return
	}
	h.dropLocked(c, topic)
	delete(c.topics, topic)
}

// SubscribeUser puts every socket the user has open in namespace (all of
// them when namespace is empty) on topic.
func (h *Hub) SubscribeUser(userID uint, topic, namespace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeUserLocked(userID, topic, namespace)
}

// UnsubscribeUser takes every socket the user has open off topic.
func (h *Hub) UnsubscribeUser(userID uint, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeUserLocked(userID, topic)
}

func (h *Hub) subscribeUserLocked(userID uint, topic, namespace string) {
	for c := range h.users[userID] {
		if namespace == "" || c.namespace == namespace {
			h.addLocked(c, topic)
		}
	}
}

func (h *Hub) unsubscribeUserLocked(userID uint, topic string) {
	for c := range h.users[userID] {
		h.dropLocked(c, topic)
		delete(c.topics, topic)
	}
}

func (h *Hub) addLocked(c *Client, topic string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) dropLocked(c *Client, topic string) {
	if clients, ok := h.topics[topic]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Broadcast applies the event's membership changes, then sends it once to
// every client subscribed to any of its topics. Clients whose buffer is full
// are disconnected.
func (h *Hub) Broadcast(evt event.Event) {
	if len(evt.Membership) > 0 {
		h.mu.Lock()
		for _, m := range evt.Membership {
			if m.Join {
				h.subscribeUserLocked(m.UserID, m.Topic, m.Namespace)
			} else {
				h.unsubscribeUserLocked(m.UserID, m.Topic)
			}
		}
		h.mu.Unlock()
	}

	data, err := json.Marshal(OutboundFrame{Event: evt.Name, Data: evt.Payload})
	if err != nil {
		slog.Error("marshal broadcast frame failed", "event", evt.Name, "error", err)
		return
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, topic := range evt.Topics {
		for c := range h.topics[topic] {
			targets[c] = struct{}{}
		}
	}
	var slow []*Client
	for c := range targets {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		slog.Warn("dropping slow websocket client", "conn_id", c.id, "user_id", c.userID)
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

// Publish lets the hub act as the in-process event publisher.
func (h *Hub) Publish(_ context.Context, evt event.Event) error {
	h.Broadcast(evt)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every client. Their write pumps send a close frame on the
// way out.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
