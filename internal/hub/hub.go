// Package hub fans profile-scoped change notifications out to realtime
// clients and in-process listeners such as the live ticket feed.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"adaqueue/routing-service/internal/metrics"
)

// Subscription scopes a client to one profile's events. An empty profile
// id receives everything.
type Subscription struct {
	ProfileID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

// Listener is an in-process consumer; it is told only which profile
// changed, never what changed.
type Listener func(profileID string)

type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	listeners []Listener
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	ProfileID string `json:"profileId"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	metrics.RealtimeClients.Inc()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.RealtimeClients.Dec()
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// AddListener registers an in-process consumer. Listeners must not block;
// they are invoked on the broadcasting goroutine.
func (h *Hub) AddListener(listener Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, listener)
}

// Broadcast delivers payload to every client subscribed to the profile and
// signals all listeners. A client with a full send buffer drops the
// message; it will catch up on its next refresh.
func (h *Hub) Broadcast(profileID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Subscription.ProfileID != "" && client.Subscription.ProfileID != profileID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("hub drop message client=%s profile=%s", client.ID, profileID)
		}
	}
	for _, listener := range h.listeners {
		listener(profileID)
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
