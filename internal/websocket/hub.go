package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Subscription binds a client to one topic key
type Subscription struct {
	Client *Client
	Topic  string
}

// Hub tracks connected clients and their topics. Membership changes arrive
// on the channels and are applied by Run; Publish may be called from any
// goroutine, typically right after a ledger transaction commits.
type Hub struct {
	Register    chan *Client
	Unregister  chan *Client
	Subscribe   chan *Subscription
	Unsubscribe chan *Subscription

	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	stats   ConnectionStats

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Subscribe:   make(chan *Subscription),
		Unsubscribe: make(chan *Subscription),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		stats:       ConnectionStats{LastUpdate: time.Now()},
		stop:        make(chan struct{}),
	}
}

// Run applies membership changes until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.Register:
			h.join(c)
		case c := <-h.Unregister:
			h.mu.Lock()
			h.leave(c)
			h.mu.Unlock()
		case s := <-h.Subscribe:
			h.subscribe(s.Client, s.Topic)
		case s := <-h.Unsubscribe:
			h.mu.Lock()
			h.unsubscribe(s.Client, s.Topic)
			h.mu.Unlock()
		case <-h.stop:
			return
		}
	}
}

// send delivers v to ch unless the hub is stopping
func send[T any](h *Hub, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.stop:
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.stats.TotalConnections++
	h.touch()
	active := len(h.clients)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{"client_id": c.ID, "user_id": c.UserID, "active": active}).
		Debug("WebSocket client joined")
}

// leave drops c and its topics; h.mu must be held
func (h *Hub) leave(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closeSend()
	for topic := range h.topics {
		h.unsubscribe(c, topic)
	}
	h.touch()

	logrus.WithFields(logrus.Fields{"client_id": c.ID, "active": len(h.clients)}).
		Debug("WebSocket client left")
}

func (h *Hub) subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members := h.topics[topic]
	if members == nil {
		members = make(map[*Client]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
	h.touch()
}

// unsubscribe removes c from topic; h.mu must be held
func (h *Hub) unsubscribe(c *Client, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
	h.touch()
}

// touch marks a stats change; h.mu must be held
func (h *Hub) touch() {
	h.stats.LastUpdate = time.Now()
}

// Publish encodes a typed message once and queues it for every subscriber
// of topic. Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(topic string, msgType MessageType, data interface{}) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(Message{Type: msgType, Topic: topic, Data: data, Timestamp: time.Now()})
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Warn("Failed to encode WebSocket message")
		return
	}

	var delivered int64
	var lagging []*Client
	for _, c := range targets {
		if c.trySend(payload) {
			delivered++
		} else {
			lagging = append(lagging, c)
		}
	}

	h.mu.Lock()
	for _, c := range lagging {
		logrus.WithFields(logrus.Fields{"client_id": c.ID, "topic": topic}).Warn("Dropping slow WebSocket client")
		h.leave(c)
	}
	h.stats.MessagesSent += delivered
	h.touch()
	h.mu.Unlock()
}

// GetStats returns a snapshot of the connection counters
func (h *Hub) GetStats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := h.stats
	stats.ActiveConnections = len(h.clients)
	stats.TotalSubscriptions = h.subscriptionCount()
	return stats
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetSubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subscriptionCount()
}

func (h *Hub) subscriptionCount() int {
	n := 0
	for _, members := range h.topics {
		n += len(members)
	}
	return n
}

// Stop ends Run and closes every connected client. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.mu.Lock()
		remaining := make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			remaining = append(remaining, c)
		}
		h.clients = make(map[*Client]struct{})
		h.topics = make(map[string]map[*Client]struct{})
		h.mu.Unlock()

		for _, c := range remaining {
			c.Close()
		}
	})
}
