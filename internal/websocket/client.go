package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// Client represents a WebSocket client connection
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Hub           *Hub
	Send          chan []byte
	Subscriptions map[string]bool
	UserID        string // empty for anonymous connections

	mu     sync.RWMutex
	sendMu sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, id, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:            id,
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan []byte, 256),
		Subscriptions: make(map[string]bool),
		UserID:        userID,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// trySend queues data without blocking; false means the buffer is full
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		send(c.Hub, c.Hub.Unregister, c)
		c.Conn.Close()
		c.cancel()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("client_id", c.ID).Warn("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("Invalid message format", 400)
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(msg.Topic, msg.Market)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(msg.Topic, msg.Market)
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong, Timestamp: time.Now()})
	default:
		c.sendError("Unknown message type", 400)
	}
}

// topicKey resolves a subscription request to a hub topic
func (c *Client) topicKey(topic, market string) (string, int, string) {
	switch SubscriptionTopic(topic) {
	case TopicPools:
		if market == "" {
			return "", 400, "Market required for pool subscription"
		}
		return PoolTopic(market), 0, ""
	case TopicBalances:
		if c.UserID == "" {
			return "", 401, "Authentication required for balance subscription"
		}
		return BalanceTopic(c.UserID), 0, ""
	default:
		return "", 400, "Invalid subscription topic"
	}
}

func (c *Client) handleSubscribe(topic, market string) {
	key, code, errMsg := c.topicKey(topic, market)
	if key == "" {
		c.sendError(errMsg, code)
		return
	}

	c.mu.Lock()
	c.Subscriptions[key] = true
	c.mu.Unlock()

	send(c.Hub, c.Hub.Subscribe, &Subscription{Client: c, Topic: key})
	c.reply(Message{Type: MessageTypeSubscriptionConfirmed, Topic: key, Market: market, Timestamp: time.Now()})
}

func (c *Client) handleUnsubscribe(topic, market string) {
	key, code, errMsg := c.topicKey(topic, market)
	if key == "" {
		c.sendError(errMsg, code)
		return
	}

	c.mu.Lock()
	delete(c.Subscriptions, key)
	c.mu.Unlock()

	send(c.Hub, c.Hub.Unsubscribe, &Subscription{Client: c, Topic: key})
	c.reply(Message{Type: MessageTypeUnsubscriptionConfirmed, Topic: key, Market: market, Timestamp: time.Now()})
}

func (c *Client) sendError(errorMsg string, code int) {
	c.reply(ErrorMessage{
		Type:      MessageTypeError,
		Error:     errorMsg,
		Code:      code,
		Timestamp: time.Now(),
	})
}

// reply queues a direct response; it is dropped if the buffer is full
func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.trySend(data)
}

// IsSubscribed checks if the client is subscribed to a topic
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[topic]
}

// Close closes the client connection
func (c *Client) Close() {
	c.cancel()
	c.closeSend()
}
