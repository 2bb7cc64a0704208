package websocket

import (
	"time"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	MessageTypeSubscribe               MessageType = "subscribe"
	MessageTypeSubscriptionConfirmed   MessageType = "subscription_confirmed"
	MessageTypeUnsubscribe             MessageType = "unsubscribe"
	MessageTypeUnsubscriptionConfirmed MessageType = "unsubscription_confirmed"
	MessageTypePoolUpdate              MessageType = "pool_update"
	MessageTypeBalanceUpdate           MessageType = "balance_update"
	MessageTypeError                   MessageType = "error"
	MessageTypePing                    MessageType = "ping"
	MessageTypePong                    MessageType = "pong"
)

// SubscriptionTopic represents different subscription topics
type SubscriptionTopic string

const (
	TopicPools    SubscriptionTopic = "pools"
	TopicBalances SubscriptionTopic = "balances"
)

// PoolTopic is the topic carrying updates of one market's pool
func PoolTopic(market string) string {
	return string(TopicPools) + ":" + market
}

// BalanceTopic is the private topic carrying a user's balance updates
func BalanceTopic(userID string) string {
	return string(TopicBalances) + ":" + userID
}

// Message represents a generic WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Market    string      `json:"market,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Type      MessageType `json:"type"`
	Error     string      `json:"error"`
	Code      int         `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionStats represents WebSocket connection statistics
type ConnectionStats struct {
	TotalConnections   int       `json:"total_connections"`
	ActiveConnections  int       `json:"active_connections"`
	TotalSubscriptions int       `json:"total_subscriptions"`
	MessagesSent       int64     `json:"messages_sent"`
	LastUpdate         time.Time `json:"last_update"`
}

// Publisher pushes committed ledger changes to subscribers
type Publisher interface {
	Publish(topic string, msgType MessageType, data interface{})
}

type discard struct{}

func (discard) Publish(string, MessageType, interface{}) {}

// Discard is a Publisher that drops every message
var Discard Publisher = discard{}
