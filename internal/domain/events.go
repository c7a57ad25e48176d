package domain

import (
	"encoding/json"
	"time"
)

// MessageType discriminates duplex messages in both directions.
type MessageType string

const (
	MessagePing                MessageType = "ping"
	MessagePong                MessageType = "pong"
	MessageCreated             MessageType = "notification_created"
	MessageUpdated             MessageType = "notification_updated"
	MessageDeleted             MessageType = "notification_deleted"
	MessageSubscribeCategories MessageType = "subscribe_categories"
	MessageMarkRead            MessageType = "mark_read"
)

// IsNotificationEvent reports whether t carries a notification lifecycle event.
func (t MessageType) IsNotificationEvent() bool {
	return t == MessageCreated || t == MessageUpdated || t == MessageDeleted
}

// Envelope is the JSON frame exchanged on the notification socket.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	UserID    string          `json:"user_id,omitempty"`

	// Client to server only.
	Categories     []string `json:"categories,omitempty"`
	NotificationID *int64   `json:"notification_id,omitempty"`
}

// NewEnvelope marshals data into an envelope stamped with now.
func NewEnvelope(t MessageType, data any, now time.Time) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: now.UTC().Format(time.RFC3339Nano)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return env, err
		}
		env.Data = raw
	}
	return env, nil
}

// RequestedCategories returns the categories of a subscribe_categories frame,
// read from the top level or from data.categories.
func (e Envelope) RequestedCategories() []string {
	if len(e.Categories) > 0 {
		return e.Categories
	}
	var body struct {
		Categories []string `json:"categories"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &body) == nil {
		return body.Categories
	}
	return nil
}

// RequestedNotificationID returns the target of a mark_read frame,
// read from the top level or from data.notification_id.
func (e Envelope) RequestedNotificationID() (int64, bool) {
	if e.NotificationID != nil {
		return *e.NotificationID, true
	}
	var body struct {
		NotificationID *int64 `json:"notification_id"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &body) == nil && body.NotificationID != nil {
		return *body.NotificationID, true
	}
	return 0, false
}

// Handshake is the data of the first ping sent on every connection.
type Handshake struct {
	ConnectionID string   `json:"connection_id"`
	Categories   []string `json:"categories"`
}

// DeletionMarker is the data of a notification_deleted event.
type DeletionMarker struct {
	ID int64 `json:"id"`
}

// Broadcaster fans notification events out to live subscribers.
type Broadcaster interface {
	Broadcast(t MessageType, payload any, categories []string) int
}

// Pusher delivers out-of-band alerts for notifications (mobile push and similar).
type Pusher interface {
	PushNotification(n *Notification) error
}
