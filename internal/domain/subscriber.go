package domain

import (
	"context"
	"time"
)

// Subscriber mirrors one live socket connection into the notification_subscribers
// table. The row is telemetry only; the broadcast server never reads it back.
type Subscriber struct {
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	Categories   []string  `json:"categories"`
	SubscribedAt time.Time `json:"subscribed_at"`
	LastPing     time.Time `json:"last_ping"`
	IsActive     bool      `json:"is_active"`
}

type SubscriberRepository interface {
	RegisterSubscriber(ctx context.Context, sub *Subscriber) error
	UpdateSubscriberCategories(ctx context.Context, userID, connectionID string, categories []string) error
	TouchSubscriber(ctx context.Context, userID, connectionID string) error
	DeactivateSubscriber(ctx context.Context, userID, connectionID string) error
}
