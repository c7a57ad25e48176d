package fcm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/klarolink/notifications/internal/domain"
)

const sendTimeout = 10 * time.Second

// Client pushes notifications to per-category FCM topics.
type Client struct {
	msgClient   *messaging.Client
	topicPrefix string
	logger      *zap.Logger
}

func NewClient(ctx context.Context, logger *zap.Logger, credentialsFile, topicPrefix string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided. FCM will use application default credentials.")
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &Client{
		msgClient:   msgClient,
		topicPrefix: topicPrefix,
		logger:      logger,
	}, nil
}

// PushNotification sends n to the topic of its category. A nil client is a no-op.
func (c *Client) PushNotification(n *domain.Notification) error {
	if c == nil || c.msgClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	msg := buildMessage(c.topicPrefix, n)
	if _, err := c.msgClient.Send(ctx, msg); err != nil {
		c.logger.Error("Failed to send FCM message", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}
	return nil
}

func buildMessage(prefix string, n *domain.Notification) *messaging.Message {
	body := ""
	if n.Description != nil {
		body = *n.Description
	}
	return &messaging.Message{
		Topic: Topic(prefix, n.Category),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  body,
		},
		Data: map[string]string{
			"notification_id": strconv.FormatInt(n.ID, 10),
			"category":        n.Category,
			"priority":        string(n.Priority),
			"status":          string(n.Status),
		},
	}
}

// Topic maps a category onto a valid FCM topic name ([a-zA-Z0-9-_.~%]+).
func Topic(prefix, category string) string {
	var b strings.Builder
	b.WriteString(prefix)
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(category)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
