package firebase

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pocketmoney/internal/domain/notification"
)

// Client implements notification.Messenger using Firebase Cloud Messaging
type Client struct {
	msgClient *messaging.Client
}

var _ notification.Messenger = (*Client)(nil)

// NewClient initializes a Firebase app and returns an FCM client.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient}, nil
}

// SendToTopic pushes one notification to every device subscribed to topic.
func (c *Client) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	msg, err := topicMessage(topic, title, body, data)
	if err != nil {
		return err
	}

	id, err := c.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message to topic %s: %w", topic, err)
	}

	log.Printf("FCM message %s sent to topic %s", id, topic)
	return nil
}

// topicMessage builds the FCM payload. Topic names accept [a-zA-Z0-9-_.~%] only.
func topicMessage(topic, title, body string, data map[string]string) (*messaging.Message, error) {
	topic = strings.TrimPrefix(topic, "/topics/")
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	for _, r := range topic {
		if !isTopicRune(r) {
			return nil, fmt.Errorf("invalid character %q in topic %q", r, topic)
		}
	}

	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}, nil
}

func isTopicRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("-_.~%", r):
		return true
	}
	return false
}
