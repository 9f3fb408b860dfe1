package notification

import (
	"context"
	"log"
	"strconv"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/shared/messages"
)

// Routes the apps open when a notification is tapped.
const (
	RouteBankConnections = "bank-connections"
	RouteTransactions    = "transactions"
)

// Service turns connection lifecycle events into push notifications.
// Delivery failures are logged and never returned.
type Service struct {
	messenger Messenger
	texts     *messages.Messages
}

// NewService creates a notification service. A nil messenger disables delivery.
func NewService(messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	return &Service{messenger: messenger, texts: texts}
}

// ConnectionExpired tells the family a bank link needs to be redone.
func (s *Service) ConnectionExpired(ctx context.Context, conn *connection.BankConnection) {
	text := s.texts.ConnectionExpired.Render(map[string]string{
		"bank": bankName(conn),
	})
	s.send(ctx, conn.KidID, text, map[string]string{
		"route":        RouteBankConnections,
		"connectionId": conn.ID,
		"event":        "connection_expired",
	})
}

// SyncCompleted announces new transactions. Zero-count syncs are not announced.
func (s *Service) SyncCompleted(ctx context.Context, conn *connection.BankConnection, synced int) {
	if synced <= 0 {
		return
	}
	text := s.texts.SyncComplete.Render(map[string]string{
		"bank":  bankName(conn),
		"count": strconv.Itoa(synced),
	})
	s.send(ctx, conn.KidID, text, map[string]string{
		"route":        RouteTransactions,
		"connectionId": conn.ID,
		"event":        "sync_complete",
		"synced":       strconv.Itoa(synced),
	})
}

func (s *Service) send(ctx context.Context, kidID string, text messages.MessageText, data map[string]string) {
	if s.messenger == nil {
		return
	}
	topic := KidTopic(kidID)
	if err := s.messenger.SendToTopic(ctx, topic, text.Title, text.Body, data); err != nil {
		log.Printf("Error sending %s notification to %s: %v", data["event"], topic, err)
	}
}

func bankName(conn *connection.BankConnection) string {
	if conn.BankName != nil && *conn.BankName != "" {
		return *conn.BankName
	}
	return "your bank"
}
