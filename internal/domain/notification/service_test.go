package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/shared/messages"
)

type sentMessage struct {
	topic, title, body string
	data               map[string]string
}

type mockMessenger struct {
	sent []sentMessage
	err  error
}

func (m *mockMessenger) SendToTopic(_ context.Context, topic, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentMessage{topic, title, body, data})
	return m.err
}

func testTexts() *messages.Messages {
	return &messages.Messages{
		ConnectionExpired: messages.MessageText{Title: "Reconnect {bank}", Body: "Access to {bank} expired"},
		SyncComplete:      messages.MessageText{Title: "New activity", Body: "{count} new from {bank}"},
	}
}

func TestService_ConnectionExpired(t *testing.T) {
	m := &mockMessenger{}
	svc := NewService(m, testTexts())
	bank := "Test Bank"

	svc.ConnectionExpired(context.Background(), &connection.BankConnection{ID: "c1", KidID: "k1", BankName: &bank})

	require.Len(t, m.sent, 1)
	assert.Equal(t, "kid-k1", m.sent[0].topic)
	assert.Equal(t, "Reconnect Test Bank", m.sent[0].title)
	assert.Equal(t, "Access to Test Bank expired", m.sent[0].body)
	assert.Equal(t, RouteBankConnections, m.sent[0].data["route"])
	assert.Equal(t, "c1", m.sent[0].data["connectionId"])
}

func TestService_SyncCompleted(t *testing.T) {
	m := &mockMessenger{}
	svc := NewService(m, testTexts())
	conn := &connection.BankConnection{ID: "c1", KidID: "k1"}

	svc.SyncCompleted(context.Background(), conn, 0)
	assert.Empty(t, m.sent, "nothing new, nothing sent")

	svc.SyncCompleted(context.Background(), conn, 3)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "3 new from your bank", m.sent[0].body)
	assert.Equal(t, "3", m.sent[0].data["synced"])
}

func TestService_DeliveryErrorsAreSwallowed(t *testing.T) {
	m := &mockMessenger{err: errors.New("fcm down")}
	svc := NewService(m, testTexts())

	assert.NotPanics(t, func() {
		svc.ConnectionExpired(context.Background(), &connection.BankConnection{ID: "c1", KidID: "k1"})
	})
	assert.Len(t, m.sent, 1)
}

func TestService_NilMessenger(t *testing.T) {
	svc := NewService(nil, nil)
	assert.NotPanics(t, func() {
		svc.SyncCompleted(context.Background(), &connection.BankConnection{ID: "c1", KidID: "k1"}, 2)
	})
}
