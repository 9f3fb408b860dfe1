package notification

import "context"

// Messenger delivers push notifications.
// Implemented by the Firebase FCM client in the infrastructure layer.
type Messenger interface {
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
}

// KidTopic is the FCM topic the parent and kid apps subscribe to for one child.
func KidTopic(kidID string) string {
	return "kid-" + kidID
}
