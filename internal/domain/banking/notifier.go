package banking

import (
	"context"

	"pocketmoney/internal/domain/connection"
)

// Notifier receives connection lifecycle events. Implementations must not block
// for long and must swallow their own delivery errors.
type Notifier interface {
	ConnectionExpired(ctx context.Context, conn *connection.BankConnection)
	SyncCompleted(ctx context.Context, conn *connection.BankConnection, synced int)
}

type noopNotifier struct{}

func (noopNotifier) ConnectionExpired(context.Context, *connection.BankConnection) {}
func (noopNotifier) SyncCompleted(context.Context, *connection.BankConnection, int) {}
