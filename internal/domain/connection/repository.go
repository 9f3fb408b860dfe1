package connection

import (
	"context"
	"time"
)

// Repository is the token store. Writers are split by field:
// Create is called by the authorization flow, UpdateTokens and SetStatus by
// token refresh, and MarkSynced by the sync orchestrator.
type Repository interface {
	Create(ctx context.Context, params CreateConnectionParams) (*BankConnection, error)
	GetByID(ctx context.Context, id string) (*BankConnection, error)
	ListByKidID(ctx context.Context, kidID string) ([]*BankConnection, error)
	ListActive(ctx context.Context) ([]*BankConnection, error)
	ListActiveByKidID(ctx context.Context, kidID string) ([]*BankConnection, error)
	UpdateTokens(ctx context.Context, id string, update TokenUpdate) error
	SetStatus(ctx context.Context, id string, status Status) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
