package http

import (
	"context"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/domain/transaction"
)

// MockAuthFlow implements AuthFlow for testing
type MockAuthFlow struct {
	GetAuthURLFunc        func(kidID, redirectURI string) (*banking.AuthURL, error)
	ExchangeCodeFunc      func(ctx context.Context, code, state, redirectURI string) (*banking.ConnectionSummary, error)
	RefreshConnectionFunc func(ctx context.Context, connectionID string) error
	ListConnectionsFunc   func(ctx context.Context, kidID string) ([]*connection.BankConnection, error)
}

func (m *MockAuthFlow) GetAuthURL(kidID, redirectURI string) (*banking.AuthURL, error) {
	if m.GetAuthURLFunc != nil {
		return m.GetAuthURLFunc(kidID, redirectURI)
	}
	return &banking.AuthURL{}, nil
}

func (m *MockAuthFlow) ExchangeCode(ctx context.Context, code, state, redirectURI string) (*banking.ConnectionSummary, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, state, redirectURI)
	}
	return &banking.ConnectionSummary{}, nil
}

func (m *MockAuthFlow) RefreshConnection(ctx context.Context, connectionID string) error {
	if m.RefreshConnectionFunc != nil {
		return m.RefreshConnectionFunc(ctx, connectionID)
	}
	return nil
}

func (m *MockAuthFlow) ListConnections(ctx context.Context, kidID string) ([]*connection.BankConnection, error) {
	if m.ListConnectionsFunc != nil {
		return m.ListConnectionsFunc(ctx, kidID)
	}
	return nil, nil
}

// MockSyncer implements Syncer for testing
type MockSyncer struct {
	SyncFunc func(ctx context.Context, sel banking.Selection) (*banking.SyncResult, error)
}

func (m *MockSyncer) Sync(ctx context.Context, sel banking.Selection) (*banking.SyncResult, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, sel)
	}
	return &banking.SyncResult{Success: true, Results: []banking.ConnectionResult{}}, nil
}

// MockTransactionLister implements TransactionLister for testing
type MockTransactionLister struct {
	ListByKidIDFunc  func(ctx context.Context, kidID string, limit, offset int) ([]*transaction.Transaction, error)
	CountByKidIDFunc func(ctx context.Context, kidID string) (int64, error)
}

func (m *MockTransactionLister) ListByKidID(ctx context.Context, kidID string, limit, offset int) ([]*transaction.Transaction, error) {
	if m.ListByKidIDFunc != nil {
		return m.ListByKidIDFunc(ctx, kidID, limit, offset)
	}
	return nil, nil
}

func (m *MockTransactionLister) CountByKidID(ctx context.Context, kidID string) (int64, error) {
	if m.CountByKidIDFunc != nil {
		return m.CountByKidIDFunc(ctx, kidID)
	}
	return 0, nil
}
