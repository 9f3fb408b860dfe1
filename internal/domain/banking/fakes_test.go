package banking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/domain/transaction"
	"pocketmoney/internal/infrastructure/truelayer"
)

type mockClient struct {
	AuthURLFunc         func(redirectURI, state string) string
	ExchangeCodeFunc    func(ctx context.Context, code, redirectURI string) (*truelayer.TokenResponse, error)
	RefreshTokenFunc    func(ctx context.Context, refreshToken string) (*truelayer.TokenResponse, error)
	GetAccountsFunc     func(ctx context.Context, accessToken string) ([]truelayer.Account, error)
	GetTransactionsFunc func(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]truelayer.Transaction, error)

	mu           sync.Mutex
	refreshCalls int
}

func (m *mockClient) AuthURL(redirectURI, state string) string {
	if m.AuthURLFunc != nil {
		return m.AuthURLFunc(redirectURI, state)
	}
	return "https://auth.example.test/?state=" + state
}

func (m *mockClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*truelayer.TokenResponse, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, redirectURI)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) RefreshToken(ctx context.Context, refreshToken string) (*truelayer.TokenResponse, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) GetAccounts(ctx context.Context, accessToken string) ([]truelayer.Account, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockClient) GetTransactions(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]truelayer.Transaction, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accessToken, accountID, from, to)
	}
	return nil, nil
}

func (m *mockClient) RefreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}

// memConnections is an in-memory connection.Repository.
type memConnections struct {
	mu      sync.Mutex
	rows    map[string]*connection.BankConnection
	nextID  int
	synced  map[string]time.Time
	FailOn  map[string]error // method name -> error
	updates int
}

func newMemConnections(conns ...*connection.BankConnection) *memConnections {
	m := &memConnections{
		rows:   make(map[string]*connection.BankConnection),
		synced: make(map[string]time.Time),
		FailOn: make(map[string]error),
	}
	for _, c := range conns {
		cp := *c
		m.rows[c.ID] = &cp
	}
	return m
}

func (m *memConnections) fail(method string) error {
	return m.FailOn[method]
}

func (m *memConnections) Create(_ context.Context, p connection.CreateConnectionParams) (*connection.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Create"); err != nil {
		return nil, err
	}
	m.nextID++
	expires := p.TokenExpiresAt
	c := &connection.BankConnection{
		ID:             fmt.Sprintf("conn-%d", m.nextID),
		KidID:          p.KidID,
		Provider:       p.Provider,
		AccessToken:    p.AccessToken,
		RefreshToken:   p.RefreshToken,
		TokenExpiresAt: &expires,
		AccountID:      p.AccountID,
		AccountName:    p.AccountName,
		BankName:       p.BankName,
		Status:         connection.StatusActive,
	}
	m.rows[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memConnections) GetByID(_ context.Context, id string) (*connection.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetByID"); err != nil {
		return nil, err
	}
	c, ok := m.rows[id]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConnections) list(match func(*connection.BankConnection) bool) []*connection.BankConnection {
	var out []*connection.BankConnection
	for _, c := range m.rows {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memConnections) ListByKidID(_ context.Context, kidID string) ([]*connection.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(c *connection.BankConnection) bool { return c.KidID == kidID }), nil
}

func (m *memConnections) ListActive(_ context.Context) ([]*connection.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListActive"); err != nil {
		return nil, err
	}
	return m.list(func(c *connection.BankConnection) bool { return c.Status == connection.StatusActive }), nil
}

func (m *memConnections) ListActiveByKidID(_ context.Context, kidID string) ([]*connection.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(c *connection.BankConnection) bool {
		return c.KidID == kidID && c.Status == connection.StatusActive
	}), nil
}

func (m *memConnections) UpdateTokens(_ context.Context, id string, u connection.TokenUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateTokens"); err != nil {
		return err
	}
	c, ok := m.rows[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	expires := u.TokenExpiresAt
	c.AccessToken = u.AccessToken
	c.RefreshToken = u.RefreshToken
	c.TokenExpiresAt = &expires
	m.updates++
	return nil
}

func (m *memConnections) SetStatus(_ context.Context, id string, status connection.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Status = status
	return nil
}

func (m *memConnections) MarkSynced(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkSynced"); err != nil {
		return err
	}
	c, ok := m.rows[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.LastSyncedAt = &at
	m.synced[id] = at
	return nil
}

func (m *memConnections) row(id string) *connection.BankConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.rows[id]
	return &cp
}

func (m *memConnections) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memTransactions is an in-memory transaction.Repository keyed like the real table.
type memTransactions struct {
	mu     sync.Mutex
	rows   map[string]*transaction.Transaction
	FailOn map[string]bool // external ids that fail to upsert
}

func newMemTransactions() *memTransactions {
	return &memTransactions{
		rows:   make(map[string]*transaction.Transaction),
		FailOn: make(map[string]bool),
	}
}

func (m *memTransactions) Upsert(_ context.Context, p transaction.UpsertTransactionParams) (*transaction.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOn[p.ExternalID] {
		return nil, errors.New("write failed")
	}
	externalID := p.ExternalID
	connID := p.BankConnectionID
	t := &transaction.Transaction{
		ID:               p.KidID + "/" + p.ExternalID,
		KidID:            p.KidID,
		BankConnectionID: &connID,
		ExternalID:       &externalID,
		Merchant:         p.Merchant,
		Description:      p.Description,
		Amount:           p.Amount,
		IsIncome:         p.IsIncome,
		Category:         p.Category,
		TransactionDate:  p.TransactionDate,
	}
	m.rows[t.ID] = t
	return t, nil
}

func (m *memTransactions) ListByKidID(_ context.Context, kidID string, limit, offset int) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Transaction
	for _, t := range m.rows {
		if t.KidID == kidID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTransactions) CountByKidID(_ context.Context, kidID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.rows {
		if t.KidID == kidID {
			n++
		}
	}
	return n, nil
}

func (m *memTransactions) get(kidID, externalID string) *transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[kidID+"/"+externalID]
}

func (m *memTransactions) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memKids struct {
	mu        sync.Mutex
	connected map[string]bool
	err       error
}

func newMemKids() *memKids {
	return &memKids{connected: make(map[string]bool)}
}

func (m *memKids) SetBankAccountConnected(_ context.Context, kidID string, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.connected[kidID] = connected
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	expired []string
	synced  map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{synced: make(map[string]int)}
}

func (n *recordingNotifier) ConnectionExpired(_ context.Context, conn *connection.BankConnection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, conn.ID)
}

func (n *recordingNotifier) SyncCompleted(_ context.Context, conn *connection.BankConnection, synced int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.synced[conn.ID] += synced
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
