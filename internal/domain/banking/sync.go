package banking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/domain/transaction"
	"pocketmoney/internal/infrastructure/truelayer"
)

// Per-connection error messages surfaced in SyncResult.Results.
const (
	ErrMsgTokenExpired        = "Token expired"
	ErrMsgFetchAccounts       = "Failed to fetch accounts"
	ErrMsgConnectionBusy      = "Connection is locked by another sync"
	ErrMsgConnectionLoad      = "Failed to load connection"
	ErrMsgConnectionNotActive = "Connection is no longer active"

	NoConnectionsMessage = "No active connections found"
	DefaultWindowDays    = 90
)

var (
	syncTracer           = otel.Tracer("pocketmoney/sync")
	syncMeter            = otel.Meter("pocketmoney/sync")
	syncConnectionDur, _ = syncMeter.Float64Histogram("sync.connection.duration", metric.WithDescription("Per-connection sync duration in seconds"), metric.WithUnit("s"))
	syncConnections, _   = syncMeter.Int64Counter("sync.connection.total", metric.WithDescription("Connections synced by outcome"))
	syncUpserted, _      = syncMeter.Int64Counter("sync.transactions.upserted", metric.WithDescription("Transactions written by sync"))
	syncFailedTx, _      = syncMeter.Int64Counter("sync.transactions.failed", metric.WithDescription("Transactions skipped because they could not be parsed or stored"))
)

// ConnectionResult is the outcome for one connection. A non-empty Error means
// nothing was synced for it in this run.
type ConnectionResult struct {
	ConnectionID       string `json:"connectionId"`
	Synced             int    `json:"synced"`
	Error              string `json:"error,omitempty"`
	FailedAccounts     int    `json:"failedAccounts,omitempty"`
	FailedTransactions int    `json:"failedTransactions,omitempty"`
}

// SyncResult is always a success at the batch level; per-connection failures
// are reported in Results.
type SyncResult struct {
	Success     bool               `json:"success"`
	TotalSynced int                `json:"totalSynced"`
	Results     []ConnectionResult `json:"results"`
	Message     string             `json:"message,omitempty"`
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	// Concurrency is the number of connections processed at once. 1 is sequential.
	Concurrency int
	// WindowDays is how far back each run fetches.
	WindowDays int
}

// SyncService pulls transactions for bank connections into the ledger.
type SyncService struct {
	client       truelayer.ClientInterface
	connections  connection.Repository
	transactions transaction.Repository
	guard        *TokenGuard
	locker       Locker
	notifier     Notifier
	cfg          SyncConfig
	now          func() time.Time
}

func NewSyncService(
	client truelayer.ClientInterface,
	connections connection.Repository,
	transactions transaction.Repository,
	guard *TokenGuard,
	locker Locker,
	notifier Notifier,
	cfg SyncConfig,
) *SyncService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.WindowDays < 1 {
		cfg.WindowDays = DefaultWindowDays
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &SyncService{
		client:       client,
		connections:  connections,
		transactions: transactions,
		guard:        guard,
		locker:       locker,
		notifier:     notifier,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Sync runs one batch over the selected connections. Only a failure to read
// the connection list is returned as an error.
func (s *SyncService) Sync(ctx context.Context, sel Selection) (*SyncResult, error) {
	if sel == nil {
		return nil, ErrInvalidSelection
	}

	ctx, span := syncTracer.Start(ctx, "sync.batch",
		trace.WithAttributes(attribute.String("sync.selection", sel.String())),
	)
	defer span.End()

	log.Printf("Sync: starting for %s", sel)

	conns, err := s.SelectConnections(ctx, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch connections: %w", err)
	}

	if len(conns) == 0 {
		log.Println("Sync: no active connections found")
		return &SyncResult{
			Success: true,
			Results: []ConnectionResult{},
			Message: NoConnectionsMessage,
		}, nil
	}

	log.Printf("Sync: found %d active connection(s)", len(conns))
	results := s.syncAll(ctx, conns)

	out := &SyncResult{Success: true, Results: results}
	for _, r := range results {
		out.TotalSynced += r.Synced
	}

	span.SetAttributes(
		attribute.Int("sync.connections", len(conns)),
		attribute.Int("sync.total_synced", out.TotalSynced),
	)
	log.Printf("Sync: finished %s, %d transaction(s) synced", sel, out.TotalSynced)
	return out, nil
}

// syncAll fans connections out to a fixed set of workers. Each result lands in
// its own slot so the merge needs no locking.
func (s *SyncService) syncAll(ctx context.Context, conns []*connection.BankConnection) []ConnectionResult {
	results := make([]ConnectionResult, len(conns))
	queue := make(chan int)

	workers := min(s.cfg.Concurrency, len(conns))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = s.SyncConnection(ctx, conns[i])
			}
		}()
	}

	for i := range conns {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}

// SelectConnections resolves a Selection to the active connections it names.
// An unknown or inactive connection id resolves to nothing.
func (s *SyncService) SelectConnections(ctx context.Context, sel Selection) ([]*connection.BankConnection, error) {
	switch v := sel.(type) {
	case SelectConnection:
		conn, err := s.connections.GetByID(ctx, v.ConnectionID)
		if errors.Is(err, connection.ErrConnectionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if conn.Status != connection.StatusActive {
			return nil, nil
		}
		return []*connection.BankConnection{conn}, nil
	case SelectKid:
		return s.connections.ListActiveByKidID(ctx, v.KidID)
	case SelectAll:
		return s.connections.ListActive(ctx)
	default:
		return nil, ErrInvalidSelection
	}
}

// SyncConnection brings one connection up to date. It never returns an error;
// failures are described in the result.
func (s *SyncService) SyncConnection(ctx context.Context, conn *connection.BankConnection) ConnectionResult {
	ctx, span := syncTracer.Start(ctx, "sync.connection",
		trace.WithAttributes(
			attribute.String("connection.id", conn.ID),
			attribute.String("connection.kid_id", conn.KidID),
		),
	)
	defer span.End()

	start := time.Now()
	result := s.syncConnection(ctx, conn)

	outcome := "success"
	if result.Error != "" {
		outcome = "error"
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(attribute.Int("sync.synced", result.Synced))
	syncConnections.Add(ctx, 1, metric.WithAttributes(attribute.String("status", outcome)))
	syncConnectionDur.Record(ctx, time.Since(start).Seconds())
	syncUpserted.Add(ctx, int64(result.Synced))
	syncFailedTx.Add(ctx, int64(result.FailedTransactions))

	return result
}

func (s *SyncService) syncConnection(ctx context.Context, conn *connection.BankConnection) ConnectionResult {
	result := ConnectionResult{ConnectionID: conn.ID}

	unlock, err := s.locker.Lock(ctx, connectionLockKey(conn.ID))
	if err != nil {
		log.Printf("Sync: could not lock connection %s: %v", conn.ID, err)
		result.Error = ErrMsgConnectionBusy
		return result
	}
	defer unlock()

	// Reload under the lock: another writer may have rotated the tokens.
	current, err := s.connections.GetByID(ctx, conn.ID)
	if err != nil {
		log.Printf("Sync: failed to reload connection %s: %v", conn.ID, err)
		result.Error = ErrMsgConnectionLoad
		return result
	}
	if current.Status != connection.StatusActive {
		result.Error = ErrMsgConnectionNotActive
		return result
	}

	accessToken, err := s.guard.EnsureFreshToken(ctx, current)
	if err != nil {
		log.Printf("Sync: no usable token for connection %s: %v", conn.ID, err)
		result.Error = ErrMsgTokenExpired
		return result
	}

	accounts, err := s.client.GetAccounts(ctx, accessToken)
	if err != nil {
		log.Printf("Sync: failed to fetch accounts for connection %s: %v", conn.ID, err)
		result.Error = ErrMsgFetchAccounts
		return result
	}

	to := s.now()
	from := to.AddDate(0, 0, -s.cfg.WindowDays)

	for _, account := range accounts {
		txs, err := s.client.GetTransactions(ctx, accessToken, account.AccountID, from, to)
		if err != nil {
			log.Printf("Sync: failed to fetch transactions for account %s: %v", account.AccountID, err)
			result.FailedAccounts++
			continue
		}

		for _, raw := range txs {
			params, err := buildTransaction(current, raw)
			if err != nil {
				log.Printf("Sync: skipping transaction %q on account %s: %v", raw.TransactionID, account.AccountID, err)
				result.FailedTransactions++
				continue
			}
			if _, err := s.transactions.Upsert(ctx, params); err != nil {
				log.Printf("Sync: failed to upsert transaction %s: %v", raw.TransactionID, err)
				result.FailedTransactions++
				continue
			}
			result.Synced++
		}
	}

	if err := s.connections.MarkSynced(ctx, current.ID, s.now()); err != nil {
		log.Printf("Sync: failed to stamp last_synced_at for connection %s: %v", current.ID, err)
	}

	if result.Synced > 0 {
		s.notifier.SyncCompleted(ctx, current, result.Synced)
	}

	log.Printf("Sync: synced %d transaction(s) for connection %s", result.Synced, current.ID)
	return result
}

// buildTransaction converts one aggregator row into ledger upsert params.
func buildTransaction(conn *connection.BankConnection, raw truelayer.Transaction) (transaction.UpsertTransactionParams, error) {
	if raw.TransactionID == "" {
		return transaction.UpsertTransactionParams{}, fmt.Errorf("missing transaction_id")
	}

	ts, err := raw.GetTimestamp()
	if err != nil {
		return transaction.UpsertTransactionParams{}, err
	}

	amount, isIncome := transaction.NormalizeAmount(raw.Amount, raw.TransactionType)

	var description *string
	if raw.Description != "" {
		d := raw.Description
		description = &d
	}

	return transaction.UpsertTransactionParams{
		KidID:            conn.KidID,
		BankConnectionID: conn.ID,
		ExternalID:       raw.TransactionID,
		Merchant:         transaction.MerchantLabel(raw.MerchantName, raw.Description),
		Description:      description,
		Amount:           amount,
		IsIncome:         isIncome,
		Category:         transaction.Categorize(raw.TransactionCategory, raw.MerchantName, raw.Description),
		TransactionDate:  ts,
	}, nil
}
