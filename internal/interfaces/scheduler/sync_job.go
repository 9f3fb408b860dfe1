package scheduler

import (
	"context"
	"fmt"
	"log"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/domain/connection"
)

// ConnectionSyncer is the slice of banking.SyncService the scheduler needs.
type ConnectionSyncer interface {
	SelectConnections(ctx context.Context, sel banking.Selection) ([]*connection.BankConnection, error)
	SyncConnection(ctx context.Context, conn *connection.BankConnection) banking.ConnectionResult
}

// ConnectionSyncJob syncs one bank connection.
type ConnectionSyncJob struct {
	conn   *connection.BankConnection
	syncer ConnectionSyncer
}

func NewConnectionSyncJob(conn *connection.BankConnection, syncer ConnectionSyncer) *ConnectionSyncJob {
	return &ConnectionSyncJob{conn: conn, syncer: syncer}
}

// Execute runs the sync. A per-connection failure is returned as an error so the
// pool records it; partial account or row failures are only logged.
func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	result := j.syncer.SyncConnection(ctx, j.conn)
	if result.Error != "" {
		return fmt.Errorf("sync of connection %s failed: %s", j.conn.ID, result.Error)
	}

	if result.FailedAccounts > 0 || result.FailedTransactions > 0 {
		log.Printf("Connection %s synced with gaps: %d account(s) and %d transaction(s) skipped",
			j.conn.ID, result.FailedAccounts, result.FailedTransactions)
	}
	return nil
}

func (j *ConnectionSyncJob) Owner() string {
	return j.conn.KidID
}

func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("Bank sync for connection %s", j.conn.ID)
}

// SyncJobProvider returns a JobProvider that yields one job per active connection.
func SyncJobProvider(syncer ConnectionSyncer) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		conns, err := syncer.SelectConnections(ctx, banking.SelectAll{})
		if err != nil {
			return nil, fmt.Errorf("failed to list active connections: %w", err)
		}

		jobs := make([]Job, 0, len(conns))
		for _, conn := range conns {
			jobs = append(jobs, NewConnectionSyncJob(conn, syncer))
		}
		return jobs, nil
	}
}
