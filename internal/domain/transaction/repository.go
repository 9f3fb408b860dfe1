package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	// Upsert inserts or overwrites the row identified by (external_id, kid_id).
	Upsert(ctx context.Context, params UpsertTransactionParams) (*Transaction, error)
	ListByKidID(ctx context.Context, kidID string, limit, offset int) ([]*Transaction, error)
	CountByKidID(ctx context.Context, kidID string) (int64, error)
}
