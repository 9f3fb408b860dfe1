package postgres

import (
	"context"
	"fmt"

	"pocketmoney/internal/domain/kid"
)

type KidRepository struct {
	db *DB
}

var _ kid.Repository = (*KidRepository)(nil)

func NewKidRepository(db *DB) *KidRepository {
	return &KidRepository{db: db}
}

func (r *KidRepository) SetBankAccountConnected(ctx context.Context, kidID string, connected bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE kids SET bank_account_connected = $2, updated_at = NOW() WHERE id = $1`,
		kidID, connected,
	)
	if err != nil {
		return fmt.Errorf("failed to update kid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update kid: %w", err)
	}
	if n == 0 {
		return kid.ErrKidNotFound
	}
	return nil
}
