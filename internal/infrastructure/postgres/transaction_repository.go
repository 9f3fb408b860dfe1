package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pocketmoney/internal/domain/transaction"
)

const transactionColumns = `
	id, kid_id, bank_connection_id, external_id, merchant, description,
	amount, is_income, category, transaction_date, created_at`

type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var connID, externalID, description sql.NullString
	var amount decimal.Decimal

	err := row.Scan(
		&t.ID, &t.KidID, &connID, &externalID, &t.Merchant, &description,
		&amount, &t.IsIncome, &t.Category, &t.TransactionDate, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount = amount
	t.BankConnectionID = nullStringPtr(connID)
	t.ExternalID = nullStringPtr(externalID)
	t.Description = nullStringPtr(description)
	return &t, nil
}

// Upsert writes one synced row. A second write for the same (external_id, kid_id)
// overwrites the mutable columns and keeps the original id and created_at.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertTransactionParams) (*transaction.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var connID any
	if params.BankConnectionID != "" {
		connID = params.BankConnectionID
	}

	query := `
		INSERT INTO transactions (
			id, kid_id, bank_connection_id, external_id, merchant, description,
			amount, is_income, category, transaction_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id, kid_id) DO UPDATE SET
			bank_connection_id = EXCLUDED.bank_connection_id,
			merchant = EXCLUDED.merchant,
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			is_income = EXCLUDED.is_income,
			category = EXCLUDED.category,
			transaction_date = EXCLUDED.transaction_date,
			updated_at = NOW()
		RETURNING ` + transactionColumns

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.KidID, connID, params.ExternalID, params.Merchant, params.Description,
		params.Amount, params.IsIncome, params.Category, params.TransactionDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) ListByKidID(ctx context.Context, kidID string, limit, offset int) ([]*transaction.Transaction, error) {
	if _, err := uuid.Parse(kidID); err != nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE kid_id = $1
		ORDER BY transaction_date DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, kidID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *TransactionRepository) CountByKidID(ctx context.Context, kidID string) (int64, error) {
	if _, err := uuid.Parse(kidID); err != nil {
		return 0, nil
	}
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE kid_id = $1`, kidID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
