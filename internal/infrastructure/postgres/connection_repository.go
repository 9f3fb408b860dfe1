package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/infrastructure/crypto"
)

const connectionColumns = `
	id, kid_id, provider, access_token, refresh_token, token_expires_at,
	account_id, account_name, bank_name, status, connected_at, last_synced_at,
	created_at, updated_at`

// ConnectionRepository stores bank connections. Access and refresh tokens are
// encrypted before they are written and decrypted on read.
type ConnectionRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

var _ connection.Repository = (*ConnectionRepository)(nil)

func NewConnectionRepository(db *DB, encryptor *crypto.Encryptor) *ConnectionRepository {
	return &ConnectionRepository{db: db, encryptor: encryptor}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConnectionRepository) scan(row rowScanner) (*connection.BankConnection, error) {
	var c connection.BankConnection
	var accessToken string
	var refreshToken, accountID, accountName, bankName sql.NullString
	var expiresAt, lastSyncedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.KidID, &c.Provider, &accessToken, &refreshToken, &expiresAt,
		&accountID, &accountName, &bankName, &c.Status, &c.ConnectedAt, &lastSyncedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.AccessToken, err = r.encryptor.Decrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for connection %s: %w", c.ID, err)
	}
	if refreshToken.Valid {
		plain, err := r.encryptor.Decrypt(refreshToken.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token for connection %s: %w", c.ID, err)
		}
		if plain != "" {
			c.RefreshToken = &plain
		}
	}

	c.TokenExpiresAt = nullTimePtr(expiresAt)
	c.LastSyncedAt = nullTimePtr(lastSyncedAt)
	c.AccountID = nullStringPtr(accountID)
	c.AccountName = nullStringPtr(accountName)
	c.BankName = nullStringPtr(bankName)
	return &c, nil
}

func (r *ConnectionRepository) encryptOptional(s *string) (sql.NullString, error) {
	if s == nil || *s == "" {
		return sql.NullString{}, nil
	}
	enc, err := r.encryptor.Encrypt(*s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: enc, Valid: true}, nil
}

func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateConnectionParams) (*connection.BankConnection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	provider := params.Provider
	if provider == "" {
		provider = connection.ProviderTrueLayer
	}

	accessToken, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.encryptOptional(params.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
		INSERT INTO bank_connections (
			id, kid_id, provider, access_token, refresh_token, token_expires_at,
			account_id, account_name, bank_name, status, connected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING ` + connectionColumns

	conn, err := r.scan(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.KidID, provider, accessToken, refreshToken, params.TokenExpiresAt,
		params.AccountID, params.AccountName, params.BankName, connection.StatusActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create bank connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.BankConnection, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, connection.ErrConnectionNotFound
	}

	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE id = $1`

	conn, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) list(ctx context.Context, where string, args ...any) ([]*connection.BankConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE ` + where + ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.BankConnection
	for rows.Next() {
		conn, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bank connections: %w", err)
	}
	return conns, nil
}

func (r *ConnectionRepository) ListByKidID(ctx context.Context, kidID string) ([]*connection.BankConnection, error) {
	if _, err := uuid.Parse(kidID); err != nil {
		return nil, nil
	}
	return r.list(ctx, `kid_id = $1`, kidID)
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.BankConnection, error) {
	return r.list(ctx, `status = $1`, connection.StatusActive)
}

func (r *ConnectionRepository) ListActiveByKidID(ctx context.Context, kidID string) ([]*connection.BankConnection, error) {
	if _, err := uuid.Parse(kidID); err != nil {
		return nil, nil
	}
	return r.list(ctx, `kid_id = $1 AND status = $2`, kidID, connection.StatusActive)
}

func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id string, update connection.TokenUpdate) error {
	accessToken, err := r.encryptor.Encrypt(update.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.encryptOptional(update.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
		UPDATE bank_connections
		SET access_token = $2,
		    refresh_token = $3,
		    token_expires_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "update tokens", query, id, accessToken, refreshToken, update.TokenExpiresAt)
}

func (r *ConnectionRepository) SetStatus(ctx context.Context, id string, status connection.Status) error {
	if !status.IsValid() {
		return connection.ErrInvalidStatus
	}
	query := `UPDATE bank_connections SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set status", query, id, status)
}

func (r *ConnectionRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE bank_connections SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "mark synced", query, id, at)
}

func (r *ConnectionRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return connection.ErrConnectionNotFound
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
