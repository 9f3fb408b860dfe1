package connection

import (
	"errors"
	"time"
)

// ProviderTrueLayer is the only aggregator wired today.
const ProviderTrueLayer = "truelayer"

// Status of a bank connection. Nothing in this service moves a connection
// back to StatusActive once it has left it; relinking creates a new row.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Domain errors
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidStatus      = errors.New("invalid connection status")
	ErrInvalidInput       = errors.New("invalid input")
)

// BankConnection links one child profile to one authorized bank account at the aggregator.
type BankConnection struct {
	ID             string     `json:"id"`
	KidID          string     `json:"kid_id"`
	Provider       string     `json:"provider"`
	AccessToken    string     `json:"-"`
	RefreshToken   *string    `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	AccountID      *string    `json:"account_id,omitempty"`
	AccountName    *string    `json:"account_name,omitempty"`
	BankName       *string    `json:"bank_name,omitempty"`
	Status         Status     `json:"status"`
	ConnectedAt    time.Time  `json:"connected_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasRefreshToken reports whether the connection can be refreshed without relinking.
func (c *BankConnection) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

// CreateConnectionParams carries everything known right after a successful code exchange.
type CreateConnectionParams struct {
	KidID          string
	Provider       string
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt time.Time
	AccountID      *string
	AccountName    *string
	BankName       *string
}

func (p CreateConnectionParams) Validate() error {
	if p.KidID == "" || p.AccessToken == "" {
		return ErrInvalidInput
	}
	return nil
}

// TokenUpdate replaces the credential fields after a refresh.
type TokenUpdate struct {
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt time.Time
}
