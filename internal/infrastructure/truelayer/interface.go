package truelayer

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the TrueLayer API client
type ClientInterface interface {
	AuthURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	GetTransactions(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]Transaction, error)
}
