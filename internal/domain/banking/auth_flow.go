package banking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/domain/kid"
	"pocketmoney/internal/infrastructure/truelayer"
)

// DefaultBankName is used when the aggregator lists an account without a provider name.
const DefaultBankName = "Connected Bank"

// AuthURL is the consent URL plus the state it embeds.
type AuthURL struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

// ConnectionSummary is what the dashboard needs after linking a bank.
type ConnectionSummary struct {
	ID          string  `json:"id"`
	BankName    *string `json:"bank_name"`
	AccountName *string `json:"account_name"`
}

// AccountInfo names a connection. It is cosmetic and never required for correctness.
type AccountInfo struct {
	AccountID   string
	AccountName *string
	BankName    string
}

// AuthService links bank accounts to child profiles.
type AuthService struct {
	client      truelayer.ClientInterface
	connections connection.Repository
	kids        kid.Repository
	guard       *TokenGuard
	locker      Locker
	now         func() time.Time
}

func NewAuthService(
	client truelayer.ClientInterface,
	connections connection.Repository,
	kids kid.Repository,
	guard *TokenGuard,
	locker Locker,
) *AuthService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &AuthService{
		client:      client,
		connections: connections,
		kids:        kids,
		guard:       guard,
		locker:      locker,
		now:         time.Now,
	}
}

// GetAuthURL builds the consent URL for kidID. Nothing is stored.
func (s *AuthService) GetAuthURL(kidID, redirectURI string) (*AuthURL, error) {
	if kidID == "" || redirectURI == "" {
		return nil, ErrMissingParameters
	}

	state := EncodeState(kidID, s.now())
	log.Printf("Generated auth URL for kid %s", kidID)

	return &AuthURL{
		AuthURL: s.client.AuthURL(redirectURI, state),
		State:   state,
	}, nil
}

// ExchangeCode completes the redirect: it trades code for tokens, stores a new
// active connection for the child named in state, and flags the child as connected.
//
// Once the token exchange succeeds the code is spent, so a storage failure here
// cannot be retried with the same code.
func (s *AuthService) ExchangeCode(ctx context.Context, code, state, redirectURI string) (*ConnectionSummary, error) {
	if code == "" || state == "" || redirectURI == "" {
		return nil, ErrMissingParameters
	}

	decoded, err := DecodeState(state)
	if err != nil {
		return nil, err
	}

	tokens, err := s.client.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		details := err.Error()
		var apiErr *truelayer.APIError
		if errors.As(err, &apiErr) {
			details = apiErr.Body
		}
		log.Printf("Token exchange failed for kid %s: %v", decoded.KidID, err)
		return nil, &TokenExchangeError{Details: details, Err: err}
	}

	params := connection.CreateConnectionParams{
		KidID:          decoded.KidID,
		Provider:       connection.ProviderTrueLayer,
		AccessToken:    tokens.AccessToken,
		TokenExpiresAt: tokens.ExpiresAt(s.now()),
	}
	if tokens.RefreshToken != "" {
		params.RefreshToken = &tokens.RefreshToken
	}
	if info, ok := s.lookupAccountInfo(ctx, tokens.AccessToken); ok {
		params.AccountID = &info.AccountID
		params.AccountName = info.AccountName
		params.BankName = &info.BankName
	}

	conn, err := s.connections.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreConnection, err)
	}

	// The connection row is the source of truth; the flag only drives the dashboard.
	if err := s.kids.SetBankAccountConnected(ctx, decoded.KidID, true); err != nil {
		log.Printf("Failed to flag kid %s as bank connected: %v", decoded.KidID, err)
	}

	log.Printf("Bank connection %s stored for kid %s", conn.ID, decoded.KidID)
	return &ConnectionSummary{
		ID:          conn.ID,
		BankName:    conn.BankName,
		AccountName: conn.AccountName,
	}, nil
}

// lookupAccountInfo names the connection from the first listed account.
// Any failure is logged and reported as absent.
func (s *AuthService) lookupAccountInfo(ctx context.Context, accessToken string) (AccountInfo, bool) {
	accounts, err := s.client.GetAccounts(ctx, accessToken)
	if err != nil {
		log.Printf("Account lookup for naming failed: %v", err)
		return AccountInfo{}, false
	}
	if len(accounts) == 0 {
		return AccountInfo{}, false
	}

	account := accounts[0]
	info := AccountInfo{
		AccountID: account.AccountID,
		BankName:  account.Provider.DisplayName,
	}
	if info.BankName == "" {
		info.BankName = DefaultBankName
	}
	switch {
	case account.DisplayName != "":
		info.AccountName = &account.DisplayName
	case account.AccountNumber.Number != "":
		info.AccountName = &account.AccountNumber.Number
	}

	return info, true
}

// RefreshConnection forces a token refresh for one connection, holding the
// connection lock so it cannot race a sync of the same connection.
func (s *AuthService) RefreshConnection(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return ErrMissingParameters
	}

	unlock, err := s.locker.Lock(ctx, connectionLockKey(connectionID))
	if err != nil {
		return fmt.Errorf("failed to lock connection: %w", err)
	}
	defer unlock()

	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return err
	}

	return s.guard.Refresh(ctx, conn)
}

// ListConnections returns a child's connections for display.
func (s *AuthService) ListConnections(ctx context.Context, kidID string) ([]*connection.BankConnection, error) {
	if kidID == "" {
		return nil, ErrMissingParameters
	}
	return s.connections.ListByKidID(ctx, kidID)
}
