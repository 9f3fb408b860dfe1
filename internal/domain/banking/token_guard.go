package banking

import (
	"context"
	"fmt"
	"log"
	"time"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/infrastructure/truelayer"
)

// DefaultRefreshLeadTime is how close to expiry a token may get before it is refreshed.
const DefaultRefreshLeadTime = 5 * time.Minute

// TokenGuard hands out access tokens that will not expire mid-request.
// It is the only writer of token fields besides the manual refresh, which
// goes through Refresh as well.
type TokenGuard struct {
	client      truelayer.ClientInterface
	connections connection.Repository
	notifier    Notifier
	leadTime    time.Duration
	now         func() time.Time
}

type TokenGuardOption func(*TokenGuard)

func WithLeadTime(d time.Duration) TokenGuardOption {
	return func(g *TokenGuard) {
		if d > 0 {
			g.leadTime = d
		}
	}
}

func WithClock(now func() time.Time) TokenGuardOption {
	return func(g *TokenGuard) { g.now = now }
}

func WithNotifier(n Notifier) TokenGuardOption {
	return func(g *TokenGuard) {
		if n != nil {
			g.notifier = n
		}
	}
}

func NewTokenGuard(client truelayer.ClientInterface, connections connection.Repository, opts ...TokenGuardOption) *TokenGuard {
	g := &TokenGuard{
		client:      client,
		connections: connections,
		notifier:    noopNotifier{},
		leadTime:    DefaultRefreshLeadTime,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NeedsRefresh reports whether conn's token expires within the lead window.
// A connection without a recorded expiry is treated as expired.
func (g *TokenGuard) NeedsRefresh(conn *connection.BankConnection) bool {
	if conn.TokenExpiresAt == nil {
		return true
	}
	return conn.TokenExpiresAt.Sub(g.now()) < g.leadTime
}

// EnsureFreshToken returns an access token safe to use right now. Any refresh
// failure comes back wrapped in ErrNoUsableToken; the caller should skip the
// connection for this run.
func (g *TokenGuard) EnsureFreshToken(ctx context.Context, conn *connection.BankConnection) (string, error) {
	if !g.NeedsRefresh(conn) {
		return conn.AccessToken, nil
	}

	if err := g.Refresh(ctx, conn); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoUsableToken, err)
	}
	return conn.AccessToken, nil
}

// Refresh exchanges conn's refresh token unconditionally. On an upstream
// failure the connection is demoted to expired. On success the new tokens are
// persisted and copied onto conn.
func (g *TokenGuard) Refresh(ctx context.Context, conn *connection.BankConnection) error {
	if !conn.HasRefreshToken() {
		return ErrNoRefreshToken
	}

	tokens, err := g.client.RefreshToken(ctx, *conn.RefreshToken)
	if err != nil {
		log.Printf("Token refresh failed for connection %s: %v", conn.ID, err)
		g.demote(ctx, conn)
		return fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}

	refreshToken := conn.RefreshToken
	if tokens.RefreshToken != "" {
		refreshToken = &tokens.RefreshToken
	}
	update := connection.TokenUpdate{
		AccessToken:    tokens.AccessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: tokens.ExpiresAt(g.now()),
	}

	if err := g.connections.UpdateTokens(ctx, conn.ID, update); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	conn.AccessToken = update.AccessToken
	conn.RefreshToken = update.RefreshToken
	conn.TokenExpiresAt = &update.TokenExpiresAt
	log.Printf("Refreshed token for connection %s", conn.ID)
	return nil
}

func (g *TokenGuard) demote(ctx context.Context, conn *connection.BankConnection) {
	if err := g.connections.SetStatus(ctx, conn.ID, connection.StatusExpired); err != nil {
		log.Printf("Failed to mark connection %s expired: %v", conn.ID, err)
		return
	}
	conn.Status = connection.StatusExpired
	g.notifier.ConnectionExpired(ctx, conn)
}
