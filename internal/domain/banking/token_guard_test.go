package banking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/infrastructure/truelayer"
)

var guardNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func guardConn(expiresIn time.Duration) *connection.BankConnection {
	return &connection.BankConnection{
		ID:             "conn-1",
		KidID:          "kid-1",
		AccessToken:    "old-access",
		RefreshToken:   strPtr("old-refresh"),
		TokenExpiresAt: timePtr(guardNow.Add(expiresIn)),
		Status:         connection.StatusActive,
	}
}

func TestTokenGuard_NeedsRefresh(t *testing.T) {
	guard := NewTokenGuard(&mockClient{}, newMemConnections(), WithClock(func() time.Time { return guardNow }))

	tests := []struct {
		name    string
		expires *time.Time
		want    bool
	}{
		{"expires in 4 minutes", timePtr(guardNow.Add(4 * time.Minute)), true},
		{"expires in 10 minutes", timePtr(guardNow.Add(10 * time.Minute)), false},
		{"already expired", timePtr(guardNow.Add(-time.Minute)), true},
		{"exactly at lead time", timePtr(guardNow.Add(5 * time.Minute)), false},
		{"no expiry recorded", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &connection.BankConnection{TokenExpiresAt: tt.expires}
			assert.Equal(t, tt.want, guard.NeedsRefresh(conn))
		})
	}
}

func TestTokenGuard_EnsureFreshToken_NoRefreshNeeded(t *testing.T) {
	client := &mockClient{}
	conn := guardConn(10 * time.Minute)
	repo := newMemConnections(conn)
	guard := NewTokenGuard(client, repo, WithClock(func() time.Time { return guardNow }))

	token, err := guard.EnsureFreshToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "old-access", token)
	assert.Zero(t, client.RefreshCalls())
}

func TestTokenGuard_EnsureFreshToken_Refreshes(t *testing.T) {
	client := &mockClient{
		RefreshTokenFunc: func(_ context.Context, refreshToken string) (*truelayer.TokenResponse, error) {
			assert.Equal(t, "old-refresh", refreshToken)
			return &truelayer.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600}, nil
		},
	}
	conn := guardConn(4 * time.Minute)
	repo := newMemConnections(conn)
	guard := NewTokenGuard(client, repo, WithClock(func() time.Time { return guardNow }))

	token, err := guard.EnsureFreshToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, 1, client.RefreshCalls())

	stored := repo.row("conn-1")
	assert.Equal(t, "new-access", stored.AccessToken)
	assert.Equal(t, "new-refresh", *stored.RefreshToken)
	assert.True(t, stored.TokenExpiresAt.Equal(guardNow.Add(time.Hour)))
	assert.Equal(t, "new-access", conn.AccessToken)
}

func TestTokenGuard_Refresh_KeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	client := &mockClient{
		RefreshTokenFunc: func(context.Context, string) (*truelayer.TokenResponse, error) {
			return &truelayer.TokenResponse{AccessToken: "new-access", ExpiresIn: 3600}, nil
		},
	}
	conn := guardConn(time.Minute)
	repo := newMemConnections(conn)
	guard := NewTokenGuard(client, repo, WithClock(func() time.Time { return guardNow }))

	require.NoError(t, guard.Refresh(context.Background(), conn))

	stored := repo.row("conn-1")
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, "old-refresh", *stored.RefreshToken)
}

func TestTokenGuard_Refresh_NoRefreshToken(t *testing.T) {
	client := &mockClient{}
	conn := guardConn(time.Minute)
	conn.RefreshToken = nil
	repo := newMemConnections(conn)
	guard := NewTokenGuard(client, repo, WithClock(func() time.Time { return guardNow }))

	err := guard.Refresh(context.Background(), conn)

	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Zero(t, client.RefreshCalls())
	assert.Equal(t, connection.StatusActive, repo.row("conn-1").Status)

	_, err = guard.EnsureFreshToken(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNoUsableToken)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestTokenGuard_Refresh_FailureDemotesConnection(t *testing.T) {
	client := &mockClient{
		RefreshTokenFunc: func(context.Context, string) (*truelayer.TokenResponse, error) {
			return nil, &truelayer.APIError{StatusCode: 400, Body: `{"error":"invalid_grant"}`}
		},
	}
	conn := guardConn(time.Minute)
	repo := newMemConnections(conn)
	notifier := newRecordingNotifier()
	guard := NewTokenGuard(client, repo,
		WithClock(func() time.Time { return guardNow }),
		WithNotifier(notifier),
	)

	_, err := guard.EnsureFreshToken(context.Background(), conn)

	assert.ErrorIs(t, err, ErrNoUsableToken)
	assert.ErrorIs(t, err, ErrTokenRefreshFailed)
	var apiErr *truelayer.APIError
	assert.True(t, errors.As(err, &apiErr))

	stored := repo.row("conn-1")
	assert.Equal(t, connection.StatusExpired, stored.Status)
	assert.Equal(t, "old-access", stored.AccessToken, "tokens are left untouched on failure")
	assert.Equal(t, []string{"conn-1"}, notifier.expired)
}

func TestTokenGuard_Refresh_PersistFailure(t *testing.T) {
	client := &mockClient{
		RefreshTokenFunc: func(context.Context, string) (*truelayer.TokenResponse, error) {
			return &truelayer.TokenResponse{AccessToken: "new-access", ExpiresIn: 3600}, nil
		},
	}
	conn := guardConn(time.Minute)
	repo := newMemConnections(conn)
	repo.FailOn["UpdateTokens"] = errors.New("db down")
	guard := NewTokenGuard(client, repo, WithClock(func() time.Time { return guardNow }))

	err := guard.Refresh(context.Background(), conn)

	require.Error(t, err)
	assert.Equal(t, "old-access", conn.AccessToken)
	assert.Equal(t, connection.StatusActive, repo.row("conn-1").Status)
}

func TestWithLeadTime(t *testing.T) {
	guard := NewTokenGuard(&mockClient{}, newMemConnections(),
		WithClock(func() time.Time { return guardNow }),
		WithLeadTime(15*time.Minute),
	)

	conn := &connection.BankConnection{TokenExpiresAt: timePtr(guardNow.Add(10 * time.Minute))}
	assert.True(t, guard.NeedsRefresh(conn))
}
