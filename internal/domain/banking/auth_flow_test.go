package banking

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketmoney/internal/domain/connection"
	"pocketmoney/internal/infrastructure/truelayer"
)

const testRedirect = "https://app.example.test/bank/callback"

func newTestAuthService(client *mockClient, conns *memConnections, kids *memKids) *AuthService {
	guard := NewTokenGuard(client, conns)
	return NewAuthService(client, conns, kids, guard, nil)
}

func TestAuthService_GetAuthURL(t *testing.T) {
	client := &mockClient{
		AuthURLFunc: func(redirectURI, state string) string {
			return "https://auth.example.test/?redirect_uri=" + url.QueryEscape(redirectURI) + "&state=" + url.QueryEscape(state)
		},
	}
	svc := newTestAuthService(client, newMemConnections(), newMemKids())

	got, err := svc.GetAuthURL("kid-1", testRedirect)
	require.NoError(t, err)

	decoded, err := DecodeState(got.State)
	require.NoError(t, err)
	assert.Equal(t, "kid-1", decoded.KidID)

	u, err := url.Parse(got.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, got.State, u.Query().Get("state"))
	assert.Equal(t, testRedirect, u.Query().Get("redirect_uri"))
}

func TestAuthService_GetAuthURL_MissingParameters(t *testing.T) {
	svc := newTestAuthService(&mockClient{}, newMemConnections(), newMemKids())

	_, err := svc.GetAuthURL("", testRedirect)
	assert.ErrorIs(t, err, ErrMissingParameters)

	_, err = svc.GetAuthURL("kid-1", "")
	assert.ErrorIs(t, err, ErrMissingParameters)
}

func TestAuthService_ExchangeCode_Success(t *testing.T) {
	before := time.Now()
	client := &mockClient{
		ExchangeCodeFunc: func(_ context.Context, code, redirectURI string) (*truelayer.TokenResponse, error) {
			assert.Equal(t, "auth-code", code)
			assert.Equal(t, testRedirect, redirectURI)
			return &truelayer.TokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
		},
		GetAccountsFunc: func(_ context.Context, accessToken string) ([]truelayer.Account, error) {
			assert.Equal(t, "access", accessToken)
			return []truelayer.Account{{
				AccountID:   "acc-1",
				DisplayName: "Main",
				Provider:    truelayer.Provider{DisplayName: "Test Bank"},
			}}, nil
		},
	}
	conns := newMemConnections()
	kids := newMemKids()
	svc := newTestAuthService(client, conns, kids)

	summary, err := svc.ExchangeCode(context.Background(), "auth-code", EncodeState("kid-1", time.Now()), testRedirect)
	require.NoError(t, err)

	require.NotNil(t, summary.BankName)
	require.NotNil(t, summary.AccountName)
	assert.Equal(t, "Test Bank", *summary.BankName)
	assert.Equal(t, "Main", *summary.AccountName)

	stored := conns.row(summary.ID)
	assert.Equal(t, "kid-1", stored.KidID)
	assert.Equal(t, connection.StatusActive, stored.Status)
	assert.Equal(t, connection.ProviderTrueLayer, stored.Provider)
	assert.Equal(t, "access", stored.AccessToken)
	assert.Equal(t, "refresh", *stored.RefreshToken)
	assert.Equal(t, "acc-1", *stored.AccountID)
	assert.WithinDuration(t, before.Add(time.Hour), *stored.TokenExpiresAt, 5*time.Second)
	assert.True(t, kids.connected["kid-1"])
}

func TestAuthService_ExchangeCode_AccountNaming(t *testing.T) {
	tests := []struct {
		name        string
		accounts    []truelayer.Account
		accountsErr error
		wantBank    *string
		wantAccount *string
	}{
		{
			name:     "no accounts",
			accounts: nil,
		},
		{
			name:        "lookup fails",
			accountsErr: errors.New("boom"),
		},
		{
			name:        "no provider name",
			accounts:    []truelayer.Account{{AccountID: "a", DisplayName: "Savings"}},
			wantBank:    strPtr(DefaultBankName),
			wantAccount: strPtr("Savings"),
		},
		{
			name: "falls back to account number",
			accounts: []truelayer.Account{{
				AccountID:     "a",
				AccountNumber: truelayer.AccountNumber{Number: "12345678"},
				Provider:      truelayer.Provider{DisplayName: "Test Bank"},
			}},
			wantBank:    strPtr("Test Bank"),
			wantAccount: strPtr("12345678"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{
				ExchangeCodeFunc: func(context.Context, string, string) (*truelayer.TokenResponse, error) {
					return &truelayer.TokenResponse{AccessToken: "access", ExpiresIn: 3600}, nil
				},
				GetAccountsFunc: func(context.Context, string) ([]truelayer.Account, error) {
					return tt.accounts, tt.accountsErr
				},
			}
			svc := newTestAuthService(client, newMemConnections(), newMemKids())

			summary, err := svc.ExchangeCode(context.Background(), "code", EncodeState("kid-1", time.Now()), testRedirect)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBank, summary.BankName)
			assert.Equal(t, tt.wantAccount, summary.AccountName)
		})
	}
}

func TestAuthService_ExchangeCode_MalformedState(t *testing.T) {
	client := &mockClient{
		ExchangeCodeFunc: func(context.Context, string, string) (*truelayer.TokenResponse, error) {
			t.Fatal("token exchange must not be attempted with a bad state")
			return nil, nil
		},
	}
	conns := newMemConnections()
	svc := newTestAuthService(client, conns, newMemKids())

	_, err := svc.ExchangeCode(context.Background(), "code", "not-a-state", testRedirect)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, conns.count())
}

func TestAuthService_ExchangeCode_MissingParameters(t *testing.T) {
	svc := newTestAuthService(&mockClient{}, newMemConnections(), newMemKids())
	state := EncodeState("kid-1", time.Now())

	for _, args := range [][3]string{{"", state, testRedirect}, {"code", "", testRedirect}, {"code", state, ""}} {
		_, err := svc.ExchangeCode(context.Background(), args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrMissingParameters)
	}
}

func TestAuthService_ExchangeCode_Rejected(t *testing.T) {
	body := `{"error":"invalid_grant","error_description":"code already used"}`
	client := &mockClient{
		ExchangeCodeFunc: func(context.Context, string, string) (*truelayer.TokenResponse, error) {
			return nil, &truelayer.APIError{StatusCode: 400, Body: body}
		},
	}
	conns := newMemConnections()
	kids := newMemKids()
	svc := newTestAuthService(client, conns, kids)

	_, err := svc.ExchangeCode(context.Background(), "code", EncodeState("kid-1", time.Now()), testRedirect)

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, body, exchangeErr.Details)
	assert.Zero(t, conns.count())
	assert.Empty(t, kids.connected)
}

func TestAuthService_ExchangeCode_StoreFailure(t *testing.T) {
	client := &mockClient{
		ExchangeCodeFunc: func(context.Context, string, string) (*truelayer.TokenResponse, error) {
			return &truelayer.TokenResponse{AccessToken: "access", ExpiresIn: 3600}, nil
		},
	}
	conns := newMemConnections()
	conns.FailOn["Create"] = errors.New("insert failed")
	kids := newMemKids()
	svc := newTestAuthService(client, conns, kids)

	_, err := svc.ExchangeCode(context.Background(), "code", EncodeState("kid-1", time.Now()), testRedirect)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreConnection)
	assert.Empty(t, kids.connected)
}

func TestAuthService_ExchangeCode_KidFlagFailureIsNotFatal(t *testing.T) {
	client := &mockClient{
		ExchangeCodeFunc: func(context.Context, string, string) (*truelayer.TokenResponse, error) {
			return &truelayer.TokenResponse{AccessToken: "access", ExpiresIn: 3600}, nil
		},
	}
	conns := newMemConnections()
	kids := newMemKids()
	kids.err = errors.New("update failed")
	svc := newTestAuthService(client, conns, kids)

	summary, err := svc.ExchangeCode(context.Background(), "code", EncodeState("kid-1", time.Now()), testRedirect)

	require.NoError(t, err)
	assert.Equal(t, 1, conns.count())
	assert.NotEmpty(t, summary.ID)
}

func TestAuthService_RefreshConnection(t *testing.T) {
	client := &mockClient{
		RefreshTokenFunc: func(context.Context, string) (*truelayer.TokenResponse, error) {
			return &truelayer.TokenResponse{AccessToken: "new-access", ExpiresIn: 3600}, nil
		},
	}
	conn := &connection.BankConnection{
		ID:             "conn-1",
		KidID:          "kid-1",
		AccessToken:    "old-access",
		RefreshToken:   strPtr("refresh"),
		TokenExpiresAt: timePtr(time.Now().Add(time.Hour)),
		Status:         connection.StatusActive,
	}
	conns := newMemConnections(conn)
	svc := newTestAuthService(client, conns, newMemKids())

	require.NoError(t, svc.RefreshConnection(context.Background(), "conn-1"))

	assert.Equal(t, 1, client.RefreshCalls(), "manual refresh ignores the expiry window")
	assert.Equal(t, "new-access", conns.row("conn-1").AccessToken)
}

func TestAuthService_RefreshConnection_Errors(t *testing.T) {
	noRefresh := &connection.BankConnection{ID: "conn-2", KidID: "kid-1", AccessToken: "a", Status: connection.StatusActive}
	svc := newTestAuthService(&mockClient{}, newMemConnections(noRefresh), newMemKids())

	assert.ErrorIs(t, svc.RefreshConnection(context.Background(), ""), ErrMissingParameters)
	assert.ErrorIs(t, svc.RefreshConnection(context.Background(), "missing"), connection.ErrConnectionNotFound)
	assert.ErrorIs(t, svc.RefreshConnection(context.Background(), "conn-2"), ErrNoRefreshToken)
}

func TestAuthService_ListConnections(t *testing.T) {
	conns := newMemConnections(
		&connection.BankConnection{ID: "c1", KidID: "kid-1", Status: connection.StatusActive},
		&connection.BankConnection{ID: "c2", KidID: "kid-1", Status: connection.StatusExpired},
		&connection.BankConnection{ID: "c3", KidID: "kid-2", Status: connection.StatusActive},
	)
	svc := newTestAuthService(&mockClient{}, conns, newMemKids())

	got, err := svc.ListConnections(context.Background(), "kid-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)

	_, err = svc.ListConnections(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingParameters)
}
