package truelayer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout   = 30 * time.Second
	tokenPath        = "/connect/token"
	accountsPath     = "/data/v1/accounts"
	transactionsPath = "/data/v1/accounts/%s/transactions"

	// Scopes and provider filter requested on every consent.
	authScopes    = "info accounts balance transactions offline_access"
	authProviders = "uk-ob-all uk-oauth-all"
)

var tracer = otel.Tracer("pocketmoney/truelayer")

// Config holds the credentials and endpoints for one TrueLayer environment.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthBaseURL  string
	APIBaseURL   string
	Timeout      time.Duration
}

// Client handles communication with the TrueLayer auth and data APIs
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a TrueLayer client. Every request is bounded by cfg.Timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.AuthBaseURL = strings.TrimRight(cfg.AuthBaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg: cfg,
	}
}

// AuthURL builds the consent URL the parent is redirected to.
func (c *Client) AuthURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("scope", authScopes)
	params.Set("redirect_uri", redirectURI)
	params.Set("providers", authProviders)
	params.Set("state", state)

	return c.cfg.AuthBaseURL + "/?" + params.Encode()
}

// ExchangeCode trades a single-use authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)

	return c.postToken(ctx, "authorization_code", form)
}

// RefreshToken obtains a new access token using a refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)

	return c.postToken(ctx, "refresh_token", form)
}

func (c *Client) postToken(ctx context.Context, grantType string, form url.Values) (*TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "truelayer.token",
		trace.WithAttributes(attribute.String("oauth.grant_type", grantType)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthBaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tokenResp, nil
}

// GetAccounts lists the accounts the access token was granted for.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	ctx, span := tracer.Start(ctx, "truelayer.accounts")
	defer span.End()

	body, err := c.get(ctx, c.cfg.APIBaseURL+accountsPath, accessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var accountsResp AccountsResponse
	if err := json.Unmarshal(body, &accountsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts response: %w", err)
	}

	span.SetAttributes(attribute.Int("truelayer.accounts.count", len(accountsResp.Results)))
	return accountsResp.Results, nil
}

// GetTransactions fetches one account's transactions between from and to.
func (c *Client) GetTransactions(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]Transaction, error) {
	ctx, span := tracer.Start(ctx, "truelayer.transactions",
		trace.WithAttributes(attribute.String("truelayer.account_id", accountID)),
	)
	defer span.End()

	params := url.Values{}
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	endpoint := c.cfg.APIBaseURL + fmt.Sprintf(transactionsPath, url.PathEscape(accountID)) + "?" + params.Encode()

	body, err := c.get(ctx, endpoint, accessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var txResp TransactionsResponse
	if err := json.Unmarshal(body, &txResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transactions response: %w", err)
	}

	span.SetAttributes(attribute.Int("truelayer.transactions.count", len(txResp.Results)))
	return txResp.Results, nil
}

func (c *Client) get(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// do executes the request and returns the body of a 2xx response.
// Non-2xx responses come back as *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
