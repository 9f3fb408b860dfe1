package truelayer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TokenResponse is returned by /connect/token for both grant types.
// RefreshToken may be empty on refresh; callers keep the previous one then.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts the relative lifetime into an absolute instant.
func (t *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type AccountNumber struct {
	IBAN     string `json:"iban"`
	Number   string `json:"number"`
	SortCode string `json:"sort_code"`
	SwiftBIC string `json:"swift_bic"`
}

type Provider struct {
	ProviderID  string `json:"provider_id"`
	DisplayName string `json:"display_name"`
	LogoURI     string `json:"logo_uri"`
}

// Account represents an account from the Data API
type Account struct {
	AccountID     string        `json:"account_id"`
	AccountType   string        `json:"account_type"`
	DisplayName   string        `json:"display_name"`
	Currency      string        `json:"currency"`
	AccountNumber AccountNumber `json:"account_number"`
	Provider      Provider      `json:"provider"`
	UpdateTime    string        `json:"update_timestamp"`
}

// Transaction represents a transaction from the Data API.
// Amount is signed: negative for money out.
type Transaction struct {
	TransactionID       string          `json:"transaction_id"`
	Timestamp           string          `json:"timestamp"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	TransactionType     string          `json:"transaction_type"`     // "DEBIT" or "CREDIT"
	TransactionCategory string          `json:"transaction_category"` // "PURCHASE", "DIRECT_DEBIT", ...
	MerchantName        string          `json:"merchant_name"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// GetTimestamp parses the booking timestamp. The sandbox omits the offset on some providers.
func (t *Transaction) GetTimestamp() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, t.Timestamp); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s'", t.Timestamp)
}

// AccountsResponse wraps GET /data/v1/accounts
type AccountsResponse struct {
	Results []Account `json:"results"`
	Status  string    `json:"status"`
}

// TransactionsResponse wraps GET /data/v1/accounts/{id}/transactions
type TransactionsResponse struct {
	Results []Transaction `json:"results"`
	Status  string        `json:"status"`
}

// ErrorResponse is the body TrueLayer sends on 4xx from both the auth and data APIs.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// APIError is returned for any non-2xx response. Body is kept verbatim so
// callers can surface the upstream detail.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	var errResp ErrorResponse
	if err := json.Unmarshal([]byte(e.Body), &errResp); err == nil && errResp.Error != "" {
		return fmt.Sprintf("truelayer error (status %d): %s - %s", e.StatusCode, errResp.Error, errResp.ErrorDescription)
	}
	return fmt.Sprintf("truelayer request failed with status %d: %s", e.StatusCode, e.Body)
}
