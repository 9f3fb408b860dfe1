package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMerchant is stored when the aggregator sends neither merchant nor description.
const UnknownMerchant = "Unknown"

var ErrInvalidInput = errors.New("invalid input")

// Transaction is a child's ledger row. Amount is never negative; direction
// lives in IsIncome only.
type Transaction struct {
	ID               string          `json:"id"`
	KidID            string          `json:"kid_id"`
	BankConnectionID *string         `json:"bank_connection_id,omitempty"`
	ExternalID       *string         `json:"external_id,omitempty"`
	Merchant         string          `json:"merchant"`
	Description      *string         `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	IsIncome         bool            `json:"is_income"`
	Category         string          `json:"category"`
	TransactionDate  time.Time       `json:"transaction_date"`
	CreatedAt        time.Time       `json:"created_at"`
}

// UpsertTransactionParams is keyed by (ExternalID, KidID).
type UpsertTransactionParams struct {
	KidID            string
	BankConnectionID string
	ExternalID       string
	Merchant         string
	Description      *string
	Amount           decimal.Decimal
	IsIncome         bool
	Category         string
	TransactionDate  time.Time
}

func (p UpsertTransactionParams) Validate() error {
	if p.KidID == "" || p.ExternalID == "" {
		return ErrInvalidInput
	}
	if p.Amount.IsNegative() {
		return ErrInvalidInput
	}
	return nil
}
