package transaction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TypeCredit is the aggregator's transaction_type for money coming in.
const TypeCredit = "CREDIT"

// NormalizeAmount splits a signed aggregator amount into a magnitude and a direction.
// Positive amounts are income, and so is anything typed CREDIT regardless of sign.
func NormalizeAmount(raw decimal.Decimal, transactionType string) (decimal.Decimal, bool) {
	isIncome := raw.IsPositive() || strings.EqualFold(transactionType, TypeCredit)
	return raw.Abs(), isIncome
}

// MerchantLabel picks the display text for a row.
func MerchantLabel(merchantName, description string) string {
	if m := strings.TrimSpace(merchantName); m != "" {
		return m
	}
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return UnknownMerchant
}
