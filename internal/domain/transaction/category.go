package transaction

import "strings"

// Category labels shown to parents and kids.
const (
	CategoryCash          = "Cash"
	CategoryBills         = "Bills"
	CategoryRewards       = "Rewards"
	CategoryOther         = "Other"
	CategoryIncome        = "Income"
	CategorySubscriptions = "Subscriptions"
	CategoryFees          = "Fees"
	CategoryShopping      = "Shopping"
	CategoryRegular       = "Regular"
	CategoryTransfer      = "Transfer"
	CategorySpending      = "Spending"
	CategoryGroceries     = "Groceries"
	CategoryFood          = "Food & Snacks"
	CategoryGaming        = "Gaming"
	CategoryEntertainment = "Entertainment"
	CategoryTransport     = "Transport"
)

// TypeMapping maps the aggregator's transaction_category code to a baseline label.
var TypeMapping = map[string]string{
	"ATM":            CategoryCash,
	"BILL_PAYMENT":   CategoryBills,
	"CASH":           CategoryCash,
	"CASHBACK":       CategoryRewards,
	"CHEQUE":         CategoryCash,
	"CORRECTION":     CategoryOther,
	"CREDIT":         CategoryIncome,
	"DIRECT_DEBIT":   CategorySubscriptions,
	"DIVIDEND":       CategoryIncome,
	"FEE_CHARGE":     CategoryFees,
	"INTEREST":       CategoryIncome,
	"OTHER":          CategoryOther,
	"PURCHASE":       CategoryShopping,
	"STANDING_ORDER": CategoryRegular,
	"TRANSFER":       CategoryTransfer,
	"DEBIT":          CategorySpending,
}

type keywordGroup struct {
	label    string
	keywords []string
}

// Order matters: the first group with a hit wins.
var merchantGroups = []keywordGroup{
	{CategoryGroceries, []string{"tesco", "asda", "sainsbury", "lidl", "aldi"}},
	{CategoryFood, []string{"mcdonald", "kfc", "burger", "pizza", "nando"}},
	{CategoryGaming, []string{"game", "playstation", "xbox", "steam", "nintendo"}},
	{CategoryEntertainment, []string{"spotify", "netflix", "disney", "youtube"}},
	{CategoryShopping, []string{"amazon", "ebay", "asos", "shein"}},
	{CategoryTransport, []string{"tfl", "uber", "bus", "train", "rail"}},
}

// Categorize maps one aggregator transaction to exactly one label.
// Merchant keywords override the coarse type mapping; the merchant name is
// used when present, otherwise the description.
func Categorize(typeCode, merchantName, description string) string {
	label, ok := TypeMapping[strings.ToUpper(strings.TrimSpace(typeCode))]
	if !ok {
		label = CategoryOther
	}

	text := merchantName
	if text == "" {
		text = description
	}
	text = strings.ToLower(text)
	if text == "" {
		return label
	}

	for _, group := range merchantGroups {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.label
			}
		}
	}

	return label
}

// Labels returns every label Categorize can produce.
func Labels() []string {
	seen := make(map[string]struct{})
	var labels []string
	add := func(l string) {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			labels = append(labels, l)
		}
	}
	for _, code := range []string{"ATM", "BILL_PAYMENT", "CASH", "CASHBACK", "CHEQUE", "CORRECTION", "CREDIT",
		"DIRECT_DEBIT", "DIVIDEND", "FEE_CHARGE", "INTEREST", "OTHER", "PURCHASE", "STANDING_ORDER", "TRANSFER", "DEBIT"} {
		add(TypeMapping[code])
	}
	for _, g := range merchantGroups {
		add(g.label)
	}
	return labels
}
