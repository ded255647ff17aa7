// Package categorizer assigns category labels to parsed transactions.
// Matching is a pure function of the transaction set and an explicit
// taxonomy value, so runs are idempotent and safe to repeat or parallelize.
package categorizer

import (
	"strings"

	"github.com/clarofin/statements/internal/statement"
)

// Rule maps a keyword or merchant pattern to a category label. Earlier
// rules win only after the longest-keyword tie-break.
type Rule struct {
	Keyword  string // matched case-insensitively as a substring
	Category string
}

// CategoryInfo carries presentation data for a category.
type CategoryInfo struct {
	DisplayName string
	Color       string
}

// Taxonomy is the ordered rule set evaluated against each transaction,
// plus presentation metadata per category. It is a plain value: callers
// pass it into every categorization call, nothing is registered globally.
type Taxonomy struct {
	Rules      []Rule
	Default    string
	Categories map[string]CategoryInfo
}

// Info resolves presentation data for a category, falling back to a
// title-cased label and a neutral color.
func (t Taxonomy) Info(category string) CategoryInfo {
	if info, ok := t.Categories[category]; ok {
		return info
	}
	return CategoryInfo{DisplayName: titleCase(category), Color: "#9e9e9e"}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

// Default returns the built-in taxonomy: common merchant keywords mapped to
// a compact category set. Callers with their own rules pass their own value.
func Default() Taxonomy {
	return Taxonomy{
		Default: statement.Uncategorized,
		Categories: map[string]CategoryInfo{
			"groceries":     {DisplayName: "Groceries", Color: "#4caf50"},
			"food_drink":    {DisplayName: "Food & Drink", Color: "#ff9800"},
			"transport":     {DisplayName: "Transport", Color: "#2196f3"},
			"utilities":     {DisplayName: "Utilities", Color: "#607d8b"},
			"shopping":      {DisplayName: "Shopping", Color: "#e91e63"},
			"entertainment": {DisplayName: "Entertainment", Color: "#9c27b0"},
			"health":        {DisplayName: "Health", Color: "#00bcd4"},
			"housing":       {DisplayName: "Housing", Color: "#795548"},
			"income":        {DisplayName: "Income", Color: "#8bc34a"},
			"finance":       {DisplayName: "Finance", Color: "#3f51b5"},
			statement.Uncategorized: {DisplayName: "Uncategorized", Color: "#9e9e9e"},
		},
		Rules: []Rule{
			// Groceries
			{"PINGO DOCE", "groceries"},
			{"CONTINENTE", "groceries"},
			{"LIDL", "groceries"},
			{"ALDI", "groceries"},
			{"MERCADONA", "groceries"},
			{"TESCO", "groceries"},
			{"SAINSBURY", "groceries"},
			{"WHOLE FOODS", "groceries"},
			{"TRADER JOE", "groceries"},

			// Food & drink
			{"STARBUCKS", "food_drink"},
			{"MCDONALD", "food_drink"},
			{"BURGER KING", "food_drink"},
			{"KFC", "food_drink"},
			{"PIZZA", "food_drink"},
			{"UBER EATS", "food_drink"},
			{"DELIVEROO", "food_drink"},
			{"GLOVO", "food_drink"},
			{"BOLT FOOD", "food_drink"},
			{"RESTAURANT", "food_drink"},
			{"CAFE", "food_drink"},

			// Transport (UBER EATS / BOLT FOOD are declared above and win
			// on keyword length)
			{"UBER", "transport"},
			{"BOLT", "transport"},
			{"LYFT", "transport"},
			{"SHELL", "transport"},
			{"BP ", "transport"},
			{"RYANAIR", "transport"},
			{"EASYJET", "transport"},
			{"TRANSIT", "transport"},
			{"PARKING", "transport"},
			{"FUEL", "transport"},

			// Utilities
			{"ELECTRIC", "utilities"},
			{"VODAFONE", "utilities"},
			{"VERIZON", "utilities"},
			{"T-MOBILE", "utilities"},
			{"COMCAST", "utilities"},
			{"WATER BILL", "utilities"},
			{"INTERNET", "utilities"},
			{"EDP", "utilities"},
			{"MEO", "utilities"},

			// Shopping
			{"AMAZON", "shopping"},
			{"ZARA", "shopping"},
			{"H&M", "shopping"},
			{"IKEA", "shopping"},
			{"PRIMARK", "shopping"},
			{"EBAY", "shopping"},
			{"TARGET", "shopping"},
			{"WALMART", "shopping"},

			// Entertainment
			{"NETFLIX", "entertainment"},
			{"SPOTIFY", "entertainment"},
			{"DISNEY", "entertainment"},
			{"CINEMA", "entertainment"},
			{"STEAM", "entertainment"},
			{"PLAYSTATION", "entertainment"},
			{"XBOX", "entertainment"},

			// Health
			{"PHARMACY", "health"},
			{"FARMACIA", "health"},
			{"HOSPITAL", "health"},
			{"CLINIC", "health"},
			{"DENTAL", "health"},
			{"GYM", "health"},

			// Housing
			{"RENT", "housing"},
			{"MORTGAGE", "housing"},
			{"LANDLORD", "housing"},

			// Income
			{"SALARY", "income"},
			{"PAYROLL", "income"},
			{"WAGES", "income"},
			{"DIVIDEND", "income"},
			{"INTEREST PAID", "income"},
			{"REFUND", "income"},

			// Finance
			{"PAYPAL", "finance"},
			{"REVOLUT", "finance"},
			{"TRANSFER", "finance"},
			{"ATM", "finance"},
			{"BANK FEE", "finance"},
			{"INSURANCE", "finance"},
		},
	}
}
