package anomaly

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/statement"
)

// BuildBaseline aggregates historical transactions into the merchant and
// per-category distributions the detector consumes. History usually spans
// several prior statements for the same account.
func BuildBaseline(history []statement.Transaction) *Baseline {
	b := &Baseline{
		MerchantSeen:  make(map[string]int),
		CategoryStats: make(map[string]AmountStats),
	}

	byCategory := make(map[string][]decimal.Decimal)
	for _, tx := range history {
		if key := MerchantKey(tx.Description); key != "" {
			b.MerchantSeen[key]++
		}
		if tx.Direction == statement.Debit {
			byCategory[tx.Category] = append(byCategory[tx.Category], tx.Magnitude())
		}
	}

	for category, amounts := range byCategory {
		count := decimal.NewFromInt(int64(len(amounts)))
		sum := decimal.Zero
		for _, a := range amounts {
			sum = sum.Add(a)
		}
		mean := sum.Div(count)

		variance := decimal.Zero
		for _, a := range amounts {
			diff := a.Sub(mean)
			variance = variance.Add(diff.Mul(diff))
		}
		variance = variance.Div(count)
		v, _ := variance.Float64()

		b.CategoryStats[category] = AmountStats{
			Mean:   mean,
			StdDev: decimal.NewFromFloat(math.Sqrt(v)),
			Count:  len(amounts),
		}
	}
	return b
}
