// Package anomaly flags transactions that deviate from the user's typical
// pattern. Detection is a set of reproducible heuristics - amount outliers
// within a category, duplicate charges, first-seen merchants - never an
// opaque model. Candidates from different heuristics are merged per
// transaction keeping the highest severity, then ordered deterministically.
package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/statement"
)

var anomalyNamespace = uuid.MustParse("5b7e9a02-3d41-4f68-9c7a-1e8f2d60b4c5")

// AmountStats holds historical debit magnitude statistics for a category.
type AmountStats struct {
	Mean   decimal.Decimal
	StdDev decimal.Decimal
	Count  int
}

// Baseline is aggregate history from prior statements: which merchants have
// been seen before, and per-category amount distributions.
type Baseline struct {
	MerchantSeen  map[string]int
	CategoryStats map[string]AmountStats
}

// Minimum samples before a distribution is trusted for z-scoring.
const minStatSamples = 4

// Detector runs the anomaly heuristics.
type Detector struct {
	// DuplicateWindow is the maximum gap between two identical charges for
	// them to count as duplicates.
	DuplicateWindow time.Duration
	// NewMerchantMin is the smallest debit that makes a first-seen merchant
	// worth flagging.
	NewMerchantMin decimal.Decimal
	// ZThreshold is the z-score above which an amount is an outlier.
	ZThreshold float64

	now func() time.Time
}

// NewDetector creates a detector with the default thresholds: 3-day
// duplicate window, 100.00 new-merchant floor, z-score cutoff of 2.
func NewDetector() *Detector {
	return &Detector{
		DuplicateWindow: 72 * time.Hour,
		NewMerchantMin:  decimal.NewFromInt(100),
		ZThreshold:      2.0,
		now:             time.Now,
	}
}

// Detect evaluates all heuristics over a categorized transaction sequence.
// The baseline is optional; without it the new-merchant heuristic is
// skipped (every merchant would be "new") and z-scores fall back to the
// statement's own per-category distribution.
func (d *Detector) Detect(txs []statement.Transaction, baseline *Baseline) []statement.Anomaly {
	detectedAt := d.now().UTC()

	candidates := d.detectOutliers(txs, baseline, detectedAt)
	candidates = append(candidates, d.detectDuplicates(txs, detectedAt)...)
	candidates = append(candidates, d.detectNewMerchants(txs, baseline, detectedAt)...)

	merged := mergeByTransaction(candidates)
	sortAnomalies(merged, txs)
	return merged
}

// detectOutliers flags debits whose magnitude z-scores beyond the threshold
// within their category. Historical stats win over in-statement stats when
// the baseline has enough samples.
func (d *Detector) detectOutliers(txs []statement.Transaction, baseline *Baseline, detectedAt time.Time) []statement.Anomaly {
	local := localCategoryStats(txs)

	var out []statement.Anomaly
	for _, tx := range txs {
		if tx.Direction != statement.Debit {
			continue
		}

		stats, ok := resolveStats(tx.Category, baseline, local)
		if !ok || stats.StdDev.IsZero() {
			continue
		}

		deviation := tx.Magnitude().Sub(stats.Mean)
		z, _ := deviation.Div(stats.StdDev).Float64()
		if z < d.ZThreshold {
			continue
		}

		out = append(out, statement.Anomaly{
			ID:            anomalyID(tx.ID, statement.AnomalyUnusualAmount),
			Type:          statement.AnomalyUnusualAmount,
			Severity:      outlierSeverity(z),
			Confidence:    outlierConfidence(z, d.ZThreshold),
			TransactionID: tx.ID,
			DetectedAt:    detectedAt,
		})
	}
	return out
}

// detectDuplicates flags repeated (merchant, amount) pairs whose dates fall
// within the window. Only occurrences after the first are flagged, so a
// charge appearing twice produces exactly one anomaly.
func (d *Detector) detectDuplicates(txs []statement.Transaction, detectedAt time.Time) []statement.Anomaly {
	type dupKey struct {
		merchant string
		amount   string
	}

	groups := make(map[dupKey][]statement.Transaction)
	for _, tx := range txs {
		key := dupKey{merchant: MerchantKey(tx.Description), amount: tx.Amount.String()}
		groups[key] = append(groups[key], tx)
	}

	var out []statement.Anomaly
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })
		for i := 1; i < len(group); i++ {
			if group[i].Date.Sub(group[i-1].Date) > d.DuplicateWindow {
				continue
			}
			out = append(out, statement.Anomaly{
				ID:            anomalyID(group[i].ID, statement.AnomalyDuplicate),
				Type:          statement.AnomalyDuplicate,
				Severity:      statement.SeverityMedium,
				Confidence:    0.85,
				TransactionID: group[i].ID,
				DetectedAt:    detectedAt,
			})
		}
	}
	return out
}

// detectNewMerchants flags sizable debits to merchants absent from the
// historical baseline.
func (d *Detector) detectNewMerchants(txs []statement.Transaction, baseline *Baseline, detectedAt time.Time) []statement.Anomaly {
	if baseline == nil || len(baseline.MerchantSeen) == 0 {
		return nil
	}

	var out []statement.Anomaly
	flagged := make(map[string]bool)
	for _, tx := range txs {
		if tx.Direction != statement.Debit || tx.Magnitude().LessThan(d.NewMerchantMin) {
			continue
		}
		key := MerchantKey(tx.Description)
		if key == "" || baseline.MerchantSeen[key] > 0 || flagged[key] {
			continue
		}
		flagged[key] = true

		severity := statement.SeverityLow
		if tx.Magnitude().GreaterThanOrEqual(d.NewMerchantMin.Mul(decimal.NewFromInt(5))) {
			severity = statement.SeverityMedium
		}
		out = append(out, statement.Anomaly{
			ID:            anomalyID(tx.ID, statement.AnomalyNewMerchant),
			Type:          statement.AnomalyNewMerchant,
			Severity:      severity,
			Confidence:    0.6,
			TransactionID: tx.ID,
			DetectedAt:    detectedAt,
		})
	}
	return out
}

// localCategoryStats computes per-category debit magnitude distributions
// from the statement itself. Sums stay in decimal; only the final square
// root leaves exact arithmetic.
func localCategoryStats(txs []statement.Transaction) map[string]AmountStats {
	byCategory := make(map[string][]decimal.Decimal)
	for _, tx := range txs {
		if tx.Direction == statement.Debit {
			byCategory[tx.Category] = append(byCategory[tx.Category], tx.Magnitude())
		}
	}

	stats := make(map[string]AmountStats, len(byCategory))
	for category, amounts := range byCategory {
		if len(amounts) < minStatSamples {
			continue
		}
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

		stats[category] = AmountStats{
			Mean:   mean,
			StdDev: decimal.NewFromFloat(math.Sqrt(v)),
			Count:  len(amounts),
		}
	}
	return stats
}

func resolveStats(category string, baseline *Baseline, local map[string]AmountStats) (AmountStats, bool) {
	if baseline != nil {
		if stats, ok := baseline.CategoryStats[category]; ok && stats.Count >= minStatSamples {
			return stats, true
		}
	}
	stats, ok := local[category]
	return stats, ok
}

func outlierSeverity(z float64) statement.Severity {
	switch {
	case z >= 4:
		return statement.SeverityHigh
	case z >= 3:
		return statement.SeverityMedium
	}
	return statement.SeverityLow
}

func outlierConfidence(z, threshold float64) float64 {
	confidence := 0.5 + (z-threshold)*0.15
	return math.Min(confidence, 0.95)
}

// mergeByTransaction collapses overlapping candidates for one transaction,
// keeping the highest severity and breaking ties on confidence.
func mergeByTransaction(candidates []statement.Anomaly) []statement.Anomaly {
	best := make(map[uuid.UUID]statement.Anomaly)
	order := make([]uuid.UUID, 0, len(candidates))
	for _, candidate := range candidates {
		current, exists := best[candidate.TransactionID]
		if !exists {
			best[candidate.TransactionID] = candidate
			order = append(order, candidate.TransactionID)
			continue
		}
		if candidate.Severity.Rank() > current.Severity.Rank() ||
			(candidate.Severity.Rank() == current.Severity.Rank() && candidate.Confidence > current.Confidence) {
			best[candidate.TransactionID] = candidate
		}
	}

	merged := make([]statement.Anomaly, 0, len(best))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	return merged
}

// sortAnomalies orders by severity descending, confidence descending, then
// flagged transaction date ascending.
func sortAnomalies(anomalies []statement.Anomaly, txs []statement.Transaction) {
	dates := make(map[uuid.UUID]time.Time, len(txs))
	for _, tx := range txs {
		dates[tx.ID] = tx.Date
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Severity.Rank() != anomalies[j].Severity.Rank() {
			return anomalies[i].Severity.Rank() > anomalies[j].Severity.Rank()
		}
		if anomalies[i].Confidence != anomalies[j].Confidence {
			return anomalies[i].Confidence > anomalies[j].Confidence
		}
		di, dj := dates[anomalies[i].TransactionID], dates[anomalies[j].TransactionID]
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		// Total order so repeated runs emit identical sequences.
		return anomalies[i].TransactionID.String() < anomalies[j].TransactionID.String()
	})
}

func anomalyID(txID uuid.UUID, kind statement.AnomalyType) uuid.UUID {
	return uuid.NewSHA1(anomalyNamespace, []byte(txID.String()+"|"+string(kind)))
}
