package categorizer

import (
	"context"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/clarofin/statements/internal/statement"
)

// Confidence levels per match tier. Exact keyword hits rank well above the
// fuzzy fallback; unmatched transactions get zero.
const (
	exactConfidence = 0.9
	fuzzyConfidence = 0.6
)

// Assigner categorizes a transaction batch against a taxonomy. The rule
// engine is the in-repo implementation; an external (e.g. AI-backed)
// collaborator can satisfy the same interface, with the pipeline degrading
// to rules when it fails.
type Assigner interface {
	Assign(ctx context.Context, txs []statement.Transaction, tax Taxonomy) ([]statement.CategoryAssignment, error)
}

// Engine matches taxonomy keywords with the Aho-Corasick algorithm: all
// patterns are found in a single pass over each description, independent of
// rule count.
type Engine struct {
	fuzzy bool
}

// NewEngine creates a rule engine. Fuzzy fallback matching is enabled by
// default.
func NewEngine() *Engine {
	return &Engine{fuzzy: true}
}

// WithoutFuzzy disables the fuzzy fallback tier.
func (e *Engine) WithoutFuzzy() *Engine {
	e.fuzzy = false
	return e
}

// compiled is a matcher built from one taxonomy value. The engine keeps no
// state between calls; every Assign compiles the taxonomy it was handed.
type compiled struct {
	matcher  *ahocorasick.Matcher
	keywords []string // uppercased, same order as matcher patterns
	rules    [][]int  // rule indexes per keyword (duplicates grouped)
	tax      Taxonomy
}

func compile(tax Taxonomy) *compiled {
	c := &compiled{tax: tax}
	index := make(map[string]int, len(tax.Rules))
	for i, rule := range tax.Rules {
		kw := strings.ToUpper(strings.TrimSpace(rule.Keyword))
		if kw == "" {
			continue
		}
		if at, ok := index[kw]; ok {
			c.rules[at] = append(c.rules[at], i)
			continue
		}
		index[kw] = len(c.keywords)
		c.keywords = append(c.keywords, kw)
		c.rules = append(c.rules, []int{i})
	}

	if len(c.keywords) > 0 {
		patterns := make([][]byte, len(c.keywords))
		for i, kw := range c.keywords {
			patterns[i] = []byte(kw)
		}
		c.matcher = ahocorasick.NewMatcher(patterns)
	}
	return c
}

// match returns the winning rule index for a description, or -1. Longest
// matched keyword wins; equal lengths fall back to taxonomy declaration
// order.
func (c *compiled) match(description string) int {
	if c.matcher == nil {
		return -1
	}
	hits := c.matcher.Match([]byte(strings.ToUpper(description)))
	best := -1
	bestLen := 0
	for _, idx := range hits {
		if idx < 0 || idx >= len(c.keywords) {
			continue
		}
		kwLen := len(c.keywords[idx])
		ruleIdx := c.rules[idx][0] // first declaration for this keyword
		if kwLen > bestLen || (kwLen == bestLen && (best == -1 || ruleIdx < best)) {
			best = ruleIdx
			bestLen = kwLen
		}
	}
	return best
}

// Assign categorizes every transaction. The result always contains exactly
// one assignment per input transaction; unmatched ones carry the taxonomy
// default with confidence zero.
func (e *Engine) Assign(_ context.Context, txs []statement.Transaction, tax Taxonomy) ([]statement.CategoryAssignment, error) {
	c := compile(tax)
	fallback := tax.Default
	if fallback == "" {
		fallback = statement.Uncategorized
	}

	assignments := make([]statement.CategoryAssignment, len(txs))
	for i, tx := range txs {
		assignments[i] = statement.CategoryAssignment{
			TransactionID: tx.ID,
			Category:      fallback,
			Confidence:    0,
			Source:        statement.SourceUncategorized,
		}

		if idx := c.match(tx.Description); idx >= 0 {
			assignments[i].Category = tax.Rules[idx].Category
			assignments[i].Confidence = exactConfidence
			assignments[i].Source = statement.SourceRule
			continue
		}

		if e.fuzzy {
			if idx, ok := fuzzyMatch(tx.Description, tax.Rules); ok {
				assignments[i].Category = tax.Rules[idx].Category
				assignments[i].Confidence = fuzzyConfidence
				assignments[i].Source = statement.SourceRule
			}
		}
	}
	return assignments, nil
}

// Apply copies the transactions with categories attached from their
// assignments. Inputs are never mutated.
func Apply(txs []statement.Transaction, assignments []statement.CategoryAssignment) []statement.Transaction {
	byID := make(map[string]string, len(assignments))
	for _, a := range assignments {
		byID[a.TransactionID.String()] = a.Category
	}

	out := make([]statement.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		if cat, ok := byID[out[i].ID.String()]; ok {
			out[i].Category = cat
		} else {
			out[i].Category = statement.Uncategorized
		}
	}
	return out
}
