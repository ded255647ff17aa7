package parser

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/statement"
)

var currencySymbols = []string{"R$", "$", "€", "£", "¥", "₹"}

// parseAmountToken reads a single monetary token like "1,234.56", "-45,00",
// "(12.50)" or "99.00CR". Returns the positive magnitude, whether the token
// carried an explicit negative indicator, and any inline DR/CR marker.
func parseAmountToken(token string, european bool) (decimal.Decimal, bool, string, bool) {
	s := strings.TrimSpace(token)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}

	marker := ""
	upper := strings.ToUpper(s)
	for _, m := range []string{"DR", "DB", "CR"} {
		if strings.HasSuffix(upper, m) && len(s) > len(m) {
			marker = m
			if marker == "DB" {
				marker = "DR"
			}
			s = s[:len(s)-len(m)]
			break
		}
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	if strings.HasSuffix(s, "-") { // trailing minus, some ledger exports
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "+")
	}

	if s == "" || !isMonetary(s) {
		return decimal.Zero, false, "", false
	}

	if european {
		// European: 1.234,56 -> 1234.56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		// American: 1,234.56 -> 1234.56
		s = strings.ReplaceAll(s, ",", "")
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, "", false
	}
	return value.Abs(), negative, marker, true
}

// isMonetary reports whether a cleaned token is digits with at most
// grouping/decimal separators, and contains a decimal part or grouping.
// Bare integers are rejected so reference numbers don't read as amounts.
func isMonetary(s string) bool {
	digits := 0
	seps := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',':
			seps++
		default:
			return false
		}
	}
	if digits == 0 || seps == 0 {
		return false
	}
	// A separator can't lead or trail.
	if s[0] == '.' || s[0] == ',' || s[len(s)-1] == '.' || s[len(s)-1] == ',' {
		return false
	}
	return true
}

// probeEuropeanFormat infers the amount dialect from the document's
// monetary-looking tokens: with both separators present the last one is the
// decimal separator; with only one, a one-or-two digit suffix marks it as
// decimal. Majority wins, US format on a tie.
func probeEuropeanFormat(lines []statement.RawLine) bool {
	europeanHints := 0
	usHints := 0

	for _, line := range lines {
		for _, token := range strings.Fields(line.Text) {
			cleaned := cleanAmountSample(token)
			cleaned = strings.TrimPrefix(cleaned, "-")
			if cleaned == "" || !isMonetary(cleaned) {
				continue
			}

			hasComma := strings.Contains(cleaned, ",")
			hasDot := strings.Contains(cleaned, ".")

			switch {
			case hasComma && hasDot:
				if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
					europeanHints++
				} else {
					usHints++
				}
			case hasComma:
				if hasDecimalSuffix(cleaned, ',') {
					europeanHints++
				}
			case hasDot:
				if hasDecimalSuffix(cleaned, '.') {
					usHints++
				}
			}
		}
	}

	return europeanHints > usHints
}

func cleanAmountSample(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
}

func hasDecimalSuffix(value string, sep rune) bool {
	idx := strings.LastIndex(value, string(sep))
	if idx == -1 || idx == len(value)-1 {
		return false
	}
	digits := 0
	for _, r := range value[idx+1:] {
		if !unicode.IsDigit(r) {
			return false
		}
		digits++
		if digits > 2 {
			return false
		}
	}
	return digits > 0
}
