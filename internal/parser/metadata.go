package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/clarofin/statements/internal/statement"
)

var (
	accountNumberPattern = regexp.MustCompile(`(?i)account\s*(?:no\.?|number|#)?\s*[:.]?\s*([0-9][0-9Xx*\- ]{4,}[0-9Xx*])`)
	periodPattern        = regexp.MustCompile(`(?i)(?:statement\s+period|period)\s*[:.]?\s*(\S+)\s*(?:to|-|–)\s*(\S+)`)
	bankKeywords         = []string{"bank", "banco", "banque", "credit union", "building society"}
)

// scanMetadata inspects a non-transaction line for account details. Each
// field is captured once; later matches never overwrite an earlier one.
func scanMetadata(text string, meta *statement.AccountMeta) {
	if meta.AccountNumber == "" {
		if m := accountNumberPattern.FindStringSubmatch(text); m != nil {
			meta.AccountNumber = strings.TrimSpace(m[1])
		}
	}

	if meta.BankName == "" {
		lower := strings.ToLower(text)
		for _, kw := range bankKeywords {
			if strings.Contains(lower, kw) && !strings.Contains(lower, "account") {
				meta.BankName = cleanDescription(text)
				break
			}
		}
	}

	if meta.PeriodStart == nil || meta.PeriodEnd == nil {
		if m := periodPattern.FindStringSubmatch(text); m != nil {
			start, okStart := parseMetaDate(m[1])
			end, okEnd := parseMetaDate(m[2])
			if okStart && okEnd && !end.Before(start) {
				meta.PeriodStart = &start
				meta.PeriodEnd = &end
			}
		}
	}
}

func parseMetaDate(token string) (time.Time, bool) {
	t, consumed, ok := parseLeadingDate([]string{token}, "")
	if !ok || consumed != 1 {
		return time.Time{}, false
	}
	return t, true
}
