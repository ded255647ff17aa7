package parser

import (
	"strings"
	"time"
)

// Single-token date layouts tried in order.
var dateLayouts = []string{
	"2006-01-02", // ISO 8601
	"02/01/2006", // DD/MM/YYYY (European)
	"01/02/2006", // MM/DD/YYYY (American)
	"02-01-2006", // DD-MM-YYYY
	"2006/01/02", // YYYY/MM/DD
	"02.01.2006", // DD.MM.YYYY (German)
	"02/01/06",
	"02/01", // day/month, year taken from context
	"02Jan2006",
	"02Jan06",
}

// Multi-token layouts, matched against two or three joined tokens.
var multiTokenLayouts = []struct {
	layout string
	tokens int
}{
	{"02 Jan 2006", 3},
	{"2 Jan 2006", 3},
	{"Jan 02 2006", 3},
	{"02 January 2006", 3},
	{"02 Jan", 2},
	{"2 Jan", 2},
	{"Jan 02", 2},
	{"Jan 2", 2},
}

// parseLeadingDate tries to read a calendar date from the first tokens of a
// row. It returns the date, the number of tokens consumed, and whether a
// date was found. Dates are normalized to midnight UTC.
func parseLeadingDate(tokens []string, explicit string) (time.Time, int, bool) {
	if len(tokens) == 0 {
		return time.Time{}, 0, false
	}

	first := strings.TrimSuffix(tokens[0], ",")
	if explicit != "" {
		want := strings.Count(explicit, " ") + 1
		if len(tokens) >= want {
			joined := strings.Join(tokens[:want], " ")
			if t, err := time.Parse(explicit, joined); err == nil {
				return normalizeDate(t), want, true
			}
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, first); err == nil {
			return normalizeDate(t), 1, true
		}
	}

	for _, ml := range multiTokenLayouts {
		if len(tokens) < ml.tokens {
			continue
		}
		joined := strings.Join(tokens[:ml.tokens], " ")
		if t, err := time.Parse(ml.layout, joined); err == nil {
			return normalizeDate(t), ml.tokens, true
		}
	}

	return time.Time{}, 0, false
}

// normalizeDate drops any time-of-day component and pins the date to UTC.
// Statements carry calendar dates, not instants.
func normalizeDate(t time.Time) time.Time {
	year := t.Year()
	if year == 0 {
		// Layouts without a year parse into year zero; assume current year.
		year = time.Now().UTC().Year()
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
