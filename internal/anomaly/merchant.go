package anomaly

import (
	"regexp"
	"strings"
)

var (
	merchantPrefixes = []string{
		"COMPRA ", "COMPRAS ", "PAGAMENTO ", "PAG ", "PGO ",
		"TRF ", "TRANSF ", "TRANSFERENCIA ",
		"MB WAY ", "MBWAY ", "MULTIBANCO ",
		"VISA ", "MASTERCARD ", "MAESTRO ",
		"PURCHASE ", "PAYMENT ", "POS ", "CARD ",
	}
	trailingRefPattern  = regexp.MustCompile(`\s+\d{4,}$`)
	trailingDatePattern = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
)

// MerchantKey reduces a transaction description to a stable merchant
// identity: payment-rail prefixes, terminal numbers, and trailing dates are
// stripped so "POS STARBUCKS 0123" and "STARBUCKS 0456" collide.
func MerchantKey(description string) string {
	result := strings.ToUpper(strings.TrimSpace(description))

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(result, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = trailingRefPattern.ReplaceAllString(result, "")
	result = trailingDatePattern.ReplaceAllString(result, "")
	return strings.Join(strings.Fields(result), " ")
}
