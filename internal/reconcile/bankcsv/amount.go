package bankcsv

import (
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount reads amounts in either "1.234,56" or "1,234.56" notation.
// The right-most separator followed by one or two digits is the decimal mark.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "Bs.")
	clean = strings.TrimPrefix(clean, "Bs")
	clean = strings.ReplaceAll(clean, " ", "")

	dot := strings.LastIndex(clean, ".")
	comma := strings.LastIndex(clean, ",")

	decimalMark := byte(0)

	switch {
	case dot > comma && isDecimalTail(clean[dot+1:]):
		decimalMark = '.'
	case comma > dot && isDecimalTail(clean[comma+1:]):
		decimalMark = ','
	}

	var b strings.Builder

	for i := 0; i < len(clean); i++ {
		c := clean[i]

		switch {
		case c == '.' || c == ',':
			if c == decimalMark && (i == dot || i == comma) {
				b.WriteByte('.')
			}
		default:
			b.WriteByte(c)
		}
	}

	return decimal.NewFromString(b.String())
}

func isDecimalTail(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
