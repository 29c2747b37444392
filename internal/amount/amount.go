// Package amount renders int64 minor-unit amounts for people and payment links.
package amount

import (
	"fmt"
	"strconv"

	"github.com/govalues/money"
)

// Major returns the amount in major units with the currency's scale,
// e.g. ("INR", 123456) -> "1234.56". Unknown currencies fall back to two
// decimal places.
func Major(currency string, minor int64) string {
	amt, err := money.NewAmountFromMinorUnits(currency, minor)
	if err != nil {
		return fallback(minor)
	}
	return amt.Decimal().String()
}

// Format returns a human readable amount such as "INR 1234.56".
func Format(currency string, minor int64) string {
	amt, err := money.NewAmountFromMinorUnits(currency, minor)
	if err != nil {
		return currency + " " + fallback(minor)
	}
	return amt.String()
}

// Formatter binds a currency for repeated formatting.
type Formatter string

// Format renders minor in the bound currency.
func (f Formatter) Format(minor int64) string { return Format(string(f), minor) }

func fallback(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return sign + strconv.FormatInt(minor/100, 10) + fmt.Sprintf(".%02d", minor%100)
}
