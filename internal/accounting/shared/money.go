package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Epsilon is one minor currency unit.
var Epsilon = decimal.New(1, -2)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// Round2 rounds half away from zero to two places.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Monetary returns round2(qty * unit).
func Monetary(qty, unit decimal.Decimal) decimal.Decimal {
	return Round2(qty.Mul(unit))
}

// HasMinorPrecision reports whether v has at most two decimal places.
func HasMinorPrecision(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(2))
}

// FormatINR renders an amount as rupees with Indian digit grouping.
func FormatINR(v decimal.Decimal) string {
	return inrPrinter.Sprintf("₹%v", number.Decimal(v.InexactFloat64(),
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
