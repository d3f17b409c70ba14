package http

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// amountPrinter groups thousands the way yen prices are written.
var amountPrinter = message.NewPrinter(language.Japanese)

// formatTotal renders an aggregate for display, e.g. 3220 -> "3,220".
func formatTotal(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return amountPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}
