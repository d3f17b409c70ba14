// Package core holds the sheet domain: rows, their validation and totals.
//
// This file contains the parsing of user-typed amounts.
package core

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts user input to a number.
//
// It accepts both dot (12.5) and comma (12,5) decimal separators. Anything
// that is not a plain decimal number yields NaN, which Row.Validate rejects
// as ErrInvalidNumber. Signs are kept so negative input surfaces as
// ErrNegativeValue rather than a parse failure.
//
// Examples:
//
//	ParseAmount("3000")  -> 3000
//	ParseAmount("12,5")  -> 12.5
//	ParseAmount("-1")    -> -1
//	ParseAmount("abc")   -> NaN
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			// Rejects exponents, hex, "Inf" and "NaN" spellings.
			return math.NaN()
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FormatAmount renders a number for an input field, without a trailing ".0".
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
