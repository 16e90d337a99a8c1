// Package core provides money parsing and handling utilities.
//
// Amounts are decimal magnitudes; the sign of a transaction comes from its
// kind, never from the stored value.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied string to a non-negative decimal.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Values
// are rounded half-up to two decimal places.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("0") -> 0, nil
//	ParseAmount("-1") -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Fields: map[string]string{"amount": "required"}}
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, &ValidationError{Fields: map[string]string{"amount": "gte=0"}}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Fields: map[string]string{"amount": "numeric"}}
	}
	return d.Round(2), nil
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
