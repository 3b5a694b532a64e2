// Package core provides the ledger entities and the money and date value
// helpers shared by every other package.
package core

import (
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is the display currency of the ledger.
const Currency = money.IDR

// ParseAmount converts a user-entered amount to a positive decimal.
//
// Both dot and comma are accepted as decimal separators. When both appear,
// the last one is the decimal separator and the other groups thousands.
// A lone dot followed by exactly three digits, or several dots, are read as
// thousands grouping the way amounts are written in Indonesian locales. A
// zero integer part is never grouping, so "0.125" stays 0.125.
//
// Examples:
//   ParseAmount("12.34")     -> 12.34
//   ParseAmount("12,5")      -> 12.5
//   ParseAmount("1.200.000") -> 1200000
//   ParseAmount("1.200,50")  -> 1200.50
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = normalizeSeparators(s)
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case dots == 1 && isThousandsDot(s):
		return strings.ReplaceAll(s, ".", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

func isThousandsDot(s string) bool {
	i := strings.Index(s, ".")
	return len(s)-i-1 == 3 && strings.Trim(s[:i], "0") != ""
}

// FormatIDR renders amount in the display currency, e.g. "Rp1.200.000,00".
// Amounts too large for go-money's int64 minor units are grouped by hand.
func FormatIDR(amount decimal.Decimal) string {
	cur := money.GetCurrency(Currency)
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if !minor.BigInt().IsInt64() {
		return formatLarge(amount, cur)
	}
	return money.New(minor.IntPart(), Currency).Display()
}

func formatLarge(amount decimal.Decimal, cur *money.Currency) string {
	digits := amount.Abs().StringFixed(int32(cur.Fraction))
	whole, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(cur.Grapheme)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(cur.Thousand)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteString(cur.Decimal)
		b.WriteString(frac)
	}
	return b.String()
}

// NewID returns a fresh opaque identifier for a new entity.
func NewID() string {
	return uuid.NewString()
}
