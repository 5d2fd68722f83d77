// Package price turns the price text shown on a quote page into a decimal.
package price

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmpty    = errors.New("no price in text")
	ErrInvalid  = errors.New("price is not a number")
	ErrNegative = errors.New("price is negative")
)

// Parse reads text such as "₹1,520.35", "$ 98.10 USD" or "₹.75".
//
// Currency glyphs and letters around the number are dropped, as are
// thousands separators and whitespace. A minus sign ('-' or U+2212) before
// the number is honoured, so a negative price is reported as ErrNegative
// instead of silently flipped. A decimal point directly before the first
// digit belongs to the number unless it ends a word, as in "Rs.5".
func Parse(text string) (decimal.Decimal, error) {
	runes := []rune(strings.Map(func(r rune) rune {
		switch {
		case r == ',' || unicode.IsSpace(r):
			return -1
		case r == '\u2212':
			return '-'
		}
		return r
	}, text))

	start := -1
	for i, r := range runes {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return decimal.Zero, fmt.Errorf("%q: %w", text, ErrEmpty)
	}
	if start > 0 && runes[start-1] == '.' && (start < 2 || !unicode.IsLetter(runes[start-2])) {
		start--
	}

	negative := strings.ContainsRune(string(runes[:start]), '-')
	s := strings.TrimRightFunc(string(runes[start:]), func(r rune) bool { return !unicode.IsDigit(r) })
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", text, ErrInvalid)
	}
	if negative && !d.IsZero() {
		return decimal.Zero, fmt.Errorf("%q: %w", text, ErrNegative)
	}
	return d, nil
}
