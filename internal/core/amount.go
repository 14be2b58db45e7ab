package core

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoAmount is returned when message text contains no parseable monetary
// token. It is a filter outcome, not a failure.
var ErrNoAmount = errors.New("no amount found")

// Matches a digit run optionally grouped with interior spaces, optionally
// followed by a decimal dot or comma with 1-2 fractional digits.
// "1500" -> 1500, "1 200.50" -> 1200.50, "240,50" -> 240.50.
var amountPattern = regexp.MustCompile(`\b\d+[\d ]*([.,]\d{1,2})?`)

// ExtractAmount scans free-form message text and returns the first monetary
// amount in left-to-right order. Interior spaces are stripped and a decimal
// comma is normalized to a dot before parsing. Trailing currency words do not
// break the match because the pattern only consumes digit, space and decimal
// characters.
func ExtractAmount(text string) (decimal.Decimal, error) {
	match := amountPattern.FindString(text)
	if match == "" {
		return decimal.Decimal{}, ErrNoAmount
	}

	raw := strings.ReplaceAll(match, " ", "")
	raw = strings.ReplaceAll(raw, ",", ".")

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrNoAmount
	}
	return amount, nil
}
