// Package money converts between decimal currency amounts and the signed
// minor-unit integers stored in the ledger.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of fractional digits kept in minor units.
const MinorDigits = 2

// ToMinorUnits rounds half away from zero: 12.345 -> 1235.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(MinorDigits).Round(0).IntPart()
}

func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -MinorDigits)
}

// thousandsGrouped matches amounts whose commas are thousands separators.
var thousandsGrouped = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// ParseMinorUnits parses a decimal string such as "-12.34" or "1,204.50".
// A comma is only accepted as a thousands separator; "12,50" is rejected.
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty value")
	}
	if strings.Contains(s, ",") {
		if !thousandsGrouped.MatchString(s) {
			return 0, fmt.Errorf("parse amount %q: ambiguous comma", s)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ToMinorUnits(d), nil
}

// Format renders minor units as a fixed two-digit decimal string.
func Format(n int64) string {
	return FromMinorUnits(n).StringFixed(MinorDigits)
}
