package budget

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// USD is an amount of money in micro-dollars. Integer arithmetic keeps the
// ledger total exactly equal to the sum of its per-service breakdown.
type USD int64

const (
	Microdollar USD = 1
	Cent        USD = 10_000
	Dollar      USD = 1_000_000
)

// FromDollars converts a float dollar value, rounding to the nearest micro-dollar.
func FromDollars(v float64) USD {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return USD(math.Round(v * float64(Dollar)))
}

// Dollars returns the amount as a float, for display and JSON only.
func (u USD) Dollars() float64 {
	return float64(u) / float64(Dollar)
}

// String renders the amount with at least two decimals, e.g. $0.25 or $0.002.
func (u USD) String() string {
	sign := ""
	v := int64(u)
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := strings.TrimRight(fmt.Sprintf("%06d", v%int64(Dollar)), "0")
	for len(frac) < 2 {
		frac += "0"
	}
	return fmt.Sprintf("%s$%d.%s", sign, v/int64(Dollar), frac)
}

func (u USD) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(u.Dollars(), 'f', -1, 64)), nil
}

func (u *USD) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return fmt.Errorf("decode usd: %w", err)
	}
	*u = FromDollars(v)
	return nil
}

// ParseUSD accepts "1.25", "$1.25", or " 0.002 ".
func ParseUSD(s string) (USD, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "$")
	if trimmed == "" {
		return 0, errors.New("empty amount")
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount %q must not be negative", s)
	}
	return FromDollars(v), nil
}
