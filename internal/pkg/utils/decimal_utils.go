package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMinorUnits parses a non-negative integer count of minor units as sent by the ledger.
// Example: "1000000" => 1000000
func ParseMinorUnits(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return decimal.Zero, fmt.Errorf("amount %q is not a non-negative integer", raw)
		}
	}
	return decimal.NewFromString(raw)
}

// FormatUnits renders d with at most places decimals, without trailing zeros.
// Example: 1.2300 with places=6 => "1.23"
func FormatUnits(d decimal.Decimal, places int32) string {
	return d.Round(places).String()
}
