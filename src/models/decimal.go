package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals are stored as TEXT so that close prices keep their full
// 6-fraction-digit precision without float drift.
func scanDecimal(raw string, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal in column %s: %w", field, err)
	}
	return d, nil
}
