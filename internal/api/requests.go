package api

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuoteRequest is the POST /api/v1/swap/quote body.
type QuoteRequest struct {
	FromAsset  string          `json:"from_asset"`
	ToAsset    string          `json:"to_asset"`
	FromAmount decimal.Decimal `json:"from_amount"`
}

// Validate checks required fields before the coordinator is involved.
func (r QuoteRequest) Validate() error {
	if r.FromAsset == "" {
		return fmt.Errorf("from_asset is required")
	}
	if r.ToAsset == "" {
		return fmt.Errorf("to_asset is required")
	}
	if r.FromAsset == r.ToAsset {
		return fmt.Errorf("from_asset and to_asset must differ")
	}
	if !r.FromAmount.IsPositive() {
		return fmt.Errorf("from_amount must be positive")
	}
	return nil
}
