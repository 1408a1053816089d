package maker

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nodeport-labs/swapd/pkg/model"
)

//
// Wire types for the maker venue. Field names follow the venue's JSON.
//

type quoteRequest struct {
	FromAsset  string          `json:"from_asset"`
	ToAsset    string          `json:"to_asset"`
	FromAmount decimal.Decimal `json:"from_amount"`
}

type quoteResponse struct {
	RFQID        string          `json:"rfq_id"`
	FromAsset    string          `json:"from_asset"`
	ToAsset      string          `json:"to_asset"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Counterparty string          `json:"counterparty"`
}

type initRequest struct {
	RFQID string `json:"rfq_id"`
}

type initResponse struct {
	SwapString string `json:"swap_string"`
}

type takerRequest struct {
	SwapString string `json:"swap_string"`
}

type takerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type executeRequest struct {
	RFQID string `json:"rfq_id"`
}

type executeResponse struct {
	Success bool   `json:"success"`
	TxID    string `json:"txid,omitempty"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	RFQID  string `json:"rfq_id"`
	Status string `json:"status"`
	TxID   string `json:"txid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExecuteResult is the outcome of the final handshake step. A false Accepted
// with a message is a normal negative outcome, not a transport error.
type ExecuteResult struct {
	Accepted     bool
	SettlementID string
	Message      string
}

// NormalizeTradeStatus maps the venue's status vocabulary onto the canonical
// execution statuses. Anything unrecognized is treated as still executing.
func NormalizeTradeStatus(raw string) model.ExecStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED", "SETTLED", "FILLED", "SUCCESS":
		return model.StatusCompleted
	case "FAILED", "REJECTED", "CANCELED", "CANCELLED", "EXPIRED":
		return model.StatusFailed
	case "PENDING", "WAITING":
		return model.StatusPending
	default:
		return model.StatusExecuting
	}
}
