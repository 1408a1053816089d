package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateTolerance is the allowed drift between the quoted rate and the implied
// to/from amount ratio. Venues round to 8 decimal places.
var RateTolerance = decimal.New(1, -8)

// Quote is a priced, time-bounded offer from the maker to exchange one asset
// amount for another. Immutable once received.
type Quote struct {
	RequestID    string          `json:"rfq_id"`
	FromAsset    string          `json:"from_asset"`
	ToAsset      string          `json:"to_asset"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Counterparty string          `json:"counterparty"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// Validate checks the structural invariants of a received quote.
// A quote failing Validate must be treated as an invalid venue response,
// never shown to the user.
func (q Quote) Validate() error {
	if q.RequestID == "" {
		return fmt.Errorf("%w: missing rfq_id", ErrInvalidResponse)
	}
	if q.FromAsset == "" || q.ToAsset == "" || q.FromAsset == q.ToAsset {
		return fmt.Errorf("%w: bad asset pair %q/%q", ErrInvalidResponse, q.FromAsset, q.ToAsset)
	}
	if !q.FromAmount.IsPositive() || !q.ToAmount.IsPositive() {
		return fmt.Errorf("%w: non-positive amount", ErrInvalidResponse)
	}
	if !q.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: non-positive rate", ErrInvalidResponse)
	}
	if q.FeeAmount.IsNegative() {
		return fmt.Errorf("%w: negative fee", ErrInvalidResponse)
	}
	implied := q.FromAmount.Mul(q.ExchangeRate)
	if implied.Sub(q.ToAmount).Abs().GreaterThan(RateTolerance) {
		return fmt.Errorf("%w: to_amount %s does not match %s x %s",
			ErrInvalidResponse, q.ToAmount, q.FromAmount, q.ExchangeRate)
	}
	if !q.ExpiresAt.After(time.Now().UTC()) {
		return fmt.Errorf("%w: expires_at in the past", ErrInvalidResponse)
	}
	return nil
}

// Expired reports whether the quote can no longer be executed.
func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.After(now)
}

// ExecStatus is the execution state of an accepted quote.
type ExecStatus string

const (
	StatusPending     ExecStatus = "PENDING"
	StatusWhitelisted ExecStatus = "WHITELISTED"
	StatusExecuting   ExecStatus = "EXECUTING"
	StatusCompleted   ExecStatus = "COMPLETED"
	StatusFailed      ExecStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s ExecStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Execution tracks a single accepted quote through the handshake and
// settlement. Exactly one execution exists per accepted RFQ; once it reaches
// a terminal status it never changes again.
type Execution struct {
	RequestID    string     `json:"rfq_id"`
	SwapToken    string     `json:"swap_token,omitempty"`
	Status       ExecStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SettlementID string     `json:"settlement_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewExecution starts tracking an accepted quote.
func NewExecution(requestID string) *Execution {
	now := time.Now().UTC()
	return &Execution{
		RequestID: requestID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the execution to a non-terminal status. It is a no-op once
// the execution is terminal.
func (e *Execution) Advance(status ExecStatus) {
	if e.Status.Terminal() {
		return
	}
	e.Status = status
	e.touch()
}

// MarkCompleted finalizes the execution with a settlement identifier.
// No-op if already terminal.
func (e *Execution) MarkCompleted(settlementID string) {
	if e.Status.Terminal() {
		return
	}
	e.Status = StatusCompleted
	e.SettlementID = settlementID
	e.ErrorMessage = ""
	e.touch()
}

// MarkFailed finalizes the execution with an error message.
// No-op if already terminal.
func (e *Execution) MarkFailed(msg string) {
	if e.Status.Terminal() {
		return
	}
	e.Status = StatusFailed
	e.ErrorMessage = msg
	e.SettlementID = ""
	e.touch()
}

func (e *Execution) touch() {
	now := time.Now().UTC()
	if now.Before(e.UpdatedAt) {
		now = e.UpdatedAt
	}
	e.UpdatedAt = now
}

// HistoryEntry is a frozen snapshot of an execution at the moment it reached
// a terminal state, joined with the quote terms it settled.
type HistoryEntry struct {
	RequestID    string          `json:"rfq_id"`
	FromAsset    string          `json:"from_asset"`
	ToAsset      string          `json:"to_asset"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Status       ExecStatus      `json:"status"`
	SettlementID string          `json:"settlement_id,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	FinalizedAt  time.Time       `json:"finalized_at"`
}

// NewHistoryEntry freezes a terminal execution and its quote into a history
// record.
func NewHistoryEntry(q Quote, e Execution) HistoryEntry {
	return HistoryEntry{
		RequestID:    e.RequestID,
		FromAsset:    q.FromAsset,
		ToAsset:      q.ToAsset,
		FromAmount:   q.FromAmount,
		ToAmount:     q.ToAmount,
		ExchangeRate: q.ExchangeRate,
		Status:       e.Status,
		SettlementID: e.SettlementID,
		ErrorMessage: e.ErrorMessage,
		FinalizedAt:  time.Now().UTC(),
	}
}

// TradeStatus is the maker's view of an executing trade, returned by the
// status lookup endpoint.
type TradeStatus struct {
	RequestID    string     `json:"rfq_id"`
	Status       ExecStatus `json:"status"`
	SettlementID string     `json:"txid,omitempty"`
	Error        string     `json:"error,omitempty"`
}
