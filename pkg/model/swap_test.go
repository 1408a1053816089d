package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuote() Quote {
	return Quote{
		RequestID:    "rfq-001",
		FromAsset:    "BTC",
		ToAsset:      "ASSET1",
		FromAmount:   decimal.RequireFromString("0.001"),
		ToAmount:     decimal.RequireFromString("1.0"),
		FeeAmount:    decimal.RequireFromString("0.00001"),
		ExchangeRate: decimal.RequireFromString("1000"),
		ExpiresAt:    time.Now().UTC().Add(time.Minute),
		Counterparty: "maker-pubkey",
		ReceivedAt:   time.Now().UTC(),
	}
}

func TestQuoteValidate_OK(t *testing.T) {
	require.NoError(t, validQuote().Validate())
}

func TestQuoteValidate_RateMismatch(t *testing.T) {
	q := validQuote()
	q.ToAmount = decimal.RequireFromString("1.5")
	err := q.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestQuoteValidate_WithinTolerance(t *testing.T) {
	q := validQuote()
	// One unit below the 8-decimal rounding boundary still passes.
	q.ToAmount = q.ToAmount.Add(decimal.New(1, -9))
	require.NoError(t, q.Validate())
}

func TestQuoteValidate_Expired(t *testing.T) {
	q := validQuote()
	q.ExpiresAt = time.Now().UTC().Add(-time.Second)
	assert.ErrorIs(t, q.Validate(), ErrInvalidResponse)
}

func TestQuoteValidate_SamePair(t *testing.T) {
	q := validQuote()
	q.ToAsset = q.FromAsset
	assert.ErrorIs(t, q.Validate(), ErrInvalidResponse)
}

func TestQuoteValidate_NegativeFee(t *testing.T) {
	q := validQuote()
	q.FeeAmount = decimal.RequireFromString("-0.1")
	assert.ErrorIs(t, q.Validate(), ErrInvalidResponse)
}

func TestExecution_Lifecycle(t *testing.T) {
	e := NewExecution("rfq-001")
	assert.Equal(t, StatusPending, e.Status)
	assert.False(t, e.UpdatedAt.Before(e.CreatedAt))

	e.Advance(StatusWhitelisted)
	assert.Equal(t, StatusWhitelisted, e.Status)
	e.Advance(StatusExecuting)
	assert.Equal(t, StatusExecuting, e.Status)

	e.MarkCompleted("abc")
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "abc", e.SettlementID)
	assert.Empty(t, e.ErrorMessage)
	assert.False(t, e.UpdatedAt.Before(e.CreatedAt))
}

func TestExecution_TerminalIsFinal(t *testing.T) {
	e := NewExecution("rfq-002")
	e.MarkFailed("QuoteExpired")
	require.Equal(t, StatusFailed, e.Status)

	// Any further mutation is ignored.
	e.MarkCompleted("zzz")
	e.Advance(StatusExecuting)
	e.MarkFailed("other")

	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "QuoteExpired", e.ErrorMessage)
	assert.Empty(t, e.SettlementID)
}

func TestExecution_SettlementAndErrorExclusive(t *testing.T) {
	e := NewExecution("rfq-003")
	e.MarkCompleted("txid-1")
	assert.Empty(t, e.ErrorMessage)

	f := NewExecution("rfq-004")
	f.MarkFailed("insufficient maker liquidity")
	assert.Empty(t, f.SettlementID)
}

func TestNewHistoryEntry(t *testing.T) {
	q := validQuote()
	e := NewExecution(q.RequestID)
	e.MarkCompleted("txid-9")

	h := NewHistoryEntry(q, *e)
	assert.Equal(t, q.RequestID, h.RequestID)
	assert.Equal(t, StatusCompleted, h.Status)
	assert.Equal(t, "txid-9", h.SettlementID)
	assert.True(t, q.ToAmount.Equal(h.ToAmount))
	assert.False(t, h.FinalizedAt.IsZero())
}
