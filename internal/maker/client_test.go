package maker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(zap.NewNop(), server.URL, "", StaticKey("test-api-key"), nil)
	return client, server
}

func TestClient_GetQuote(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTC", req["from_asset"])
		assert.Equal(t, "ASSET1", req["to_asset"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rfq_id":        "rfq-123",
			"from_asset":    "BTC",
			"to_asset":      "ASSET1",
			"from_amount":   "0.001",
			"to_amount":     "1.0",
			"fee_amount":    "0.00001",
			"exchange_rate": "1000",
			"expires_at":    time.Now().UTC().Add(time.Minute).Format(time.RFC3339),
			"counterparty":  "maker-pub",
		})
	})

	quote, err := client.GetQuote(context.Background(), "BTC", "ASSET1", decimal.RequireFromString("0.001"))
	require.NoError(t, err)
	assert.Equal(t, "rfq-123", quote.RequestID)
	assert.True(t, quote.ToAmount.Equal(decimal.RequireFromString("1.0")))
	assert.Equal(t, "maker-pub", quote.Counterparty)
}

func TestClient_GetQuote_RejectsSamePair(t *testing.T) {
	client := NewClient(zap.NewNop(), "http://unused.local", "", StaticKey("k"), nil)
	_, err := client.GetQuote(context.Background(), "BTC", "BTC", decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, model.ErrQuoteUnavailable)
}

func TestClient_GetQuote_NoLiquidity(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"insufficient liquidity for pair"}`))
	})

	_, err := client.GetQuote(context.Background(), "BTC", "ASSET1", decimal.RequireFromString("100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrQuoteUnavailable)
	assert.Contains(t, err.Error(), "insufficient liquidity")
}

func TestClient_GetQuote_InvariantViolation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// to_amount does not match from_amount * rate
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rfq_id":        "rfq-bad",
			"from_asset":    "BTC",
			"to_asset":      "ASSET1",
			"from_amount":   "0.001",
			"to_amount":     "2.0",
			"fee_amount":    "0",
			"exchange_rate": "1000",
			"expires_at":    time.Now().UTC().Add(time.Minute).Format(time.RFC3339),
		})
	})

	_, err := client.GetQuote(context.Background(), "BTC", "ASSET1", decimal.RequireFromString("0.001"))
	assert.ErrorIs(t, err, model.ErrInvalidResponse)
}

func TestClient_Initialize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/init", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rfq-123", req["rfq_id"])
		_ = json.NewEncoder(w).Encode(map[string]string{"swap_string": "swap-token-xyz"})
	})

	token, err := client.Initialize(context.Background(), "rfq-123")
	require.NoError(t, err)
	assert.Equal(t, "swap-token-xyz", token)
}

func TestClient_Initialize_Expired(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"message":"rfq lapsed"}`))
	})

	_, err := client.Initialize(context.Background(), "rfq-old")
	assert.ErrorIs(t, err, model.ErrQuoteExpired)
}

func TestClient_Initialize_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"unknown rfq"}`))
	})

	_, err := client.Initialize(context.Background(), "rfq-missing")
	assert.ErrorIs(t, err, model.ErrQuoteNotFound)
}

func TestClient_Whitelist(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taker", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "swap-token-xyz", req["swap_string"])
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	require.NoError(t, client.Whitelist(context.Background(), "swap-token-xyz"))
}

func TestClient_Whitelist_Rejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "token already consumed"})
	})

	err := client.Whitelist(context.Background(), "stale-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrHandshakeRejected)
	assert.Contains(t, err.Error(), "token already consumed")
}

func TestClient_Execute_Accepted(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maker/execute", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "txid": "abc"})
	})

	res, err := client.Execute(context.Background(), "rfq-123")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "abc", res.SettlementID)
}

func TestClient_Execute_DeclinedIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "insufficient maker liquidity"})
	})

	res, err := client.Execute(context.Background(), "rfq-123")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "insufficient maker liquidity", res.Message)
}

func TestClient_TradeStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/swap/status/rfq-123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"rfq_id": "rfq-123", "status": "settled", "txid": "abc"})
	})

	st, err := client.TradeStatus(context.Background(), "rfq-123")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, st.Status)
	assert.Equal(t, "abc", st.SettlementID)
}

func TestNormalizeTradeStatus(t *testing.T) {
	assert.Equal(t, model.StatusCompleted, NormalizeTradeStatus("Settled"))
	assert.Equal(t, model.StatusFailed, NormalizeTradeStatus("REJECTED"))
	assert.Equal(t, model.StatusPending, NormalizeTradeStatus("waiting"))
	assert.Equal(t, model.StatusExecuting, NormalizeTradeStatus("broadcasting"))
}
