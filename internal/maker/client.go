package maker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/httpclient"
	"github.com/nodeport-labs/swapd/internal/metrics"
	"github.com/nodeport-labs/swapd/internal/rate"
	"github.com/nodeport-labs/swapd/pkg/model"
)

// CredentialSource supplies the maker API key. Implementations may rotate
// the key underneath the client.
type CredentialSource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a CredentialSource backed by a fixed key (dev use).
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) { return string(k), nil }

// venueError carries a 4xx response through the executor so each call site
// can map it onto the swap error taxonomy.
type venueError struct {
	status  int
	message string
}

func (e *venueError) Error() string {
	return fmt.Sprintf("maker returned %d: %s", e.status, e.message)
}

// Client talks to the market-maker venue: quoting, the three-step swap
// handshake, and trade status lookup. It holds no per-swap state.
type Client struct {
	logger    *zap.Logger
	makerURL  string
	statusURL string
	creds     CredentialSource
	exec      *httpclient.Executor
}

// NewClient constructs a maker venue client. statusURL may equal makerURL
// when the venue serves status lookups itself.
func NewClient(logger *zap.Logger, makerURL, statusURL string, creds CredentialSource, rateMgr *rate.Manager) *Client {
	if statusURL == "" {
		statusURL = makerURL
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "maker", func(status int, body []byte) error {
		return &venueError{status: status, message: extractMessage(body)}
	})
	return &Client{
		logger:    logger,
		makerURL:  makerURL,
		statusURL: statusURL,
		creds:     creds,
		exec:      exec,
	}
}

// extractMessage pulls a human-readable reason out of a venue error body.
func extractMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return string(body)
	}
	for _, key := range []string{"message", "error", "detail"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return string(body)
}

func (c *Client) postJSON(ctx context.Context, baseURL, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	err = c.exec.DoJSON(ctx, req, "maker", out)
	metrics.ObserveDuration(metrics.MakerRequestDuration, start, path)
	return err
}

func (c *Client) getJSON(ctx context.Context, baseURL, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return err
	}

	start := time.Now()
	err = c.exec.DoJSON(ctx, req, "status", out)
	metrics.ObserveDuration(metrics.MakerRequestDuration, start, path)
	return err
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("Accept", "application/json")
	return nil
}

// GetQuote requests a priced offer for the asset pair. The returned quote has
// passed invariant validation; an invariant-violating venue response surfaces
// as ErrInvalidResponse.
func (c *Client) GetQuote(ctx context.Context, fromAsset, toAsset string, fromAmount decimal.Decimal) (*model.Quote, error) {
	if fromAsset == toAsset {
		return nil, fmt.Errorf("%w: from and to asset are the same", model.ErrQuoteUnavailable)
	}
	if !fromAmount.IsPositive() {
		return nil, fmt.Errorf("%w: from_amount must be positive", model.ErrQuoteUnavailable)
	}

	var resp quoteResponse
	err := c.postJSON(ctx, c.makerURL, "/quote", quoteRequest{
		FromAsset:  fromAsset,
		ToAsset:    toAsset,
		FromAmount: fromAmount,
	}, &resp)
	if err != nil {
		var ve *venueError
		if errors.As(err, &ve) {
			metrics.IncMakerRequest("/quote", "rejected")
			c.logger.Info("maker.quote_rejected",
				zap.String("pair", fromAsset+"/"+toAsset),
				zap.Int("status", ve.status),
				zap.String("reason", ve.message))
			return nil, fmt.Errorf("%w: %s", model.ErrQuoteUnavailable, ve.message)
		}
		metrics.IncMakerRequest("/quote", "error")
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}

	quote := &model.Quote{
		RequestID:    resp.RFQID,
		FromAsset:    resp.FromAsset,
		ToAsset:      resp.ToAsset,
		FromAmount:   resp.FromAmount,
		ToAmount:     resp.ToAmount,
		FeeAmount:    resp.FeeAmount,
		ExchangeRate: resp.ExchangeRate,
		ExpiresAt:    resp.ExpiresAt,
		Counterparty: resp.Counterparty,
		ReceivedAt:   time.Now().UTC(),
	}
	if err := quote.Validate(); err != nil {
		metrics.IncMakerRequest("/quote", "invalid")
		c.logger.Warn("maker.quote_invalid",
			zap.String("rfq_id", resp.RFQID),
			zap.Error(err))
		return nil, err
	}

	metrics.IncMakerRequest("/quote", "ok")
	c.logger.Info("maker.quote_received",
		zap.String("rfq_id", quote.RequestID),
		zap.String("pair", quote.FromAsset+"/"+quote.ToAsset),
		zap.String("rate", quote.ExchangeRate.String()),
		zap.Time("expires_at", quote.ExpiresAt))
	return quote, nil
}

// Initialize performs the first handshake step, turning an accepted RFQ into
// a swap token required by the remaining steps.
func (c *Client) Initialize(ctx context.Context, rfqID string) (string, error) {
	var resp initResponse
	err := c.postJSON(ctx, c.makerURL, "/swap/init", initRequest{RFQID: rfqID}, &resp)
	if err != nil {
		var ve *venueError
		if errors.As(err, &ve) {
			metrics.IncMakerRequest("/swap/init", "rejected")
			switch ve.status {
			case http.StatusNotFound:
				return "", fmt.Errorf("%w: %s", model.ErrQuoteNotFound, ve.message)
			case http.StatusGone, http.StatusConflict:
				return "", fmt.Errorf("%w: %s", model.ErrQuoteExpired, ve.message)
			default:
				return "", fmt.Errorf("%w: %s", model.ErrHandshakeRejected, ve.message)
			}
		}
		metrics.IncMakerRequest("/swap/init", "error")
		return "", fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	if resp.SwapString == "" {
		metrics.IncMakerRequest("/swap/init", "invalid")
		return "", fmt.Errorf("%w: empty swap_string", model.ErrHandshakeRejected)
	}
	metrics.IncMakerRequest("/swap/init", "ok")
	return resp.SwapString, nil
}

// Whitelist performs the second handshake step, registering the swap token
// on the taker side.
func (c *Client) Whitelist(ctx context.Context, swapToken string) error {
	var resp takerResponse
	err := c.postJSON(ctx, c.makerURL, "/taker", takerRequest{SwapString: swapToken}, &resp)
	if err != nil {
		var ve *venueError
		if errors.As(err, &ve) {
			metrics.IncMakerRequest("/taker", "rejected")
			return fmt.Errorf("%w: %s", model.ErrHandshakeRejected, ve.message)
		}
		metrics.IncMakerRequest("/taker", "error")
		return fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	if !resp.Success {
		metrics.IncMakerRequest("/taker", "rejected")
		return fmt.Errorf("%w: %s", model.ErrHandshakeRejected, resp.Message)
	}
	metrics.IncMakerRequest("/taker", "ok")
	return nil
}

// Execute performs the final handshake step. A declined execution comes back
// as Accepted=false with the maker's reason, not as an error.
func (c *Client) Execute(ctx context.Context, rfqID string) (ExecuteResult, error) {
	var resp executeResponse
	err := c.postJSON(ctx, c.makerURL, "/maker/execute", executeRequest{RFQID: rfqID}, &resp)
	if err != nil {
		var ve *venueError
		if errors.As(err, &ve) {
			metrics.IncMakerRequest("/maker/execute", "rejected")
			return ExecuteResult{}, fmt.Errorf("%w: %s", model.ErrExecutionRejected, ve.message)
		}
		metrics.IncMakerRequest("/maker/execute", "error")
		return ExecuteResult{}, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	metrics.IncMakerRequest("/maker/execute", "ok")
	return ExecuteResult{
		Accepted:     resp.Success,
		SettlementID: resp.TxID,
		Message:      resp.Message,
	}, nil
}

// TradeStatus looks up the current state of an executing trade.
func (c *Client) TradeStatus(ctx context.Context, rfqID string) (*model.TradeStatus, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, c.statusURL, "/swap/status/"+rfqID, &resp); err != nil {
		return nil, err
	}
	return &model.TradeStatus{
		RequestID:    rfqID,
		Status:       NormalizeTradeStatus(resp.Status),
		SettlementID: resp.TxID,
		Error:        resp.Error,
	}, nil
}
