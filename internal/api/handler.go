package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/coordinator"
	"github.com/nodeport-labs/swapd/pkg/model"
)

// SwapService defines the coordinator operations needed by the handler.
type SwapService interface {
	RequestQuote(ctx context.Context, fromAsset, toAsset string, fromAmount decimal.Decimal) (*model.Quote, error)
	ExecuteQuote(ctx context.Context) (*model.Execution, error)
	ResetSwap() error
	Snapshot() coordinator.Snapshot
}

// HistoryReader exposes the bounded swap history for display.
type HistoryReader interface {
	List(ctx context.Context) ([]model.HistoryEntry, error)
}

// SwapHandler handles HTTP API requests for the swap coordinator.
type SwapHandler struct {
	logger  *zap.Logger
	service SwapService
	history HistoryReader
}

// NewSwapHandler creates a new SwapHandler.
func NewSwapHandler(logger *zap.Logger, service SwapService, history HistoryReader) *SwapHandler {
	return &SwapHandler{
		logger:  logger,
		service: service,
		history: history,
	}
}

// CreateQuoteHandler requests a fresh quote for an asset pair.
func (h *SwapHandler) CreateQuoteHandler(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	quote, err := h.service.RequestQuote(c.Context(), req.FromAsset, req.ToAsset, req.FromAmount)
	if err != nil {
		h.logger.Info("api.quote_failed",
			zap.String("pair", req.FromAsset+"/"+req.ToAsset),
			zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(quote)
}

// ExecuteHandler runs the handshake for the held quote. The UI must have
// shown the quote terms and obtained the user's confirmation before calling
// this; the coordinator does not re-confirm.
func (h *SwapHandler) ExecuteHandler(c *fiber.Ctx) error {
	exec, err := h.service.ExecuteQuote(c.Context())
	if err != nil {
		h.logger.Info("api.execute_failed", zap.Error(err))
		body := fiber.Map{"error": err.Error()}
		if exec != nil {
			body["execution"] = exec
		}
		return c.Status(statusFor(err)).JSON(body)
	}
	return c.Status(fiber.StatusAccepted).JSON(exec)
}

// ResetHandler discards the current quote/execution.
func (h *SwapHandler) ResetHandler(c *fiber.Ctx) error {
	if err := h.service.ResetSwap(); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// StateHandler returns the live view for rendering.
func (h *SwapHandler) StateHandler(c *fiber.Ctx) error {
	return c.JSON(h.service.Snapshot())
}

// HistoryHandler returns terminal executions, most recent first.
func (h *SwapHandler) HistoryHandler(c *fiber.Ctx) error {
	entries, err := h.history.List(c.Context())
	if err != nil {
		h.logger.Error("api.history_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

// statusFor maps swap errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrSwapInProgress),
		errors.Is(err, coordinator.ErrHandshakeInFlight):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrNoQuote):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrQuoteExpired):
		return fiber.StatusGone
	case errors.Is(err, model.ErrQuoteNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrQuoteUnavailable),
		errors.Is(err, model.ErrHandshakeRejected),
		errors.Is(err, model.ErrExecutionRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNetwork), errors.Is(err, model.ErrInvalidResponse):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
