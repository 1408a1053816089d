package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/history"
	"github.com/nodeport-labs/swapd/internal/maker"
	"github.com/nodeport-labs/swapd/internal/metrics"
	"github.com/nodeport-labs/swapd/pkg/model"
)

// ErrHandshakeInFlight is returned by ResetSwap while one of the three
// handshake calls is on the wire. Those calls are never interrupted: aborting
// mid-handshake could leave the maker holding a half-negotiated trade.
var ErrHandshakeInFlight = errors.New("handshake call in flight")

// Phase is the coordinator's top-level state.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseQuoteRequested Phase = "QUOTE_REQUESTED"
	PhaseQuoteReady     Phase = "QUOTE_READY"
	PhaseExecuting      Phase = "EXECUTING"
)

// QuoteClient requests priced offers from the maker venue.
type QuoteClient interface {
	GetQuote(ctx context.Context, fromAsset, toAsset string, fromAmount decimal.Decimal) (*model.Quote, error)
}

// ProtocolClient performs the three ordered handshake calls. The coordinator
// is responsible for never calling them out of order.
type ProtocolClient interface {
	Initialize(ctx context.Context, rfqID string) (string, error)
	Whitelist(ctx context.Context, swapToken string) error
	Execute(ctx context.Context, rfqID string) (maker.ExecuteResult, error)
}

// StatusWatcher runs the background status watch for an executing trade.
type StatusWatcher interface {
	Watch(ctx context.Context, rfqID string, onTerminal func(model.TradeStatus))
	Stop(rfqID string)
	StopAll()
}

// EventSink receives swap lifecycle events (NATS in production).
type EventSink interface {
	PublishQuoteCreated(ctx context.Context, q model.Quote) error
	PublishSwapStatus(ctx context.Context, ev model.SwapStatusEvent) error
}

// Snapshot is the read-only live view exposed to the UI layer.
type Snapshot struct {
	Phase     Phase            `json:"phase"`
	Quote     *model.Quote     `json:"quote,omitempty"`
	Execution *model.Execution `json:"execution,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// detachedSwap keeps enough of an abandoned execution to still finalize it
// into history when KeepPollingAfterReset is enabled.
type detachedSwap struct {
	quote model.Quote
	exec  model.Execution
}

// Coordinator drives a swap attempt through quote, handshake, and settlement
// tracking. It owns the single mutable "current execution" slot; the watcher
// only ever receives the rfq_id and a callback, never the slot itself.
type Coordinator struct {
	logger   *zap.Logger
	quotes   QuoteClient
	protocol ProtocolClient
	watcher  StatusWatcher
	store    history.Store
	events   EventSink

	keepPollingAfterReset bool
	watchCtx              context.Context

	mu          sync.Mutex
	phase       Phase
	quote       *model.Quote
	exec        *model.Execution
	lastErr     string
	handshaking bool
	detached    map[string]detachedSwap
	subs        map[chan Snapshot]struct{}
}

// New wires a coordinator. watchCtx is the parent context for background
// status watches; cancelling it tears down every active watch silently.
func New(
	watchCtx context.Context,
	logger *zap.Logger,
	quotes QuoteClient,
	protocol ProtocolClient,
	watcher StatusWatcher,
	store history.Store,
	events EventSink,
	keepPollingAfterReset bool,
) *Coordinator {
	return &Coordinator{
		logger:                logger,
		quotes:                quotes,
		protocol:              protocol,
		watcher:               watcher,
		store:                 store,
		events:                events,
		keepPollingAfterReset: keepPollingAfterReset,
		watchCtx:              watchCtx,
		phase:                 PhaseIdle,
		detached:              make(map[string]detachedSwap),
		subs:                  make(map[chan Snapshot]struct{}),
	}
}

// RequestQuote fetches a fresh quote for the pair. Quoting errors are
// recoverable: the coordinator returns to Idle and the caller may retry.
func (c *Coordinator) RequestQuote(ctx context.Context, fromAsset, toAsset string, fromAmount decimal.Decimal) (*model.Quote, error) {
	c.mu.Lock()
	if c.exec != nil && !c.exec.Status.Terminal() {
		c.mu.Unlock()
		return nil, model.ErrSwapInProgress
	}
	c.phase = PhaseQuoteRequested
	c.quote = nil
	c.lastErr = ""
	c.notifyLocked()
	c.mu.Unlock()

	quote, err := c.quotes.GetQuote(ctx, fromAsset, toAsset, fromAmount)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.phase = PhaseIdle
		c.lastErr = err.Error()
		c.notifyLocked()
		c.logger.Info("swap.quote_failed",
			zap.String("pair", fromAsset+"/"+toAsset),
			zap.Error(err))
		return nil, err
	}

	c.phase = PhaseQuoteReady
	c.quote = quote
	c.notifyLocked()
	c.logger.Info("swap.quote_ready",
		zap.String("rfq_id", quote.RequestID),
		zap.String("pair", quote.FromAsset+"/"+quote.ToAsset),
		zap.String("rate", quote.ExchangeRate.String()))

	c.publishAsync(func(ctx context.Context) error {
		return c.events.PublishQuoteCreated(ctx, *quote)
	})
	return quote, nil
}

// ExecuteQuote runs the initialize -> whitelist -> execute handshake for the
// held quote, strictly in that order, and starts the status watch when the
// maker accepts. Any handshake failure fails the execution terminally and
// records it in history; the old quote cannot be reused.
func (c *Coordinator) ExecuteQuote(ctx context.Context) (*model.Execution, error) {
	c.mu.Lock()
	if c.exec != nil && !c.exec.Status.Terminal() {
		c.mu.Unlock()
		return nil, model.ErrSwapInProgress
	}
	if c.quote == nil || c.phase != PhaseQuoteReady {
		c.mu.Unlock()
		return nil, model.ErrNoQuote
	}

	quote := *c.quote
	if quote.Expired(time.Now().UTC()) {
		// The quote lapsed before we ever reached the maker: no execution
		// was created, so there is nothing to finalize. Discard the quote
		// and require a fresh one.
		err := fmt.Errorf("%w: quote lapsed at %s", model.ErrQuoteExpired, quote.ExpiresAt.Format(time.RFC3339))
		c.phase = PhaseIdle
		c.quote = nil
		c.lastErr = taxonomyName(err)
		c.notifyLocked()
		c.mu.Unlock()
		c.logger.Info("swap.quote_lapsed",
			zap.String("rfq_id", quote.RequestID),
			zap.Time("expires_at", quote.ExpiresAt))
		return nil, err
	}

	c.exec = model.NewExecution(quote.RequestID)
	c.phase = PhaseExecuting
	c.handshaking = true
	c.notifyLocked()
	c.mu.Unlock()

	rfqID := quote.RequestID
	c.logger.Info("swap.handshake_started", zap.String("rfq_id", rfqID))

	// Step 1: initialize.
	token, err := c.protocol.Initialize(ctx, rfqID)
	if err != nil {
		return nil, c.failHandshake(rfqID, "initialize", err)
	}

	c.mu.Lock()
	c.exec.SwapToken = token
	c.notifyLocked()
	c.mu.Unlock()

	// Step 2: whitelist.
	if err := c.protocol.Whitelist(ctx, token); err != nil {
		return nil, c.failHandshake(rfqID, "whitelist", err)
	}

	c.mu.Lock()
	c.exec.Advance(model.StatusWhitelisted)
	c.notifyLocked()
	c.mu.Unlock()

	// Step 3: execute.
	result, err := c.protocol.Execute(ctx, rfqID)
	if err != nil {
		return nil, c.failHandshake(rfqID, "execute", err)
	}
	if !result.Accepted {
		c.mu.Lock()
		c.handshaking = false
		quote, exec := c.failExecutionLocked(result.Message)
		c.mu.Unlock()
		c.logger.Info("swap.execute_declined",
			zap.String("rfq_id", rfqID),
			zap.String("reason", result.Message))
		c.appendHistory(quote, exec)
		c.publishStatus(exec, true)
		return &exec, fmt.Errorf("%w: %s", model.ErrExecutionRejected, result.Message)
	}

	c.mu.Lock()
	c.handshaking = false
	c.exec.Advance(model.StatusExecuting)
	if result.SettlementID != "" {
		c.exec.SettlementID = result.SettlementID
	}
	snap := *c.exec
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("swap.executing",
		zap.String("rfq_id", rfqID),
		zap.String("txid", result.SettlementID))
	c.publishStatus(snap, false)

	c.watcher.Watch(c.watchCtx, rfqID, c.onTerminal)
	return &snap, nil
}

// ResetSwap discards the current quote and any non-terminal execution and
// returns to Idle. The discarded execution is not written to history; the
// remote trade may still settle on its own. Disallowed while a handshake
// call is on the wire.
func (c *Coordinator) ResetSwap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handshaking {
		return ErrHandshakeInFlight
	}

	if c.exec != nil && !c.exec.Status.Terminal() {
		if c.keepPollingAfterReset && c.quote != nil {
			// Leave the watch running; the eventual remote outcome still
			// lands in history via the detached record.
			c.detached[c.exec.RequestID] = detachedSwap{quote: *c.quote, exec: *c.exec}
			c.logger.Info("swap.reset_detached",
				zap.String("rfq_id", c.exec.RequestID))
		} else {
			c.watcher.Stop(c.exec.RequestID)
			c.logger.Info("swap.reset_discarded",
				zap.String("rfq_id", c.exec.RequestID),
				zap.String("status", string(c.exec.Status)))
		}
	}

	c.phase = PhaseIdle
	c.quote = nil
	c.exec = nil
	c.lastErr = ""
	c.notifyLocked()
	return nil
}

// Shutdown stops all background watches. In-flight handshake calls are left
// to finish naturally.
func (c *Coordinator) Shutdown() {
	c.watcher.StopAll()
}

// Snapshot returns the current live view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers a live-view stream. The returned cancel func must be
// called when the subscriber goes away. Slow subscribers miss intermediate
// snapshots rather than blocking transitions.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
	}
	return ch, cancel
}

// onTerminal receives the watcher's final verdict for an executing trade.
func (c *Coordinator) onTerminal(st model.TradeStatus) {
	c.mu.Lock()

	if d, ok := c.detached[st.RequestID]; ok {
		delete(c.detached, st.RequestID)
		exec := d.exec
		if st.Status == model.StatusCompleted {
			exec.MarkCompleted(st.SettlementID)
		} else {
			exec.MarkFailed(terminalError(st))
		}
		c.mu.Unlock()
		c.appendHistory(d.quote, exec)
		c.publishStatus(exec, true)
		return
	}

	if c.exec == nil || c.exec.RequestID != st.RequestID || c.exec.Status.Terminal() {
		c.mu.Unlock()
		c.logger.Debug("swap.stale_terminal_report",
			zap.String("rfq_id", st.RequestID))
		return
	}

	if st.Status == model.StatusCompleted {
		c.exec.MarkCompleted(st.SettlementID)
		c.lastErr = ""
	} else {
		c.exec.MarkFailed(terminalError(st))
		c.lastErr = c.exec.ErrorMessage
	}
	quote, exec := c.finalizeLocked()
	c.mu.Unlock()

	c.appendHistory(quote, exec)
	c.publishStatus(exec, true)
}

// failHandshake fails the execution after a handshake step error.
func (c *Coordinator) failHandshake(rfqID, step string, err error) error {
	c.mu.Lock()
	c.handshaking = false
	quote, exec := c.failExecutionLocked(taxonomyName(err))
	c.mu.Unlock()

	c.logger.Warn("swap.handshake_failed",
		zap.String("rfq_id", rfqID),
		zap.String("step", step),
		zap.Error(err))
	c.appendHistory(quote, exec)
	c.publishStatus(exec, true)
	return err
}

// failExecutionLocked marks the current execution failed and finalizes it.
// Caller holds the lock and must record the returned copies once the lock is
// released.
func (c *Coordinator) failExecutionLocked(msg string) (model.Quote, model.Execution) {
	c.exec.MarkFailed(msg)
	c.lastErr = msg
	return c.finalizeLocked()
}

// finalizeLocked freezes the terminal execution and clears the
// current-execution slot so a new swap may begin. Caller holds the lock; the
// history write and status event happen on the returned copies after the
// lock is released, so a stalled store never blocks the live view.
func (c *Coordinator) finalizeLocked() (model.Quote, model.Execution) {
	exec := *c.exec
	var quote model.Quote
	if c.quote != nil {
		quote = *c.quote
	}

	c.phase = PhaseIdle
	c.quote = nil
	c.exec = nil
	c.notifyLocked()

	metrics.IncSwapFinalized(string(exec.Status))
	c.logger.Info("swap.finalized",
		zap.String("rfq_id", exec.RequestID),
		zap.String("status", string(exec.Status)),
		zap.String("txid", exec.SettlementID),
		zap.String("error", exec.ErrorMessage))
	return quote, exec
}

func (c *Coordinator) appendHistory(quote model.Quote, exec model.Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Append(ctx, model.NewHistoryEntry(quote, exec)); err != nil {
		c.logger.Error("swap.history_append_failed",
			zap.String("rfq_id", exec.RequestID),
			zap.Error(err))
	}
}

func (c *Coordinator) publishStatus(exec model.Execution, final bool) {
	c.publishAsync(func(ctx context.Context) error {
		return c.events.PublishSwapStatus(ctx, model.SwapStatusEvent{
			RequestID:    exec.RequestID,
			Status:       exec.Status,
			SettlementID: exec.SettlementID,
			Error:        exec.ErrorMessage,
			Final:        final,
			Timestamp:    time.Now().UTC(),
		})
	})
}

func (c *Coordinator) publishAsync(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Debug("swap.event_publish_failed", zap.Error(err))
		}
	}()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: c.phase, Error: c.lastErr}
	if c.quote != nil {
		q := *c.quote
		snap.Quote = &q
	}
	if c.exec != nil {
		e := *c.exec
		snap.Execution = &e
	}
	return snap
}

// notifyLocked fans the current snapshot out to stream subscribers.
// Caller holds the lock.
func (c *Coordinator) notifyLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// taxonomyName collapses a handshake error to its taxonomy label; the
// remote-provided detail stays in logs.
func taxonomyName(err error) string {
	switch {
	case errors.Is(err, model.ErrQuoteExpired):
		return "QuoteExpired"
	case errors.Is(err, model.ErrQuoteNotFound):
		return "QuoteNotFound"
	case errors.Is(err, model.ErrHandshakeRejected):
		return "HandshakeRejected"
	case errors.Is(err, model.ErrExecutionRejected):
		return "ExecutionRejected"
	case errors.Is(err, model.ErrNetwork):
		return "NetworkFailure"
	default:
		return err.Error()
	}
}

func terminalError(st model.TradeStatus) string {
	if st.Error != "" {
		return st.Error
	}
	return "swap failed"
}
