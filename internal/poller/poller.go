package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/metrics"
	"github.com/nodeport-labs/swapd/pkg/model"
)

// StatusFunc queries the venue for the current state of an executing trade.
type StatusFunc func(ctx context.Context, rfqID string) (*model.TradeStatus, error)

// Poller watches executing trades until the venue reports a terminal status.
// Transient query failures are logged and swallowed: a flaky status endpoint
// must not fail a trade that may still settle.
type Poller struct {
	logger      *zap.Logger
	fetch       StatusFunc
	interval    time.Duration
	maxDuration time.Duration // 0 = watch until terminal or stopped

	active sync.Map // rfq_id -> context.CancelFunc
}

// New constructs a poller. interval is the fixed tick cadence; maxDuration
// bounds how long a single watch may run (0 disables the bound).
func New(logger *zap.Logger, fetch StatusFunc, interval, maxDuration time.Duration) *Poller {
	return &Poller{
		logger:      logger,
		fetch:       fetch,
		interval:    interval,
		maxDuration: maxDuration,
	}
}

// Watch polls the trade status for rfqID until terminal, then invokes
// onTerminal exactly once and stops. Stopping via Stop/StopAll or parent
// context cancellation is silent: onTerminal is never called for a stopped
// watch. Duplicate watches for the same rfqID are ignored.
func (p *Poller) Watch(parentCtx context.Context, rfqID string, onTerminal func(model.TradeStatus)) {
	if _, exists := p.active.Load(rfqID); exists {
		p.logger.Debug("poller.watch_already_active",
			zap.String("rfq_id", rfqID))
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	p.active.Store(rfqID, cancel)

	go func() {
		defer func() {
			p.active.Delete(rfqID)
			cancel()
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var deadline <-chan time.Time
		if p.maxDuration > 0 {
			timer := time.NewTimer(p.maxDuration)
			defer timer.Stop()
			deadline = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("poller.watch_stopped",
					zap.String("rfq_id", rfqID))
				return

			case <-deadline:
				// The trade may still settle remotely; the local record is
				// failed so the coordinator slot frees up.
				p.logger.Warn("poller.watch_deadline",
					zap.String("rfq_id", rfqID),
					zap.Duration("max_duration", p.maxDuration))
				onTerminal(model.TradeStatus{
					RequestID: rfqID,
					Status:    model.StatusFailed,
					Error:     "status polling deadline exceeded",
				})
				return

			case <-ticker.C:
				st, err := p.fetch(ctx, rfqID)
				if err != nil || st == nil {
					// Transient: keep polling at the same cadence.
					metrics.IncPollTick("error")
					p.logger.Warn("poller.tick_error",
						zap.String("rfq_id", rfqID),
						zap.Error(err))
					continue
				}

				if !st.Status.Terminal() {
					metrics.IncPollTick("pending")
					p.logger.Debug("poller.tick_pending",
						zap.String("rfq_id", rfqID),
						zap.String("status", string(st.Status)))
					continue
				}

				metrics.IncPollTick("terminal")
				p.logger.Info("poller.watch_terminal",
					zap.String("rfq_id", rfqID),
					zap.String("status", string(st.Status)),
					zap.String("txid", st.SettlementID))
				onTerminal(*st)
				return
			}
		}
	}()
}

// Stop cancels the watch for rfqID, if any, without invoking its callback.
func (p *Poller) Stop(rfqID string) {
	if cancel, ok := p.active.LoadAndDelete(rfqID); ok {
		cancel.(context.CancelFunc)()
	}
}

// StopAll cancels every active watch (coordinator teardown).
func (p *Poller) StopAll() {
	p.active.Range(func(key, value any) bool {
		p.active.Delete(key)
		value.(context.CancelFunc)()
		return true
	})
}

// Watching reports whether a watch is active for rfqID.
func (p *Poller) Watching(rfqID string) bool {
	_, ok := p.active.Load(rfqID)
	return ok
}
