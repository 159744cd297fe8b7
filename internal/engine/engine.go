package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/broker"
	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/marketdata"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/order"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// errorBackoff is how long a background loop pauses after repeated
// internal errors before resuming its normal interval.
const errorBackoff = 30 * time.Second

// Engine owns the trading pipeline: it wires the broker, risk engine,
// order manager, ledger and market data stream together and runs the
// background health and risk monitoring loops. All background tasks are
// owned here and cancelled deterministically on Stop.
type Engine struct {
	cfg    *config.Config
	broker broker.Broker
	ledger *position.Ledger
	risk   *risk.Engine
	orders *order.Manager
	stream *marketdata.Stream
	health *monitoring.HealthChecker
	slog   *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SetSessionLog attaches a session file logger. Background loops record
// their activity there in addition to the process log. Optional.
func (e *Engine) SetSessionLog(l *logger.Logger) { e.slog = l }

// New assembles an engine from its collaborators.
func New(cfg *config.Config, b broker.Broker, ledger *position.Ledger, riskEngine *risk.Engine,
	orders *order.Manager, stream *marketdata.Stream, health *monitoring.HealthChecker) *Engine {
	return &Engine{
		cfg:    cfg,
		broker: b,
		ledger: ledger,
		risk:   riskEngine,
		orders: orders,
		stream: stream,
		health: health,
	}
}

// Orders exposes the order manager for callers submitting trade intents.
func (e *Engine) Orders() *order.Manager { return e.orders }

// Risk exposes the risk engine for summary and sizing queries.
func (e *Engine) Risk() *risk.Engine { return e.risk }

// Ledger exposes the position ledger for read-only consumers.
func (e *Engine) Ledger() *position.Ledger { return e.ledger }

// RiskSummary returns the risk engine's current dashboard view.
func (e *Engine) RiskSummary() risk.Summary { return e.risk.GetRiskSummary() }

// PositionsSummary returns the ledger's portfolio snapshot.
func (e *Engine) PositionsSummary() position.Summary { return e.ledger.GetSummary() }

// Alerts returns the risk engine's retained alert log.
func (e *Engine) Alerts() []risk.Alert { return e.risk.Alerts() }

// Start launches the market data stream and the background monitors.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.stream != nil {
		if err := e.stream.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to start market data stream: %w", err)
		}
	}

	e.wg.Add(2)
	go e.healthLoop(ctx)
	go e.riskLoop(ctx)

	log.Printf("trading engine started")
	if e.slog != nil {
		e.slog.Status("trading engine started")
	}
	return nil
}

// Stop cancels background tasks and waits for them to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	if e.stream != nil {
		e.stream.Stop()
	}
	e.wg.Wait()
	log.Printf("trading engine stopped")
	if e.slog != nil {
		e.slog.Status("trading engine stopped")
	}
}

// healthLoop periodically checks brokerage connectivity and refreshes the
// health endpoint's view. Errors are logged and backed off, never fatal.
func (e *Engine) healthLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.Monitoring.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.checkHealth(ctx); err != nil {
				log.Printf("health check failed: %v", err)
				if e.slog != nil {
					e.slog.Error("health check failed: %v", err)
				}
				e.health.AddError(err.Error())
				if !sleepCtx(ctx, errorBackoff) {
					return
				}
			}
		}
	}
}

func (e *Engine) checkHealth(ctx context.Context) error {
	_, err := e.broker.AccountBalances(ctx)
	if err != nil {
		e.health.SetConnected(false)
		return err
	}
	e.health.SetConnected(true)
	e.health.UpdateLastRequest(time.Now())
	e.health.ClearErrors()
	return nil
}

// riskLoop periodically recomputes risk metrics and polls active orders so
// fills are applied promptly.
func (e *Engine) riskLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.Monitoring.RiskInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.runRiskCycle(ctx); err != nil {
				log.Printf("risk cycle failed: %v", err)
				if !sleepCtx(ctx, errorBackoff) {
					return
				}
			}
		}
	}
}

func (e *Engine) runRiskCycle(ctx context.Context) error {
	var firstErr error
	for _, o := range e.orders.Active() {
		if _, err := e.orders.PollStatus(ctx, o.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("failed to poll order %s: %v", o.ID, err)
		}
	}

	e.risk.UpdateRiskMetrics()

	if e.slog != nil {
		m := e.risk.Metrics()
		summary := e.ledger.GetSummary()
		e.slog.Risk("positions=%d portfolio=%.2f unrealized=%.2f drawdown=%.4f",
			summary.OpenPositions, summary.PortfolioValue, summary.UnrealizedPnL, m.CurrentDrawdown)
	}
	return firstErr
}

// sleepCtx sleeps for d, returning false when the context is cancelled
// first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
