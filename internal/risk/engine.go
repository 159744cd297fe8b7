package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/notifications"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
)

const (
	maxAlertHistory   = 100
	maxMetricsHistory = 1000

	// Assumed pairwise correlation for crypto assets. Placeholder until a
	// real correlation matrix is available; the check's position in the
	// validation pipeline must not change when it is replaced.
	assumedCorrelation = 0.3
)

// Engine validates proposed trades against position-count, portfolio-risk,
// correlation, concentration and strategy-specific rules. It reads the
// position ledger but never mutates it.
type Engine struct {
	mu       sync.Mutex
	cfg      config.RiskConfig
	ledger   *position.Ledger
	notifier notifications.Notifier

	metrics Metrics
	history []Metrics
	alerts  []Alert
	rules   map[string]StrategyRule
}

// NewEngine creates a risk engine reading from the given ledger. A nil
// notifier disables alert delivery but alerts are still recorded.
func NewEngine(cfg config.RiskConfig, ledger *position.Ledger, notifier notifications.Notifier) *Engine {
	if notifier == nil {
		notifier = notifications.Noop{}
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		notifier: notifier,
		rules:    make(map[string]StrategyRule),
	}
}

// RegisterStrategyRule installs a validation hook for a named strategy.
func (e *Engine) RegisterStrategyRule(strategy string, rule StrategyRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[strategy] = rule
}

// ValidateTrade runs the validation pipeline against a proposed trade.
// Checks run in a fixed order and the first failure's reason is returned.
// When price is unknown (zero), price-dependent checks are skipped.
func (e *Engine) ValidateTrade(symbol string, side position.Side, quantity, price float64, strategy string) (bool, string) {
	if !e.checkPositionLimits(symbol, side) {
		return false, fmt.Sprintf("Position limits exceeded for %s", symbol)
	}

	if price > 0 {
		if !e.checkPortfolioRisk(side, quantity, price) {
			return false, fmt.Sprintf("Portfolio risk limits exceeded for %s", symbol)
		}
		if !e.checkCorrelationRisk() {
			return false, fmt.Sprintf("Correlation risk too high for %s", symbol)
		}
		if !e.checkConcentrationRisk(quantity, price) {
			return false, fmt.Sprintf("Concentration risk too high for %s", symbol)
		}
	}

	if !e.checkStrategyLimits(strategy, symbol, quantity, price) {
		return false, fmt.Sprintf("Strategy limits exceeded for %s", strategy)
	}

	return true, "Trade approved"
}

func (e *Engine) checkPositionLimits(symbol string, side position.Side) bool {
	count := e.ledger.OpenCount()
	if count >= e.cfg.MaxPositions {
		log.Printf("maximum positions (%d) reached", e.cfg.MaxPositions)
		return false
	}

	if side == position.SideBuy {
		if _, exists := e.ledger.GetPosition(symbol); !exists {
			if count+1 > e.cfg.MaxPositions {
				return false
			}
		}
	}
	return true
}

func (e *Engine) checkPortfolioRisk(side position.Side, quantity, price float64) bool {
	portfolioValue := e.ledger.PortfolioValue()
	if portfolioValue == 0 {
		return true
	}

	tradeValue := quantity * price
	projected := e.projectedRisk(side, tradeValue, portfolioValue)

	if projected > e.cfg.MaxPortfolioRisk {
		log.Printf("portfolio risk %.2f%% would exceed limit %.2f%%",
			projected*100, e.cfg.MaxPortfolioRisk*100)
		return false
	}
	return true
}

// projectedRisk adds a simplified linear exposure increment for the trade.
func (e *Engine) projectedRisk(side position.Side, tradeValue, portfolioValue float64) float64 {
	current := e.portfolioRisk(portfolioValue)
	increment := tradeValue / portfolioValue * 0.01
	if side == position.SideBuy {
		return current + increment
	}
	return math.Max(0, current-increment)
}

func (e *Engine) portfolioRisk(portfolioValue float64) float64 {
	if portfolioValue == 0 {
		return 0
	}
	var totalRisk float64
	for _, pos := range e.ledger.Positions() {
		totalRisk += math.Abs(pos.UnrealizedPnL)
	}
	return totalRisk / portfolioValue
}

func (e *Engine) checkCorrelationRisk() bool {
	correlation := e.correlationRisk()
	if correlation > e.cfg.MaxCorrelation {
		log.Printf("correlation risk %.2f exceeds limit %.2f", correlation, e.cfg.MaxCorrelation)
		return false
	}
	return true
}

func (e *Engine) correlationRisk() float64 {
	count := e.ledger.OpenCount()
	if count == 0 {
		return 0
	}
	return assumedCorrelation * float64(count)
}

func (e *Engine) checkConcentrationRisk(quantity, price float64) bool {
	portfolioValue := e.ledger.PortfolioValue()
	if portfolioValue == 0 {
		return true
	}

	concentration := quantity * price / portfolioValue
	if concentration > e.cfg.RiskPerTrade {
		log.Printf("position concentration %.2f%% exceeds limit %.2f%%",
			concentration*100, e.cfg.RiskPerTrade*100)
		return false
	}
	return true
}

func (e *Engine) checkStrategyLimits(strategy, symbol string, quantity, price float64) bool {
	if strategy == "" {
		return true
	}
	e.mu.Lock()
	rule, ok := e.rules[strategy]
	e.mu.Unlock()
	if !ok {
		return true
	}
	return rule(symbol, quantity, price)
}

// CalculatePositionSize computes a quantity from the per-trade risk budget
// and the stop-loss distance, floored at the configured minimum order size.
func (e *Engine) CalculatePositionSize(symbol string, entryPrice, stopLoss float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %v", entryPrice)
	}

	portfolioValue := e.ledger.PortfolioValue()
	if portfolioValue == 0 {
		portfolioValue = e.cfg.DefaultPortfolioSize
	}

	riskBudget := portfolioValue * e.cfg.RiskPerTrade

	var size float64
	if stopLoss > 0 {
		distance := math.Abs(entryPrice - stopLoss)
		if distance == 0 {
			return 0, fmt.Errorf("stop loss equals entry price for %s", symbol)
		}
		size = riskBudget / distance
	} else {
		size = riskBudget / entryPrice
	}

	size = math.Max(size, e.cfg.MinOrderSize)

	log.Printf("calculated position size for %s: %.6f (portfolio: $%.0f, risk: $%.2f)",
		symbol, size, portfolioValue, riskBudget)
	return size, nil
}

// CheckDrawdownLimits reports whether the current drawdown is within the
// configured limit. A breach emits a CRITICAL alert and returns false;
// remediation is left to the caller.
func (e *Engine) CheckDrawdownLimits() bool {
	portfolioValue := e.ledger.PortfolioValue()
	if portfolioValue == 0 {
		return true
	}

	drawdown := math.Abs(e.ledger.TotalUnrealizedPnL()) / portfolioValue

	e.mu.Lock()
	e.metrics.CurrentDrawdown = drawdown
	e.mu.Unlock()

	if drawdown > e.cfg.MaxDrawdown {
		log.Printf("drawdown %.2f%% exceeds limit %.2f%%", drawdown*100, e.cfg.MaxDrawdown*100)
		e.createAlert("DRAWDOWN_EXCEEDED",
			fmt.Sprintf("Portfolio drawdown %.2f%% exceeds limit %.2f%%",
				drawdown*100, e.cfg.MaxDrawdown*100),
			SeverityCritical)
		return false
	}
	return true
}

// UpdateRiskMetrics recomputes every metric and appends a snapshot to the
// bounded history buffer.
func (e *Engine) UpdateRiskMetrics() {
	portfolioValue := e.ledger.PortfolioValue()

	var maxPositionRisk float64
	for _, pos := range e.ledger.Positions() {
		basis := math.Max(pos.MarketValue(), 1)
		r := math.Abs(pos.UnrealizedPnL) / basis
		if r > maxPositionRisk {
			maxPositionRisk = r
		}
	}

	e.CheckDrawdownLimits()

	e.mu.Lock()
	e.metrics.TotalPortfolioRisk = e.portfolioRisk(portfolioValue)
	e.metrics.MaxPositionRisk = maxPositionRisk
	e.metrics.CorrelationRisk = e.correlationRisk()
	e.metrics.ConcentrationRisk = e.concentrationRisk(portfolioValue)
	e.metrics.Timestamp = time.Now()

	e.history = append(e.history, e.metrics)
	if len(e.history) > maxMetricsHistory {
		e.history = e.history[len(e.history)-maxMetricsHistory:]
	}
	drawdown := e.metrics.CurrentDrawdown
	e.mu.Unlock()

	monitoring.UpdatePortfolio(portfolioValue, drawdown)
}

func (e *Engine) concentrationRisk(portfolioValue float64) float64 {
	if portfolioValue == 0 {
		return 0
	}
	var largest float64
	for _, pos := range e.ledger.Positions() {
		pct := pos.MarketValue() / portfolioValue
		if pct > largest {
			largest = pct
		}
	}
	return largest
}

func (e *Engine) createAlert(alertType, message, severity string) {
	alert := Alert{
		Type:      alertType,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, alert)
	if len(e.alerts) > maxAlertHistory {
		e.alerts = e.alerts[len(e.alerts)-maxAlertHistory:]
	}
	e.mu.Unlock()

	log.Printf("risk alert [%s]: %s", severity, message)
	monitoring.RecordAlert(severity)
	if err := e.notifier.SendAlert(severity, message); err != nil {
		log.Printf("failed to deliver alert: %v", err)
	}
}

// Alerts returns a copy of the retained alert log, newest last.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Alert(nil), e.alerts...)
}

// Metrics returns the latest computed metrics snapshot.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// History returns a copy of the retained metrics history, oldest first.
func (e *Engine) History() []Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Metrics(nil), e.history...)
}

// GetRiskSummary builds the dashboard view of current risk state.
func (e *Engine) GetRiskSummary() Summary {
	e.mu.Lock()
	metrics := e.metrics
	historyLen := len(e.history)
	recent := e.alerts
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	alerts := append([]Alert(nil), recent...)
	e.mu.Unlock()

	return Summary{
		Metrics: metrics,
		Limits: Limits{
			MaxPortfolioRisk: e.cfg.MaxPortfolioRisk,
			MaxPositionRisk:  e.cfg.RiskPerTrade,
			MaxCorrelation:   e.cfg.MaxCorrelation,
			MaxDrawdown:      e.cfg.MaxDrawdown,
			MaxPositions:     e.cfg.MaxPositions,
		},
		CurrentPositions: e.ledger.OpenCount(),
		PortfolioValue:   e.ledger.PortfolioValue(),
		RecentAlerts:     alerts,
		HistoryLength:    historyLen,
	}
}

// GetPositionRisk describes one open position's exposure, or false when no
// position exists for the symbol.
func (e *Engine) GetPositionRisk(symbol string) (PositionRisk, bool) {
	pos, ok := e.ledger.GetPosition(symbol)
	if !ok {
		return PositionRisk{}, false
	}

	portfolioValue := e.ledger.PortfolioValue()
	if portfolioValue == 0 {
		portfolioValue = 1
	}

	return PositionRisk{
		Symbol:              symbol,
		PositionValue:       pos.MarketValue(),
		PortfolioPercentage: pos.MarketValue() / portfolioValue,
		UnrealizedPnL:       pos.UnrealizedPnL,
		RiskAmount:          math.Abs(pos.UnrealizedPnL),
		Strategy:            pos.Strategy,
	}, true
}
