package risk

import "time"

// Severity levels for risk alerts.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Metrics is a derived snapshot of portfolio risk, recomputed on each
// update rather than owned state. All fields are ratios.
type Metrics struct {
	TotalPortfolioRisk float64   `json:"total_portfolio_risk"`
	MaxPositionRisk    float64   `json:"max_position_risk"`
	CurrentDrawdown    float64   `json:"current_drawdown"`
	CorrelationRisk    float64   `json:"correlation_risk"`
	ConcentrationRisk  float64   `json:"concentration_risk"`
	Timestamp          time.Time `json:"timestamp"`
}

// Alert is an append-only risk event, retained up to the last 100 entries.
type Alert struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Limits echoes the configured risk limits in summaries.
type Limits struct {
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
	MaxPositionRisk  float64 `json:"max_position_risk"`
	MaxCorrelation   float64 `json:"max_correlation"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxPositions     int     `json:"max_positions"`
}

// Summary is the dashboard view of the risk engine.
type Summary struct {
	Metrics          Metrics `json:"risk_metrics"`
	Limits           Limits  `json:"limits"`
	CurrentPositions int     `json:"current_positions"`
	PortfolioValue   float64 `json:"portfolio_value"`
	RecentAlerts     []Alert `json:"recent_alerts"`
	HistoryLength    int     `json:"risk_history_length"`
}

// PositionRisk describes one position's share of portfolio exposure.
type PositionRisk struct {
	Symbol              string  `json:"symbol"`
	PositionValue       float64 `json:"position_value"`
	PortfolioPercentage float64 `json:"portfolio_percentage"`
	UnrealizedPnL       float64 `json:"unrealized_pnl"`
	RiskAmount          float64 `json:"risk_amount"`
	Strategy            string  `json:"strategy,omitempty"`
}

// StrategyRule is an extensible per-strategy validation hook. It returns
// false to veto the trade.
type StrategyRule func(symbol string, quantity, price float64) bool
