package position

import (
	"fmt"
	"math"
	"time"
)

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a net holding in one symbol. Quantity is signed: positive
// for long, negative for short. A position with zero quantity never stays
// in the ledger; it is moved to the closed log.
type Position struct {
	Symbol        string            `json:"symbol"`
	Quantity      float64           `json:"quantity"`
	AvgEntryPrice float64           `json:"avg_entry_price"`
	CurrentPrice  float64           `json:"current_price"`
	Strategy      string            `json:"strategy,omitempty"`
	UnrealizedPnL float64           `json:"unrealized_pnl"`
	RealizedPnL   float64           `json:"realized_pnl"`
	StopLoss      float64           `json:"stop_loss,omitempty"`
	TakeProfit    float64           `json:"take_profit,omitempty"`
	TrailingStop  bool              `json:"trailing_stop,omitempty"`
	OpenedAt      time.Time         `json:"opened_at"`
	ClosedAt      time.Time         `json:"closed_at,omitempty"`
	LastUpdate    time.Time         `json:"last_update"`
	UpdateCount   int               `json:"update_count"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// NewPosition creates an open position from an initial fill.
func NewPosition(symbol string, quantity, entryPrice float64, strategy string) *Position {
	return &Position{
		Symbol:        symbol,
		Quantity:      quantity,
		AvgEntryPrice: entryPrice,
		CurrentPrice:  entryPrice,
		Strategy:      strategy,
		OpenedAt:      time.Now(),
		LastUpdate:    time.Now(),
		Tags:          make(map[string]string),
	}
}

// touch records a state change on the position.
func (p *Position) touch() {
	p.LastUpdate = time.Now()
	p.UpdateCount++
}

// MarketValue returns the cost-basis value of the position.
func (p *Position) MarketValue() float64 {
	return math.Abs(p.Quantity) * p.AvgEntryPrice
}

// TotalPnL returns realized plus unrealized P&L.
func (p *Position) TotalPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL
}

// PnLPercentage returns total P&L as a fraction of cost basis.
func (p *Position) PnLPercentage() float64 {
	value := p.MarketValue()
	if value == 0 {
		return 0
	}
	return p.TotalPnL() / value
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool {
	return p.Quantity < 0
}

// IsProfitable reports whether total P&L is positive.
func (p *Position) IsProfitable() bool {
	return p.TotalPnL() > 0
}

// RiskAmount returns the per-position risk proxy: market value scaled by
// the configured risk-per-trade ratio.
func (p *Position) RiskAmount(riskPerTrade float64) float64 {
	return p.MarketValue() * riskPerTrade
}

// UpdateUnrealizedPnL refreshes unrealized P&L from the given mark price.
func (p *Position) UpdateUnrealizedPnL(currentPrice float64) {
	p.CurrentPrice = currentPrice
	if p.IsLong() {
		p.UnrealizedPnL = (currentPrice - p.AvgEntryPrice) * p.Quantity
	} else {
		p.UnrealizedPnL = (p.AvgEntryPrice - currentPrice) * math.Abs(p.Quantity)
	}
	p.touch()
}

// ShouldTriggerStopLoss reports whether the mark price has crossed the
// stop loss for the position's direction.
func (p *Position) ShouldTriggerStopLoss(currentPrice float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.IsLong() {
		return currentPrice <= p.StopLoss
	}
	return currentPrice >= p.StopLoss
}

// ShouldTriggerTakeProfit reports whether the mark price has crossed the
// take profit for the position's direction.
func (p *Position) ShouldTriggerTakeProfit(currentPrice float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.IsLong() {
		return currentPrice >= p.TakeProfit
	}
	return currentPrice <= p.TakeProfit
}

// SetStopLoss sets the stop loss price, optionally trailing.
func (p *Position) SetStopLoss(price float64, trailing bool) {
	p.StopLoss = price
	p.TrailingStop = trailing
}

// SetTakeProfit sets the take profit price.
func (p *Position) SetTakeProfit(price float64) {
	p.TakeProfit = price
}

// AddTag attaches a key/value tag to the position.
func (p *Position) AddTag(key, value string) {
	if p.Tags == nil {
		p.Tags = make(map[string]string)
	}
	p.Tags[key] = value
}

// GetTag returns the tag value, or the default when absent.
func (p *Position) GetTag(key, def string) string {
	if v, ok := p.Tags[key]; ok {
		return v
	}
	return def
}

func (p *Position) String() string {
	direction := "LONG"
	if p.IsShort() {
		direction = "SHORT"
	}
	return fmt.Sprintf("%s %s %.6f @ %.4f (PnL: %.2f)",
		direction, p.Symbol, math.Abs(p.Quantity), p.AvgEntryPrice, p.TotalPnL())
}
