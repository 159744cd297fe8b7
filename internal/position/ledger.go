package position

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

// Ledger is the in-memory store of open positions keyed by symbol, plus a
// log of closed positions. Only the order manager mutates it; risk and
// reporting code read aggregates.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
	closed    []*Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
	}
}

// ApplyFill applies an executed fill to the ledger. A fill in the same
// direction as an existing position merges via weighted-average cost basis;
// a fill against the position reduces it and realizes P&L; reaching zero
// quantity closes the position. A fill larger than the opposing position
// closes it and opens the remainder in the new direction at the fill price.
func (l *Ledger) ApplyFill(symbol string, side Side, quantity, price float64, strategy string) error {
	if quantity <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %v", quantity)
	}
	if price <= 0 {
		return fmt.Errorf("fill price must be positive, got %v", price)
	}

	delta := quantity
	if side == SideSell {
		delta = -quantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.positions[symbol]
	if !ok {
		pos := NewPosition(symbol, delta, price, strategy)
		l.positions[symbol] = pos
		log.Printf("opened position: %s", pos)
		return nil
	}

	sameDirection := (existing.Quantity > 0) == (delta > 0)
	if sameDirection {
		totalQty := existing.Quantity + delta
		totalCost := existing.AvgEntryPrice*existing.Quantity + price*delta
		existing.AvgEntryPrice = totalCost / totalQty
		existing.Quantity = totalQty
		if existing.Strategy == "" {
			existing.Strategy = strategy
		}
		existing.touch()
		return nil
	}

	// Opposing fill: realize P&L on the reduced portion.
	reduced := math.Min(quantity, math.Abs(existing.Quantity))
	if existing.IsLong() {
		existing.RealizedPnL += (price - existing.AvgEntryPrice) * reduced
	} else {
		existing.RealizedPnL += (existing.AvgEntryPrice - price) * reduced
	}

	remaining := existing.Quantity + delta
	if remaining == 0 {
		l.closeLocked(existing)
		return nil
	}

	if (remaining > 0) == (existing.Quantity > 0) {
		// Partial reduction keeps the original cost basis.
		existing.Quantity = remaining
		existing.UpdateUnrealizedPnL(price)
		return nil
	}

	// Fill crossed through zero: close the old position and open the
	// remainder on the other side at the fill price.
	l.closeLocked(existing)
	flipped := NewPosition(symbol, remaining, price, strategy)
	l.positions[symbol] = flipped
	log.Printf("flipped position: %s", flipped)
	return nil
}

// closeLocked moves a position to the closed log. Caller holds the lock.
func (l *Ledger) closeLocked(pos *Position) {
	pos.UnrealizedPnL = 0
	pos.ClosedAt = time.Now()
	l.closed = append(l.closed, pos)
	delete(l.positions, pos.Symbol)
	log.Printf("closed position: %s realized %.2f", pos.Symbol, pos.RealizedPnL)
}

// AddPosition inserts an externally constructed position, merging with any
// existing same-symbol position by weighted average.
func (l *Ledger) AddPosition(pos *Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.positions[pos.Symbol]
	if !ok {
		l.positions[pos.Symbol] = pos
		return
	}

	totalQty := existing.Quantity + pos.Quantity
	if totalQty == 0 {
		l.closeLocked(existing)
		return
	}
	totalCost := existing.AvgEntryPrice*existing.Quantity + pos.AvgEntryPrice*pos.Quantity
	existing.AvgEntryPrice = totalCost / totalQty
	existing.Quantity = totalQty
	if existing.Strategy == "" {
		existing.Strategy = pos.Strategy
	}
	if pos.StopLoss != 0 {
		existing.StopLoss = pos.StopLoss
	}
	if pos.TakeProfit != 0 {
		existing.TakeProfit = pos.TakeProfit
	}
	for k, v := range pos.Tags {
		existing.AddTag(k, v)
	}
}

// RemovePosition closes the position for a symbol, returning it, or nil
// when no position exists.
func (l *Ledger) RemovePosition(symbol string) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return nil
	}
	l.closeLocked(pos)
	return pos
}

// GetPosition returns a copy of the open position for a symbol.
func (l *Ledger) GetPosition(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// MarkPrice refreshes the unrealized P&L of one symbol from a price tick.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[symbol]; ok {
		pos.UpdateUnrealizedPnL(price)
	}
}

// MarkPrices refreshes unrealized P&L for every symbol in the map.
func (l *Ledger) MarkPrices(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for symbol, price := range prices {
		if pos, ok := l.positions[symbol]; ok {
			pos.UpdateUnrealizedPnL(price)
		}
	}
}

// PortfolioValue returns the sum of cost-basis values across open
// positions. This deliberately uses cost basis, not mark price.
func (l *Ledger) PortfolioValue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolioValueLocked()
}

func (l *Ledger) portfolioValueLocked() float64 {
	var total float64
	for _, pos := range l.positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalUnrealizedPnL returns the sum of unrealized P&L across open positions.
func (l *Ledger) TotalUnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// TotalRealizedPnL returns the sum of realized P&L across open and closed
// positions.
func (l *Ledger) TotalRealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.RealizedPnL
	}
	for _, pos := range l.closed {
		total += pos.RealizedPnL
	}
	return total
}

// Positions returns copies of all open positions.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked(func(*Position) bool { return true })
}

// ClosedPositions returns copies of all closed positions.
func (l *Ledger) ClosedPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Position, len(l.closed))
	for i, pos := range l.closed {
		out[i] = *pos
	}
	return out
}

// PositionsByStrategy returns open positions carrying the given strategy tag.
func (l *Ledger) PositionsByStrategy(strategy string) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked(func(p *Position) bool { return p.Strategy == strategy })
}

// LongPositions returns all open long positions.
func (l *Ledger) LongPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked((*Position).IsLong)
}

// ShortPositions returns all open short positions.
func (l *Ledger) ShortPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked((*Position).IsShort)
}

// ProfitablePositions returns open positions with positive total P&L.
func (l *Ledger) ProfitablePositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked((*Position).IsProfitable)
}

// UnprofitablePositions returns open positions with non-positive total P&L.
func (l *Ledger) UnprofitablePositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked(func(p *Position) bool { return !p.IsProfitable() })
}

func (l *Ledger) filterLocked(keep func(*Position) bool) []Position {
	var out []Position
	for _, pos := range l.positions {
		if keep(pos) {
			out = append(out, *pos)
		}
	}
	return out
}

// LargestPositions returns the top-N open positions by cost-basis value.
func (l *Ledger) LargestPositions(limit int) []Position {
	return l.sorted(limit, func(a, b Position) bool {
		return a.MarketValue() > b.MarketValue()
	})
}

// MostProfitablePositions returns the top-N open positions by total P&L.
func (l *Ledger) MostProfitablePositions(limit int) []Position {
	return l.sorted(limit, func(a, b Position) bool {
		return a.TotalPnL() > b.TotalPnL()
	})
}

// WorstPerformingPositions returns the bottom-N open positions by total P&L.
func (l *Ledger) WorstPerformingPositions(limit int) []Position {
	return l.sorted(limit, func(a, b Position) bool {
		return a.TotalPnL() < b.TotalPnL()
	})
}

func (l *Ledger) sorted(limit int, less func(a, b Position) bool) []Position {
	all := l.Positions()
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// DrawdownMetrics describes loss from a prior portfolio peak, as ratios.
type DrawdownMetrics struct {
	Current     float64 `json:"current_drawdown"`
	Max         float64 `json:"max_drawdown"`
	PeakValue   float64 `json:"peak_value"`
	LowestValue float64 `json:"lowest_value"`
}

// Drawdown replays closed and open position values in reverse chronological
// order, tracking the running peak, and reports current and maximum
// drawdown as ratios of the peak.
func (l *Ledger) Drawdown() DrawdownMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	current := l.portfolioValueLocked()
	if len(l.closed) == 0 {
		return DrawdownMetrics{PeakValue: current, LowestValue: current}
	}

	values := []float64{current}
	running := current
	for i := len(l.closed) - 1; i >= 0; i-- {
		running += l.closed[i].MarketValue()
		values = append(values, running)
	}

	// values[0] is the present; higher indices reach further into the
	// past. Scan oldest to newest so peaks precede the troughs they bound.
	last := len(values) - 1
	peak := values[last]
	lowest := values[last]
	var maxDD, currentDD float64
	for i := last; i >= 0; i-- {
		value := values[i]
		if value > peak {
			peak = value
		} else if peak > 0 {
			dd := (peak - value) / peak
			if dd > maxDD {
				maxDD = dd
			}
			currentDD = dd
		}
		if value < lowest {
			lowest = value
		}
	}

	return DrawdownMetrics{
		Current:     currentDD,
		Max:         maxDD,
		PeakValue:   peak,
		LowestValue: lowest,
	}
}

// Summary is a portfolio-level snapshot for dashboards.
type Summary struct {
	OpenPositions    int     `json:"open_positions"`
	LongPositions    int     `json:"long_positions"`
	ShortPositions   int     `json:"short_positions"`
	PortfolioValue   float64 `json:"portfolio_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	RealizedPnL      float64 `json:"realized_pnl"`
	ProfitableCount  int     `json:"profitable_count"`
	ClosedPositions  int     `json:"closed_positions"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	LargestPositions []Position `json:"largest_positions,omitempty"`
}

// GetSummary builds a portfolio snapshot.
func (l *Ledger) GetSummary() Summary {
	dd := l.Drawdown()

	l.mu.RLock()
	s := Summary{
		OpenPositions:   len(l.positions),
		ClosedPositions: len(l.closed),
		CurrentDrawdown: dd.Current,
	}
	for _, pos := range l.positions {
		s.PortfolioValue += pos.MarketValue()
		s.UnrealizedPnL += pos.UnrealizedPnL
		s.RealizedPnL += pos.RealizedPnL
		if pos.IsLong() {
			s.LongPositions++
		} else {
			s.ShortPositions++
		}
		if pos.IsProfitable() {
			s.ProfitableCount++
		}
	}
	for _, pos := range l.closed {
		s.RealizedPnL += pos.RealizedPnL
	}
	l.mu.RUnlock()

	s.LargestPositions = l.LargestPositions(5)
	return s
}

// Clear closes every open position and moves it to the closed log.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions {
		pos.UnrealizedPnL = 0
		pos.ClosedAt = time.Now()
		l.closed = append(l.closed, pos)
	}
	l.positions = make(map[string]*Position)
	log.Printf("cleared all positions (%d closed total)", len(l.closed))
}

// Export serializes all open positions to JSON.
func (l *Ledger) Export() ([]byte, error) {
	return json.MarshalIndent(l.Positions(), "", "  ")
}

// Import loads positions from JSON produced by Export, merging them into
// the ledger.
func (l *Ledger) Import(data []byte) error {
	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return fmt.Errorf("failed to parse positions: %w", err)
	}

	for i := range positions {
		pos := positions[i]
		if pos.Quantity == 0 {
			continue
		}
		l.AddPosition(&pos)
	}
	return nil
}
