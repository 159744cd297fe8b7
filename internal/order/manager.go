package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-trading-core/internal/api"
	"github.com/ducminhle1904/crypto-trading-core/internal/broker"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// ErrNotFound reports an unknown order id.
var ErrNotFound = errors.New("order not found")

// ErrNotActive reports a cancel against an order that can no longer be
// cancelled. This is an expected outcome, not a fault.
var ErrNotActive = errors.New("order not active")

// RejectionError reports a trade the risk engine refused. The order was
// never submitted.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "trade rejected: " + e.Reason
}

// PlaceRequest is a trade intent entering the order pipeline.
type PlaceRequest struct {
	Symbol   string
	Side     position.Side
	Type     string
	Quantity float64
	Price    float64 // zero when unknown (market orders)
	Strategy string
}

// Manager owns the order state machine. Every trade is gated through the
// risk engine before submission, and the manager is the only component
// that applies fills to the position ledger.
type Manager struct {
	mu     sync.Mutex
	broker broker.Broker
	risk   *risk.Engine
	ledger *position.Ledger
	orders map[string]*Order
}

// NewManager creates an order manager.
func NewManager(b broker.Broker, riskEngine *risk.Engine, ledger *position.Ledger) *Manager {
	return &Manager{
		broker: b,
		risk:   riskEngine,
		ledger: ledger,
		orders: make(map[string]*Order),
	}
}

// Place validates and submits an order. A risk rejection returns a
// RejectionError and the order is never submitted; a submission failure
// surfaces the classified error and no order record is created.
func (m *Manager) Place(ctx context.Context, req PlaceRequest) (Order, error) {
	if req.Quantity <= 0 {
		return Order{}, fmt.Errorf("order quantity must be positive, got %v", req.Quantity)
	}

	accepted, reason := m.risk.ValidateTrade(req.Symbol, req.Side, req.Quantity, req.Price, req.Strategy)
	if !accepted {
		log.Printf("order rejected by risk engine: %s", reason)
		monitoring.RecordOrder(req.Symbol, "rejected")
		return Order{}, &RejectionError{Reason: reason}
	}

	clientID := uuid.NewString()
	ack, err := m.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Type:     req.Type,
		Quantity: req.Quantity,
		Price:    req.Price,
		ClientID: clientID,
	})
	if err != nil {
		return Order{}, fmt.Errorf("failed to place order for %s: %w", req.Symbol, err)
	}

	now := time.Now()
	o := &Order{
		ID:                ack.OrderID,
		ClientID:          clientID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		Price:             req.Price,
		Status:            StatusPending,
		RemainingQuantity: req.Quantity,
		Strategy:          req.Strategy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()

	log.Printf("placed order: %s", o)
	monitoring.RecordOrder(req.Symbol, "placed")
	return *o, nil
}

// PollStatus re-fetches an order from the brokerage and applies any newly
// filled quantity to the position ledger exactly once. Re-polling an
// already-applied fill is a no-op.
func (m *Manager) PollStatus(ctx context.Context, orderID string) (Order, error) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return Order{}, ErrNotFound
	}
	if o.Status.IsTerminal() {
		snapshot := *o
		m.mu.Unlock()
		return snapshot, nil
	}
	symbol := o.Symbol
	m.mu.Unlock()

	update, err := m.broker.OrderStatus(ctx, orderID, symbol)
	if err != nil {
		return Order{}, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}

	return m.applyUpdate(o, update)
}

func (m *Manager) applyUpdate(o *Order, update broker.OrderUpdate) (Order, error) {
	status, err := mapBrokerStatus(update.Status)
	if err != nil {
		return Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	filled := math.Min(update.FilledQuantity, o.Quantity)
	if filled < o.appliedFill {
		// A stale poll never rolls the watermark back.
		filled = o.appliedFill
	}

	o.FilledQuantity = filled
	o.RemainingQuantity = o.Quantity - filled
	if update.AvgFillPrice > 0 {
		o.AvgFillPrice = update.AvgFillPrice
	}
	if update.Fee > 0 {
		o.Fee = update.Fee
	}
	if o.IsActive() {
		o.Status = status
	}
	o.UpdatedAt = time.Now()

	delta := filled - o.appliedFill
	if delta > 0 {
		price := o.AvgFillPrice
		if price == 0 {
			price = o.Price
		}
		if err := m.ledger.ApplyFill(o.Symbol, o.Side, delta, price, o.Strategy); err != nil {
			return Order{}, fmt.Errorf("failed to apply fill for order %s: %w", o.ID, err)
		}
		o.appliedFill = filled
	}

	if o.Status == StatusFilled {
		monitoring.RecordOrder(o.Symbol, "filled")
	}
	return *o, nil
}

// Cancel cancels an active order. Cancelling a filled, cancelled or
// rejected order resolves to ErrNotActive rather than a fault, including
// when the order fills concurrently with the cancel request.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !o.IsActive() {
		status := o.Status
		m.mu.Unlock()
		return fmt.Errorf("cannot cancel order %s in status %s: %w", orderID, status, ErrNotActive)
	}
	symbol := o.Symbol
	m.mu.Unlock()

	if err := m.broker.CancelOrder(ctx, orderID, symbol); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Kind {
			case api.KindOrder, api.KindNotFound, api.KindInvalidRequest:
				// The order likely reached a terminal state first; sync
				// our view so any concurrent fill is applied.
				if _, pollErr := m.PollStatus(ctx, orderID); pollErr != nil {
					log.Printf("failed to sync order %s after cancel rejection: %v", orderID, pollErr)
				}
				return fmt.Errorf("cancel of order %s refused by brokerage: %w", orderID, ErrNotActive)
			}
		}
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	m.mu.Lock()
	if o.IsActive() {
		o.Status = StatusCancelled
		o.UpdatedAt = time.Now()
	}
	snapshot := *o
	m.mu.Unlock()

	log.Printf("cancelled order: %s", snapshot.String())
	monitoring.RecordOrder(snapshot.Symbol, "cancelled")
	return nil
}

// Get returns a copy of one tracked order.
func (m *Manager) Get(orderID string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Active returns copies of all orders that can still fill or be cancelled.
func (m *Manager) Active() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if o.IsActive() {
			out = append(out, *o)
		}
	}
	return out
}

// All returns copies of every tracked order.
func (m *Manager) All() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

// BySymbol returns copies of every tracked order for the symbol.
func (m *Manager) BySymbol(symbol string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out
}

// Stats summarizes tracked orders by status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// GetStats returns order counts by status.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		Total:    len(m.orders),
		ByStatus: make(map[Status]int),
	}
	for _, o := range m.orders {
		stats.ByStatus[o.Status]++
	}
	return stats
}
