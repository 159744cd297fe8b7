package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/position"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartialFilled Status = "PARTIAL_FILLED"
	StatusFilled        Status = "FILLED"
	StatusCancelled     Status = "CANCELLED"
	StatusRejected      Status = "REJECTED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is one submitted order's tracked state. The invariant
// FilledQuantity + RemainingQuantity == Quantity holds after placement.
type Order struct {
	ID                string        `json:"order_id"`
	ClientID          string        `json:"client_order_id"`
	Symbol            string        `json:"symbol"`
	Side              position.Side `json:"side"`
	Type              string        `json:"type"`
	Quantity          float64       `json:"quantity"`
	Price             float64       `json:"price,omitempty"`
	Status            Status        `json:"status"`
	FilledQuantity    float64       `json:"filled_quantity"`
	RemainingQuantity float64       `json:"remaining_quantity"`
	AvgFillPrice      float64       `json:"avg_fill_price,omitempty"`
	Fee               float64       `json:"fee"`
	Strategy          string        `json:"strategy,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`

	// Watermark of fill quantity already applied to the position ledger.
	// Re-polling a status that reports the same filled quantity must not
	// apply the fill twice.
	appliedFill float64
}

// IsActive reports whether the order can still fill or be cancelled.
func (o *Order) IsActive() bool {
	return o.Status == StatusPending || o.Status == StatusPartialFilled
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %.6f %s (%.6f filled, %s)",
		o.ID, o.Side, o.Symbol, o.Quantity, o.Type, o.FilledQuantity, o.Status)
}

// mapBrokerStatus normalizes a brokerage status string onto the lifecycle
// states.
func mapBrokerStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, " ", "_")) {
	case "NEW", "PENDING", "OPEN", "ACCEPTED":
		return StatusPending, nil
	case "PARTIAL_FILLED", "PARTIALLY_FILLED":
		return StatusPartialFilled, nil
	case "FILLED", "EXECUTED":
		return StatusFilled, nil
	case "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	case "REJECTED":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}
