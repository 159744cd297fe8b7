package broker

import "time"

// OrderRequest is a brokerage-agnostic order submission.
type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // BUY or SELL
	Type     string  `json:"type"` // MARKET or LIMIT
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	ClientID string  `json:"client_order_id,omitempty"`
}

// OrderAck is the brokerage's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID string
	Status  string
}

// OrderUpdate is the brokerage's view of an order's progress.
type OrderUpdate struct {
	OrderID        string
	Status         string
	FilledQuantity float64
	AvgFillPrice   float64
	Fee            float64
}

// Ticker is a single market price observation.
type Ticker struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Balance is one currency's account balance.
type Balance struct {
	Currency  string
	Total     float64
	Available float64
}
