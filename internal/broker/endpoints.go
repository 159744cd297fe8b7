package broker

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// StandardEndpoints maps operations onto a conventional REST order API:
//
//	POST   /api/v1/orders
//	DELETE /api/v1/orders/{id}
//	GET    /api/v1/orders/{id}
//	GET    /api/v1/market/ticker?symbol=...
//	GET    /api/v1/account/balances
type StandardEndpoints struct{}

func (StandardEndpoints) PlaceOrder(req OrderRequest) (string, string, interface{}) {
	return http.MethodPost, "/api/v1/orders", req
}

func (StandardEndpoints) CancelOrder(orderID, symbol string) (string, string, interface{}) {
	return http.MethodDelete, "/api/v1/orders/" + url.PathEscape(orderID), nil
}

func (StandardEndpoints) OrderStatus(orderID, symbol string) (string, string) {
	return http.MethodGet, "/api/v1/orders/" + url.PathEscape(orderID)
}

func (StandardEndpoints) Ticker(symbol string) (string, string) {
	return http.MethodGet, "/api/v1/market/ticker?symbol=" + url.QueryEscape(symbol)
}

func (StandardEndpoints) AccountBalances() (string, string) {
	return http.MethodGet, "/api/v1/account/balances"
}

func (StandardEndpoints) ParseAck(data map[string]interface{}) (OrderAck, error) {
	id := asString(data["order_id"])
	if id == "" {
		id = asString(data["id"])
	}
	if id == "" {
		return OrderAck{}, fmt.Errorf("order acknowledgement missing order id")
	}
	return OrderAck{
		OrderID: id,
		Status:  asString(data["status"]),
	}, nil
}

func (StandardEndpoints) ParseUpdate(data map[string]interface{}) (OrderUpdate, error) {
	id := asString(data["order_id"])
	if id == "" {
		id = asString(data["id"])
	}
	status := asString(data["status"])
	if id == "" || status == "" {
		return OrderUpdate{}, fmt.Errorf("order status response missing id or status")
	}
	return OrderUpdate{
		OrderID:        id,
		Status:         status,
		FilledQuantity: asFloat(data["filled_quantity"]),
		AvgFillPrice:   asFloat(data["avg_fill_price"]),
		Fee:            asFloat(data["fee"]),
	}, nil
}

func (StandardEndpoints) ParseTicker(symbol string, data map[string]interface{}) (Ticker, error) {
	last := asFloat(data["last"])
	if last == 0 {
		last = asFloat(data["price"])
	}
	if last == 0 {
		return Ticker{}, fmt.Errorf("ticker response missing last price for %s", symbol)
	}
	return Ticker{
		Symbol:    symbol,
		Last:      last,
		Bid:       asFloat(data["bid"]),
		Ask:       asFloat(data["ask"]),
		Timestamp: time.Now(),
	}, nil
}

func (StandardEndpoints) ParseBalances(data map[string]interface{}) ([]Balance, error) {
	raw, ok := data["balances"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("balances response missing balances array")
	}

	out := make([]Balance, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, Balance{
			Currency:  asString(entry["currency"]),
			Total:     asFloat(entry["total"]),
			Available: asFloat(entry["available"]),
		})
	}
	return out, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		var f float64
		fmt.Sscanf(n, "%g", &f)
		return f
	default:
		return 0
	}
}
