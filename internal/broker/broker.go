package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ducminhle1904/crypto-trading-core/internal/api"
	"github.com/ducminhle1904/crypto-trading-core/internal/ratelimit"
)

// Broker is the capability surface the order manager depends on.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
	OrderStatus(ctx context.Context, orderID, symbol string) (OrderUpdate, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
	AccountBalances(ctx context.Context) ([]Balance, error)
}

// EndpointSet maps brokerage-agnostic operations onto a concrete REST API:
// which path and method each operation uses, and how to read the responses.
// One EndpointSet is written per brokerage; the request execution core is
// shared.
type EndpointSet interface {
	PlaceOrder(req OrderRequest) (method, path string, body interface{})
	CancelOrder(orderID, symbol string) (method, path string, body interface{})
	OrderStatus(orderID, symbol string) (method, path string)
	Ticker(symbol string) (method, path string)
	AccountBalances() (method, path string)

	ParseAck(data map[string]interface{}) (OrderAck, error)
	ParseUpdate(data map[string]interface{}) (OrderUpdate, error)
	ParseTicker(symbol string, data map[string]interface{}) (Ticker, error)
	ParseBalances(data map[string]interface{}) ([]Balance, error)
}

// RESTBroker drives any EndpointSet through the retrying executor, picking
// the rate limit bucket per operation class.
type RESTBroker struct {
	exec      *api.Executor
	endpoints EndpointSet
	baseURL   string
}

// NewRESTBroker creates a broker for the given API base URL.
func NewRESTBroker(exec *api.Executor, endpoints EndpointSet, baseURL string) *RESTBroker {
	return &RESTBroker{
		exec:      exec,
		endpoints: endpoints,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (b *RESTBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	method, path, body := b.endpoints.PlaceOrder(req)
	data, err := b.call(ctx, method, path, body, ratelimit.BucketOrders)
	if err != nil {
		return OrderAck{}, err
	}
	return b.endpoints.ParseAck(data)
}

func (b *RESTBroker) CancelOrder(ctx context.Context, orderID, symbol string) error {
	method, path, body := b.endpoints.CancelOrder(orderID, symbol)
	_, err := b.call(ctx, method, path, body, ratelimit.BucketOrders)
	return err
}

func (b *RESTBroker) OrderStatus(ctx context.Context, orderID, symbol string) (OrderUpdate, error) {
	method, path := b.endpoints.OrderStatus(orderID, symbol)
	data, err := b.call(ctx, method, path, nil, ratelimit.BucketOrders)
	if err != nil {
		return OrderUpdate{}, err
	}
	return b.endpoints.ParseUpdate(data)
}

func (b *RESTBroker) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	method, path := b.endpoints.Ticker(symbol)
	data, err := b.call(ctx, method, path, nil, ratelimit.BucketMarketData)
	if err != nil {
		return Ticker{}, err
	}
	return b.endpoints.ParseTicker(symbol, data)
}

func (b *RESTBroker) AccountBalances(ctx context.Context) ([]Balance, error) {
	method, path := b.endpoints.AccountBalances()
	data, err := b.call(ctx, method, path, nil, ratelimit.BucketAccount)
	if err != nil {
		return nil, err
	}
	return b.endpoints.ParseBalances(data)
}

func (b *RESTBroker) call(ctx context.Context, method, path string, body interface{}, bucket string) (map[string]interface{}, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := b.exec.Execute(ctx, method, b.baseURL+path, payload, bucket)
	if err != nil {
		return nil, err
	}

	data := resp.JSONMap()
	if data == nil {
		return nil, fmt.Errorf("unexpected non-object response from %s %s", method, path)
	}
	return data, nil
}
