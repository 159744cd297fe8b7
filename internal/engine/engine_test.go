package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-trading-core/internal/broker"
	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/order"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// loopBroker answers the background loops: balance probes toggle on the
// failing flag and every status poll reports the same partial fill.
type loopBroker struct {
	failing      int32
	balanceCalls int32
	statusCalls  int32
}

func (b *loopBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{OrderID: "ord-1", Status: "NEW"}, nil
}

func (b *loopBroker) CancelOrder(ctx context.Context, orderID, symbol string) error {
	return nil
}

func (b *loopBroker) OrderStatus(ctx context.Context, orderID, symbol string) (broker.OrderUpdate, error) {
	atomic.AddInt32(&b.statusCalls, 1)
	return broker.OrderUpdate{
		OrderID:        orderID,
		Status:         "PARTIAL_FILLED",
		FilledQuantity: 0.5,
		AvgFillPrice:   101,
	}, nil
}

func (b *loopBroker) Ticker(ctx context.Context, symbol string) (broker.Ticker, error) {
	return broker.Ticker{Symbol: symbol, Last: 100}, nil
}

func (b *loopBroker) AccountBalances(ctx context.Context) ([]broker.Balance, error) {
	atomic.AddInt32(&b.balanceCalls, 1)
	if atomic.LoadInt32(&b.failing) != 0 {
		return nil, fmt.Errorf("brokerage unreachable")
	}
	return []broker.Balance{{Currency: "USD", Total: 10000, Available: 10000}}, nil
}

func newTestEngine(b broker.Broker, healthInterval, riskInterval time.Duration) (*Engine, *order.Manager, *monitoring.HealthChecker) {
	cfg := &config.Config{}
	cfg.Monitoring.HealthInterval = healthInterval
	cfg.Monitoring.RiskInterval = riskInterval

	ledger := position.NewLedger()
	riskEngine := risk.NewEngine(config.RiskConfig{
		MaxPortfolioRisk:     0.10,
		RiskPerTrade:         0.50,
		MaxCorrelation:       5,
		MaxDrawdown:          0.20,
		MaxPositions:         10,
		MinOrderSize:         0.0001,
		DefaultPortfolioSize: 10000,
	}, ledger, nil)
	orders := order.NewManager(b, riskEngine, ledger)
	health := monitoring.NewHealthChecker()

	return New(cfg, b, ledger, riskEngine, orders, nil, health), orders, health
}

// TestEngine_StartStop tests that the background loops start and join
// promptly on Stop
func TestEngine_StartStop(t *testing.T) {
	eng, _, _ := newTestEngine(&loopBroker{}, 10*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	eng.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

// TestEngine_StopInterruptsErrorBackoff tests that cancellation cuts the
// error backoff sleep short instead of waiting it out
func TestEngine_StopInterruptsErrorBackoff(t *testing.T) {
	lb := &loopBroker{failing: 1}
	eng, _, _ := newTestEngine(lb, 10*time.Millisecond, time.Hour)

	require.NoError(t, eng.Start(context.Background()))

	// Wait for the first failed probe so the health loop is inside its
	// backoff sleep.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&lb.balanceCalls) > 0
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	eng.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

// TestEngine_RiskLoopPollsActiveOrders tests that the risk cycle polls
// open orders and their fills reach the ledger
func TestEngine_RiskLoopPollsActiveOrders(t *testing.T) {
	lb := &loopBroker{}
	eng, orders, _ := newTestEngine(lb, time.Hour, 10*time.Millisecond)

	_, err := orders.Place(context.Background(), order.PlaceRequest{
		Symbol: "BTCUSD", Side: position.SideBuy, Quantity: 1, Price: 100,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	require.Eventually(t, func() bool {
		_, ok := eng.Ledger().GetPosition("BTCUSD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	pos, ok := eng.Ledger().GetPosition("BTCUSD")
	require.True(t, ok)
	assert.InDelta(t, 0.5, pos.Quantity, 1e-9)

	o, ok := orders.Get("ord-1")
	require.True(t, ok)
	assert.Equal(t, order.StatusPartialFilled, o.Status)
	assert.Greater(t, atomic.LoadInt32(&lb.statusCalls), int32(0))
}

// TestEngine_HealthCheckRecovery tests that a successful probe clears
// errors recorded by earlier failures
func TestEngine_HealthCheckRecovery(t *testing.T) {
	lb := &loopBroker{failing: 1}
	eng, _, health := newTestEngine(lb, time.Hour, time.Hour)

	require.Error(t, eng.checkHealth(context.Background()))
	health.AddError("brokerage unreachable")

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	var status monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.NotEmpty(t, status.Errors)
	assert.False(t, status.IsConnected)

	atomic.StoreInt32(&lb.failing, 0)
	require.NoError(t, eng.checkHealth(context.Background()))

	rec = httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	var recovered monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recovered))
	assert.Equal(t, "healthy", recovered.Status)
	assert.True(t, recovered.IsConnected)
	assert.Empty(t, recovered.Errors)
}
