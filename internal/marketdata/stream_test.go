package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
)

// tickServer upgrades incoming connections, captures the subscribe
// message and replays the scripted ticks.
func tickServer(t *testing.T, ticks []tickerMessage, subscribed chan<- []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, message, err := conn.ReadMessage()
		require.NoError(t, err)
		var sub struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
		}
		require.NoError(t, json.Unmarshal(message, &sub))
		require.Equal(t, "SUBSCRIBE", sub.Method)
		if subscribed != nil {
			subscribed <- sub.Params
		}

		for _, tick := range ticks {
			data, err := json.Marshal(tick)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
		}

		// Hold the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// TestStream_TicksMarkLedger tests that received ticks update the cache
// and mark open positions
func TestStream_TicksMarkLedger(t *testing.T) {
	ticks := []tickerMessage{
		{Symbol: "BTC-USD", Price: 50000},
		{Symbol: "ETH-USD", Price: 3000},
	}
	subscribed := make(chan []string, 1)
	server := tickServer(t, ticks, subscribed)
	defer server.Close()

	ledger := position.NewLedger()
	require.NoError(t, ledger.ApplyFill("BTC-USD", position.SideBuy, 1, 40000, "manual"))

	health := monitoring.NewHealthChecker()
	stream := NewStream(wsURL(server), ledger, health, []string{"BTC-USD", "ETH-USD"})
	require.NoError(t, stream.Start(context.Background()))
	defer stream.Stop()

	select {
	case params := <-subscribed:
		assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, params)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe message not received")
	}

	require.Eventually(t, func() bool {
		_, ok := stream.LastPrice("ETH-USD")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	price, ok := stream.LastPrice("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 50000.0, price)

	pos, ok := ledger.GetPosition("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 50000.0, pos.CurrentPrice)
	assert.InDelta(t, 10000.0, pos.UnrealizedPnL, 0.001)
}

// TestStream_IgnoresMalformedTicks tests that bad payloads do not
// poison the price cache
func TestStream_IgnoresMalformedTicks(t *testing.T) {
	ledger := position.NewLedger()
	stream := NewStream("ws://unused", ledger, monitoring.NewHealthChecker(), nil)

	stream.handleMessage([]byte(`not json`))
	stream.handleMessage([]byte(`{"symbol":"","price":100}`))
	stream.handleMessage([]byte(`{"symbol":"BTC-USD","price":-1}`))

	_, ok := stream.LastPrice("BTC-USD")
	assert.False(t, ok)
}

// TestStream_ConnectFailure tests that an unreachable feed surfaces an
// error from Start
func TestStream_ConnectFailure(t *testing.T) {
	stream := NewStream("ws://127.0.0.1:1/feed", position.NewLedger(), monitoring.NewHealthChecker(), nil)
	err := stream.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}
