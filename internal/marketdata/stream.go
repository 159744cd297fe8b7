package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
)

const (
	pingInterval     = 30 * time.Second
	reconnectBackoff = 5 * time.Second
	dialTimeout      = 10 * time.Second
)

// tickerMessage is the wire shape of a price update.
type tickerMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Stream consumes a brokerage price feed over WebSocket and marks open
// positions with each tick. It reconnects with a fixed backoff until the
// context is cancelled.
type Stream struct {
	url     string
	ledger  *position.Ledger
	health  *monitoring.HealthChecker
	symbols []string

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[string]float64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a price stream for the given symbols.
func NewStream(url string, ledger *position.Ledger, health *monitoring.HealthChecker, symbols []string) *Stream {
	return &Stream{
		url:     url,
		ledger:  ledger,
		health:  health,
		symbols: symbols,
		prices:  make(map[string]float64),
	}
}

// Start connects and runs the stream until the context is cancelled.
func (s *Stream) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if err := s.connect(ctx); err != nil {
		cancel()
		close(s.done)
		return err
	}

	go s.run(ctx)
	return nil
}

// Stop shuts the stream down and waits for the read loop to exit.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	<-s.done
}

// LastPrice returns the most recent price seen for a symbol.
func (s *Stream) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to price stream: %w", err)
	}

	if err := s.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.health.SetConnected(true)
	log.Printf("price stream connected: %s", s.url)
	return nil
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": s.symbols,
		"id":     1,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}
	return nil
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	go s.keepAlive(ctx)

	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.health.SetConnected(false)
			if ctx.Err() != nil {
				return
			}

			log.Printf("price stream read error: %v", err)
			if !s.reconnect(ctx) {
				return
			}
			continue
		}

		s.handleMessage(message)
	}
}

func (s *Stream) reconnect(ctx context.Context) bool {
	for {
		timer := time.NewTimer(reconnectBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		log.Printf("reconnecting to price stream")
		if err := s.connect(ctx); err != nil {
			log.Printf("reconnection failed: %v", err)
			continue
		}
		return true
	}
}

func (s *Stream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("failed to send ping: %v", err)
			}
		}
	}
}

func (s *Stream) handleMessage(message []byte) {
	var tick tickerMessage
	if err := json.Unmarshal(message, &tick); err != nil {
		log.Printf("failed to parse price message: %v", err)
		return
	}
	if tick.Symbol == "" || tick.Price <= 0 {
		return
	}

	s.mu.Lock()
	s.prices[tick.Symbol] = tick.Price
	s.mu.Unlock()

	s.ledger.MarkPrice(tick.Symbol, tick.Price)
	s.health.UpdatePrice(tick.Price)
}
