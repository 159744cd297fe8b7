package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/crypto-trading-core/internal/api"
	"github.com/ducminhle1904/crypto-trading-core/internal/broker"
	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/engine"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/marketdata"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/notifications"
	"github.com/ducminhle1904/crypto-trading-core/internal/order"
	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/ratelimit"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
	"github.com/ducminhle1904/crypto-trading-core/pkg/reporting"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting trading client in %s mode", cfg.Environment)

	healthChecker := monitoring.NewHealthChecker()

	var notifier notifications.Notifier = notifications.Noop{}
	if cfg.Notifications.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	}

	// Assemble the execution pipeline
	limiter := ratelimit.NewAPILimiter(cfg.API.RateLimitPerMinute)
	transport := api.NewHTTPTransport(cfg.API.RequestTimeout)
	signer := broker.NewHMACSigner(cfg.API.APIKey, cfg.API.APISecret)

	executor, err := api.NewExecutor(transport, limiter,
		api.WithSigner(signer),
		api.WithMaxRetries(cfg.API.MaxRetries),
		api.WithBaseBackoff(cfg.API.BaseBackoff),
	)
	if err != nil {
		log.Fatalf("Failed to create request executor: %v", err)
	}

	brk := broker.NewRESTBroker(executor, broker.StandardEndpoints{}, cfg.API.BaseURL)

	ledger := position.NewLedger()
	riskEngine := risk.NewEngine(cfg.Risk, ledger, notifier)
	orders := order.NewManager(brk, riskEngine, ledger)

	var stream *marketdata.Stream
	if cfg.API.WebSocketURL != "" {
		stream = marketdata.NewStream(cfg.API.WebSocketURL, ledger, healthChecker, nil)
	}

	eng := engine.New(cfg, brk, ledger, riskEngine, orders, stream, healthChecker)

	sessionLog, err := logger.NewLogger(cfg.Environment)
	if err != nil {
		log.Printf("Session log disabled: %v", err)
	} else {
		eng.SetSessionLog(sessionLog)
		defer sessionLog.Close()
	}

	go setupMonitoringServers(cfg, healthChecker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start trading engine: %v", err)
	}

	if err := notifier.SendAlert(risk.SeverityLow, "Trading client started"); err != nil {
		log.Printf("Failed to send startup notification: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		eng.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Printf("Shutdown timed out")
	}

	writeSessionReport(ledger, riskEngine)

	if err := notifier.SendAlert(risk.SeverityLow, "Trading client stopped"); err != nil {
		log.Printf("Failed to send shutdown notification: %v", err)
	}

	log.Println("Trading client stopped")
}

// writeSessionReport prints the final portfolio state and exports the
// session's closed positions and risk history to an xlsx workbook.
func writeSessionReport(ledger *position.Ledger, riskEngine *risk.Engine) {
	reporter := reporting.NewConsoleReporter()
	reporter.PrintPortfolioSummary(ledger.GetSummary())
	reporter.PrintRiskSummary(riskEngine.GetRiskSummary())

	closed := ledger.ClosedPositions()
	history := riskEngine.History()
	if len(closed) == 0 && len(history) == 0 {
		return
	}

	path := fmt.Sprintf("session_%s.xlsx", time.Now().Format("20060102_150405"))
	if err := reporting.NewExcelReporter().WriteSessionXLSX(closed, history, path); err != nil {
		log.Printf("Failed to write session report: %v", err)
		return
	}
	log.Printf("Session report written to %s", path)
}

func setupMonitoringServers(cfg *config.Config, healthChecker *monitoring.HealthChecker) {
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthChecker)

	go func() {
		log.Printf("Starting health server on port %d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.HealthPort), healthMux); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting Prometheus server on port %d", cfg.Monitoring.PrometheusPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), monitoring.NewMetricsHandler()); err != nil {
			log.Printf("Prometheus server error: %v", err)
		}
	}()
}
