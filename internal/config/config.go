package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the trading client.
type Config struct {
	Environment string
	LogLevel    string

	API           APIConfig
	Risk          RiskConfig
	Monitoring    MonitoringConfig
	Notifications NotificationsConfig
}

// APIConfig configures the brokerage HTTP client and its rate limiting.
type APIConfig struct {
	BaseURL            string
	WebSocketURL       string
	APIKey             string
	APISecret          string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	MaxRetries         int
	BaseBackoff        time.Duration
}

// RiskConfig configures the risk engine limits.
type RiskConfig struct {
	MaxPortfolioRisk     float64 // fraction of portfolio value, e.g. 0.10
	RiskPerTrade         float64 // per-trade risk ratio, e.g. 0.02
	MaxCorrelation       float64
	MaxDrawdown          float64
	MaxPositions         int
	MinOrderSize         float64
	DefaultPortfolioSize float64 // sizing fallback when the ledger is empty
}

// MonitoringConfig configures the health and metrics HTTP servers.
type MonitoringConfig struct {
	PrometheusPort int
	HealthPort     int
	HealthInterval time.Duration
	RiskInterval   time.Duration
}

// NotificationsConfig configures outbound alerting.
type NotificationsConfig struct {
	TelegramToken  string
	TelegramChatID string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		API: APIConfig{
			BaseURL:            getEnv("API_BASE_URL", "https://trading.example.com"),
			WebSocketURL:       getEnv("API_WS_URL", ""),
			APIKey:             getEnv("API_KEY", ""),
			APISecret:          getEnv("API_SECRET", ""),
			RateLimitPerMinute: getEnvInt("API_RATE_LIMIT_PER_MINUTE", 100),
			RequestTimeout:     getEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:         getEnvInt("API_MAX_RETRIES", 3),
			BaseBackoff:        getEnvDuration("API_BASE_BACKOFF", time.Second),
		},

		Risk: RiskConfig{
			MaxPortfolioRisk:     getEnvFloat("RISK_MAX_PORTFOLIO", 0.10),
			RiskPerTrade:         getEnvFloat("RISK_PER_TRADE", 0.02),
			MaxCorrelation:       getEnvFloat("RISK_MAX_CORRELATION", 0.7),
			MaxDrawdown:          getEnvFloat("RISK_MAX_DRAWDOWN", 0.20),
			MaxPositions:         getEnvInt("RISK_MAX_POSITIONS", 10),
			MinOrderSize:         getEnvFloat("RISK_MIN_ORDER_SIZE", 0.0001),
			DefaultPortfolioSize: getEnvFloat("RISK_DEFAULT_PORTFOLIO", 10000.0),
		},

		Monitoring: MonitoringConfig{
			PrometheusPort: getEnvInt("PROMETHEUS_PORT", 8080),
			HealthPort:     getEnvInt("HEALTH_PORT", 8081),
			HealthInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
			RiskInterval:   getEnvDuration("RISK_CHECK_INTERVAL", 10*time.Second),
		},

		Notifications: NotificationsConfig{
			TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		},
	}
}

// Validate checks the configuration for values that would break the pipeline.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.API.RateLimitPerMinute <= 0 {
		return fmt.Errorf("API_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.API.RateLimitPerMinute)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("API_MAX_RETRIES must not be negative, got %d", c.API.MaxRetries)
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("RISK_MAX_POSITIONS must be positive, got %d", c.Risk.MaxPositions)
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("RISK_MAX_DRAWDOWN must be in (0, 1), got %f", c.Risk.MaxDrawdown)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
