package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_requests_total",
			Help: "Total number of API requests by rate limit bucket and result",
		},
		[]string{"bucket", "result"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_retries_total",
			Help: "Total number of request retries by error kind",
		},
		[]string{"kind"},
	)

	rateLimitWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trading_core_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limit tokens",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bucket"},
	)

	// Order metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_orders_total",
			Help: "Total number of orders by symbol and final status",
		},
		[]string{"symbol", "status"},
	)

	// Risk metrics
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_risk_alerts_total",
			Help: "Total number of risk alerts by severity",
		},
		[]string{"severity"},
	)

	portfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_portfolio_value",
			Help: "Current portfolio value at cost basis",
		},
	)

	currentDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_current_drawdown",
			Help: "Current portfolio drawdown ratio",
		},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(rateLimitWait)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(alertsTotal)
	prometheus.MustRegister(portfolioValue)
	prometheus.MustRegister(currentDrawdown)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordRequest records a completed API request
func RecordRequest(bucket, result string) {
	requestsTotal.WithLabelValues(bucket, result).Inc()
}

// RecordRetry records a retried request attempt
func RecordRetry(kind string) {
	retriesTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimitWait records time spent waiting on a rate limit bucket
func ObserveRateLimitWait(bucket string, seconds float64) {
	rateLimitWait.WithLabelValues(bucket).Observe(seconds)
}

// RecordOrder records an order reaching a status
func RecordOrder(symbol, status string) {
	ordersTotal.WithLabelValues(symbol, status).Inc()
}

// RecordAlert records a risk alert
func RecordAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// UpdatePortfolio updates the portfolio gauges
func UpdatePortfolio(value, drawdown float64) {
	portfolioValue.Set(value)
	currentDrawdown.Set(drawdown)
}
