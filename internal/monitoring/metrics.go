package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsService records HTTP, risk and freeze metrics for Prometheus.
type MetricsService interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordRiskScore(level string, score int)
	RecordTransactionOutcome(status string)
	RecordFreeze(trigger string)
	RecordUnfreeze(trigger string)
	RecordConfirmationTimeout()
}

type metricsService struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	riskScores      *prometheus.HistogramVec
	txnOutcomes     *prometheus.CounterVec
	freezes         *prometheus.CounterVec
	unfreezes       *prometheus.CounterVec
	confirmTimeouts prometheus.Counter
}

func NewMetricsService() MetricsService {
	return &metricsService{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudwallet_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),

		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraudwallet_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		riskScores: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraudwallet_risk_score",
			Help:    "Distribution of anomaly scores by resulting risk level",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"level"}),

		txnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudwallet_transactions_total",
			Help: "Transactions by final status",
		}, []string{"status"}),

		freezes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudwallet_freezes_total",
			Help: "Account freezes by trigger",
		}, []string{"trigger"}),

		unfreezes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudwallet_unfreezes_total",
			Help: "Account unfreezes by trigger",
		}, []string{"trigger"}),

		confirmTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fraudwallet_confirmation_timeouts_total",
			Help: "Pending transactions blocked by the confirmation sweeper",
		}),
	}
}

func (m *metricsService) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, httpStatusClass(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *metricsService) RecordRiskScore(level string, score int) {
	m.riskScores.WithLabelValues(level).Observe(float64(score))
}

func (m *metricsService) RecordTransactionOutcome(status string) {
	m.txnOutcomes.WithLabelValues(status).Inc()
}

func (m *metricsService) RecordFreeze(trigger string) {
	m.freezes.WithLabelValues(trigger).Inc()
}

func (m *metricsService) RecordUnfreeze(trigger string) {
	m.unfreezes.WithLabelValues(trigger).Inc()
}

func (m *metricsService) RecordConfirmationTimeout() {
	m.confirmTimeouts.Inc()
}

func httpStatusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoopMetrics is used in tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NoopMetrics) RecordRiskScore(string, int)                          {}
func (NoopMetrics) RecordTransactionOutcome(string)                      {}
func (NoopMetrics) RecordFreeze(string)                                  {}
func (NoopMetrics) RecordUnfreeze(string)                                {}
func (NoopMetrics) RecordConfirmationTimeout()                           {}
