package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
)

// Collector collects and exposes metrics for the reconciliation rules engine
type Collector struct {
	config *config.MetricsConfig
	logger *zap.Logger

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Evaluation metrics
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	ruleHitsTotal      *prometheus.CounterVec

	// Batch metrics
	batchesTotal        *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
	batchLinesProcessed *prometheus.CounterVec

	// Storage metrics
	dbQueriesTotal  *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	// Cache metrics
	cacheOperationsTotal *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(cfg *config.MetricsConfig, logger *zap.Logger) *Collector {
	if !cfg.Enabled {
		logger.Info("metrics collection disabled")
		return &Collector{
			config: cfg,
			logger: logger,
		}
	}

	histogramBuckets := cfg.HistogramBuckets
	if len(histogramBuckets) == 0 {
		histogramBuckets = []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}
	}

	collector := &Collector{
		config: cfg,
		logger: logger,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recon_rules_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: histogramBuckets,
			},
			[]string{"method", "endpoint"},
		),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_evaluations_total",
				Help: "Total number of line evaluations performed",
			},
			[]string{"scope", "outcome"}, // outcome: matched/unmatched/failed
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recon_rules_evaluation_duration_seconds",
				Help:    "Single-line evaluation duration in seconds",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"scope"},
		),

		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_rule_hits_total",
				Help: "Total number of times each rule won an evaluation",
			},
			[]string{"rule_id"},
		),

		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_batches_total",
				Help: "Total number of batch runs",
			},
			[]string{"scope"},
		),

		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recon_rules_batch_duration_seconds",
				Help:    "Batch run duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"scope"},
		),

		batchLinesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_batch_lines_total",
				Help: "Total number of lines processed across batch runs",
			},
			[]string{"scope", "result"}, // result: classified/failed
		),

		dbQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "result"},
		),

		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recon_rules_db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		cacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recon_rules_cache_operations_total",
				Help: "Total number of cache operations",
			},
			[]string{"operation", "result"}, // result: hit/miss/error
		),
	}

	collector.registerMetrics()

	logger.Info("metrics collector initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("path", cfg.Path))

	return collector
}

// registerMetrics registers all metrics with Prometheus
func (m *Collector) registerMetrics() {
	if !m.config.Enabled {
		return
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.evaluationsTotal,
		m.evaluationDuration,
		m.ruleHitsTotal,
		m.batchesTotal,
		m.batchDuration,
		m.batchLinesProcessed,
		m.dbQueriesTotal,
		m.dbQueryDuration,
		m.cacheOperationsTotal,
	)
}

// RecordHTTPRequest records HTTP request metrics
func (m *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// GinMiddleware records request counts and latency per route template. The
// template keeps label cardinality bounded; requests that match no route are
// grouped under "unmatched".
func (m *Collector) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// ObserveEvaluation records a single-line evaluation outcome
func (m *Collector) ObserveEvaluation(scope models.RuleScope, outcome string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.evaluationsTotal.WithLabelValues(string(scope), outcome).Inc()
	m.evaluationDuration.WithLabelValues(string(scope)).Observe(duration.Seconds())
}

// ObserveBatch records a completed batch run
func (m *Collector) ObserveBatch(scope models.RuleScope, classified, failed int, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.batchesTotal.WithLabelValues(string(scope)).Inc()
	m.batchDuration.WithLabelValues(string(scope)).Observe(duration.Seconds())
	m.batchLinesProcessed.WithLabelValues(string(scope), "classified").Add(float64(classified))
	m.batchLinesProcessed.WithLabelValues(string(scope), "failed").Add(float64(failed))
}

// ObserveRuleHit records a winning rule
func (m *Collector) ObserveRuleHit(ruleID string) {
	if !m.config.Enabled {
		return
	}

	m.ruleHitsTotal.WithLabelValues(ruleID).Inc()
}

// RecordDBQuery records database query metrics
func (m *Collector) RecordDBQuery(operation, result string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.dbQueriesTotal.WithLabelValues(operation, result).Inc()
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheOperation records cache operation metrics
func (m *Collector) RecordCacheOperation(operation, result string) {
	if !m.config.Enabled {
		return
	}

	m.cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
