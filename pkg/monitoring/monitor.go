package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 评分流程
	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_submissions_total",
			Help: "Scored submissions by outcome",
		},
		[]string{"outcome"}, // scored | replayed | not_found | invalid | busy | failed
	)

	EstimatorIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_estimator_iterations",
			Help:    "Newton-Raphson iterations per ability estimate",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 25},
		},
	)

	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_save_duration_seconds",
			Help:    "Duration of the scoring result transaction including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	QuestionRebases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_question_rebases_total",
			Help: "Question counter updates re-applied on top of concurrently committed counts",
		},
	)

	SaveRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_save_retries_total",
			Help: "Scoring transactions retried after a conflict",
		},
	)
)

const (
	OutcomeScored   = "scored"
	OutcomeReplayed = "replayed"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeBusy     = "busy"
	OutcomeFailed   = "failed"
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SubmissionCounter,
			EstimatorIterations,
			SaveDuration,
			QuestionRebases,
			SaveRetries,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
