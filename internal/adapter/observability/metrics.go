package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	RiotRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riot_requests_total",
			Help: "Total number of Riot API requests by method family and outcome",
		},
		[]string{"family", "outcome"},
	)
	RiotRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riot_request_duration_seconds",
			Help:    "Riot API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"family"},
	)
	RateLimitThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_throttled_total",
			Help: "Total number of server 429 responses observed",
		},
		[]string{"scope", "family"},
	)
	RateLimitWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limit_wait_seconds",
			Help:    "Time spent waiting for token-bucket admission",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"family"},
	)

	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Total number of job executions by type and terminal status",
		},
		[]string{"type", "status"},
	)
	JobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Number of job executions currently running",
		},
		[]string{"type"},
	)
	JobRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_run_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	DataReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_manager_reads_total",
			Help: "Total number of data-manager reads by kind and freshness outcome",
		},
		[]string{"kind", "freshness"},
	)

	// Detection outcome distribution
	DetectionScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_overall_score",
			Help:    "Distribution of smurf detection overall scores [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Total number of persisted detections by confidence bucket",
		},
		[]string{"confidence"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RiotRequestsTotal)
	prometheus.MustRegister(RiotRequestDuration)
	prometheus.MustRegister(RateLimitThrottledTotal)
	prometheus.MustRegister(RateLimitWaitSeconds)
	prometheus.MustRegister(JobRunsTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobRunDuration)
	prometheus.MustRegister(DataReadsTotal)
	prometheus.MustRegister(DetectionScoreHistogram)
	prometheus.MustRegister(DetectionsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveRiotRequest records one completed Riot API call.
func ObserveRiotRequest(family, outcome string, dur time.Duration) {
	RiotRequestsTotal.WithLabelValues(family, outcome).Inc()
	RiotRequestDuration.WithLabelValues(family).Observe(dur.Seconds())
}

// ObserveThrottle records a server 429 for the given scope and family.
func ObserveThrottle(scope, family string) {
	RateLimitThrottledTotal.WithLabelValues(scope, family).Inc()
}

// ObserveAdmissionWait records how long a caller waited for bucket admission.
func ObserveAdmissionWait(family string, wait time.Duration) {
	RateLimitWaitSeconds.WithLabelValues(family).Observe(wait.Seconds())
}

func StartJobRun(jobType string) {
	JobsRunning.WithLabelValues(jobType).Inc()
}

func FinishJobRun(jobType, status string, dur time.Duration) {
	JobsRunning.WithLabelValues(jobType).Dec()
	JobRunsTotal.WithLabelValues(jobType, status).Inc()
	JobRunDuration.WithLabelValues(jobType).Observe(dur.Seconds())
}

// ObserveDataRead records a data-manager read outcome.
func ObserveDataRead(kind, freshness string) {
	DataReadsTotal.WithLabelValues(kind, freshness).Inc()
}

// ObserveDetection records a persisted detection result.
func ObserveDetection(score float64, confidence string) {
	if score >= 0 && score <= 1 {
		DetectionScoreHistogram.Observe(score)
	}
	DetectionsTotal.WithLabelValues(confidence).Inc()
}
