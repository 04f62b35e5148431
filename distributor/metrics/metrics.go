// Package metrics exposes the engine's Prometheus collectors. All engine
// packages record through the helpers here; the API server serves the
// registry on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	campaignsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dropline",
			Subsystem: "campaigns",
			Name:      "created_total",
			Help:      "Total number of campaigns created.",
		},
	)

	campaignsDeactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dropline",
			Subsystem: "campaigns",
			Name:      "deactivated_total",
			Help:      "Total number of campaigns deactivated.",
		},
	)

	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dropline",
			Subsystem: "claims",
			Name:      "settled_total",
			Help:      "Total number of claim settlements by outcome.",
		},
		[]string{"outcome"},
	)

	claimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dropline",
			Subsystem: "claims",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of claim settlement including dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dropline",
			Subsystem: "dispatch",
			Name:      "executions_total",
			Help:      "Total number of executor dispatches by outcome.",
		},
		[]string{"outcome"},
	)

	receiptsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dropline",
			Subsystem: "dispatch",
			Name:      "receipts_pending",
			Help:      "Execution receipts currently awaiting a successful dispatch.",
		},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dropline",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dropline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dropline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		campaignsCreated,
		campaignsDeactivated,
		claims,
		claimDuration,
		dispatches,
		receiptsPending,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordCampaignCreated counts one successful campaign creation.
func RecordCampaignCreated() {
	campaignsCreated.Inc()
}

// RecordCampaignDeactivated counts one campaign deactivation.
func RecordCampaignDeactivated() {
	campaignsDeactivated.Inc()
}

// RecordClaim counts one claim settlement attempt by outcome
// ("settled", "rejected", "error").
func RecordClaim(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	claims.WithLabelValues(outcome).Inc()
	claimDuration.Observe(duration.Seconds())
}

// RecordDispatch counts one executor dispatch by outcome
// ("executed", "failed").
func RecordDispatch(outcome string) {
	dispatches.WithLabelValues(outcome).Inc()
}

// SetPendingReceipts tracks the pending receipt backlog.
func SetPendingReceipts(count int64) {
	receiptsPending.Set(float64(count))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, canonicalPath(r.URL.Path), strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, canonicalPath(r.URL.Path)).Observe(duration.Seconds())
	})
}

// canonicalPath collapses id-bearing segments so the path label stays low
// cardinality.
func canonicalPath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseUint(segment, 10, 64); err == nil {
			segments[i] = ":id"
			continue
		}
		if strings.HasPrefix(segment, "0x") {
			segments[i] = ":address"
		}
	}
	return strings.Join(segments, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
