// Package metrics exposes Prometheus collectors for the HTTP API and the
// claim, fraud and policy engines.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ClaimGuard collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "claimguard",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "claimguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	claimsFiled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "claims",
			Name:      "filed_total",
			Help:      "Claims filed by claim type.",
		},
		[]string{"claim_type"},
	)

	claimTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "claims",
			Name:      "transitions_total",
			Help:      "Claim status transitions.",
		},
		[]string{"from", "to"},
	)

	claimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "claims",
			Name:      "version_conflicts_total",
			Help:      "Claim writes rejected by the optimistic version check.",
		},
	)

	fraudAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "fraud",
			Name:      "alerts_total",
			Help:      "Fraud alerts raised by type and severity.",
		},
		[]string{"alert_type", "severity"},
	)

	fraudDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "claimguard",
			Subsystem: "fraud",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of fraud detection per claim.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	policyRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimguard",
			Subsystem: "policy",
			Name:      "renewal_actions_total",
			Help:      "Policy sweep outcomes by action.",
		},
		[]string{"action"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		claimsFiled,
		claimTransitions,
		claimConflicts,
		fraudAlerts,
		fraudDuration,
		policyRenewals,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request metrics. Routes are
// labelled with their chi pattern so IDs do not explode cardinality.
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

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordClaimFiled counts a new claim.
func RecordClaimFiled(claimType string) {
	claimsFiled.WithLabelValues(claimType).Inc()
}

// RecordTransition counts a claim status change.
func RecordTransition(from, to string) {
	claimTransitions.WithLabelValues(from, to).Inc()
}

// RecordConflict counts a lost optimistic-concurrency race.
func RecordConflict() {
	claimConflicts.Inc()
}

// RecordFraudEvaluation records how long detection took for one claim.
func RecordFraudEvaluation(duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	fraudDuration.Observe(duration.Seconds())
}

// RecordFraudAlert counts a raised alert.
func RecordFraudAlert(alertType, severity string) {
	fraudAlerts.WithLabelValues(alertType, severity).Inc()
}

// RecordRenewal counts a policy sweep outcome.
func RecordRenewal(action string) {
	policyRenewals.WithLabelValues(action).Inc()
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
