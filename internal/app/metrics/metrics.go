// Package metrics exposes the Prometheus collectors for the rewards engine.
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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	pointsEarned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "loyalty",
			Name:      "points_earned_total",
			Help:      "Total loyalty points credited.",
		},
	)

	pointsRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "loyalty",
			Name:      "points_redeemed_total",
			Help:      "Total loyalty points redeemed.",
		},
	)

	referralsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "referrals",
			Name:      "applied_total",
			Help:      "Total referral codes successfully applied at signup.",
		},
	)

	referralsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "referrals",
			Name:      "completed_total",
			Help:      "Total referrals activated by a qualifying order.",
		},
	)

	tierChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "tiers",
			Name:      "changes_total",
			Help:      "Total tier upgrades, labelled by new tier.",
		},
		[]string{"tier"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "settlement",
			Name:      "processed_total",
			Help:      "Total order settlements processed, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pointsEarned,
		pointsRedeemed,
		referralsApplied,
		referralsCompleted,
		tierChanges,
		settlements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
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
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPointsEarned adds credited points to the accrual counter.
func RecordPointsEarned(points int64) {
	if points > 0 {
		pointsEarned.Add(float64(points))
	}
}

// RecordPointsRedeemed adds consumed points to the redemption counter.
func RecordPointsRedeemed(points int64) {
	if points > 0 {
		pointsRedeemed.Add(float64(points))
	}
}

// RecordReferralApplied counts a successful signup-time code application.
func RecordReferralApplied() { referralsApplied.Inc() }

// RecordReferralCompleted counts an activated referral.
func RecordReferralCompleted() { referralsCompleted.Inc() }

// RecordTierChange counts a tier upgrade.
func RecordTierChange(tierName string) {
	if tierName == "" {
		tierName = "unknown"
	}
	tierChanges.WithLabelValues(tierName).Inc()
}

// RecordSettlement counts one processed settlement signal.
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
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

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/:account/" + strings.Join(parts[2:], "/")
	default:
		return "/" + parts[0]
	}
}
