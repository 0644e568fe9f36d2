package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/storefront/supabase/client"
)

const namespace = "storefront"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of backend calls made by the store.",
		},
		[]string{"operation", "result"},
	)

	storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backend calls made by the store.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"operation"},
	)

	backendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Total number of retried backend requests.",
		},
		[]string{"method", "path"},
	)

	circuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_state",
			Help:      "Backend circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
	)

	circuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_transitions_total",
			Help:      "Total number of circuit breaker state changes.",
		},
		[]string{"from", "to"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		storeOperations,
		storeDuration,
		backendRetries,
		circuitState,
		circuitTransitions,
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

// Observer records store operations and backend resilience events. It
// satisfies both store.Observer and client.Observer.
type Observer struct{}

// ObserveOperation records one store backend call.
func (Observer) ObserveOperation(op string, d time.Duration, err error) {
	if op == "" {
		op = "unknown"
	}
	if d <= 0 {
		d = time.Millisecond
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
	storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRetry records a retried backend request.
func (Observer) ObserveRetry(method, path string, _ int) {
	backendRetries.WithLabelValues(strings.ToUpper(method), backendPath(path)).Inc()
}

// ObserveCircuit records a circuit breaker transition.
func (Observer) ObserveCircuit(from, to client.CircuitState) {
	circuitState.Set(float64(to))
	circuitTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RegisterCacheStats exposes a product cache's counters. stats is read on
// every scrape. Registering twice is a no-op.
func RegisterCacheStats(stats func() (hits, misses, errs uint64)) error {
	collectors := []prometheus.Collector{
		cacheCounter("hits_total", "Product cache hits.", func() uint64 { h, _, _ := stats(); return h }),
		cacheCounter("misses_total", "Product cache misses.", func() uint64 { _, m, _ := stats(); return m }),
		cacheCounter("errors_total", "Product cache errors.", func() uint64 { _, _, e := stats(); return e }),
	}
	for _, c := range collectors {
		if err := Registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func cacheCounter(name, help string, value func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "product_cache",
			Name:      name,
			Help:      help,
		},
		func() float64 { return float64(value()) },
	)
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

// canonicalPath collapses ids and slugs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" || len(parts) == 1 {
		return "/" + parts[0]
	}
	if parts[1] != "admin" {
		return canonicalResource("/api", parts[1:])
	}
	if len(parts) == 2 {
		return "/api/admin"
	}
	return canonicalResource("/api/admin", parts[2:])
}

func canonicalResource(prefix string, parts []string) string {
	path := prefix + "/" + parts[0]
	switch {
	case len(parts) == 1:
		return path
	case isAction(parts[1]):
		return path + "/" + parts[1]
	case len(parts) == 2:
		return path + "/:id"
	default:
		return path + "/:id/" + parts[2]
	}
}

// isAction reports whether segment is a fixed route word rather than an id.
func isAction(segment string) bool {
	switch segment {
	case "filters", "refresh", "items", "open", "close", "toggle", "step", "shipping",
		"payment", "submit", "reset", "otp", "signout", "orders", "session", "role",
		"categories", "settings", "media", "upload":
		return true
	}
	return false
}

// backendPath keeps the first two path segments of a backend URL path, e.g.
// "/rest/v1/orders?..." becomes "/rest/v1/orders".
func backendPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}
