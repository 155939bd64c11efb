// Package metrics exposes the Prometheus registry used by the Audisto adapter.
// Metrics are declared in their own packages (client, gate, pagination) via
// promauto; this package serves them and documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the adapter.
var Registry = prometheus.DefaultRegisterer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux with /metrics and a /health liveness probe.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler)
	return mux
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - audisto_requests_total{endpoint, status} (Counter): requests by path template and HTTP status
//   - audisto_request_duration_seconds{endpoint} (Histogram): attempt duration by path template
//   - audisto_errors_total{class} (Counter): failures by class
//
// Retry Metrics (pkg/client):
//   - audisto_retries_total{error_class} (Counter): retries by error class
//   - audisto_retry_backoff_seconds{error_class} (Histogram): backoff delay by error class
//   - audisto_retry_exhausted_total{error_class} (Counter): requests that exhausted retries
//
// Validation Metrics (pkg/client):
//   - audisto_shape_fallback_total{model} (Counter): responses returned raw after failing validation
//
// Gate Metrics (pkg/gate):
//   - audisto_gate_wait_seconds{backend} (Histogram): time waiting for the single-flight gate
//   - audisto_gate_in_flight{backend} (Gauge): requests holding the gate (0 or 1 per process)
//
// Pagination Metrics (pkg/pagination):
//   - audisto_pages_fetched_total (Counter): chunk pages fetched
//
// Example Prometheus Queries:
//
//   # Upstream contract drift
//   increase(audisto_shape_fallback_total[1h]) > 0
//
//   # Rate limit pressure
//   rate(audisto_retries_total{error_class="rate_limit"}[5m])
//
//   # P95 attempt latency
//   histogram_quantile(0.95, rate(audisto_request_duration_seconds_bucket[5m]))
