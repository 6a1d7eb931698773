package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BaSui01/apibridge/internal/metrics"
)

// RouterConfig collects the handlers mounted on the service mux.
type RouterConfig struct {
	Tools   *ToolsHandler
	Invoke  *InvokeHandler
	Sync    *SyncHandler
	Health  *HealthHandler
	Metrics *metrics.Collector
}

// NewRouter builds the service mux. Paths follow the v1 surface: tools
// listing, invocation, sync trigger, health, and Prometheus metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Tools != nil {
		mux.HandleFunc("GET /v1/tools", cfg.Tools.HandleListTools)
	}
	if cfg.Invoke != nil {
		mux.HandleFunc("POST /v1/invoke", cfg.Invoke.HandleInvoke)
	}
	if cfg.Sync != nil {
		mux.HandleFunc("POST /v1/sync", cfg.Sync.HandleSync)
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.HandleHealthz)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.Metrics == nil {
		return mux
	}
	return withRequestMetrics(mux, cfg.Metrics)
}

// withRequestMetrics records method, path, status, and latency for every
// request.
func withRequestMetrics(next http.Handler, collector *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		start := time.Now()

		next.ServeHTTP(rw, r)

		collector.RecordHTTPRequest(r.Method, r.URL.Path, rw.StatusCode, time.Since(start))
	})
}
