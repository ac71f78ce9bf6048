package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donormatch/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードとルート別の処理時間を記録するミドルウェアを返す。
// ルートはchiのパターン（/requests/{id} など）で集約する。
func NewMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = r.Method + " " + pattern
				}
			}
			collector.RecordHTTPStatus(rec.statusCode)
			collector.RecordHTTPLatency(route, time.Since(start))
		})
	}
}
