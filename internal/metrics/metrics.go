// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordApplicationCreated()
	RecordApplicationWithdrawn()
	RecordApplyRejected(reason string)
	RecordRequestCreated()
	RecordRequestTransition(from, to string)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(route string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	appsCreated        prometheus.Counter
	appsWithdrawn      prometheus.Counter
	applyRejected      *prometheus.CounterVec
	requestsCreated    prometheus.Counter
	requestTransitions *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		appsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donormatch_applications_created_total",
			Help: "作成された応募の合計数",
		}),
		appsWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donormatch_applications_withdrawn_total",
			Help: "取り下げられた応募の合計数",
		}),
		applyRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donormatch_apply_rejected_total",
			Help: "前提条件違反で拒否された応募の数（理由別）",
		}, []string{"reason"}),
		requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donormatch_requests_created_total",
			Help: "作成された献血依頼の合計数",
		}),
		requestTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donormatch_request_transitions_total",
			Help: "献血依頼の状態遷移数",
		}, []string{"from", "to"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donormatch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "donormatch_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.appsCreated,
		c.appsWithdrawn,
		c.applyRejected,
		c.requestsCreated,
		c.requestTransitions,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordApplicationCreated は応募の作成を記録する。
func (c *Collector) RecordApplicationCreated() {
	c.appsCreated.Inc()
}

// RecordApplicationWithdrawn は応募の取り下げを記録する。
func (c *Collector) RecordApplicationWithdrawn() {
	c.appsWithdrawn.Inc()
}

// RecordApplyRejected は応募の拒否を理由（エラーコード）別に記録する。
func (c *Collector) RecordApplyRejected(reason string) {
	c.applyRejected.WithLabelValues(reason).Inc()
}

// RecordRequestCreated は依頼の作成を記録する。
func (c *Collector) RecordRequestCreated() {
	c.requestsCreated.Inc()
}

// RecordRequestTransition は依頼の状態遷移を記録する。
func (c *Collector) RecordRequestTransition(from, to string) {
	c.requestTransitions.WithLabelValues(from, to).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はルートパターン別の処理時間を記録する。
func (c *Collector) RecordHTTPLatency(route string, duration time.Duration) {
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordApplicationCreated()               {}
func (Nop) RecordApplicationWithdrawn()             {}
func (Nop) RecordApplyRejected(string)              {}
func (Nop) RecordRequestCreated()                   {}
func (Nop) RecordRequestTransition(string, string)  {}
func (Nop) RecordHTTPStatus(int)                    {}
func (Nop) RecordHTTPLatency(string, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// スクレイプ自体の回数もregに記録する。収集エラーは記録した上で取得できた分を返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          reg,
		EnableOpenMetrics: true,
	}))
}
