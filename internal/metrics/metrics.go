// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// メンバー検索の結果ラベル。
const (
	SearchFiltered   = "filtered"
	SearchUnfiltered = "unfiltered"
	SearchError      = "error"
)

// ログインの結果ラベル。
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordMemberSearch(result string, count int)
	RecordLogin(result string)
	RecordHTTPStatus(statusCode int)
	RecordGeocodeLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	memberSearch  *prometheus.CounterVec
	searchResults prometheus.Histogram
	login         *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	geocode       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		memberSearch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emerald_member_search_total",
			Help: "結果種別ごとのメンバー検索の合計数",
		}, []string{"result"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerald_member_search_results",
			Help:    "メンバー検索1回あたりの該当件数",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emerald_login_total",
			Help: "結果種別ごとのログイン試行数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emerald_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		geocode: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerald_geocode_latency_seconds",
			Help:    "ジオコーダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.memberSearch,
		c.searchResults,
		c.login,
		c.httpStatus,
		c.geocode,
	)

	return c
}

// RecordMemberSearch はメンバー検索の結果と該当件数を記録する。
// エラー時は件数を記録しない。
func (c *Collector) RecordMemberSearch(result string, count int) {
	c.memberSearch.WithLabelValues(result).Inc()
	if result != SearchError {
		c.searchResults.Observe(float64(count))
	}
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.login.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGeocodeLatency はジオコーダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordGeocodeLatency(duration time.Duration) {
	c.geocode.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
