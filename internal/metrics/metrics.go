// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、ハンドラー、ワーカーから利用する。
type MetricsCollector interface {
	RecordPostCreated(isReply bool)
	RecordPostUpdated()
	RecordPostDeleted()
	RecordLike(liked bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCSRFRejected()
	RecordRateLimited(tier string)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	postsCreated    *prometheus.CounterVec
	postsUpdated    prometheus.Counter
	postsDeleted    prometheus.Counter
	likes           *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	csrfRejected    prometheus.Counter
	rateLimited     *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbs_posts_created_total",
			Help: "作成された投稿の合計数",
		}, []string{"kind"}),
		postsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbs_posts_updated_total",
			Help: "更新された投稿の合計数",
		}),
		postsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbs_posts_deleted_total",
			Help: "削除された投稿の合計数",
		}),
		likes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbs_likes_total",
			Help: "いいね操作の合計数",
		}, []string{"direction"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbs_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bbs_request_latency_seconds",
			Help:    "リクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		csrfRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbs_csrf_rejected_total",
			Help: "CSRFトークン検証で拒否されたリクエスト数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbs_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"tier"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbs_sessions_cleaned_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.postsCreated,
		c.postsUpdated,
		c.postsDeleted,
		c.likes,
		c.httpStatus,
		c.requestLatency,
		c.csrfRejected,
		c.rateLimited,
		c.sessionsCleaned,
	)

	return c
}

// RecordPostCreated は投稿作成を記録する。
func (c *Collector) RecordPostCreated(isReply bool) {
	kind := "root"
	if isReply {
		kind = "reply"
	}
	c.postsCreated.WithLabelValues(kind).Inc()
}

// RecordPostUpdated は投稿更新を記録する。
func (c *Collector) RecordPostUpdated() {
	c.postsUpdated.Inc()
}

// RecordPostDeleted は投稿削除を記録する。
func (c *Collector) RecordPostDeleted() {
	c.postsDeleted.Inc()
}

// RecordLike はいいね操作を記録する。likedは操作前の状態。
func (c *Collector) RecordLike(liked bool) {
	direction := "like"
	if liked {
		direction = "unlike"
	}
	c.likes.WithLabelValues(direction).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordCSRFRejected はCSRF検証失敗を記録する。
func (c *Collector) RecordCSRFRejected() {
	c.csrfRejected.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(tier string) {
	c.rateLimited.WithLabelValues(tier).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
