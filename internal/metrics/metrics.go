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
// フィードアセンブラ・ミューテーション調整役・ワーカーから利用する。
type MetricsCollector interface {
	RecordFeedAssembly(duration time.Duration, batchCount int)
	RecordFeedFailure()
	RecordMutationRollback(kind string)
	RecordFollowRepairEnqueued()
	RecordFollowRepairResolved()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedAssemblyLatency prometheus.Histogram
	feedBatchQueries    prometheus.Counter
	feedFailures        prometheus.Counter
	mutationRollbacks   *prometheus.CounterVec
	repairEnqueued      prometheus.Counter
	repairResolved      prometheus.Counter
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedAssemblyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chirp_feed_assembly_latency_seconds",
			Help:    "フィード組み立てのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		feedBatchQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chirp_feed_batch_queries_total",
			Help: "フィードのファンアウトバッチクエリの合計数",
		}),
		feedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chirp_feed_failures_total",
			Help: "フィード組み立て失敗の合計数",
		}),
		mutationRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chirp_mutation_rollbacks_total",
			Help: "楽観的ミューテーションの巻き戻し回数（種別ごと）",
		}, []string{"kind"}),
		repairEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chirp_follow_repairs_enqueued_total",
			Help: "登録されたフォロー修復レコードの合計数",
		}),
		repairResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chirp_follow_repairs_resolved_total",
			Help: "解決されたフォロー修復レコードの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chirp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.feedAssemblyLatency,
		c.feedBatchQueries,
		c.feedFailures,
		c.mutationRollbacks,
		c.repairEnqueued,
		c.repairResolved,
		c.httpStatus,
	)

	return c
}

// RecordFeedAssembly はフィード組み立ての所要時間とバッチ数を記録する。
func (c *Collector) RecordFeedAssembly(duration time.Duration, batchCount int) {
	c.feedAssemblyLatency.Observe(duration.Seconds())
	c.feedBatchQueries.Add(float64(batchCount))
}

// RecordFeedFailure はフィード組み立て失敗を記録する。
func (c *Collector) RecordFeedFailure() {
	c.feedFailures.Inc()
}

// RecordMutationRollback はミューテーションの巻き戻しを記録する。
func (c *Collector) RecordMutationRollback(kind string) {
	c.mutationRollbacks.WithLabelValues(kind).Inc()
}

// RecordFollowRepairEnqueued はフォロー修復レコードの登録を記録する。
func (c *Collector) RecordFollowRepairEnqueued() {
	c.repairEnqueued.Inc()
}

// RecordFollowRepairResolved はフォロー修復レコードの解決を記録する。
func (c *Collector) RecordFollowRepairResolved() {
	c.repairResolved.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
