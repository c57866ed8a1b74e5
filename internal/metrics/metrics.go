// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanMetrics はスキャンメトリクス収集のインターフェース。
// スキャナーとフェッチャーから利用する。ラベルは低カーディナリティに保つ。
type ScanMetrics interface {
	RecordClassified(class string, count int)
	RecordScanFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordETagHit()
	RecordScanDuration(duration time.Duration)
	RecordCandidates(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	classified   *prometheus.CounterVec
	scanFailures *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	etagHits     prometheus.Counter
	scanDuration prometheus.Histogram
	candidates   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedscan_entries_classified_total",
			Help: "分類別のエントリ数",
		}, []string{"class"}),
		scanFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedscan_scan_failures_total",
			Help: "理由タグ別のフィードスキャン失敗数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedscan_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedscan_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		etagHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedscan_etag_hits_total",
			Help: "条件付きGETのキャッシュヒット（304）数",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedscan_scan_duration_seconds",
			Help:    "フィード1件のスキャン所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedscan_candidates_total",
			Help: "下流へ引き渡した候補アイテム（new + updated）の合計数",
		}),
	}

	reg.MustRegister(
		c.classified,
		c.scanFailures,
		c.httpStatus,
		c.fetchLatency,
		c.etagHits,
		c.scanDuration,
		c.candidates,
	)

	return c
}

// RecordClassified は分類結果を記録する。
func (c *Collector) RecordClassified(class string, count int) {
	if count > 0 {
		c.classified.WithLabelValues(class).Add(float64(count))
	}
}

// RecordScanFailure はフィードスキャン失敗を理由タグ付きで記録する。
func (c *Collector) RecordScanFailure(reason string) {
	c.scanFailures.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordETagHit は条件付きGETのキャッシュヒットを記録する。
func (c *Collector) RecordETagHit() {
	c.etagHits.Inc()
}

// RecordScanDuration はフィード1件のスキャン所要時間を記録する。
func (c *Collector) RecordScanDuration(duration time.Duration) {
	c.scanDuration.Observe(duration.Seconds())
}

// RecordCandidates は下流へ引き渡した候補アイテム数を記録する。
func (c *Collector) RecordCandidates(count int) {
	if count > 0 {
		c.candidates.Add(float64(count))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ ScanMetrics = (*Collector)(nil)
