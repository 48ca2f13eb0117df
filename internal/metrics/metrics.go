// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 受付結果のラベル値
const (
	OutcomeAccepted      = "accepted"
	OutcomeInvalid       = "invalid"
	OutcomeCaptchaFailed = "captcha_failed"
	OutcomeStorageFailed = "storage_failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 受付サービスやハンドラーから利用する。
type MetricsCollector interface {
	RecordSubmission(outcome string)
	RecordVerification(passed bool, duration time.Duration)
	RecordNotification(kind string, ok bool)
	RecordExport(rows int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions         *prometheus.CounterVec
	verifications       *prometheus.CounterVec
	verificationLatency prometheus.Histogram
	notifications       *prometheus.CounterVec
	exportRows          prometheus.Counter
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrsvp_submissions_total",
			Help: "出欠回答の受付結果別件数",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrsvp_captcha_verifications_total",
			Help: "CAPTCHA検証の結果別件数",
		}, []string{"result"}),
		verificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventrsvp_captcha_latency_seconds",
			Help:    "CAPTCHA検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrsvp_notifications_total",
			Help: "通知メール送信の種別・結果別件数",
		}, []string{"kind", "result"}),
		exportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrsvp_export_rows_total",
			Help: "CSVエクスポートで出力した行数の合計",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrsvp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submissions,
		c.verifications,
		c.verificationLatency,
		c.notifications,
		c.exportRows,
		c.httpStatus,
	)

	return c
}

// RecordSubmission は受付結果を記録する。
func (c *Collector) RecordSubmission(outcome string) {
	c.submissions.WithLabelValues(outcome).Inc()
}

// RecordVerification はCAPTCHA検証の結果とレイテンシを記録する。
func (c *Collector) RecordVerification(passed bool, duration time.Duration) {
	c.verifications.WithLabelValues(result(passed)).Inc()
	c.verificationLatency.Observe(duration.Seconds())
}

// RecordNotification は通知メール送信の結果を記録する。
func (c *Collector) RecordNotification(kind string, ok bool) {
	c.notifications.WithLabelValues(kind, result(ok)).Inc()
}

// RecordExport はエクスポート行数を記録する。
func (c *Collector) RecordExport(rows int) {
	c.exportRows.Add(float64(rows))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSubmission(string)                {}
func (Nop) RecordVerification(bool, time.Duration) {}
func (Nop) RecordNotification(string, bool)        {}
func (Nop) RecordExport(int)                       {}
func (Nop) RecordHTTPStatus(int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
