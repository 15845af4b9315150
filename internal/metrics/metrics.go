// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetDefaultの結果ラベル。
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Recorder はメトリクス記録のインターフェース。
// デフォルト整合処理（enforcer）と整合ワーカーから利用する。
type Recorder interface {
	RecordSetDefault(result string)
	RecordGroupReconciled(status string)
	RecordGroupsReconciled(status string, count int)
	RecordDefaultsCleared(count int)
	RecordSweepDuration(duration time.Duration)
	SetSweepFailedGroups(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	setDefault       *prometheus.CounterVec
	groupsReconciled *prometheus.CounterVec
	defaultsCleared  prometheus.Counter
	sweepDuration    prometheus.Histogram
	sweepFailed      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		setDefault: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdeck_set_default_total",
			Help: "デフォルトアカウント設定の結果別件数",
		}, []string{"result"}),
		groupsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdeck_reconcile_groups_total",
			Help: "整合処理したグループの状態別件数",
		}, []string{"status"}),
		defaultsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postdeck_defaults_cleared_total",
			Help: "解除されたデフォルトフラグの合計数",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postdeck_sweep_duration_seconds",
			Help:    "全グループ整合処理の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sweepFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postdeck_sweep_failed_groups",
			Help: "直近の全グループ整合処理で失敗したグループ数",
		}),
	}

	reg.MustRegister(
		c.setDefault,
		c.groupsReconciled,
		c.defaultsCleared,
		c.sweepDuration,
		c.sweepFailed,
	)

	return c
}

// RecordSetDefault はデフォルト設定の結果を記録する。
func (c *Collector) RecordSetDefault(result string) {
	c.setDefault.WithLabelValues(result).Inc()
}

// RecordGroupReconciled はグループ整合の結果を記録する。
func (c *Collector) RecordGroupReconciled(status string) {
	c.groupsReconciled.WithLabelValues(status).Inc()
}

// RecordGroupsReconciled は同じ状態のグループをまとめてcount件記録する。
func (c *Collector) RecordGroupsReconciled(status string, count int) {
	if count <= 0 {
		return
	}
	c.groupsReconciled.WithLabelValues(status).Add(float64(count))
}

// RecordDefaultsCleared は解除したデフォルトフラグ数を記録する。
func (c *Collector) RecordDefaultsCleared(count int) {
	if count <= 0 {
		return
	}
	c.defaultsCleared.Add(float64(count))
}

// RecordSweepDuration は全グループ整合処理の所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// SetSweepFailedGroups は直近の整合処理で失敗したグループ数を設定する。
func (c *Collector) SetSweepFailedGroups(count int) {
	c.sweepFailed.Set(float64(count))
}

// Noop は何も記録しないRecorder。
type Noop struct{}

func (Noop) RecordSetDefault(string) {}
func (Noop) RecordGroupReconciled(string) {}
func (Noop) RecordGroupsReconciled(string, int) {}
func (Noop) RecordDefaultsCleared(int) {}
func (Noop) RecordSweepDuration(time.Duration) {}
func (Noop) SetSweepFailedGroups(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Noop{}
)
