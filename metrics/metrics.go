// Package metrics 提供做市核心的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set 做市核心指标集合，按 market 标签隔离。
type Set struct {
	Cycles              prometheus.Counter
	OrdersPlaced        prometheus.Counter
	OrdersCancelled     prometheus.Counter
	Fills               prometheus.Counter
	UnattributableFills prometheus.Counter
	Position            prometheus.Gauge
	Drift               prometheus.Gauge
	ReconcileRuns       prometheus.Counter
	OrphanRecoveries    prometheus.Counter
	PhantomsPurged      prometheus.Counter
	SubmitFailures      prometheus.Counter
	OracleUnavailable   prometheus.Counter
}

// NewSet 注册并返回指标集合。
func NewSet(market string) *Set {
	labels := prometheus.Labels{"market": market}
	return &Set{
		Cycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_cycles_total", Help: "决策循环执行次数", ConstLabels: labels}),
		OrdersPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_orders_placed_total", Help: "提交的新订单数", ConstLabels: labels}),
		OrdersCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_orders_cancelled_total", Help: "提交的撤单数", ConstLabels: labels}),
		Fills: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_fills_total", Help: "归属成功的成交数", ConstLabels: labels}),
		UnattributableFills: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_unattributable_fills_total", Help: "无法归属的成交数（数据丢失事件）", ConstLabels: labels}),
		Position: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mm_position_base", Help: "当前净仓位（base）", ConstLabels: labels}),
		Drift: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mm_reconcile_drift_base", Help: "最近一次对账的漂移（base）", ConstLabels: labels}),
		ReconcileRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_reconcile_runs_total", Help: "对账执行次数", ConstLabels: labels}),
		OrphanRecoveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_orphan_recoveries_total", Help: "孤儿订单触发的全量恢复次数", ConstLabels: labels}),
		PhantomsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_phantoms_purged_total", Help: "清除的幻影订单数", ConstLabels: labels}),
		SubmitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_submit_failures_total", Help: "批量提交失败次数", ConstLabels: labels}),
		OracleUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mm_oracle_unavailable_total", Help: "参考价不可用而跳过的周期数", ConstLabels: labels}),
	}
}

// StartServer 启动 Prometheus 指标服务器。addr 为空则不启动。
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
