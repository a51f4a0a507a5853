// Package metrics 汇总排考核心的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "examtt"

var (
	etlRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "etl",
		Name:      "runs_total",
		Help:      "ETL runs broken down by final status.",
	}, []string{"status"})

	etlRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "etl",
		Name:      "rows_total",
		Help:      "Staged rows processed by the normalizer, by entity kind and outcome.",
	}, []string{"kind", "outcome"})

	etlDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "etl",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one normalizer run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "version",
		Name:      "publish_total",
		Help:      "Publish attempts by result.",
	}, []string{"result"})

	conflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "conflict",
		Name:      "detected_total",
		Help:      "Conflict rows written by recomputation, by conflict type.",
	}, []string{"type"})

	conflictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "conflict",
		Name:      "recompute_duration_seconds",
		Help:      "Wall time of one version conflict recomputation.",
		Buckets:   prometheus.DefBuckets,
	})

	jobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "transitions_total",
		Help:      "Timetable job status transitions by target status.",
	}, []string{"status"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "running",
		Help:      "Optimizer jobs currently executing in the worker pool.",
	})
)

// RecordETLRun 记录一次 ETL 运行
func RecordETLRun(status string, seconds float64) {
	etlRuns.WithLabelValues(status).Inc()
	etlDuration.Observe(seconds)
}

// RecordETLRows 记录某类暂存行的处理结果（upserted / skipped / invalid）
func RecordETLRows(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	etlRows.WithLabelValues(kind, outcome).Add(float64(n))
}

// RecordPublish 记录发布结果
func RecordPublish(result string) {
	publishes.WithLabelValues(result).Inc()
}

// RecordConflicts 记录一次冲突重算
func RecordConflicts(countByType map[string]int, seconds float64) {
	for typ, n := range countByType {
		conflictsDetected.WithLabelValues(typ).Add(float64(n))
	}
	conflictDuration.Observe(seconds)
}

// RecordJobTransition 记录任务状态迁移
func RecordJobTransition(status string) {
	jobTransitions.WithLabelValues(status).Inc()
}

// JobStarted / JobFinished 维护运行中任务数
func JobStarted()  { jobsRunning.Inc() }
func JobFinished() { jobsRunning.Dec() }

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
