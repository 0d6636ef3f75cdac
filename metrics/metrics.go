package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// operationsStarted 已启动的操作数量
	operationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodbg_operations_started_total",
			Help: "Total debugging operations started by kind",
		},
		[]string{"kind"},
	)

	// operationsCompleted 已结束的操作数量
	operationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodbg_operations_completed_total",
			Help: "Total debugging operations completed by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autodbg_operation_duration_seconds",
			Help:    "Duration of debugging operations from start to completion",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	// eventsProcessed 事件循环处理的调试事件
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodbg_events_processed_total",
			Help: "Total debugger events processed by the event loop by event type",
		},
		[]string{"event"},
	)

	engineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodbg_engine_errors_total",
			Help: "Total failed execution engine calls by call name",
		},
		[]string{"call"},
	)
)

// RecordOperationStarted 记录操作启动
func RecordOperationStarted(kind string) {
	operationsStarted.WithLabelValues(kind).Inc()
}

// RecordOperationCompleted 记录操作结束以及耗时
func RecordOperationCompleted(kind, status string, duration time.Duration) {
	operationsCompleted.WithLabelValues(kind, status).Inc()
	operationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEventProcessed 记录事件处理
func RecordEventProcessed(event string) {
	eventsProcessed.WithLabelValues(event).Inc()
}

// RecordEngineError 记录调试引擎调用失败
func RecordEngineError(call string) {
	engineErrors.WithLabelValues(call).Inc()
}

// Handler 暴露默认registry中的指标
func Handler() http.Handler {
	return promhttp.Handler()
}
