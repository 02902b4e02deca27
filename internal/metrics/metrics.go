package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Recorder 指标记录器
// 显式注入而非包级可变状态: 每个 Recorder 绑定自己的 Registry,
// 服务层通过依赖注入持有,测试可用独立 Registry 互不干扰
type Recorder struct {
	registry *prometheus.Registry

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	transitionsTotal   *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	idempotentReplays  prometheus.Counter
	proposalsByState   *prometheus.GaugeVec
	slaByStatus        *prometheus.GaugeVec

	databaseConnectionsActive prometheus.Gauge
	databaseConnectionsIdle   prometheus.Gauge
	databaseConnectionsMax    prometheus.Gauge
}

// NewRecorder 创建指标记录器并注册到指定 Registry
func NewRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		registry: reg,
		apiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_transitions_total",
				Help: "Total number of applied workflow transitions",
			},
			[]string{"action"},
		),
		transitionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_transition_failures_total",
				Help: "Total number of rejected or failed transitions",
			},
			[]string{"code"},
		),
		idempotentReplays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_idempotent_replays_total",
				Help: "Total number of idempotent replays served from the ledger",
			},
		),
		proposalsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "proposals_by_state",
				Help: "Number of proposals by workflow state",
			},
			[]string{"state"},
		),
		slaByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "proposals_by_sla_status",
				Help: "Number of active proposals by SLA status",
			},
			[]string{"status"},
		),
		databaseConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_active",
				Help: "Number of active database connections",
			},
		),
		databaseConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		databaseConnectionsMax: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_max",
				Help: "Maximum number of database connections",
			},
		),
	}

	reg.MustRegister(
		r.apiRequestsTotal,
		r.apiRequestDuration,
		r.transitionsTotal,
		r.transitionFailures,
		r.idempotentReplays,
		r.proposalsByState,
		r.slaByStatus,
		r.databaseConnectionsActive,
		r.databaseConnectionsIdle,
		r.databaseConnectionsMax,
	)

	// Go 运行时与进程指标(重复注册时忽略错误)
	_ = reg.Register(prometheus.NewGoCollector())
	_ = reg.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return r
}

// Handler 返回 Prometheus 指标处理器(仅暴露本 Recorder 的 Registry)
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest 记录 API 请求
func (r *Recorder) RecordAPIRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	r.apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	r.apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTransition 记录成功应用的状态转换
func (r *Recorder) RecordTransition(action string) {
	if r == nil {
		return
	}
	r.transitionsTotal.WithLabelValues(action).Inc()
}

// RecordTransitionFailure 按错误码记录被拒绝/失败的转换
func (r *Recorder) RecordTransitionFailure(code string) {
	if r == nil {
		return
	}
	r.transitionFailures.WithLabelValues(code).Inc()
}

// RecordIdempotentReplay 记录幂等回放
func (r *Recorder) RecordIdempotentReplay() {
	if r == nil {
		return
	}
	r.idempotentReplays.Inc()
}

// SetProposalsByState 更新状态分布指标
func (r *Recorder) SetProposalsByState(state string, count float64) {
	if r == nil {
		return
	}
	r.proposalsByState.WithLabelValues(state).Set(count)
}

// SetSLAStatusCount 更新 SLA 状态分布指标
func (r *Recorder) SetSLAStatusCount(status string, count float64) {
	if r == nil {
		return
	}
	r.slaByStatus.WithLabelValues(status).Set(count)
}

// UpdateDatabaseConnections 更新数据库连接数指标
func (r *Recorder) UpdateDatabaseConnections(db *gorm.DB) error {
	if r == nil {
		return nil
	}
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	r.databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	r.databaseConnectionsIdle.Set(float64(stats.Idle))
	r.databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}
