package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sila_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sila_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 审批工作流指标
var (
	// ApprovalPendingGauge 当前存活（pending/escalated）的审批请求数
	ApprovalPendingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sila_approval_pending",
			Help: "当前待处理的审批请求数",
		},
		[]string{"module"},
	)

	// ApprovalDecisionsTotal 审批决定总数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sila_approval_decisions_total",
			Help: "审批决定总数（按模块、结果和决定方式）",
		},
		[]string{"module", "status", "decision_type"},
	)

	// ApprovalChainsCreatedTotal 创建的审批链总数
	ApprovalChainsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sila_approval_chains_created_total",
			Help: "创建的审批链总数",
		},
		[]string{"module"},
	)

	// ApprovalChainLength 审批链级别数分布
	ApprovalChainLength = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sila_approval_chain_length",
			Help:    "审批链包含的级别数分布",
			Buckets: []float64{1, 2, 3, 4},
		},
		[]string{"module"},
	)

	// ApprovalDurationHours 单级审批耗时（小时）
	ApprovalDurationHours = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sila_approval_duration_hours",
			Help:    "单个级别从创建到批准的耗时分布",
			Buckets: []float64{1, 4, 12, 24, 48, 96, 168},
		},
		[]string{"module"},
	)

	// ApprovalEscalationsTotal 超时升级总数
	ApprovalEscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sila_approval_escalations_total",
			Help: "审批超时升级总数",
		},
		[]string{"module"},
	)
)

// 通知指标
var (
	// WebSocketConnectionsGauge 当前 WebSocket 连接数
	WebSocketConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sila_websocket_connections",
			Help: "当前 WebSocket 连接数",
		},
	)

	// NotificationsSentTotal 站内通知推送总数
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sila_notifications_sent_total",
			Help: "站内通知推送总数（按投递结果）",
		},
		[]string{"result"},
	)
)
