package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/api/handlers/approvals"
	auditHandlers "github.com/silahbo-jpg/sila-system-sub000/api/handlers/audit"
	authHandlers "github.com/silahbo-jpg/sila-system-sub000/api/handlers/auth"
	notificationHandlers "github.com/silahbo-jpg/sila-system-sub000/api/handlers/notifications"
	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	auditpkg "github.com/silahbo-jpg/sila-system-sub000/internal/audit"
	"github.com/silahbo-jpg/sila-system-sub000/internal/auth"
	"github.com/silahbo-jpg/sila-system-sub000/internal/config"
	"github.com/silahbo-jpg/sila-system-sub000/internal/infra"
	"github.com/silahbo-jpg/sila-system-sub000/internal/infra/queue"
	"github.com/silahbo-jpg/sila-system-sub000/internal/logger"
	"github.com/silahbo-jpg/sila-system-sub000/internal/metrics"
	middlewarepkg "github.com/silahbo-jpg/sila-system-sub000/internal/middleware"
	"github.com/silahbo-jpg/sila-system-sub000/internal/notification"
	"github.com/silahbo-jpg/sila-system-sub000/internal/worker"
)

// SetupRouter 设置并返回 Gin 路由和后台任务服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server) {
	router := gin.New()

	// Redis 可选：不可用时队列、令牌黑名单与离线消息退回内存/降级实现
	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，任务队列与令牌黑名单已降级", zap.Error(err))
		redisClient = nil
	}

	var queueClient queue.Client
	if redisClient != nil {
		queueClient = queue.NewClient(&cfg.Redis)
	}

	// JWT 密钥：生产模式必须显式配置，防止使用弱默认值
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecret = "default_jwt_secret_key_change_in_production"
		logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值")
	}
	var jwtRedis redis.UniversalClient
	if redisClient != nil {
		jwtRedis = redisClient
	}
	jwtService := auth.NewJWTService(jwtSecret, "sila-system",
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, jwtRedis)

	identityStore := auth.NewIdentityStore(db)
	adminAudit := auditpkg.NewAdminAuditLogger(db)

	// 审批引擎
	registry := approval.NewConfigRegistry(db)
	eventBus := approval.NewEventBus(&approval.EventBusConfig{
		BufferSize: cfg.Approval.EventBufferSize,
	})

	var offlineStore notification.OfflineStore = notification.NewMemoryOfflineStore(100)
	if redisClient != nil {
		offlineStore = notification.NewRedisOfflineStore(redisClient, 200, time.Hour)
	}
	wsHub := notification.NewWebSocketHub(notification.WithOfflineStore(offlineStore))
	notifier := notification.NewApprovalNotifier(wsHub)

	manager := approval.NewManager(db, registry,
		approval.WithRoleResolver(identityStore),
		approval.WithEventBus(eventBus),
		approval.WithNotifier(notifier),
	)

	// Handlers
	authHandler := authHandlers.NewAuthHandler(jwtService, identityStore, adminAudit)
	approvalHandler := approvals.NewApprovalHandler(manager)
	configHandler := approvals.NewConfigHandler(registry, adminAudit)
	adminHandler := approvals.NewAdminHandler(manager, queueClient, adminAudit)
	metricsHandler := approvals.NewMetricsHandler(manager)
	auditHandler := auditHandlers.NewAuditHandler(adminAudit)
	wsHandler := notificationHandlers.NewWebSocketHandler(wsHub, eventBus)

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	rateLimiter := middlewarepkg.NewRateLimiter(nil)
	router.Use(middlewarepkg.RateLimitMiddleware(rateLimiter))

	// 审批决策接口单独收紧限流，防止脚本刷批
	decisionLimiter := middlewarepkg.NewRateLimiter(&middlewarepkg.RateLimiterConfig{
		RequestsPerSecond: 2,
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	})

	// 公开端点
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 认证 API（公开，不需要 JWT）
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
	}

	// 业务 API
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(jwtService))
	{
		apiV1.POST("/auth/logout", authHandler.Logout)
		apiV1.GET("/ws/notifications", wsHandler.Connect)
		apiV1.GET("/ws/workflows/:id", wsHandler.StreamWorkflow)

		// 审批请求
		approvalsGroup := apiV1.Group("/approvals")
		{
			approvalsGroup.POST("", approvalHandler.Request)
			approvalsGroup.GET("/pending", approvalHandler.Pending)
			approvalsGroup.GET("/metrics", metricsHandler.Get)
			approvalsGroup.GET("/:id", approvalHandler.GetRequest)
			approvalsGroup.GET("/:id/history", approvalHandler.GetHistory)
			approvalsGroup.POST("/:id/approve",
				middlewarepkg.RateLimitByEndpoint(decisionLimiter), approvalHandler.Approve)
			approvalsGroup.POST("/:id/reject",
				middlewarepkg.RateLimitByEndpoint(decisionLimiter), approvalHandler.Reject)
		}

		// 审批链
		workflowsGroup := apiV1.Group("/workflows")
		{
			workflowsGroup.GET("/:id", approvalHandler.GetWorkflow)
			workflowsGroup.GET("/:id/history", approvalHandler.GetWorkflowHistory)
			workflowsGroup.POST("/:id/cancel", approvalHandler.Cancel)
		}

		// 管理端点（仅管理员）
		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(auth.RequireRole("admin"))
		{
			configsGroup := adminGroup.Group("/approval-configs")
			{
				configsGroup.PUT("", configHandler.Configure)
				configsGroup.GET("", configHandler.List)
				configsGroup.GET("/:module/:service", configHandler.Get)
				configsGroup.DELETE("/:module/:service", configHandler.Disable)
			}
			adminGroup.DELETE("/approvals/:id", adminHandler.HardDelete)
			adminGroup.POST("/approvals/sweep", adminHandler.TriggerSweep)
			adminGroup.GET("/audit-logs", auditHandler.Query)
		}
	}

	// 后台任务服务器（超时巡检）
	workerServer := worker.NewServer(cfg, manager, redisClient, logger.Get())

	return router, workerServer
}
