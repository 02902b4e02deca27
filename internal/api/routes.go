package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/metrics"
	"github.com/cioer/DoAn-sub006/internal/service"
	"github.com/cioer/DoAn-sub006/internal/websocket"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	DB                *gorm.DB
	Recorder          *metrics.Recorder
	Validator         *auth.KeycloakTokenValidator
	Hub               *websocket.Hub
	ProposalService   service.ProposalService
	TransitionService service.TransitionService
	EvaluationService service.EvaluationService
	StatisticsService service.StatisticsService
	VerifyService     service.VerifyService
	RateLimitRPS      float64
	RateLimitBurst    int
	AllowedOrigins    []string
	EnableTracing     bool
}

// SetupRoutes 配置路由
func SetupRoutes(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件顺序: 请求 ID → 日志/指标 → 安全头 → CORS → 限流 → i18n → SLO 监控
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(cfg.Recorder))
	router.Use(SecurityHeadersMiddleware())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(CORSMiddleware(cfg.AllowedOrigins))
	}
	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	router.Use(I18nMiddleware())
	router.Use(VersionMiddleware())
	router.Use(SLAMonitorMiddleware(nil))
	if cfg.EnableTracing {
		router.Use(TracingMiddleware())
	}

	// 健康检查
	healthController := NewHealthController(cfg.DB)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler(cfg.Recorder))

	// WebSocket 路由
	if cfg.Hub != nil && cfg.Validator != nil {
		router.GET("/ws/proposals/:id", websocket.WebSocketHandler(cfg.Hub, cfg.Validator))
	}

	workflowController := NewWorkflowController(
		cfg.ProposalService, cfg.TransitionService, cfg.EvaluationService, cfg.VerifyService)
	evaluationController := NewEvaluationController(cfg.EvaluationService)
	statisticsController := NewStatisticsController(cfg.StatisticsService)

	// API v1 路由组(全部经 Keycloak 认证)
	v1 := router.Group("/api/v1")
	if cfg.Validator != nil {
		v1.Use(auth.KeycloakAuthMiddleware(cfg.Validator))
	}
	{
		proposals := v1.Group("/proposals")
		{
			proposals.POST("", workflowController.CreateProposal)
			proposals.GET("", workflowController.ListProposals)
			proposals.GET("/:id", workflowController.GetProposal)
			proposals.GET("/:id/logs", workflowController.GetLogs)
			proposals.GET("/:id/verify", workflowController.VerifyProposal)
		}

		// 状态转换统一入口,动作由路径参数指定
		v1.POST("/workflow/:id/:action", workflowController.Transition)

		evaluations := v1.Group("/evaluations")
		{
			evaluations.GET("/:proposalId", evaluationController.Aggregate)
			evaluations.GET("/:proposalId/mine", evaluationController.GetMine)
			evaluations.PUT("/:proposalId/mine", evaluationController.UpdateMine)
			evaluations.POST("/:proposalId/submit", evaluationController.Submit)
			evaluations.POST("/:proposalId/finalize", evaluationController.Finalize)
		}

		v1.GET("/statistics", statisticsController.Overview)
	}

	// 未匹配路由返回 JSON 404
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": T(c, "error.not_found"),
		})
	})

	return router
}
