package container

import (
	"context"
	"fmt"
	"time"

	"github.com/cioer/DoAn-sub006/internal/api"
	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/config"
	"github.com/cioer/DoAn-sub006/internal/database"
	"github.com/cioer/DoAn-sub006/internal/metrics"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/service"
	"github.com/cioer/DoAn-sub006/internal/websocket"
	"github.com/cioer/DoAn-sub006/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、客户端等
type Container struct {
	db                *gorm.DB
	logger            *logrus.Logger
	recorder          *metrics.Recorder
	collector         *metrics.Collector
	hub               *websocket.Hub
	slaClock          *workflow.SLAClock
	keycloakValidator *auth.KeycloakTokenValidator

	proposalService    service.ProposalService
	transitionService  service.TransitionService
	evaluationService  service.EvaluationService
	statisticsService  service.StatisticsService
	verifyService      service.VerifyService
	auditLogService    service.AuditLogService
}

// wsNotifier 将 WebSocket 通知器适配为状态转换回调
type wsNotifier struct {
	inner *websocket.Notifier
}

func (w *wsNotifier) NotifyTransition(proposalID string, result *service.TransitionResult) {
	w.inner.NotifyTransition(proposalID, result)
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. 初始化日志
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 2. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 初始化仓储层
	proposalRepo := repository.NewProposalRepository(db)
	logRepo := repository.NewWorkflowLogRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)
	evalRepo := repository.NewEvaluationRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// 4. 初始化 SLA 时钟(配置覆盖内置默认时限)
	durations := workflow.DefaultSLADurations()
	for state, hours := range cfg.SLA.StateHours {
		durations[workflow.State(state)] = time.Duration(hours) * time.Hour
	}
	threshold := time.Duration(cfg.SLA.AtRiskThresholdHours) * time.Hour
	slaClock := workflow.NewSLAClock(durations, threshold)

	// 5. 初始化指标
	recorder := metrics.NewRecorder(prometheus.NewRegistry())

	// 6. 初始化 WebSocket Hub 与通知器
	hub := websocket.NewHub()
	notifier := &wsNotifier{inner: websocket.NewNotifier(hub)}

	// 7. 初始化服务层
	auditLogService := service.NewAuditLogService(auditRepo)
	transitionService := service.NewTransitionService(
		db, proposalRepo, logRepo, idemRepo, evalRepo,
		slaClock, auditLogService, recorder, notifier, logger,
	)
	proposalService := service.NewProposalService(proposalRepo, logRepo, slaClock, logger)
	evaluationService := service.NewEvaluationService(db, evalRepo, proposalRepo, idemRepo, auditLogService, logger)
	statisticsService := service.NewStatisticsService(db)
	verifyService := service.NewVerifyService(db, proposalRepo, logRepo, logger)

	// 8. 初始化指标采集器
	collector := metrics.NewCollector(
		db, recorder, proposalRepo, idemRepo, slaClock,
		time.Duration(cfg.Metrics.CollectInterval)*time.Second, logger,
	)

	// 9. 初始化 Keycloak Token 验证器
	keycloakValidator := auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer)

	return &Container{
		db:                db,
		logger:            logger,
		recorder:          recorder,
		collector:         collector,
		hub:               hub,
		slaClock:          slaClock,
		keycloakValidator: keycloakValidator,
		proposalService:   proposalService,
		transitionService: transitionService,
		evaluationService: evaluationService,
		statisticsService: statisticsService,
		verifyService:     verifyService,
		auditLogService:   auditLogService,
	}, nil
}

// Start 启动后台组件(WebSocket Hub、指标采集)
func (c *Container) Start(ctx context.Context) {
	go c.hub.Run()
	go c.collector.Start(ctx)
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Recorder 获取指标记录器
func (c *Container) Recorder() *metrics.Recorder {
	return c.recorder
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// SLAClock 获取 SLA 时钟
func (c *Container) SLAClock() *workflow.SLAClock {
	return c.slaClock
}

// KeycloakValidator 获取 Keycloak Token 验证器
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// ProposalService 获取课题查询服务
func (c *Container) ProposalService() service.ProposalService {
	return c.proposalService
}

// TransitionService 获取状态转换服务
func (c *Container) TransitionService() service.TransitionService {
	return c.transitionService
}

// EvaluationService 获取委员会评审服务
func (c *Container) EvaluationService() service.EvaluationService {
	return c.evaluationService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// VerifyService 获取状态校验服务
func (c *Container) VerifyService() service.VerifyService {
	return c.verifyService
}

// AuditLogService 获取审计日志服务
func (c *Container) AuditLogService() service.AuditLogService {
	return c.auditLogService
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
