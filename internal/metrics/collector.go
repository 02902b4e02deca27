package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// Collector 周期性指标采集器
// 负责刷新状态分布、SLA 分布、数据库连接数,并清理过期幂等记录
type Collector struct {
	db           *gorm.DB
	recorder     *Recorder
	proposalRepo repository.ProposalRepository
	idemRepo     repository.IdempotencyRepository
	slaClock     *workflow.SLAClock
	interval     time.Duration
	logger       *logrus.Logger
}

// NewCollector 创建指标采集器
func NewCollector(
	db *gorm.DB,
	recorder *Recorder,
	proposalRepo repository.ProposalRepository,
	idemRepo repository.IdempotencyRepository,
	slaClock *workflow.SLAClock,
	interval time.Duration,
	logger *logrus.Logger,
) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		db:           db,
		recorder:     recorder,
		proposalRepo: proposalRepo,
		idemRepo:     idemRepo,
		slaClock:     slaClock,
		interval:     interval,
		logger:       logger,
	}
}

// Start 启动采集循环,直到 ctx 取消
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	now := time.Now()

	if err := c.recorder.UpdateDatabaseConnections(c.db); err != nil {
		c.logger.WithError(err).Warn("Failed to update database connection metrics")
	}

	counts, err := c.proposalRepo.CountByState()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to count proposals by state")
	} else {
		for _, state := range workflow.AllStates {
			c.recorder.SetProposalsByState(string(state), float64(counts[string(state)]))
		}
	}

	c.collectSLAStatus(now)

	deleted, err := c.idemRepo.DeleteExpired(now)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to delete expired idempotency records")
	} else if deleted > 0 {
		c.logger.WithField("deleted", deleted).Debug("Expired idempotency records removed")
	}
}

func (c *Collector) collectSLAStatus(now time.Time) {
	totals := map[workflow.SLAStatus]int{
		workflow.SLAOK:      0,
		workflow.SLAAtRisk:  0,
		workflow.SLAOverdue: 0,
		workflow.SLAPaused:  0,
	}

	for _, state := range workflow.AllStates {
		if workflow.IsTerminal(state) || state == workflow.StateDraft {
			continue
		}
		stateStr := string(state)
		proposals, err := c.proposalRepo.FindByFilter(&repository.ProposalFilter{State: &stateStr})
		if err != nil {
			c.logger.WithError(err).WithField("state", state).Warn("Failed to list proposals for SLA metrics")
			return
		}
		for _, p := range proposals {
			var deadline time.Time
			if p.SLADeadline != nil {
				deadline = *p.SLADeadline
			}
			status := c.slaClock.StatusAt(workflow.State(p.State), deadline, now)
			if _, ok := totals[status]; ok {
				totals[status]++
			}
		}
	}

	for status, count := range totals {
		c.recorder.SetSLAStatusCount(string(status), float64(count))
	}
}
