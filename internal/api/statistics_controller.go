package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/service"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{statisticsService: statisticsService}
}

// Overview 全局统计概览(仅科技处与校领导)
func (ctrl *StatisticsController) Overview(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}
	if actor.Role != workflow.RolePhongKHCN && actor.Role != workflow.RoleBanGiamHoc {
		Error(c, http.StatusForbidden, T(c, "error.forbidden"), "")
		return
	}

	byState, err := ctrl.statisticsService.GetProposalStatisticsByState()
	if err != nil {
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
		return
	}
	byFaculty, err := ctrl.statisticsService.GetProposalStatisticsByFaculty()
	if err != nil {
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
		return
	}
	byTime, err := ctrl.statisticsService.GetProposalStatisticsByTime()
	if err != nil {
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
		return
	}
	decisions, err := ctrl.statisticsService.GetDecisionStatistics()
	if err != nil {
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
		return
	}

	Success(c, gin.H{
		"by_state":   byState,
		"by_faculty": byFaculty,
		"by_time":    byTime,
		"decisions":  decisions,
	})
}
