package service

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetProposalStatisticsByState() ([]*ProposalStatisticsByState, error)
	GetProposalStatisticsByFaculty() ([]*ProposalStatisticsByFaculty, error)
	GetProposalStatisticsByTime() ([]*ProposalStatisticsByTime, error)
	GetDecisionStatistics() (*DecisionStatistics, error)
}

// ProposalStatisticsByState 按状态统计
type ProposalStatisticsByState struct {
	State string `json:"state"`
	Count int64  `json:"count"`
}

// ProposalStatisticsByFaculty 按院系统计
type ProposalStatisticsByFaculty struct {
	FacultyID string `json:"faculty_id"`
	Count     int64  `json:"count"`
}

// ProposalStatisticsByTime 按创建日期统计
type ProposalStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DecisionStatistics 裁决统计
// 通过率按工作流日志里 APPROVE/REJECT 动作计算
type DecisionStatistics struct {
	TotalDecisions int64   `json:"total_decisions"`
	ApprovedCount  int64   `json:"approved_count"`
	RejectedCount  int64   `json:"rejected_count"`
	ReturnedCount  int64   `json:"returned_count"`
	ApprovalRate   float64 `json:"approval_rate"` // 百分比
}

// statisticsService 统计服务实现
type statisticsService struct {
	db *gorm.DB
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetProposalStatisticsByState 按状态统计课题
func (s *statisticsService) GetProposalStatisticsByState() ([]*ProposalStatisticsByState, error) {
	var results []struct {
		State string
		Count int64
	}

	err := s.db.Model(&model.ProposalModel{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal statistics by state: %w", err)
	}

	stats := make([]*ProposalStatisticsByState, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProposalStatisticsByState{
			State: r.State,
			Count: r.Count,
		})
	}
	return stats, nil
}

// GetProposalStatisticsByFaculty 按院系统计课题
func (s *statisticsService) GetProposalStatisticsByFaculty() ([]*ProposalStatisticsByFaculty, error) {
	var results []struct {
		FacultyID string
		Count     int64
	}

	err := s.db.Model(&model.ProposalModel{}).
		Select("faculty_id, COUNT(*) as count").
		Group("faculty_id").
		Order("count DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal statistics by faculty: %w", err)
	}

	stats := make([]*ProposalStatisticsByFaculty, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProposalStatisticsByFaculty{
			FacultyID: r.FacultyID,
			Count:     r.Count,
		})
	}
	return stats, nil
}

// GetProposalStatisticsByTime 按创建日期统计课题
func (s *statisticsService) GetProposalStatisticsByTime() ([]*ProposalStatisticsByTime, error) {
	var results []struct {
		Date  string
		Count int64
	}

	err := s.db.Model(&model.ProposalModel{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Group("DATE(created_at)").
		Order("date DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal statistics by time: %w", err)
	}

	stats := make([]*ProposalStatisticsByTime, 0, len(results))
	for _, r := range results {
		stats = append(stats, &ProposalStatisticsByTime{
			Date:  r.Date,
			Count: r.Count,
		})
	}
	return stats, nil
}

// GetDecisionStatistics 获取裁决统计
func (s *statisticsService) GetDecisionStatistics() (*DecisionStatistics, error) {
	counts := map[workflow.Action]int64{}
	for _, action := range []workflow.Action{workflow.ActionApprove, workflow.ActionReject, workflow.ActionReturn} {
		var count int64
		err := s.db.Model(&model.WorkflowLogModel{}).
			Where("action = ?", string(action)).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count %s actions: %w", action, err)
		}
		counts[action] = count
	}

	total := counts[workflow.ActionApprove] + counts[workflow.ActionReject]
	rate := 0.0
	if total > 0 {
		rate = float64(counts[workflow.ActionApprove]) / float64(total) * 100
	}

	return &DecisionStatistics{
		TotalDecisions: total,
		ApprovedCount:  counts[workflow.ActionApprove],
		RejectedCount:  counts[workflow.ActionReject],
		ReturnedCount:  counts[workflow.ActionReturn],
		ApprovalRate:   rate,
	}, nil
}
