package repository

import (
	"github.com/cioer/DoAn-sub006/internal/model"
	"gorm.io/gorm"
)

// WorkflowLogRepository 工作流日志仓储接口
// 只追加: 无 Update/Delete 方法,日志写入后不可变
type WorkflowLogRepository interface {
	Append(tx *gorm.DB, entry *model.WorkflowLogModel) error
	FindByProposalID(proposalID string) ([]*model.WorkflowLogModel, error)
	CountByProposalID(proposalID string) (int64, error)
}

// workflowLogRepository 工作流日志仓储实现
type workflowLogRepository struct {
	db *gorm.DB
}

// NewWorkflowLogRepository 创建工作流日志仓储
func NewWorkflowLogRepository(db *gorm.DB) WorkflowLogRepository {
	return &workflowLogRepository{db: db}
}

// Append 追加日志(与状态更新同事务)
func (r *workflowLogRepository) Append(tx *gorm.DB, entry *model.WorkflowLogModel) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return tx.Create(entry).Error
}

// FindByProposalID 按时间戳升序返回课题全部日志(回放顺序)
func (r *workflowLogRepository) FindByProposalID(proposalID string) ([]*model.WorkflowLogModel, error) {
	var entries []*model.WorkflowLogModel
	err := r.db.Where("proposal_id = ?", proposalID).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

// CountByProposalID 统计课题日志条数
func (r *workflowLogRepository) CountByProposalID(proposalID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.WorkflowLogModel{}).
		Where("proposal_id = ?", proposalID).
		Count(&count).Error
	return count, err
}
