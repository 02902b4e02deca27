package repository

import (
	"time"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/utils"
	"github.com/cioer/DoAn-sub006/internal/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProposalRepository 课题仓储接口
type ProposalRepository interface {
	Create(proposal *model.ProposalModel) error
	FindByID(id string) (*model.ProposalModel, error)
	// FindByIDForUpdate 行级锁读取,必须在事务内调用
	FindByIDForUpdate(tx *gorm.DB, id string) (*model.ProposalModel, error)
	// UpdateCAS 带版本检查的更新,版本不匹配返回 RowsAffected=0
	UpdateCAS(tx *gorm.DB, proposal *model.ProposalModel, expectedVersion int) (bool, error)
	FindByFilter(filter *ProposalFilter) ([]*model.ProposalModel, error)
	CountByState() (map[string]int64, error)
}

// ProposalFilter 课题查询过滤器(工作台队列视图用)
type ProposalFilter struct {
	State      *string
	HolderUnit *string
	OwnerID    *string
	FacultyID  *string
	// OverdueAt 非空时仅返回截止时间早于该时刻的课题
	OverdueAt *time.Time
	// SortBy 排序字段,进库前经 utils 白名单清洗
	SortBy string
	Order  string
	Limit  int
	Offset int
}

// proposalRepository 课题仓储实现
type proposalRepository struct {
	db *gorm.DB
}

// NewProposalRepository 创建课题仓储
func NewProposalRepository(db *gorm.DB) ProposalRepository {
	return &proposalRepository{db: db}
}

// Create 创建课题
func (r *proposalRepository) Create(proposal *model.ProposalModel) error {
	return r.db.Create(proposal).Error
}

// FindByID 根据 ID 查找课题
func (r *proposalRepository) FindByID(id string) (*model.ProposalModel, error) {
	var proposal model.ProposalModel
	if err := r.db.Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

// FindByIDForUpdate 行级锁读取课题
// 同一课题的并发转换请求在此串行化(SQLite 无 FOR UPDATE,靠单写者语义)
func (r *proposalRepository) FindByIDForUpdate(tx *gorm.DB, id string) (*model.ProposalModel, error) {
	var proposal model.ProposalModel
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

// UpdateCAS 带版本检查的全量更新
// 返回 false 表示版本已被并发请求推进,调用方应报并发冲突
func (r *proposalRepository) UpdateCAS(tx *gorm.DB, proposal *model.ProposalModel, expectedVersion int) (bool, error) {
	proposal.Version = expectedVersion + 1
	result := tx.Model(&model.ProposalModel{}).
		Where("id = ? AND version = ?", proposal.ID, expectedVersion).
		Select("*").
		Omit("created_at").
		Updates(proposal)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByFilter 根据过滤器查找课题
func (r *proposalRepository) FindByFilter(filter *ProposalFilter) ([]*model.ProposalModel, error) {
	var proposals []*model.ProposalModel
	query := r.db.Model(&model.ProposalModel{})

	if filter != nil {
		if filter.State != nil {
			query = query.Where("state = ?", *filter.State)
		}
		if filter.HolderUnit != nil {
			query = query.Where("holder_unit = ?", *filter.HolderUnit)
		}
		if filter.OwnerID != nil {
			query = query.Where("owner_id = ?", *filter.OwnerID)
		}
		if filter.FacultyID != nil {
			query = query.Where("faculty_id = ?", *filter.FacultyID)
		}
		if filter.OverdueAt != nil {
			query = query.Where("sla_deadline IS NOT NULL AND sla_deadline < ? AND state <> ?",
				*filter.OverdueAt, string(workflow.StatePaused))
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit).Offset(filter.Offset)
		}
	}

	// 排序字段只认白名单格式的原始输入,可疑输入一律回落默认排序
	order := "updated_at DESC"
	if filter != nil && filter.SortBy != "" {
		if err := utils.ValidateSortField(filter.SortBy); err == nil {
			order = utils.SanitizeSortField(filter.SortBy) + " " + utils.SanitizeSortOrder(filter.Order)
		}
	}

	err := query.Order(order).Find(&proposals).Error
	return proposals, err
}

// CountByState 按状态统计课题数(指标采集用)
func (r *proposalRepository) CountByState() (map[string]int64, error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	err := r.db.Model(&model.ProposalModel{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		counts[rw.State] = rw.Count
	}
	return counts, nil
}
