package repository

import (
	"github.com/cioer/DoAn-sub006/internal/model"
	"gorm.io/gorm"
)

// EvaluationRepository 委员会评审仓储接口
// InTx 变体在调用方事务内读取,守卫类读取必须用它,
// 否则会另取连接,脱离事务的一致性边界(单连接池下还会互等死锁)
type EvaluationRepository interface {
	Save(evaluation *model.CouncilEvaluationModel) error
	FindByProposalAndEvaluator(proposalID, evaluatorID string) (*model.CouncilEvaluationModel, error)
	FindByProposalID(proposalID string) ([]*model.CouncilEvaluationModel, error)
	FindByProposalIDInTx(tx *gorm.DB, proposalID string) ([]*model.CouncilEvaluationModel, error)
	SaveConsensus(consensus *model.CouncilConsensusModel) error
	FindConsensus(proposalID string) (*model.CouncilConsensusModel, error)
	FindConsensusInTx(tx *gorm.DB, proposalID string) (*model.CouncilConsensusModel, error)
}

// evaluationRepository 委员会评审仓储实现
type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository 创建委员会评审仓储
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Save 保存评审表
func (r *evaluationRepository) Save(evaluation *model.CouncilEvaluationModel) error {
	if err := evaluation.Validate(); err != nil {
		return err
	}
	return r.db.Save(evaluation).Error
}

// FindByProposalAndEvaluator 查找指定评审人的评审表
func (r *evaluationRepository) FindByProposalAndEvaluator(proposalID, evaluatorID string) (*model.CouncilEvaluationModel, error) {
	var evaluation model.CouncilEvaluationModel
	err := r.db.Where("proposal_id = ? AND evaluator_id = ?", proposalID, evaluatorID).
		First(&evaluation).Error
	if err != nil {
		return nil, err
	}
	return &evaluation, nil
}

// FindByProposalID 查找课题全部评审表
func (r *evaluationRepository) FindByProposalID(proposalID string) ([]*model.CouncilEvaluationModel, error) {
	return findEvaluations(r.db, proposalID)
}

// FindByProposalIDInTx 在调用方事务内查找课题全部评审表
func (r *evaluationRepository) FindByProposalIDInTx(tx *gorm.DB, proposalID string) ([]*model.CouncilEvaluationModel, error) {
	return findEvaluations(tx, proposalID)
}

func findEvaluations(db *gorm.DB, proposalID string) ([]*model.CouncilEvaluationModel, error) {
	var evaluations []*model.CouncilEvaluationModel
	err := db.Where("proposal_id = ?", proposalID).
		Order("created_at ASC").
		Find(&evaluations).Error
	return evaluations, err
}

// SaveConsensus 保存共识结论
func (r *evaluationRepository) SaveConsensus(consensus *model.CouncilConsensusModel) error {
	if err := consensus.Validate(); err != nil {
		return err
	}
	return r.db.Create(consensus).Error
}

// FindConsensus 查找课题共识结论(未定稿返回 gorm.ErrRecordNotFound)
func (r *evaluationRepository) FindConsensus(proposalID string) (*model.CouncilConsensusModel, error) {
	return findConsensus(r.db, proposalID)
}

// FindConsensusInTx 在调用方事务内查找共识结论(裁决守卫用)
func (r *evaluationRepository) FindConsensusInTx(tx *gorm.DB, proposalID string) (*model.CouncilConsensusModel, error) {
	return findConsensus(tx, proposalID)
}

func findConsensus(db *gorm.DB, proposalID string) (*model.CouncilConsensusModel, error) {
	var consensus model.CouncilConsensusModel
	err := db.Where("proposal_id = ?", proposalID).First(&consensus).Error
	if err != nil {
		return nil, err
	}
	return &consensus, nil
}
