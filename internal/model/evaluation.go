package model

import (
	"encoding/json"
	"errors"
	"time"
)

// 评审表状态
const (
	EvaluationDraft     = "DRAFT"     // 草稿,可修改
	EvaluationSubmitted = "SUBMITTED" // 已提交,不可修改
)

// 评审结论
const (
	ConclusionDat      = "DAT"       // 通过
	ConclusionKhongDat = "KHONG_DAT" // 不通过
)

// 评分维度(与评审表单一致)
var EvaluationCriteria = []string{
	"scientific_content",
	"research_method",
	"feasibility",
	"budget",
}

// CriterionScore 单项评分
type CriterionScore struct {
	Score    int    `json:"score"` // 1-5
	Comments string `json:"comments,omitempty"`
}

// EvaluationForm 评审表单内容
type EvaluationForm struct {
	Scores     map[string]CriterionScore `json:"scores"`
	Conclusion string                    `json:"conclusion,omitempty"` // DAT / KHONG_DAT
	Comments   string                    `json:"comments,omitempty"`
}

// CouncilEvaluationModel 委员会评审数据模型
// 每个 (课题, 评审人) 一条; 提交后不可变
// ConsensusConclusion 仅在秘书定稿后写入(定稿要求全员已提交)
type CouncilEvaluationModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	ProposalID    string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_eval_proposal_evaluator,priority:1"`
	EvaluatorID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_eval_proposal_evaluator,priority:2"`
	EvaluatorName string    `gorm:"type:varchar(255)"`
	EvaluatorRole string    `gorm:"type:varchar(32)"` // 委员会内角色: CHU_TICH/THU_KY/THANH_VIEN
	State         string    `gorm:"type:varchar(16);not null;index"`
	FormData      []byte    `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
	SubmittedAt   *time.Time
}

// TableName 指定表名
func (CouncilEvaluationModel) TableName() string {
	return "council_evaluations"
}

// Validate 验证评审模型
func (ce *CouncilEvaluationModel) Validate() error {
	if ce.ID == "" {
		return errors.New("evaluation ID is required")
	}
	if ce.ProposalID == "" {
		return errors.New("proposal ID is required")
	}
	if ce.EvaluatorID == "" {
		return errors.New("evaluator ID is required")
	}
	if ce.State != EvaluationDraft && ce.State != EvaluationSubmitted {
		return errors.New("invalid evaluation state")
	}
	if len(ce.FormData) == 0 {
		return errors.New("form data is required")
	}
	return nil
}

// Form 反序列化表单内容
func (ce *CouncilEvaluationModel) Form() (*EvaluationForm, error) {
	var form EvaluationForm
	if err := json.Unmarshal(ce.FormData, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

// CouncilConsensusModel 委员会共识结论数据模型
// 每个课题最多一条,由秘书在全员提交后定稿
type CouncilConsensusModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	ProposalID    string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Conclusion    string    `gorm:"type:varchar(16);not null"` // DAT / KHONG_DAT
	Comments      string    `gorm:"type:text"`
	SecretaryID   string    `gorm:"type:varchar(64);not null"`
	SecretaryName string    `gorm:"type:varchar(255)"`
	FinalizedAt   time.Time `gorm:"not null"`
}

// TableName 指定表名
func (CouncilConsensusModel) TableName() string {
	return "council_consensus"
}

// Validate 验证共识模型
func (cc *CouncilConsensusModel) Validate() error {
	if cc.ID == "" {
		return errors.New("consensus ID is required")
	}
	if cc.ProposalID == "" {
		return errors.New("proposal ID is required")
	}
	if cc.Conclusion != ConclusionDat && cc.Conclusion != ConclusionKhongDat {
		return errors.New("invalid conclusion")
	}
	if cc.SecretaryID == "" {
		return errors.New("secretary ID is required")
	}
	return nil
}
