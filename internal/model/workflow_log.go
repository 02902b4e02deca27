package model

import (
	"errors"
	"time"
)

// WorkflowLogModel 工作流日志数据模型
// 只追加不修改: 按时间戳顺序回放 to_state 序列必须能复原课题当前状态
// (状态校验/修复作业依赖此不变量)
type WorkflowLogModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ProposalID string    `gorm:"type:varchar(64);not null;index"`
	Action     string    `gorm:"type:varchar(32);not null;index"`
	FromState  string    `gorm:"type:varchar(32)"` // 创建事件时为空
	ToState    string    `gorm:"type:varchar(32);not null"`
	ActorID    string    `gorm:"type:varchar(64);not null"`
	ActorName  string    `gorm:"type:varchar(255)"`
	Comment    string    `gorm:"type:text"`
	Payload    []byte    `gorm:"type:jsonb"` // 结构化原因(退回原因码、修改章节等)
	Timestamp  time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (WorkflowLogModel) TableName() string {
	return "workflow_logs"
}

// Validate 验证工作流日志模型
func (wl *WorkflowLogModel) Validate() error {
	if wl.ID == "" {
		return errors.New("log ID is required")
	}
	if wl.ProposalID == "" {
		return errors.New("proposal ID is required")
	}
	if wl.Action == "" {
		return errors.New("action is required")
	}
	if wl.ToState == "" {
		return errors.New("to state is required")
	}
	if wl.ActorID == "" {
		return errors.New("actor ID is required")
	}
	return nil
}

// ReturnPayload 退回动作的结构化原因
type ReturnPayload struct {
	ReasonCode       string   `json:"reason_code"`
	Comment          string   `json:"comment,omitempty"`
	RevisionSections []string `json:"revision_sections,omitempty"`
}

// PausePayload 暂停动作的结构化原因
type PausePayload struct {
	Reason           string     `json:"reason"`
	ExpectedResumeAt *time.Time `json:"expected_resume_at,omitempty"`
}
