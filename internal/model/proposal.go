package model

import (
	"errors"
	"time"

	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// ProposalModel 课题数据模型
// state 永远属于状态机枚举集合; holder_unit/holder_user 由状态推导,不可独立设置
// 课题从不物理删除,终态(COMPLETED/CANCELLED/REJECTED/WITHDRAWN)后不再转换
type ProposalModel struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	Code       string `gorm:"type:varchar(32);not null;uniqueIndex"` // 课题编号,如 DT2025-001
	Title      string `gorm:"type:varchar(512);not null"`
	State      string `gorm:"type:varchar(32);not null;index"`
	OwnerID    string `gorm:"type:varchar(64);not null;index"` // 课题负责人
	OwnerName  string `gorm:"type:varchar(255)"`
	FacultyID  string `gorm:"type:varchar(64);not null;index"`
	HolderUnit string `gorm:"type:varchar(64);index"` // 当前持有单位(院系 ID 或 PHONG_KHCN)
	HolderUser string `gorm:"type:varchar(64)"`       // 当前持有人(可空)

	// SLA 字段
	SLAStartDate   *time.Time `gorm:"index"`
	SLADeadline    *time.Time `gorm:"index"`
	PausedAt       *time.Time
	PausedDuration int64 `gorm:"not null;default:0"` // 累计暂停毫秒数

	// 暂停/退回前的状态快照(RESUME/RESUBMIT 的动态目标)
	PrePauseState      string `gorm:"type:varchar(32)"`
	PrePauseHolderUnit string `gorm:"type:varchar(64)"`
	PrePauseHolderUser string `gorm:"type:varchar(64)"`
	ReturnedFromState  string `gorm:"type:varchar(32)"`

	PauseReason string `gorm:"type:text"`

	// 乐观锁版本号,状态转换时 CAS 递增
	Version   int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (ProposalModel) TableName() string {
	return "proposals"
}

// Validate 验证课题模型
func (pm *ProposalModel) Validate() error {
	if pm.ID == "" {
		return errors.New("proposal ID is required")
	}
	if pm.Code == "" {
		return errors.New("proposal code is required")
	}
	if !workflow.IsValidState(workflow.State(pm.State)) {
		return errors.New("proposal state is not a valid workflow state")
	}
	if pm.OwnerID == "" {
		return errors.New("owner ID is required")
	}
	if pm.FacultyID == "" {
		return errors.New("faculty ID is required")
	}
	return nil
}

// Subject 构造鉴权所需的课题快照
func (pm *ProposalModel) Subject() workflow.Subject {
	return workflow.Subject{
		ID:        pm.ID,
		State:     workflow.State(pm.State),
		OwnerID:   pm.OwnerID,
		FacultyID: pm.FacultyID,
	}
}

// HolderInput 构造持有人推导的课题上下文
func (pm *ProposalModel) HolderInput(actorID, actorFacultyID string) workflow.HolderInput {
	return workflow.HolderInput{
		OwnerID:        pm.OwnerID,
		FacultyID:      pm.FacultyID,
		HolderUnit:     pm.HolderUnit,
		HolderUser:     pm.HolderUser,
		ActorID:        actorID,
		ActorFacultyID: actorFacultyID,
	}
}
