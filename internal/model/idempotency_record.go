package model

import (
	"errors"
	"time"
)

// 幂等记录状态
const (
	IdempotencyPending   = "PENDING"   // 首次请求执行中
	IdempotencyCompleted = "COMPLETED" // 已完成,outcome 可回放
)

// IdempotencyRecordModel 幂等记录数据模型
// key 上的唯一索引是并发护栏: 两个携带相同键的并发请求,
// 只有一个 INSERT 成功,另一个撞唯一约束后改走回放/冲突分支
type IdempotencyRecordModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	Key       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_idempotency_key"`
	Signature string    `gorm:"type:varchar(128);not null"` // proposalID:action,键复用检测用
	Status    string    `gorm:"type:varchar(16);not null"`
	Outcome   []byte    `gorm:"type:jsonb"` // 成功结果快照,回放时原样返回
	CreatedAt time.Time `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"` // 保留窗口 24 小时
}

// TableName 指定表名
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}

// Validate 验证幂等记录模型
func (ir *IdempotencyRecordModel) Validate() error {
	if ir.ID == "" {
		return errors.New("record ID is required")
	}
	if ir.Key == "" {
		return errors.New("idempotency key is required")
	}
	if ir.Signature == "" {
		return errors.New("operation signature is required")
	}
	if ir.Status != IdempotencyPending && ir.Status != IdempotencyCompleted {
		return errors.New("invalid idempotency status")
	}
	return nil
}

// Expired 判断记录是否超出保留窗口
func (ir *IdempotencyRecordModel) Expired(now time.Time) bool {
	return now.After(ir.ExpiresAt)
}
