package repository

import (
	"errors"
	"time"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/workflow"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyRetention 幂等记录保留窗口
// 原系统未定义过期策略,这里取保守的 24 小时(见 DESIGN.md)
const IdempotencyRetention = 24 * time.Hour

// BeginOutcome Begin 的结果
// Replayed=true 时 Outcome 为首次执行的结果快照,调用方原样返回
type BeginOutcome struct {
	Replayed bool
	Outcome  []byte
}

// IdempotencyRepository 幂等账本仓储接口
// 保证每个 (幂等键, 操作) 至多生效一次
type IdempotencyRepository interface {
	// Begin 在调用方事务内登记幂等键
	// 返回值三分: 正常继续 / 回放已完成结果 / 错误
	// (IDEMPOTENCY_CONFLICT=键复用于不同操作, CONCURRENCY_CONFLICT=同键请求执行中)
	Begin(tx *gorm.DB, key string, signature string, now time.Time) (*BeginOutcome, error)
	// Complete 在同一事务内写入结果快照,与状态转换一起提交
	Complete(tx *gorm.DB, key string, outcome []byte) error
	FindByKey(key string) (*model.IdempotencyRecordModel, error)
	// DeleteExpired 清理超出保留窗口的记录,返回删除条数
	DeleteExpired(now time.Time) (int64, error)
}

// idempotencyRepository 幂等账本仓储实现
type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository 创建幂等账本仓储
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// Begin 登记幂等键
// 靠 key 唯一索引做原子判重: 并发同键请求里只有一个 INSERT 生效,
// 另一个 RowsAffected=0 后重读记录分类处理,不存在两个都 Proceed 的窗口。
// 全程只用调用方事务: 撞键走 ON CONFLICT DO NOTHING 而非捕获约束错误,
// 事务不会中途中止,分类读与状态读写保持同一一致性边界
func (r *idempotencyRepository) Begin(tx *gorm.DB, key string, signature string, now time.Time) (*BeginOutcome, error) {
	record := &model.IdempotencyRecordModel{
		ID:        uuid.New().String(),
		Key:       key,
		Signature: signature,
		Status:    model.IdempotencyPending,
		CreatedAt: now,
		ExpiresAt: now.Add(IdempotencyRetention),
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "idempotency begin failed", res.Error)
	}
	if res.RowsAffected == 1 {
		return &BeginOutcome{}, nil
	}

	// 键已存在: 同事务内重读并分类
	var existing model.IdempotencyRecordModel
	if err := tx.Where("key = ?", key).First(&existing).Error; err != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "idempotency lookup failed", err)
	}

	// 过期记录视同不存在: 同事务内删除后重试一次插入
	if existing.Expired(now) {
		if err := tx.Where("key = ?", key).Delete(&model.IdempotencyRecordModel{}).Error; err != nil {
			return nil, workflow.WrapError(workflow.CodeTransitionFailed, "expired record cleanup failed", err)
		}
		retry := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(record)
		if retry.Error != nil {
			return nil, workflow.WrapError(workflow.CodeTransitionFailed, "idempotency begin failed", retry.Error)
		}
		if retry.RowsAffected != 1 {
			return nil, workflow.NewError(workflow.CodeConcurrencyConflict, "idempotency key contended")
		}
		return &BeginOutcome{}, nil
	}

	// 同键不同操作是客户端缺陷,必须与合法重放区分开
	if existing.Signature != signature {
		return nil, workflow.NewError(workflow.CodeIdempotencyConflict,
			"idempotency key already used for a different operation")
	}

	if existing.Status == model.IdempotencyCompleted {
		return &BeginOutcome{Replayed: true, Outcome: existing.Outcome}, nil
	}

	// 同键请求仍在执行中(或其事务已失败但记录未提交)
	return nil, workflow.NewError(workflow.CodeConcurrencyConflict,
		"a request with this idempotency key is already in flight")
}

// Complete 写入结果快照
func (r *idempotencyRepository) Complete(tx *gorm.DB, key string, outcome []byte) error {
	result := tx.Model(&model.IdempotencyRecordModel{}).
		Where("key = ? AND status = ?", key, model.IdempotencyPending).
		Updates(map[string]interface{}{
			"status":  model.IdempotencyCompleted,
			"outcome": outcome,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return errors.New("idempotency record not in pending state")
	}
	return nil
}

// FindByKey 根据键查找幂等记录
func (r *idempotencyRepository) FindByKey(key string) (*model.IdempotencyRecordModel, error) {
	var record model.IdempotencyRecordModel
	if err := r.db.Where("key = ?", key).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteExpired 清理过期记录
func (r *idempotencyRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", now).Delete(&model.IdempotencyRecordModel{})
	return result.RowsAffected, result.Error
}
