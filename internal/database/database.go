package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cioer/DoAn-sub006/internal/config"
	"github.com/cioer/DoAn-sub006/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// GetProductionPoolConfig 获取生产环境连接池配置
func GetProductionPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    20,
		MaxOpenConns:    200,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 300,  // 5 分钟
	}
}

// open 按驱动打开数据库连接
// TranslateError 必须开启: 幂等记录的唯一键冲突依赖 gorm.ErrDuplicatedKey
func open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
	}

	switch cfg.Driver {
	case "sqlite", "sqlite3":
		dsn := cfg.DBName
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return gorm.Open(postgres.Open(BuildDSN(cfg)), gormCfg)
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 从配置中读取连接池参数，如果没有配置则使用默认值
	var poolConfig *PoolConfig
	if cfg.MaxIdleConns > 0 || cfg.MaxOpenConns > 0 {
		poolConfig = &PoolConfig{
			MaxIdleConns:    cfg.MaxIdleConns,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}
		if poolConfig.MaxIdleConns == 0 {
			poolConfig.MaxIdleConns = 10
		}
		if poolConfig.MaxOpenConns == 0 {
			poolConfig.MaxOpenConns = 100
		}
		if poolConfig.ConnMaxLifetime == 0 {
			poolConfig.ConnMaxLifetime = 3600
		}
		if poolConfig.ConnMaxIdleTime == 0 {
			poolConfig.ConnMaxIdleTime = 600
		}
	} else {
		poolConfig = GetPoolConfig()
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectProduction 连接数据库（生产环境配置）
func ConnectProduction(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池（生产环境）
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	var poolConfig *PoolConfig
	if cfg.MaxIdleConns > 0 || cfg.MaxOpenConns > 0 {
		poolConfig = &PoolConfig{
			MaxIdleConns:    cfg.MaxIdleConns,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}
		if poolConfig.MaxIdleConns == 0 {
			poolConfig.MaxIdleConns = 20
		}
		if poolConfig.MaxOpenConns == 0 {
			poolConfig.MaxOpenConns = 200
		}
		if poolConfig.ConnMaxLifetime == 0 {
			poolConfig.ConnMaxLifetime = 3600
		}
		if poolConfig.ConnMaxIdleTime == 0 {
			poolConfig.ConnMaxIdleTime = 300
		}
	} else {
		poolConfig = GetProductionPoolConfig()
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb，需要手动创建表
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		// PostgreSQL 等其他数据库使用 AutoMigrate
		if err := db.AutoMigrate(
			&model.ProposalModel{},
			&model.WorkflowLogModel{},
			&model.IdempotencyRecordModel{},
			&model.CouncilEvaluationModel{},
			&model.CouncilConsensusModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// 创建索引
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表（使用 TEXT 替代 jsonb）
func createSQLiteTables(db *gorm.DB) error {
	// 创建 proposals 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS proposals (
			id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(32) NOT NULL UNIQUE,
			title VARCHAR(512) NOT NULL,
			state VARCHAR(32) NOT NULL,
			owner_id VARCHAR(64) NOT NULL,
			owner_name VARCHAR(255),
			faculty_id VARCHAR(64) NOT NULL,
			holder_unit VARCHAR(64),
			holder_user VARCHAR(64),
			sla_start_date DATETIME,
			sla_deadline DATETIME,
			paused_at DATETIME,
			paused_duration INTEGER NOT NULL DEFAULT 0,
			pre_pause_state VARCHAR(32),
			pre_pause_holder_unit VARCHAR(64),
			pre_pause_holder_user VARCHAR(64),
			returned_from_state VARCHAR(32),
			pause_reason TEXT,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create proposals table: %w", err)
	}

	// 创建 workflow_logs 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_logs (
			id VARCHAR(64) PRIMARY KEY,
			proposal_id VARCHAR(64) NOT NULL,
			action VARCHAR(32) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			actor_id VARCHAR(64) NOT NULL,
			actor_name VARCHAR(255),
			comment TEXT,
			payload TEXT,
			timestamp DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create workflow_logs table: %w", err)
	}

	// 创建 idempotency_records 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS idempotency_records (
			id VARCHAR(64) PRIMARY KEY,
			key VARCHAR(64) NOT NULL,
			signature VARCHAR(128) NOT NULL,
			status VARCHAR(16) NOT NULL,
			outcome TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create idempotency_records table: %w", err)
	}

	// 创建 council_evaluations 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS council_evaluations (
			id VARCHAR(64) PRIMARY KEY,
			proposal_id VARCHAR(64) NOT NULL,
			evaluator_id VARCHAR(64) NOT NULL,
			evaluator_name VARCHAR(255),
			evaluator_role VARCHAR(32),
			state VARCHAR(16) NOT NULL,
			form_data TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			submitted_at DATETIME
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create council_evaluations table: %w", err)
	}

	// 创建 council_consensus 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS council_consensus (
			id VARCHAR(64) PRIMARY KEY,
			proposal_id VARCHAR(64) NOT NULL,
			conclusion VARCHAR(16) NOT NULL,
			comments TEXT,
			secretary_id VARCHAR(64) NOT NULL,
			secretary_name VARCHAR(255),
			finalized_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create council_consensus table: %w", err)
	}

	// 创建 audit_logs 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create audit_logs table: %w", err)
	}

	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// proposals 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_proposals_state ON proposals(state)").Error; err != nil {
		return fmt.Errorf("failed to create idx_proposals_state: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_proposals_owner_id ON proposals(owner_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_proposals_owner_id: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_proposals_holder_unit ON proposals(holder_unit, state)").Error; err != nil {
		return fmt.Errorf("failed to create idx_proposals_holder_unit: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_proposals_sla_deadline ON proposals(sla_deadline)").Error; err != nil {
		return fmt.Errorf("failed to create idx_proposals_sla_deadline: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_proposals_updated_at ON proposals(updated_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_proposals_updated_at: %w", err)
	}

	// workflow_logs 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_workflow_logs_proposal ON workflow_logs(proposal_id, timestamp)").Error; err != nil {
		return fmt.Errorf("failed to create idx_workflow_logs_proposal: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_workflow_logs_action ON workflow_logs(action)").Error; err != nil {
		return fmt.Errorf("failed to create idx_workflow_logs_action: %w", err)
	}

	// idempotency_records 表索引
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_key ON idempotency_records(key)").Error; err != nil {
		return fmt.Errorf("failed to create idx_idempotency_key: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency_records(expires_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_idempotency_expires_at: %w", err)
	}

	// council_evaluations 表索引
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_eval_proposal_evaluator ON council_evaluations(proposal_id, evaluator_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_eval_proposal_evaluator: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_eval_state ON council_evaluations(state)").Error; err != nil {
		return fmt.Errorf("failed to create idx_eval_state: %w", err)
	}

	// council_consensus 表索引
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_consensus_proposal ON council_consensus(proposal_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_consensus_proposal: %w", err)
	}

	// audit_logs 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_resource: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_user_id: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_created_at: %w", err)
	}

	// PostgreSQL 特定的 GIN 索引
	if dialector == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_workflow_logs_payload_gin ON workflow_logs USING GIN (payload)").Error; err != nil {
			return fmt.Errorf("failed to create idx_workflow_logs_payload_gin: %w", err)
		}
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_eval_form_data_gin ON council_evaluations USING GIN (form_data)").Error; err != nil {
			return fmt.Errorf("failed to create idx_eval_form_data_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试，等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return false
	}

	return true
}

// Reconnect 重新连接数据库
func Reconnect(cfg config.DatabaseConfig, oldDB *gorm.DB) (*gorm.DB, error) {
	// 关闭旧连接
	if oldDB != nil {
		if sqlDB, err := oldDB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	// 重新连接
	return Connect(cfg)
}
