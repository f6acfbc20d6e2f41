package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/internal/logger"
)

// AuditLog 管理操作审计记录
type AuditLog struct {
	ID         string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID     string            `json:"user_id" gorm:"size:100;index"`
	Action     string            `json:"action" gorm:"size:100;index;not null"`
	Resource   string            `json:"resource" gorm:"size:100;not null"`
	ResourceID string            `json:"resource_id" gorm:"size:100;index"`
	Details    datatypes.JSONMap `json:"details" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}

// AdminAuditLogger 将管理操作写入 audit_logs 表。
//
// 写入失败不向上抛错，避免业务流程因审计失败而中断，仅记录告警日志。
type AdminAuditLogger struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAdminAuditLogger 创建基于 DB 的管理审计记录器
func NewAdminAuditLogger(db *gorm.DB) *AdminAuditLogger {
	return &AdminAuditLogger{db: db, log: logger.Get()}
}

// LogAction 记录一次管理操作
func (l *AdminAuditLogger) LogAction(ctx context.Context, userID string, action EventType, resource, resourceID string, details map[string]any) {
	entry := &AuditLog{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     string(action),
		Resource:   resource,
		ResourceID: resourceID,
		Details:    datatypes.JSONMap(details),
		CreatedAt:  time.Now().UTC(),
	}

	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		l.log.Warn("写入管理审计日志失败",
			zap.String("action", string(action)),
			zap.String("resource", resource),
			zap.Error(err))
	}
}

// LogFilter 审计日志查询条件
type LogFilter struct {
	From   *time.Time
	To     *time.Time
	UserID string
	Action string
	Limit  int
	Offset int
}

// Query 按条件查询审计日志，按时间倒序
func (l *AdminAuditLogger) Query(ctx context.Context, f LogFilter) ([]AuditLog, int64, error) {
	query := l.db.WithContext(ctx).Model(&AuditLog{})

	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var logs []AuditLog
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
