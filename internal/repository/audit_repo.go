package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-timetable/internal/model"
)

// AuditFilter 审计日志筛选条件
type AuditFilter struct {
	EntityType string
	EntityID   string
	SessionID  string
	Action     string
	Actor      string
	Since      *time.Time
}

// AuditRepository 审计日志数据访问接口（只追加）
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
	GetByID(ctx context.Context, id string) (*model.AuditLogEntry, error)
	List(ctx context.Context, filter AuditFilter, offset, limit int) ([]model.AuditLogEntry, int64, error)
}

type auditRepo struct {
	db *gorm.DB
}

// NewAuditRepo 创建 AuditRepository 实例
func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) GetByID(ctx context.Context, id string) (*model.AuditLogEntry, error) {
	var e model.AuditLogEntry
	if err := r.db.WithContext(ctx).Where("audit_id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *auditRepo) List(ctx context.Context, filter AuditFilter, offset, limit int) ([]model.AuditLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.AuditLogEntry{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.AuditLogEntry
	err := query.Order("created_at DESC, audit_id").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}
