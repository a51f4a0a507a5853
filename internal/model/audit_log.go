package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审计动作
const (
	AuditActionCreate    = "create"
	AuditActionUpdate    = "update"
	AuditActionDelete    = "delete"
	AuditActionPublish   = "publish"
	AuditActionUnpublish = "unpublish"
	AuditActionBranch    = "branch"
	AuditActionArchive   = "archive"
	AuditActionActivate  = "activate"
	AuditActionETLRun    = "etl_run"
)

// AuditLogEntry 审计日志 — 对应 audit_logs，只追加
type AuditLogEntry struct {
	AuditID    string         `gorm:"type:uuid;primaryKey"                   json:"audit_id"`
	Actor      string         `gorm:"type:varchar(100);not null"             json:"actor"`
	Action     string         `gorm:"type:varchar(40);not null;index"        json:"action"`
	EntityType string         `gorm:"type:varchar(60);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   string         `gorm:"type:varchar(100);not null;index:idx_audit_entity" json:"entity_id"`
	SessionID  *string        `gorm:"type:uuid;index"                        json:"session_id,omitempty"`
	Before     datatypes.JSON `json:"before,omitempty"`
	After      datatypes.JSON `json:"after,omitempty"`
	Note       string         `gorm:"type:varchar(1000)"                     json:"note,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_logs" }

func (a *AuditLogEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&a.AuditID)
	return nil
}
