package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StagingRecord 暂存行 — 对应 staging_records
// 上传后写入，规范化成功后删除，下游组件从不引用
type StagingRecord struct {
	RecordID   string         `gorm:"type:uuid;primaryKey"                                       json:"record_id"`
	SessionID  string         `gorm:"type:uuid;not null;index:idx_staging_session_kind"         json:"session_id"`
	EntityKind string         `gorm:"type:varchar(40);not null;index:idx_staging_session_kind"  json:"entity_kind"`
	NaturalKey string         `gorm:"type:varchar(200);not null"                                 json:"natural_key"`
	Payload    datatypes.JSON `gorm:"not null"                                                   json:"payload"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"                         json:"created_at"`
}

// TableName 指定表名
func (StagingRecord) TableName() string { return "staging_records" }

func (r *StagingRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&r.RecordID)
	return nil
}
