package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ETL 运行状态
const (
	EtlStatusRunning   = "running"
	EtlStatusCompleted = "completed"
	EtlStatusFailed    = "failed"
	EtlStatusDryRun    = "dry_run" // 试运行：完整执行后回滚，暂存区保留
)

// EtlStepResult 单个步骤的计数
type EtlStepResult struct {
	Step      string `json:"step"`
	Processed int    `json:"processed"`
	Upserted  int    `json:"upserted"`
	Skipped   int    `json:"skipped"`
	Warnings  int    `json:"warnings"`
}

// EtlIssue 行级告警 / 校验问题
type EtlIssue struct {
	Step       string `json:"step"`
	Kind       string `json:"kind"`
	NaturalKey string `json:"natural_key"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

// EtlRun 规范化运行记录 — 对应 etl_runs
// 在事务外写入，失败的运行同样保留
type EtlRun struct {
	RunID       string                             `gorm:"type:uuid;primaryKey"                        json:"run_id"`
	SessionID   string                             `gorm:"type:uuid;not null;index"                    json:"session_id"`
	Status      string                             `gorm:"type:varchar(20);not null"                   json:"status"`
	FailedStep  string                             `gorm:"type:varchar(50)"                            json:"failed_step,omitempty"`
	Error       string                             `gorm:"type:text"                                   json:"error,omitempty"`
	Steps       datatypes.JSONSlice[EtlStepResult] `gorm:"not null"                                    json:"steps"`
	Issues      datatypes.JSONSlice[EtlIssue]      `gorm:"not null"                                    json:"issues"`
	TriggeredBy string                             `gorm:"type:varchar(100)"                           json:"triggered_by,omitempty"`
	StartedAt   time.Time                          `gorm:"not null"                                    json:"started_at"`
	FinishedAt  *time.Time                         `json:"finished_at,omitempty"`
}

func (EtlRun) TableName() string { return "etl_runs" }

func (r *EtlRun) BeforeCreate(*gorm.DB) error {
	ensureID(&r.RunID)
	if r.Steps == nil {
		r.Steps = datatypes.JSONSlice[EtlStepResult]{}
	}
	if r.Issues == nil {
		r.Issues = datatypes.JSONSlice[EtlIssue]{}
	}
	return nil
}
