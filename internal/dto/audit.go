package dto

import (
	"encoding/json"
	"time"
)

// AuditQuery 审计日志查询
type AuditQuery struct {
	PaginationRequest
	EntityType string `form:"entity_type" binding:"omitempty,max=60"`
	EntityID   string `form:"entity_id"   binding:"omitempty,max=100"`
	SessionID  string `form:"session_id"  binding:"omitempty,uuid"`
	Action     string `form:"action"      binding:"omitempty,max=40"`
	Actor      string `form:"actor"       binding:"omitempty,max=100"`
	Since      string `form:"since"       binding:"omitempty,datetime=2006-01-02"`
}

// AuditEntryResponse 审计日志条目
type AuditEntryResponse struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	SessionID  *string         `json:"session_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PatchOperation RFC 6902 操作
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// AuditDiffResponse 审计条目前后快照的差异
type AuditDiffResponse struct {
	ID    string           `json:"id"`
	Patch []PatchOperation `json:"patch"`
}
