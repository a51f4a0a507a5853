package dto

import "encoding/json"

// ── 暂存 / ETL 模块 DTO ──

// StageRowsRequest 写入一批同种类暂存行
type StageRowsRequest struct {
	Kind string            `json:"kind" binding:"required"`
	Rows []json.RawMessage `json:"rows" binding:"required,min=1"`
}

// StageRowsResponse 写入结果；Issues 含被拒绝行与校验未通过行的问题
type StageRowsResponse struct {
	Kind     string       `json:"kind"`
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Issues   []IssueEntry `json:"issues,omitempty"`
}

// IssueEntry 行级问题
type IssueEntry struct {
	Kind       string `json:"kind"`
	NaturalKey string `json:"natural_key"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

// StagingSummaryResponse 按种类统计的暂存行数
type StagingSummaryResponse struct {
	SessionID string           `json:"session_id"`
	Counts    map[string]int64 `json:"counts"`
	Total     int64            `json:"total"`
}

// EtlRunRequest 触发规范化；dry_run 只校验并统计，不落库
type EtlRunRequest struct {
	DryRun bool `json:"dry_run"`
}

// EtlRunListQuery 运行记录分页查询
type EtlRunListQuery struct {
	PaginationRequest
}
