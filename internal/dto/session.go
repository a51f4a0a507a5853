package dto

// ── 学期会话模块 DTO ──

// CreateSessionRequest 创建学期会话请求
type CreateSessionRequest struct {
	Name            string  `json:"name"              binding:"required,min=2,max=100"`
	StartDate       string  `json:"start_date"        binding:"required"` // "2025-02-17"
	EndDate         string  `json:"end_date"          binding:"required"`
	ExamStartDate   string  `json:"exam_start_date"   binding:"required"`
	ExamEndDate     string  `json:"exam_end_date"     binding:"required"`
	IncludeWeekends bool    `json:"include_weekends"`
	TemplateID      *string `json:"template_id"       binding:"omitempty,uuid"`
}

// UpdateSessionRequest 更新学期会话请求
type UpdateSessionRequest struct {
	Name            *string `json:"name"             binding:"omitempty,min=2,max=100"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	ExamStartDate   *string `json:"exam_start_date"`
	ExamEndDate     *string `json:"exam_end_date"`
	IncludeWeekends *bool   `json:"include_weekends"`
	TemplateID      *string `json:"template_id"      binding:"omitempty,uuid"`
	Version         int     `json:"version"          binding:"required,min=1"`
}

// SessionListQuery 会话列表查询
type SessionListQuery struct {
	IncludeArchived bool `form:"include_archived"`
}

// SessionResponse 学期会话响应
type SessionResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	StartDate       string            `json:"start_date"`
	EndDate         string            `json:"end_date"`
	ExamStartDate   string            `json:"exam_start_date"`
	ExamEndDate     string            `json:"exam_end_date"`
	IncludeWeekends bool              `json:"include_weekends"`
	ExamDays        int               `json:"exam_days"`
	TemplateID      *string           `json:"template_id,omitempty"`
	Template        *TemplateResponse `json:"template,omitempty"`
	IsActive        bool              `json:"is_active"`
	Status          string            `json:"status"`
	Version         int               `json:"version"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// ── 时段模板 ──

// PeriodRequest 模板内的单个时段
type PeriodRequest struct {
	Name      string `json:"name"       binding:"required,max=50"`
	StartTime string `json:"start_time" binding:"required,datetime=15:04"`
	EndTime   string `json:"end_time"   binding:"required,datetime=15:04"`
}

// CreateTemplateRequest 创建时段模板请求
type CreateTemplateRequest struct {
	Name        string          `json:"name"        binding:"required,min=2,max=100"`
	Description string          `json:"description" binding:"max=500"`
	Periods     []PeriodRequest `json:"periods"     binding:"required,min=1,max=12,dive"`
}

// ReplacePeriodsRequest 替换模板时段请求
type ReplacePeriodsRequest struct {
	Periods []PeriodRequest `json:"periods" binding:"required,min=1,max=12,dive"`
}

// PeriodResponse 时段响应
type PeriodResponse struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// TemplateResponse 时段模板响应
type TemplateResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Periods     []PeriodResponse `json:"periods"`
}
