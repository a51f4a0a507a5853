package dto

import "time"

// ── 排考任务 ──

// CreateJobRequest 创建排考任务；Start 为 true 时创建后立即启动
type CreateJobRequest struct {
	SessionID       string  `json:"session_id"       binding:"required,uuid"`
	ConfigurationID *string `json:"configuration_id" binding:"omitempty,uuid"`
	ScenarioID      *string `json:"scenario_id"      binding:"omitempty,uuid"`
	Start           bool    `json:"start"`
}

// JobListQuery 任务列表查询
type JobListQuery struct {
	PaginationRequest
	SessionID string `form:"session_id" binding:"omitempty,uuid"`
	Status    string `form:"status"     binding:"omitempty,oneof=queued running paused completed failed cancelled"`
}

// FailJobRequest 外部回报失败
type FailJobRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

// ProgressRequest 外部回报进度
type ProgressRequest struct {
	Phase    string `json:"phase"    binding:"required,max=50"`
	Progress int    `json:"progress" binding:"min=0,max=100"`
	Message  string `json:"message"  binding:"max=1000"`
}

// JobResponse 任务响应（不含结果载荷）
type JobResponse struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	ConfigurationID *string         `json:"configuration_id,omitempty"`
	ScenarioID      *string         `json:"scenario_id,omitempty"`
	InitiatedBy     string          `json:"initiated_by"`
	Status          string          `json:"status"`
	CanPause        bool            `json:"can_pause"`
	CanResume       bool            `json:"can_resume"`
	CanCancel       bool            `json:"can_cancel"`
	Progress        int             `json:"progress"`
	Phase           string          `json:"phase,omitempty"`
	ProgressLog     []ProgressEntry `json:"progress_log,omitempty"`
	Metrics         *JobMetrics     `json:"metrics,omitempty"`
	HasResult       bool            `json:"has_result"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Version         int             `json:"version"`
}

// ProgressEntry 进度日志条目
type ProgressEntry struct {
	At       time.Time `json:"at"`
	Phase    string    `json:"phase"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
}

// JobMetrics 求解质量指标
type JobMetrics struct {
	HardViolations int            `json:"hard_violations"`
	SoftViolations int            `json:"soft_violations"`
	Utilization    float64        `json:"utilization"`
	SolveSeconds   float64        `json:"solve_seconds"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// JobProgressResponse 轮询进度；Source 标明来自缓存还是数据库
type JobProgressResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Phase     string    `json:"phase,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"` // cache | db
}

// ── 版本 ──

// PublishRequest 发布 / 撤销发布备注
type PublishRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// VersionListQuery 版本列表查询；scenario_id 为空时列出主线版本
type VersionListQuery struct {
	SessionID  string  `form:"session_id"  binding:"required,uuid"`
	ScenarioID *string `form:"scenario_id" binding:"omitempty,uuid"`
}

// CompareVersionsQuery 对比两个版本
type CompareVersionsQuery struct {
	Base   string `form:"base"   binding:"required,uuid"`
	Target string `form:"target" binding:"required,uuid"`
}

// VersionResponse 版本响应
type VersionResponse struct {
	ID              string     `json:"id"`
	JobID           *string    `json:"job_id,omitempty"`
	SessionID       string     `json:"session_id"`
	ScenarioID      *string    `json:"scenario_id,omitempty"`
	ParentVersionID *string    `json:"parent_version_id,omitempty"`
	VersionNumber   int        `json:"version_number"`
	VersionType     string     `json:"version_type"`
	IsPublished     bool       `json:"is_published"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PublishedBy     string     `json:"published_by,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// VersionDetailResponse 版本详情（含考试安排与冲突统计）
type VersionDetailResponse struct {
	VersionResponse
	Assignments []AssignmentResponse `json:"assignments"`
	Conflicts   map[string]int64     `json:"conflicts"`
}

// AssignmentResponse 考试安排响应
type AssignmentResponse struct {
	ID                string                `json:"id"`
	ExamID            string                `json:"exam_id"`
	RoomID            string                `json:"room_id"`
	Date              string                `json:"date"`
	PeriodIndex       int                   `json:"period_index"`
	AllocatedCapacity int                   `json:"allocated_capacity"`
	IsConfirmed       bool                  `json:"is_confirmed"`
	Notes             string                `json:"notes,omitempty"`
	Invigilators      []InvigilatorResponse `json:"invigilators,omitempty"`
}

// InvigilatorResponse 监考安排响应
type InvigilatorResponse struct {
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`
}

// ExamPlacement 一场考试在某版本中的位置（日期、时段、考场集合）
type ExamPlacement struct {
	Date        string   `json:"date"`
	PeriodIndex int      `json:"period_index"`
	RoomIDs     []string `json:"room_ids"`
}

// ExamMove 两个版本间位置变化的考试
type ExamMove struct {
	ExamID string        `json:"exam_id"`
	From   ExamPlacement `json:"from"`
	To     ExamPlacement `json:"to"`
}

// CompareVersionsResponse 版本对比结果
type CompareVersionsResponse struct {
	BaseVersionID   string     `json:"base_version_id"`
	TargetVersionID string     `json:"target_version_id"`
	Added           []string   `json:"added"`
	Removed         []string   `json:"removed"`
	Moved           []ExamMove `json:"moved"`
	Unchanged       int        `json:"unchanged"`
}

// ── 方案分支 ──

// CreateScenarioRequest 从某版本创建方案分支
type CreateScenarioRequest struct {
	ParentVersionID string `json:"parent_version_id" binding:"required,uuid"`
	Name            string `json:"name"              binding:"required,min=1,max=200"`
	Description     string `json:"description"       binding:"max=1000"`
}

// ScenarioListQuery 方案分支列表查询
type ScenarioListQuery struct {
	SessionID       string `form:"session_id"       binding:"required,uuid"`
	IncludeArchived bool   `form:"include_archived"`
}

// ScenarioResponse 方案分支响应
type ScenarioResponse struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	ParentVersionID string     `json:"parent_version_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	IsArchived      bool       `json:"is_archived"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// BranchResponse 创建方案分支的结果
type BranchResponse struct {
	Scenario ScenarioResponse `json:"scenario"`
	Version  VersionResponse  `json:"version"`
	Copied   int              `json:"copied_assignments"`
}

// MoveAssignmentRequest 调整草稿版本中的一条考场安排
type MoveAssignmentRequest struct {
	Date        string  `json:"date"         binding:"required,datetime=2006-01-02"`
	PeriodIndex int     `json:"period_index" binding:"min=0"`
	RoomID      *string `json:"room_id"      binding:"omitempty,uuid"`
}

// CreateLockRequest 人工锁定
type CreateLockRequest struct {
	SessionID   string  `json:"session_id"   binding:"required,uuid"`
	ScenarioID  *string `json:"scenario_id"  binding:"omitempty,uuid"`
	ExamID      string  `json:"exam_id"      binding:"required,uuid"`
	Date        string  `json:"date"         binding:"required,datetime=2006-01-02"`
	PeriodIndex int     `json:"period_index" binding:"min=0"`
	RoomID      *string `json:"room_id"      binding:"omitempty,uuid"`
	Reason      string  `json:"reason"       binding:"max=500"`
}

// ── 冲突 ──

// ConflictResponse 冲突响应
type ConflictResponse struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	ExamIDs     []string `json:"exam_ids"`
	StudentIDs  []string `json:"student_ids,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
	StaffID     string   `json:"staff_id,omitempty"`
	Date        string   `json:"date"`
	PeriodIndex int      `json:"period_index"`
	Capacity    int      `json:"capacity,omitempty"`
	Headcount   int      `json:"headcount,omitempty"`
}

// ConflictListQuery 冲突列表过滤
type ConflictListQuery struct {
	Type string `form:"type" binding:"omitempty,oneof=student_conflict room_overcapacity room_double_booking invigilator_conflict"`
}

// RecomputeManyRequest 批量重算冲突
type RecomputeManyRequest struct {
	VersionIDs []string `json:"version_ids" binding:"required,min=1,max=50,dive,uuid"`
}

// RecomputeResponse 冲突重算结果
type RecomputeResponse struct {
	VersionID string         `json:"version_id"`
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
}

// ── 通知对象 ──

// Recipient 通知对象
type Recipient struct {
	ID     string  `json:"id"`
	Number string  `json:"number"` // 学号 / 工号
	Name   string  `json:"name"`
	Email  string  `json:"email,omitempty"`
	UserID *string `json:"user_id,omitempty"`
}

// RecipientsResponse 某版本的通知对象
type RecipientsResponse struct {
	VersionID string      `json:"version_id"`
	Students  []Recipient `json:"students"`
	Staff     []Recipient `json:"staff"`
}

// ── 导出 ──

// CalendarQuery 个人考试日历导出
type CalendarQuery struct {
	PersonType string `form:"person_type" binding:"required,oneof=student staff"`
	PersonID   string `form:"person_id"   binding:"required,uuid"`
}
