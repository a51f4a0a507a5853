package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ════════════════════════════════════════════════════════════
// 排考任务
// ════════════════════════════════════════════════════════════

// 任务状态
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusPaused    = "paused"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// ProgressEntry 任务进度日志条目
type ProgressEntry struct {
	At       time.Time `json:"at"`
	Phase    string    `json:"phase"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
}

// JobMetrics 求解质量指标；Extra 承载求解器返回的其他指标
type JobMetrics struct {
	HardViolations int            `json:"hard_violations"`
	SoftViolations int            `json:"soft_violations"`
	Utilization    float64        `json:"utilization"`
	SolveSeconds   float64        `json:"solve_seconds"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// TimetableJob 排考任务 — 对应 timetable_jobs
type TimetableJob struct {
	JobID           string                             `gorm:"type:uuid;primaryKey"                         json:"job_id"`
	SessionID       string                             `gorm:"type:uuid;not null;index"                     json:"session_id"`
	ConfigurationID *string                            `gorm:"type:uuid"                                    json:"configuration_id,omitempty"`
	ScenarioID      *string                            `gorm:"type:uuid;index"                              json:"scenario_id,omitempty"`
	InitiatedBy     string                             `gorm:"type:varchar(100);not null"                   json:"initiated_by"`
	Status          string                             `gorm:"type:varchar(20);not null;default:'queued'"   json:"status"`
	CanPause        bool                               `gorm:"not null"                                     json:"can_pause"`
	CanResume       bool                               `gorm:"not null"                                     json:"can_resume"`
	CanCancel       bool                               `gorm:"not null"                                     json:"can_cancel"`
	Progress        int                                `gorm:"not null"                                     json:"progress"`
	Phase           string                             `gorm:"type:varchar(50)"                             json:"phase,omitempty"`
	ProgressLog     datatypes.JSONSlice[ProgressEntry] `gorm:"not null"                                     json:"progress_log"`
	Metrics         datatypes.JSONType[JobMetrics]     `gorm:"not null"                                     json:"metrics"`
	ResultPayload   datatypes.JSON                     `json:"result_payload,omitempty"`
	ErrorMessage    string                             `gorm:"type:text"                                    json:"error_message,omitempty"`
	StartedAt       *time.Time                         `json:"started_at,omitempty"`
	CompletedAt     *time.Time                         `json:"completed_at,omitempty"`
	VersionedModel
}

func (TimetableJob) TableName() string { return "timetable_jobs" }

func (j *TimetableJob) BeforeCreate(*gorm.DB) error {
	ensureID(&j.JobID)
	if j.ProgressLog == nil {
		j.ProgressLog = datatypes.JSONSlice[ProgressEntry]{}
	}
	return nil
}

// SetStatus 切换状态并同步派生的能力标志，三个标志只能经由此处写入
func (j *TimetableJob) SetStatus(status string) {
	j.Status = status
	j.CanPause = status == JobStatusRunning
	j.CanResume = status == JobStatusPaused
	j.CanCancel = status == JobStatusQueued || status == JobStatusRunning || status == JobStatusPaused
}

// IsTerminal 是否已处于终态
func (j *TimetableJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// AppendProgress 追加一条进度日志
func (j *TimetableJob) AppendProgress(phase string, progress int, message string) {
	j.ProgressLog = append(j.ProgressLog, ProgressEntry{
		At:       time.Now().UTC(),
		Phase:    phase,
		Progress: progress,
		Message:  message,
	})
}

// HasResult 是否已保存求解结果
func (j *TimetableJob) HasResult() bool {
	return len(j.ResultPayload) > 0 && string(j.ResultPayload) != "null"
}

// ════════════════════════════════════════════════════════════
// 版本 / 方案分支
// ════════════════════════════════════════════════════════════

// 版本类型
const (
	VersionTypePrimary = "primary"
	VersionTypeDraft   = "draft"
)

// TimetableVersion 排考版本 — 对应 timetable_versions
// 每个 session 至多一个 is_published = true（部分唯一索引兜底）；
// 每个任务至多一个 primary 版本，方案草稿沿用 job_id 记录血缘
type TimetableVersion struct {
	VersionID       string     `gorm:"type:uuid;primaryKey"                                                                                    json:"version_id"`
	JobID           *string    `gorm:"type:uuid;uniqueIndex:uq_versions_primary_job,where:version_type = 'primary'"                            json:"job_id,omitempty"`
	SessionID       string     `gorm:"type:uuid;not null;index:idx_versions_session;uniqueIndex:uq_versions_one_published,where:is_published = true" json:"session_id"`
	ScenarioID      *string    `gorm:"type:uuid;index"                                                                                         json:"scenario_id,omitempty"`
	ParentVersionID *string    `gorm:"type:uuid"                                                                                               json:"parent_version_id,omitempty"`
	VersionNumber   int        `gorm:"not null"                                                                                                json:"version_number"`
	VersionType     string     `gorm:"type:varchar(20);not null"                                                                               json:"version_type"`
	IsPublished     bool       `gorm:"not null;default:false"                                                                                  json:"is_published"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PublishedBy     string     `gorm:"type:varchar(100)"                                                                                       json:"published_by,omitempty"`
	Notes           string     `gorm:"type:text"                                                                                               json:"notes,omitempty"`
	CreatedBy       string     `gorm:"type:varchar(100)"                                                                                       json:"created_by,omitempty"`
	BaseModel
}

func (TimetableVersion) TableName() string { return "timetable_versions" }

func (v *TimetableVersion) BeforeCreate(*gorm.DB) error {
	ensureID(&v.VersionID)
	return nil
}

// TimetableScenario 方案分支 — 对应 timetable_scenarios，只归档不删除
type TimetableScenario struct {
	ScenarioID      string     `gorm:"type:uuid;primaryKey"          json:"scenario_id"`
	SessionID       string     `gorm:"type:uuid;not null;index"      json:"session_id"`
	ParentVersionID string     `gorm:"type:uuid;not null"            json:"parent_version_id"`
	Name            string     `gorm:"type:varchar(200);not null"    json:"name"`
	Description     string     `gorm:"type:varchar(1000)"            json:"description,omitempty"`
	IsArchived      bool       `gorm:"not null;default:false"        json:"is_archived"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	CreatedBy       string     `gorm:"type:varchar(100)"             json:"created_by,omitempty"`
	BaseModel
}

func (TimetableScenario) TableName() string { return "timetable_scenarios" }

func (s *TimetableScenario) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ScenarioID)
	return nil
}

// ════════════════════════════════════════════════════════════
// 排考结果
// ════════════════════════════════════════════════════════════

// TimetableAssignment 考试安排 — 对应 timetable_assignments
// 一场考试分多个考场时每个考场一行，allocated_capacity 为该考场安排人数
type TimetableAssignment struct {
	AssignmentID      string    `gorm:"type:uuid;primaryKey"                            json:"assignment_id"`
	VersionID         string    `gorm:"type:uuid;not null;index:idx_assignments_version_exam" json:"version_id"`
	ExamID            string    `gorm:"type:uuid;not null;index:idx_assignments_version_exam" json:"exam_id"`
	RoomID            string    `gorm:"type:uuid;not null"                              json:"room_id"`
	ExamDate          time.Time `gorm:"type:date;not null"                              json:"exam_date"`
	PeriodIndex       int       `gorm:"not null"                                        json:"period_index"`
	AllocatedCapacity int       `gorm:"not null"                                        json:"allocated_capacity"`
	IsConfirmed       bool      `gorm:"not null;default:false"                          json:"is_confirmed"`
	Notes             string    `gorm:"type:varchar(500)"                               json:"notes,omitempty"`
	BaseModel

	Invigilators []TimetableInvigilator `gorm:"foreignKey:AssignmentID" json:"invigilators,omitempty"`
}

func (TimetableAssignment) TableName() string { return "timetable_assignments" }

func (a *TimetableAssignment) BeforeCreate(*gorm.DB) error {
	ensureID(&a.AssignmentID)
	return nil
}

// 监考角色
const (
	InvigilatorRoleChief     = "chief"
	InvigilatorRoleAssistant = "assistant"
)

// TimetableInvigilator 监考安排 — 对应 timetable_invigilators
type TimetableInvigilator struct {
	InvigilatorID string `gorm:"type:uuid;primaryKey"          json:"invigilator_id"`
	VersionID     string `gorm:"type:uuid;not null;index"      json:"version_id"`
	AssignmentID  string `gorm:"type:uuid;not null;index"      json:"assignment_id"`
	StaffID       string `gorm:"type:uuid;not null"            json:"staff_id"`
	Role          string `gorm:"type:varchar(20);not null"     json:"role"`
}

func (TimetableInvigilator) TableName() string { return "timetable_invigilators" }

func (i *TimetableInvigilator) BeforeCreate(*gorm.DB) error {
	ensureID(&i.InvigilatorID)
	return nil
}

// ExamLock 人工锁定 — 对应 exam_locks
// scenario_id 为空表示对整个 session 生效；room_id 为空表示只锁日期与时段
type ExamLock struct {
	LockID      string    `gorm:"type:uuid;primaryKey"          json:"lock_id"`
	SessionID   string    `gorm:"type:uuid;not null;index"      json:"session_id"`
	ScenarioID  *string   `gorm:"type:uuid"                     json:"scenario_id,omitempty"`
	ExamID      string    `gorm:"type:uuid;not null"            json:"exam_id"`
	ExamDate    time.Time `gorm:"type:date;not null"            json:"exam_date"`
	PeriodIndex int       `gorm:"not null"                      json:"period_index"`
	RoomID      *string   `gorm:"type:uuid"                     json:"room_id,omitempty"`
	Reason      string    `gorm:"type:varchar(500)"             json:"reason,omitempty"`
	IsActive    bool      `gorm:"not null"                      json:"is_active"`
	CreatedBy   string    `gorm:"type:varchar(100)"             json:"created_by,omitempty"`
	BaseModel
}

func (ExamLock) TableName() string { return "exam_locks" }

func (l *ExamLock) BeforeCreate(*gorm.DB) error {
	ensureID(&l.LockID)
	return nil
}

// ════════════════════════════════════════════════════════════
// 冲突
// ════════════════════════════════════════════════════════════

// 冲突类型
const (
	ConflictStudent           = "student_conflict"
	ConflictRoomOverCapacity  = "room_overcapacity"
	ConflictRoomDoubleBooking = "room_double_booking"
	ConflictInvigilator       = "invigilator_conflict"
)

// 冲突级别
const (
	SeverityHard = "hard"
	SeveritySoft = "soft"
)

// ConflictDetails 冲突的结构化详情
type ConflictDetails struct {
	ExamIDs     []string `json:"exam_ids"`
	StudentIDs  []string `json:"student_ids,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
	StaffID     string   `json:"staff_id,omitempty"`
	Date        string   `json:"date"`
	PeriodIndex int      `json:"period_index"`
	Capacity    int      `json:"capacity,omitempty"`
	Headcount   int      `json:"headcount,omitempty"`
}

// TimetableConflict 冲突记录 — 对应 timetable_conflicts
// 主键由 (version, type, fingerprint) 派生，重算结果稳定
type TimetableConflict struct {
	ConflictID   string                              `gorm:"type:uuid;primaryKey"          json:"conflict_id"`
	VersionID    string                              `gorm:"type:uuid;not null;index"      json:"version_id"`
	ConflictType string                              `gorm:"type:varchar(40);not null"     json:"conflict_type"`
	Severity     string                              `gorm:"type:varchar(10);not null"     json:"severity"`
	Fingerprint  string                              `gorm:"type:varchar(500);not null"    json:"fingerprint"`
	Message      string                              `gorm:"type:varchar(1000);not null"   json:"message"`
	Details      datatypes.JSONType[ConflictDetails] `gorm:"not null"                      json:"details"`
	CreatedAt    time.Time                           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TimetableConflict) TableName() string { return "timetable_conflicts" }
