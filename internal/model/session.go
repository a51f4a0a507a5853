package model

import (
	"time"

	"gorm.io/gorm"
)

// 学期会话状态
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
)

// AcademicSession 学期会话表 — 对应 academic_sessions
// 全系统至多一个 is_active = true；有数据后只能归档不能删除
type AcademicSession struct {
	SessionID       string    `gorm:"type:uuid;primaryKey"                        json:"session_id"`
	Name            string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_sessions_name" json:"name"`
	StartDate       time.Time `gorm:"type:date;not null"                          json:"start_date"`
	EndDate         time.Time `gorm:"type:date;not null"                          json:"end_date"`
	ExamStartDate   time.Time `gorm:"type:date;not null"                          json:"exam_start_date"`
	ExamEndDate     time.Time `gorm:"type:date;not null"                          json:"exam_end_date"`
	IncludeWeekends bool      `gorm:"not null;default:false"                      json:"include_weekends"`
	TemplateID      *string   `gorm:"type:uuid"                                   json:"template_id,omitempty"`
	IsActive        bool      `gorm:"not null;default:false"                      json:"is_active"`
	Status          string    `gorm:"type:varchar(20);not null;default:'active'"  json:"status"` // active | archived
	VersionedModel

	// 关联
	Template *TimeSlotTemplate `gorm:"foreignKey:TemplateID;references:TemplateID" json:"template,omitempty"`
}

// TableName 指定表名
func (AcademicSession) TableName() string { return "academic_sessions" }

func (s *AcademicSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.SessionID)
	return nil
}

// ExamDays 考试期内的所有考试日（默认跳过周末）
func (s *AcademicSession) ExamDays() []time.Time {
	var days []time.Time
	end := DateOnly(s.ExamEndDate)
	for d := DateOnly(s.ExamStartDate); !d.After(end); d = d.AddDate(0, 0, 1) {
		if !s.IncludeWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// TimeSlotTemplate 考试时段模板 — 对应 time_slot_templates
type TimeSlotTemplate struct {
	TemplateID  string `gorm:"type:uuid;primaryKey"                                      json:"template_id"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:uq_templates_name" json:"name"`
	Description string `gorm:"type:varchar(500)"                                         json:"description,omitempty"`
	BaseModel

	Periods []TimeSlotPeriod `gorm:"foreignKey:TemplateID" json:"periods,omitempty"`
}

// TableName 指定表名
func (TimeSlotTemplate) TableName() string { return "time_slot_templates" }

func (t *TimeSlotTemplate) BeforeCreate(*gorm.DB) error {
	ensureID(&t.TemplateID)
	return nil
}

// TimeSlotPeriod 模板内的考试时段，period_index 从 0 开始连续编号
type TimeSlotPeriod struct {
	PeriodID    string `gorm:"type:uuid;primaryKey"                                   json:"period_id"`
	TemplateID  string `gorm:"type:uuid;not null;uniqueIndex:uq_periods_template_idx" json:"template_id"`
	PeriodIndex int    `gorm:"not null;uniqueIndex:uq_periods_template_idx"           json:"period_index"`
	Name        string `gorm:"type:varchar(50);not null"                              json:"name"`
	StartTime   string `gorm:"type:varchar(5);not null"                               json:"start_time"` // "09:00"
	EndTime     string `gorm:"type:varchar(5);not null"                               json:"end_time"`
}

// TableName 指定表名
func (TimeSlotPeriod) TableName() string { return "time_slot_periods" }

func (p *TimeSlotPeriod) BeforeCreate(*gorm.DB) error {
	ensureID(&p.PeriodID)
	return nil
}

// IsMorning 开始时间早于 12:00 的时段视为上午场
func (p *TimeSlotPeriod) IsMorning() bool {
	return p.StartTime < "12:00"
}
