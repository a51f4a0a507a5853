package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Student 学生 — 对应 students
// 同一账号（user_id）在不同学期会话可各有一行
type Student struct {
	StudentID    string                      `gorm:"type:uuid;primaryKey"                                           json:"student_id"`
	SessionID    string                      `gorm:"type:uuid;not null;uniqueIndex:uq_students_session_matric"     json:"session_id"`
	MatricNumber string                      `gorm:"type:varchar(50);not null;uniqueIndex:uq_students_session_matric" json:"matric_number"`
	FirstName    string                      `gorm:"type:varchar(100);not null"                                     json:"first_name"`
	LastName     string                      `gorm:"type:varchar(100);not null"                                     json:"last_name"`
	Email        string                      `gorm:"type:varchar(200)"                                              json:"email,omitempty"`
	ProgrammeID  *string                     `gorm:"type:uuid"                                                      json:"programme_id,omitempty"`
	EntryYear    int                         `gorm:"not null"                                                       json:"entry_year"`
	CurrentLevel int                         `gorm:"not null"                                                       json:"current_level"`
	StudentType  string                      `gorm:"type:varchar(30)"                                               json:"student_type,omitempty"`
	SpecialNeeds datatypes.JSONSlice[string] `gorm:"not null"                                                       json:"special_needs"`
	UserID       *string                     `gorm:"type:uuid;index"                                                json:"user_id,omitempty"`
	BaseModel
}

func (Student) TableName() string { return "students" }

func (s *Student) BeforeCreate(*gorm.DB) error {
	ensureID(&s.StudentID)
	return nil
}

// Staff 教职工 — 对应 staff
type Staff struct {
	StaffID                   string  `gorm:"type:uuid;primaryKey"                                           json:"staff_id"`
	SessionID                 string  `gorm:"type:uuid;not null;uniqueIndex:uq_staff_session_number"        json:"session_id"`
	StaffNumber               string  `gorm:"type:varchar(50);not null;uniqueIndex:uq_staff_session_number" json:"staff_number"`
	FirstName                 string  `gorm:"type:varchar(100);not null"                                     json:"first_name"`
	LastName                  string  `gorm:"type:varchar(100);not null"                                     json:"last_name"`
	Email                     string  `gorm:"type:varchar(200)"                                              json:"email,omitempty"`
	DepartmentID              *string `gorm:"type:uuid"                                                      json:"department_id,omitempty"`
	StaffType                 string  `gorm:"type:varchar(30)"                                               json:"staff_type,omitempty"`
	CanInvigilate             bool    `gorm:"not null"                                                       json:"can_invigilate"`
	MaxConcurrentExams        int     `gorm:"not null"                                                       json:"max_concurrent_exams"`
	MaxDailySessions          int     `gorm:"not null"                                                       json:"max_daily_sessions"`
	MaxConsecutiveSessions    int     `gorm:"not null"                                                       json:"max_consecutive_sessions"`
	MaxStudentsPerInvigilator int     `gorm:"not null"                                                       json:"max_students_per_invigilator"`
	UserID                    *string `gorm:"type:uuid;index"                                                json:"user_id,omitempty"`
	IsActive                  bool    `gorm:"not null"                                                       json:"is_active"`
	BaseModel
}

func (Staff) TableName() string { return "staff" }

func (s *Staff) BeforeCreate(*gorm.DB) error {
	ensureID(&s.StaffID)
	return nil
}

// StaffUnavailability 教职工不可监考时间 — 对应 staff_unavailability
// period_index 为空表示全天不可用；natural_key 由 staff_number|date|period 组成
type StaffUnavailability struct {
	UnavailabilityID string    `gorm:"type:uuid;primaryKey"                                              json:"unavailability_id"`
	SessionID        string    `gorm:"type:uuid;not null;uniqueIndex:uq_unavailability_session_key"     json:"session_id"`
	NaturalKey       string    `gorm:"type:varchar(200);not null;uniqueIndex:uq_unavailability_session_key" json:"natural_key"`
	StaffID          string    `gorm:"type:uuid;not null;index"                                          json:"staff_id"`
	UnavailableDate  time.Time `gorm:"type:date;not null"                                                json:"unavailable_date"`
	PeriodIndex      *int      `json:"period_index,omitempty"`
	Reason           string    `gorm:"type:varchar(500)"                                                 json:"reason,omitempty"`
	BaseModel
}

func (StaffUnavailability) TableName() string { return "staff_unavailability" }

func (u *StaffUnavailability) BeforeCreate(*gorm.DB) error {
	ensureID(&u.UnavailabilityID)
	return nil
}

// Covers 判断某考试日/时段是否落在不可用范围内
func (u *StaffUnavailability) Covers(date time.Time, periodIndex int) bool {
	if DateKey(u.UnavailableDate) != DateKey(date) {
		return false
	}
	return u.PeriodIndex == nil || *u.PeriodIndex == periodIndex
}
