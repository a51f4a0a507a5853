package model

import "gorm.io/gorm"

// Course 课程 — 对应 courses
type Course struct {
	CourseID            string `gorm:"type:uuid;primaryKey"                                          json:"course_id"`
	SessionID           string `gorm:"type:uuid;not null;uniqueIndex:uq_courses_session_code"       json:"session_id"`
	Code                string `gorm:"type:varchar(50);not null;uniqueIndex:uq_courses_session_code" json:"code"`
	Title               string `gorm:"type:varchar(300);not null"                                    json:"title"`
	CreditUnits         int    `gorm:"not null"                                                      json:"credit_units"`
	Level               int    `gorm:"not null"                                                      json:"level"`
	Semester            int    `gorm:"not null"                                                      json:"semester"`
	ExamDurationMinutes int    `gorm:"not null"                                                      json:"exam_duration_minutes"`
	IsPractical         bool   `gorm:"not null"                                                      json:"is_practical"`
	MorningOnly         bool   `gorm:"not null"                                                      json:"morning_only"`
	IsActive            bool   `gorm:"not null"                                                      json:"is_active"`
	BaseModel
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(*gorm.DB) error {
	ensureID(&c.CourseID)
	return nil
}

// ── 课程关联表：每行都带 session_id，防止跨学期通过共享标识串数据 ──

// CourseDepartment 课程-系关联 — 对应 course_departments
type CourseDepartment struct {
	CourseDepartmentID string `gorm:"type:uuid;primaryKey"                          json:"course_department_id"`
	SessionID          string `gorm:"type:uuid;not null;uniqueIndex:uq_course_departments" json:"session_id"`
	CourseID           string `gorm:"type:uuid;not null;uniqueIndex:uq_course_departments" json:"course_id"`
	DepartmentID       string `gorm:"type:uuid;not null;uniqueIndex:uq_course_departments" json:"department_id"`
}

func (CourseDepartment) TableName() string { return "course_departments" }

func (l *CourseDepartment) BeforeCreate(*gorm.DB) error {
	ensureID(&l.CourseDepartmentID)
	return nil
}

// CourseFaculty 课程-学院关联 — 对应 course_faculties
type CourseFaculty struct {
	CourseFacultyID string `gorm:"type:uuid;primaryKey"                        json:"course_faculty_id"`
	SessionID       string `gorm:"type:uuid;not null;uniqueIndex:uq_course_faculties" json:"session_id"`
	CourseID        string `gorm:"type:uuid;not null;uniqueIndex:uq_course_faculties" json:"course_id"`
	FacultyID       string `gorm:"type:uuid;not null;uniqueIndex:uq_course_faculties" json:"faculty_id"`
}

func (CourseFaculty) TableName() string { return "course_faculties" }

func (l *CourseFaculty) BeforeCreate(*gorm.DB) error {
	ensureID(&l.CourseFacultyID)
	return nil
}

// CourseInstructor 课程-授课教师关联 — 对应 course_instructors
type CourseInstructor struct {
	CourseInstructorID string `gorm:"type:uuid;primaryKey"                           json:"course_instructor_id"`
	SessionID          string `gorm:"type:uuid;not null;uniqueIndex:uq_course_instructors" json:"session_id"`
	CourseID           string `gorm:"type:uuid;not null;uniqueIndex:uq_course_instructors" json:"course_id"`
	StaffID            string `gorm:"type:uuid;not null;uniqueIndex:uq_course_instructors" json:"staff_id"`
}

func (CourseInstructor) TableName() string { return "course_instructors" }

func (l *CourseInstructor) BeforeCreate(*gorm.DB) error {
	ensureID(&l.CourseInstructorID)
	return nil
}

// CourseRegistration 选课记录 — 对应 course_registrations
type CourseRegistration struct {
	RegistrationID   string `gorm:"type:uuid;primaryKey"                             json:"registration_id"`
	SessionID        string `gorm:"type:uuid;not null;uniqueIndex:uq_registrations" json:"session_id"`
	StudentID        string `gorm:"type:uuid;not null;uniqueIndex:uq_registrations" json:"student_id"`
	CourseID         string `gorm:"type:uuid;not null;uniqueIndex:uq_registrations;index" json:"course_id"`
	RegistrationType string `gorm:"type:varchar(30);not null;default:'regular'"     json:"registration_type"` // regular | carryover | audit
	BaseModel
}

func (CourseRegistration) TableName() string { return "course_registrations" }

func (r *CourseRegistration) BeforeCreate(*gorm.DB) error {
	ensureID(&r.RegistrationID)
	return nil
}

// 考试状态
const (
	ExamStatusPending   = "pending"
	ExamStatusScheduled = "scheduled"
)

// Exam 考试 — 对应 exams
// 仅由自动生成步骤创建：每学期每门有选课记录的课程恰好一场
type Exam struct {
	ExamID           string `gorm:"type:uuid;primaryKey"                             json:"exam_id"`
	SessionID        string `gorm:"type:uuid;not null;uniqueIndex:uq_exams_session_course" json:"session_id"`
	CourseID         string `gorm:"type:uuid;not null;uniqueIndex:uq_exams_session_course" json:"course_id"`
	DurationMinutes  int    `gorm:"not null"                                         json:"duration_minutes"`
	ExpectedStudents int    `gorm:"not null"                                         json:"expected_students"`
	IsPractical      bool   `gorm:"not null"                                         json:"is_practical"`
	MorningOnly      bool   `gorm:"not null"                                         json:"morning_only"`
	Status           string `gorm:"type:varchar(20);not null;default:'pending'"      json:"status"`
	BaseModel

	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
}

func (Exam) TableName() string { return "exams" }

func (e *Exam) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ExamID)
	return nil
}
