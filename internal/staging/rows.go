package staging

import (
	"strconv"
	"strings"
)

// Row 一条暂存行；NaturalKey 在同一 session、同一种类内唯一
type Row interface {
	NaturalKey() string
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// ── 组织层级 ──

type FacultyRow struct {
	Code string `json:"code" validate:"required,max=50"`
	Name string `json:"name" validate:"required,max=200"`
}

func (r *FacultyRow) NaturalKey() string { return r.Code }

type DepartmentRow struct {
	Code        string `json:"code"         validate:"required,max=50"`
	Name        string `json:"name"         validate:"required,max=200"`
	FacultyCode string `json:"faculty_code" validate:"required,max=50"`
}

func (r *DepartmentRow) NaturalKey() string { return r.Code }

type BuildingRow struct {
	Code        string `json:"code"         validate:"required,max=50"`
	Name        string `json:"name"         validate:"required,max=200"`
	FacultyCode string `json:"faculty_code" validate:"omitempty,max=50"`
}

func (r *BuildingRow) NaturalKey() string { return r.Code }

type RoomRow struct {
	Code              string   `json:"code"                validate:"required,max=50"`
	Name              string   `json:"name"                validate:"required,max=200"`
	BuildingCode      string   `json:"building_code"       validate:"required,max=50"`
	Capacity          int      `json:"capacity"            validate:"gt=0"`
	ExamCapacity      int      `json:"exam_capacity"       validate:"gte=0"`
	RoomType          string   `json:"room_type"           validate:"omitempty,max=50"`
	Floor             *int     `json:"floor"`
	HasComputers      bool     `json:"has_computers"`
	Accessible        bool     `json:"accessible"`
	AdjacentRoomCodes []string `json:"adjacent_room_codes" validate:"omitempty,dive,required,max=50"`
	IsActive          *bool    `json:"is_active"`
}

func (r *RoomRow) NaturalKey() string { return r.Code }

type ProgrammeRow struct {
	Code           string `json:"code"            validate:"required,max=50"`
	Name           string `json:"name"            validate:"required,max=200"`
	DepartmentCode string `json:"department_code" validate:"required,max=50"`
	DegreeType     string `json:"degree_type"     validate:"omitempty,max=50"`
	DurationYears  int    `json:"duration_years"  validate:"omitempty,min=1,max=10"`
}

func (r *ProgrammeRow) NaturalKey() string { return r.Code }

// ── 人员 ──

type StaffRow struct {
	StaffNumber               string `json:"staff_number"                 validate:"required,max=50"`
	FirstName                 string `json:"first_name"                   validate:"required,max=100"`
	LastName                  string `json:"last_name"                    validate:"required,max=100"`
	Email                     string `json:"email"                        validate:"omitempty,email,max=200"`
	DepartmentCode            string `json:"department_code"              validate:"omitempty,max=50"`
	StaffType                 string `json:"staff_type"                   validate:"omitempty,max=30"`
	CanInvigilate             *bool  `json:"can_invigilate"`
	MaxConcurrentExams        int    `json:"max_concurrent_exams"         validate:"gte=0"`
	MaxDailySessions          int    `json:"max_daily_sessions"           validate:"gte=0"`
	MaxConsecutiveSessions    int    `json:"max_consecutive_sessions"     validate:"gte=0"`
	MaxStudentsPerInvigilator int    `json:"max_students_per_invigilator" validate:"gte=0"`
	UserID                    string `json:"user_id"                      validate:"omitempty,uuid"`
	IsActive                  *bool  `json:"is_active"`
}

func (r *StaffRow) NaturalKey() string { return r.StaffNumber }

type StudentRow struct {
	MatricNumber  string   `json:"matric_number"  validate:"required,max=50"`
	FirstName     string   `json:"first_name"     validate:"required,max=100"`
	LastName      string   `json:"last_name"      validate:"required,max=100"`
	Email         string   `json:"email"          validate:"omitempty,email,max=200"`
	ProgrammeCode string   `json:"programme_code" validate:"omitempty,max=50"`
	EntryYear     int      `json:"entry_year"     validate:"required,min=1900,max=2200"`
	CurrentLevel  int      `json:"current_level"  validate:"required,min=1"`
	StudentType   string   `json:"student_type"   validate:"omitempty,max=30"`
	SpecialNeeds  []string `json:"special_needs"  validate:"omitempty,dive,required"`
	UserID        string   `json:"user_id"        validate:"omitempty,uuid"`
}

func (r *StudentRow) NaturalKey() string { return r.MatricNumber }

type StaffUnavailabilityRow struct {
	StaffNumber string `json:"staff_number" validate:"required,max=50"`
	Date        string `json:"date"         validate:"required,datetime=2006-01-02"`
	PeriodIndex *int   `json:"period_index" validate:"omitempty,min=0"`
	Reason      string `json:"reason"       validate:"omitempty,max=500"`
}

// NaturalKey staff|date|period，period 缺省为 all（整天）
func (r *StaffUnavailabilityRow) NaturalKey() string {
	period := "all"
	if r.PeriodIndex != nil {
		period = strconv.Itoa(*r.PeriodIndex)
	}
	return joinKey(r.StaffNumber, r.Date, period)
}

// ── 课程 / 关联 ──

type CourseRow struct {
	Code                string `json:"code"                  validate:"required,max=50"`
	Title               string `json:"title"                 validate:"required,max=300"`
	CreditUnits         int    `json:"credit_units"          validate:"gte=0"`
	Level               int    `json:"level"                 validate:"required,min=1"`
	Semester            int    `json:"semester"              validate:"required,min=1,max=3"`
	ExamDurationMinutes int    `json:"exam_duration_minutes" validate:"omitempty,min=30,max=480"`
	IsPractical         bool   `json:"is_practical"`
	MorningOnly         bool   `json:"morning_only"`
	IsActive            *bool  `json:"is_active"`
}

func (r *CourseRow) NaturalKey() string { return r.Code }

type CourseDepartmentRow struct {
	CourseCode     string `json:"course_code"     validate:"required,max=50"`
	DepartmentCode string `json:"department_code" validate:"required,max=50"`
}

func (r *CourseDepartmentRow) NaturalKey() string { return joinKey(r.CourseCode, r.DepartmentCode) }

type CourseFacultyRow struct {
	CourseCode  string `json:"course_code"  validate:"required,max=50"`
	FacultyCode string `json:"faculty_code" validate:"required,max=50"`
}

func (r *CourseFacultyRow) NaturalKey() string { return joinKey(r.CourseCode, r.FacultyCode) }

type CourseInstructorRow struct {
	CourseCode  string `json:"course_code"  validate:"required,max=50"`
	StaffNumber string `json:"staff_number" validate:"required,max=50"`
}

func (r *CourseInstructorRow) NaturalKey() string { return joinKey(r.CourseCode, r.StaffNumber) }

type RegistrationRow struct {
	MatricNumber     string `json:"matric_number"     validate:"required,max=50"`
	CourseCode       string `json:"course_code"       validate:"required,max=50"`
	RegistrationType string `json:"registration_type" validate:"omitempty,oneof=regular carryover audit"`
}

func (r *RegistrationRow) NaturalKey() string { return joinKey(r.MatricNumber, r.CourseCode) }

// BoolOr 可空布尔的缺省取值
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
