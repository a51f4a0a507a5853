// Package solver 定义交给外部求解器的排考数据集、求解结果结构以及调用接口。
package solver

import "time"

// Dataset 一次排考任务的完整输入，求解器只依赖此结构
type Dataset struct {
	JobID           string              `json:"job_id"`
	SessionID       string              `json:"session_id"`
	ConfigurationID string              `json:"configuration_id"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Grid            Grid                `json:"grid"`
	Exams           []Exam              `json:"exams"`
	Rooms           []Room              `json:"rooms"`
	Invigilators    []Invigilator       `json:"invigilators"`
	Rules           []Rule              `json:"rules"`
	Locks           []Lock              `json:"locks"`
	Registrations   []Registration      `json:"registrations"`
	StudentExams    map[string][]string `json:"student_exams"`
	Params          Params              `json:"params"`
}

// Grid 考试日 × 时段
type Grid struct {
	Days    []string `json:"days"` // 2006-01-02
	Periods []Period `json:"periods"`
}

// Slots 网格总槽位数
func (g Grid) Slots() int { return len(g.Days) * len(g.Periods) }

type Period struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Morning   bool   `json:"morning"`
}

type Exam struct {
	ExamID           string   `json:"exam_id"`
	CourseID         string   `json:"course_id"`
	CourseCode       string   `json:"course_code"`
	CourseTitle      string   `json:"course_title"`
	Level            int      `json:"level"`
	DurationMinutes  int      `json:"duration_minutes"`
	ExpectedStudents int      `json:"expected_students"`
	IsPractical      bool     `json:"is_practical"`
	MorningOnly      bool     `json:"morning_only"`
	StudentIDs       []string `json:"student_ids"`
	InstructorIDs    []string `json:"instructor_ids"`
	DepartmentIDs    []string `json:"department_ids"`
	FacultyIDs       []string `json:"faculty_ids"`
}

type Room struct {
	RoomID          string   `json:"room_id"`
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	BuildingID      string   `json:"building_id"`
	Capacity        int      `json:"capacity"`
	ExamCapacity    int      `json:"exam_capacity"`
	RoomType        string   `json:"room_type,omitempty"`
	HasComputers    bool     `json:"has_computers"`
	Accessible      bool     `json:"accessible"`
	AdjacentRoomIDs []string `json:"adjacent_room_ids"`
}

type Invigilator struct {
	StaffID                   string        `json:"staff_id"`
	StaffNumber               string        `json:"staff_number"`
	Name                      string        `json:"name"`
	DepartmentID              string        `json:"department_id,omitempty"`
	MaxConcurrentExams        int           `json:"max_concurrent_exams"`
	MaxDailySessions          int           `json:"max_daily_sessions"`
	MaxConsecutiveSessions    int           `json:"max_consecutive_sessions"`
	MaxStudentsPerInvigilator int           `json:"max_students_per_invigilator"`
	Unavailable               []Unavailable `json:"unavailable"`
}

// Unavailable PeriodIndex 为空表示整天
type Unavailable struct {
	Date        string `json:"date"`
	PeriodIndex *int   `json:"period_index,omitempty"`
}

// Rule 解析后的约束规则
type Rule struct {
	Code     string         `json:"code"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Category string         `json:"category"`
	Enabled  bool           `json:"enabled"`
	Weight   float64        `json:"weight"`
	Params   map[string]any `json:"params"`
}

// Lock 人工锁定：RoomID 为空表示只锁日期与时段
type Lock struct {
	ExamID      string `json:"exam_id"`
	Date        string `json:"date"`
	PeriodIndex int    `json:"period_index"`
	RoomID      string `json:"room_id,omitempty"`
}

type Registration struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	ExamID    string `json:"exam_id,omitempty"`
}

// Params 求解器运行参数
type Params struct {
	TimeLimitSeconds int            `json:"time_limit_seconds"`
	Algorithm        string         `json:"algorithm"`
	PopulationSize   int            `json:"population_size,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// EnabledRule 按 code 查找已启用规则
func (d *Dataset) EnabledRule(code string) (Rule, bool) {
	for _, r := range d.Rules {
		if r.Code == code {
			return r, r.Enabled
		}
	}
	return Rule{}, false
}
