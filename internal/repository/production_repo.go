package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-timetable/internal/model"
	"exam-timetable/internal/staging"
)

// ProductionRepository 规范化后的学期数据（组织、人员、课程、考试）。
// 写入方法均为按 (session_id, 自然键) 的幂等 upsert。
type ProductionRepository interface {
	// ── 写入（ETL） ──
	UpsertFaculties(ctx context.Context, rows []model.Faculty) error
	UpsertDepartments(ctx context.Context, rows []model.Department) error
	UpsertBuildings(ctx context.Context, rows []model.Building) error
	UpsertRooms(ctx context.Context, rows []model.Room) error
	UpsertProgrammes(ctx context.Context, rows []model.Programme) error
	UpsertStaff(ctx context.Context, rows []model.Staff) error
	UpsertStudents(ctx context.Context, rows []model.Student) error
	UpsertCourses(ctx context.Context, rows []model.Course) error
	InsertCourseDepartments(ctx context.Context, rows []model.CourseDepartment) error
	InsertCourseFaculties(ctx context.Context, rows []model.CourseFaculty) error
	InsertCourseInstructors(ctx context.Context, rows []model.CourseInstructor) error
	UpsertUnavailability(ctx context.Context, rows []model.StaffUnavailability) error
	UpsertRegistrations(ctx context.Context, rows []model.CourseRegistration) error
	CreateExams(ctx context.Context, exams []model.Exam) error

	// KeyIndex 自然键 → 主键，用于解析引用
	KeyIndex(ctx context.Context, sessionID string, kind staging.Kind) (map[string]string, error)

	// ── 读取 ──
	ListFaculties(ctx context.Context, sessionID string) ([]model.Faculty, error)
	ListDepartments(ctx context.Context, sessionID string) ([]model.Department, error)
	ListRooms(ctx context.Context, sessionID string, activeOnly bool) ([]model.Room, error)
	ListStaff(ctx context.Context, sessionID string) ([]model.Staff, error)
	ListStudents(ctx context.Context, sessionID string) ([]model.Student, error)
	ListStudentsByIDs(ctx context.Context, ids []string) ([]model.Student, error)
	ListCourses(ctx context.Context, sessionID string) ([]model.Course, error)
	ListUnavailability(ctx context.Context, sessionID string) ([]model.StaffUnavailability, error)
	ListRegistrations(ctx context.Context, sessionID string) ([]model.CourseRegistration, error)
	ListCourseInstructors(ctx context.Context, sessionID string) ([]model.CourseInstructor, error)
	ListCourseDepartments(ctx context.Context, sessionID string) ([]model.CourseDepartment, error)
	ListCourseFaculties(ctx context.Context, sessionID string) ([]model.CourseFaculty, error)
	ListExams(ctx context.Context, sessionID string) ([]model.Exam, error)
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	GetStudent(ctx context.Context, studentID string) (*model.Student, error)
	GetStaff(ctx context.Context, staffID string) (*model.Staff, error)
	RegistrationCounts(ctx context.Context, sessionID string) (map[string]int, error)
	ExamCourseIDs(ctx context.Context, sessionID string) (map[string]bool, error)
	ExamStudents(ctx context.Context, examIDs []string) (map[string][]string, error)
	Counts(ctx context.Context, sessionID string) (map[string]int64, error)
}

type productionRepo struct {
	db        *gorm.DB
	batchSize int
}

// NewProductionRepo 创建 ProductionRepository 实例
func NewProductionRepo(db *gorm.DB, batchSize int) ProductionRepository {
	return &productionRepo{db: db, batchSize: batchSize}
}

// ── upsert 工具 ──

func columns(names ...string) []clause.Column {
	cols := make([]clause.Column, len(names))
	for i, n := range names {
		cols[i] = clause.Column{Name: n}
	}
	return cols
}

// upsert 冲突键命中时只更新 update 列，主键保持不变
func upsert[T any](ctx context.Context, db *gorm.DB, batch int, rows []T, conflict []string, update ...string) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   columns(conflict...),
			DoUpdates: clause.AssignmentColumns(append(update, "updated_at")),
		}).
		CreateInBatches(&rows, batch).Error
}

// insertIgnore 冲突键命中时跳过（关联表）
func insertIgnore[T any](ctx context.Context, db *gorm.DB, batch int, rows []T, conflict ...string) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: columns(conflict...), DoNothing: true}).
		CreateInBatches(&rows, batch).Error
}

func (r *productionRepo) UpsertFaculties(ctx context.Context, rows []model.Faculty) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"}, "name")
}

func (r *productionRepo) UpsertDepartments(ctx context.Context, rows []model.Department) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"}, "name", "faculty_id")
}

func (r *productionRepo) UpsertBuildings(ctx context.Context, rows []model.Building) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"}, "name", "faculty_id")
}

func (r *productionRepo) UpsertRooms(ctx context.Context, rows []model.Room) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"},
		"name", "building_id", "capacity", "exam_capacity", "room_type", "floor",
		"has_computers", "accessible", "adjacent_room_codes", "is_active")
}

func (r *productionRepo) UpsertProgrammes(ctx context.Context, rows []model.Programme) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"},
		"name", "department_id", "degree_type", "duration_years")
}

func (r *productionRepo) UpsertStaff(ctx context.Context, rows []model.Staff) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "staff_number"},
		"first_name", "last_name", "email", "department_id", "staff_type", "can_invigilate",
		"max_concurrent_exams", "max_daily_sessions", "max_consecutive_sessions",
		"max_students_per_invigilator", "user_id", "is_active")
}

func (r *productionRepo) UpsertStudents(ctx context.Context, rows []model.Student) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "matric_number"},
		"first_name", "last_name", "email", "programme_id", "entry_year", "current_level",
		"student_type", "special_needs", "user_id")
}

func (r *productionRepo) UpsertCourses(ctx context.Context, rows []model.Course) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "code"},
		"title", "credit_units", "level", "semester", "exam_duration_minutes",
		"is_practical", "morning_only", "is_active")
}

func (r *productionRepo) InsertCourseDepartments(ctx context.Context, rows []model.CourseDepartment) error {
	return insertIgnore(ctx, r.db, r.batchSize, rows, "session_id", "course_id", "department_id")
}

func (r *productionRepo) InsertCourseFaculties(ctx context.Context, rows []model.CourseFaculty) error {
	return insertIgnore(ctx, r.db, r.batchSize, rows, "session_id", "course_id", "faculty_id")
}

func (r *productionRepo) InsertCourseInstructors(ctx context.Context, rows []model.CourseInstructor) error {
	return insertIgnore(ctx, r.db, r.batchSize, rows, "session_id", "course_id", "staff_id")
}

func (r *productionRepo) UpsertUnavailability(ctx context.Context, rows []model.StaffUnavailability) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "natural_key"},
		"staff_id", "unavailable_date", "period_index", "reason")
}

func (r *productionRepo) UpsertRegistrations(ctx context.Context, rows []model.CourseRegistration) error {
	return upsert(ctx, r.db, r.batchSize, rows, []string{"session_id", "student_id", "course_id"}, "registration_type")
}

func (r *productionRepo) CreateExams(ctx context.Context, exams []model.Exam) error {
	if len(exams) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&exams, r.batchSize).Error
}

// ── 自然键索引 ──

type refTable struct {
	table, key, id string
}

var refTables = map[staging.Kind]refTable{
	staging.KindFaculty:             {"faculties", "code", "faculty_id"},
	staging.KindDepartment:          {"departments", "code", "department_id"},
	staging.KindBuilding:            {"buildings", "code", "building_id"},
	staging.KindRoom:                {"rooms", "code", "room_id"},
	staging.KindProgramme:           {"programmes", "code", "programme_id"},
	staging.KindStaff:               {"staff", "staff_number", "staff_id"},
	staging.KindStudent:             {"students", "matric_number", "student_id"},
	staging.KindCourse:              {"courses", "code", "course_id"},
	staging.KindStaffUnavailability: {"staff_unavailability", "natural_key", "unavailability_id"},
}

func (r *productionRepo) KeyIndex(ctx context.Context, sessionID string, kind staging.Kind) (map[string]string, error) {
	t, ok := refTables[kind]
	if !ok {
		return nil, fmt.Errorf("%s 没有自然键索引", kind)
	}
	var rows []struct {
		Nk string
		ID string
	}
	err := r.db.WithContext(ctx).
		Table(t.table).
		Select(fmt.Sprintf("%s AS nk, %s AS id", t.key, t.id)).
		Where("session_id = ?", sessionID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Nk] = row.ID
	}
	return out, nil
}

// ── 读取 ──

func listBySession[T any](ctx context.Context, db *gorm.DB, sessionID, order string) ([]T, error) {
	var out []T
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).Order(order).Find(&out).Error
	return out, err
}

func (r *productionRepo) ListFaculties(ctx context.Context, sessionID string) ([]model.Faculty, error) {
	return listBySession[model.Faculty](ctx, r.db, sessionID, "code")
}

func (r *productionRepo) ListDepartments(ctx context.Context, sessionID string) ([]model.Department, error) {
	return listBySession[model.Department](ctx, r.db, sessionID, "code")
}

func (r *productionRepo) ListRooms(ctx context.Context, sessionID string, activeOnly bool) ([]model.Room, error) {
	var rooms []model.Room
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("code").Find(&rooms).Error
	return rooms, err
}

func (r *productionRepo) ListStaff(ctx context.Context, sessionID string) ([]model.Staff, error) {
	return listBySession[model.Staff](ctx, r.db, sessionID, "staff_number")
}

func (r *productionRepo) ListStudents(ctx context.Context, sessionID string) ([]model.Student, error) {
	return listBySession[model.Student](ctx, r.db, sessionID, "matric_number")
}

func (r *productionRepo) ListStudentsByIDs(ctx context.Context, ids []string) ([]model.Student, error) {
	var students []model.Student
	if len(ids) == 0 {
		return students, nil
	}
	err := r.db.WithContext(ctx).Where("student_id IN ?", ids).Order("matric_number").Find(&students).Error
	return students, err
}

func (r *productionRepo) ListCourses(ctx context.Context, sessionID string) ([]model.Course, error) {
	return listBySession[model.Course](ctx, r.db, sessionID, "code")
}

func (r *productionRepo) ListUnavailability(ctx context.Context, sessionID string) ([]model.StaffUnavailability, error) {
	return listBySession[model.StaffUnavailability](ctx, r.db, sessionID, "natural_key")
}

func (r *productionRepo) ListRegistrations(ctx context.Context, sessionID string) ([]model.CourseRegistration, error) {
	return listBySession[model.CourseRegistration](ctx, r.db, sessionID, "course_id, student_id")
}

func (r *productionRepo) ListCourseInstructors(ctx context.Context, sessionID string) ([]model.CourseInstructor, error) {
	return listBySession[model.CourseInstructor](ctx, r.db, sessionID, "course_id, staff_id")
}

func (r *productionRepo) ListCourseDepartments(ctx context.Context, sessionID string) ([]model.CourseDepartment, error) {
	return listBySession[model.CourseDepartment](ctx, r.db, sessionID, "course_id, department_id")
}

func (r *productionRepo) ListCourseFaculties(ctx context.Context, sessionID string) ([]model.CourseFaculty, error) {
	return listBySession[model.CourseFaculty](ctx, r.db, sessionID, "course_id, faculty_id")
}

func (r *productionRepo) ListExams(ctx context.Context, sessionID string) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where("session_id = ?", sessionID).
		Order("exam_id").
		Find(&exams).Error
	return exams, err
}

func (r *productionRepo) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var exam model.Exam
	if err := r.db.WithContext(ctx).Preload("Course").Where("exam_id = ?", examID).First(&exam).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *productionRepo) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *productionRepo) GetStudent(ctx context.Context, studentID string) (*model.Student, error) {
	var student model.Student
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&student).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *productionRepo) GetStaff(ctx context.Context, staffID string) (*model.Staff, error) {
	var staff model.Staff
	if err := r.db.WithContext(ctx).Where("staff_id = ?", staffID).First(&staff).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

// RegistrationCounts course_id → 选课人数
func (r *productionRepo) RegistrationCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	var rows []struct {
		CourseID string
		N        int
	}
	err := r.db.WithContext(ctx).
		Model(&model.CourseRegistration{}).
		Select("course_id, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.CourseID] = row.N
	}
	return out, nil
}

func (r *productionRepo) ExamCourseIDs(ctx context.Context, sessionID string) (map[string]bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Exam{}).
		Where("session_id = ?", sessionID).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// ExamStudents exam_id → 选课学生（经由课程与同学期的选课记录）
func (r *productionRepo) ExamStudents(ctx context.Context, examIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(examIDs))
	if len(examIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ExamID    string
		StudentID string
	}
	err := r.db.WithContext(ctx).
		Table("exams AS e").
		Select("e.exam_id, cr.student_id").
		Joins("JOIN course_registrations cr ON cr.course_id = e.course_id AND cr.session_id = e.session_id").
		Where("e.exam_id IN ?", examIDs).
		Order("e.exam_id, cr.student_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ExamID] = append(out[row.ExamID], row.StudentID)
	}
	return out, nil
}

// Counts 各生产表在会话内的行数
func (r *productionRepo) Counts(ctx context.Context, sessionID string) (map[string]int64, error) {
	tables := []string{
		"faculties", "departments", "buildings", "rooms", "programmes", "staff", "students",
		"courses", "course_departments", "course_faculties", "course_instructors",
		"staff_unavailability", "course_registrations", "exams",
	}
	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := r.db.WithContext(ctx).Table(t).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}
