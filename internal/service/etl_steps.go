package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/staging"
	pkgerrors "exam-timetable/pkg/errors"
	"exam-timetable/pkg/metrics"
)

// ── 规范化缺省值 ──

const (
	defaultDurationYears             = 4
	defaultExamDurationMinutes       = 180
	defaultMaxConcurrentExams        = 1
	defaultMaxDailySessions          = 2
	defaultMaxConsecutiveSessions    = 2
	defaultMaxStudentsPerInvigilator = 50
	defaultRegistrationType          = "regular"

	stepExamGeneration = "exam_generation"
)

// etlStep 一个实体种类的规范化步骤
type etlStep struct {
	kind  staging.Kind
	write func(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error
}

// etlSteps 静态步骤表，顺序即依赖顺序，与 staging.Order 一致
var etlSteps = []etlStep{
	{staging.KindFaculty, writeFaculties},
	{staging.KindDepartment, writeDepartments},
	{staging.KindBuilding, writeBuildings},
	{staging.KindRoom, writeRooms},
	{staging.KindProgramme, writeProgrammes},
	{staging.KindStaff, writeStaff},
	{staging.KindStudent, writeStudents},
	{staging.KindCourse, writeCourses},
	{staging.KindCourseDepartment, writeCourseDepartments},
	{staging.KindCourseFaculty, writeCourseFaculties},
	{staging.KindCourseInstructor, writeCourseInstructors},
	{staging.KindStaffUnavailability, writeUnavailability},
	{staging.KindRegistration, writeRegistrations},
}

// etlExecution 单次运行的上下文，只在 ETL 作用域事务内使用
type etlExecution struct {
	tx        *repository.Repository
	sessionID string
	current   string
	indexes   map[staging.Kind]map[string]string
	steps     datatypes.JSONSlice[model.EtlStepResult]
	issues    datatypes.JSONSlice[model.EtlIssue]
}

func newETLExecution(tx *repository.Repository, sessionID string) *etlExecution {
	return &etlExecution{
		tx:        tx,
		sessionID: sessionID,
		indexes:   make(map[staging.Kind]map[string]string),
		steps:     datatypes.JSONSlice[model.EtlStepResult]{},
		issues:    datatypes.JSONSlice[model.EtlIssue]{},
	}
}

func (ex *etlExecution) runAll(ctx context.Context) error {
	for _, step := range etlSteps {
		ex.current = step.kind.String()
		if err := ex.runStep(ctx, step); err != nil {
			return err
		}
	}
	ex.current = stepExamGeneration
	return ex.generateExams(ctx)
}

// runStep 读取 → 解码校验 → 写入 → 删除已消费的暂存行
func (ex *etlExecution) runStep(ctx context.Context, step etlStep) error {
	res := model.EtlStepResult{Step: step.kind.String()}
	rows, err := ex.load(ctx, step.kind, &res)
	if err != nil {
		return err
	}
	if res.Processed == 0 {
		return nil
	}

	if err := step.write(ctx, ex, rows, &res); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return &ConsistencyError{Step: step.kind.String(), Reason: err.Error()}
		}
		return fmt.Errorf("写入 %s 失败: %w", step.kind, err)
	}
	if _, err := ex.tx.Staging.DeleteByKind(ctx, ex.sessionID, step.kind.String()); err != nil {
		return fmt.Errorf("删除 %s 暂存行失败: %w", step.kind, err)
	}
	// 本步写入后自然键索引需重新加载
	delete(ex.indexes, step.kind)

	ex.steps = append(ex.steps, res)
	metrics.RecordETLRows(step.kind.String(), "upserted", res.Upserted)
	metrics.RecordETLRows(step.kind.String(), "skipped", res.Skipped)
	return nil
}

// load 解码并校验暂存行。校验不通过的行记问题并跳过；
// 同一批内自然键重复时，内容一致的合并，不一致的视为一致性错误。
func (ex *etlExecution) load(ctx context.Context, kind staging.Kind, res *model.EtlStepResult) ([]staging.Row, error) {
	records, err := ex.tx.Staging.ListByKind(ctx, ex.sessionID, kind.String())
	if err != nil {
		return nil, fmt.Errorf("读取 %s 暂存行失败: %w", kind, err)
	}
	res.Processed = len(records)

	rows := make([]staging.Row, 0, len(records))
	seen := make(map[string][]byte, len(records))
	for _, rec := range records {
		row, err := staging.Decode(kind, rec.Payload)
		if err != nil {
			ex.skip(res, kind, rec.NaturalKey, "", err.Error())
			continue
		}
		if problems := staging.Validate(kind, row); len(problems) > 0 {
			for _, p := range problems {
				ex.issues = append(ex.issues, model.EtlIssue{
					Step: kind.String(), Kind: kind.String(),
					NaturalKey: p.NaturalKey, Field: p.Field, Message: p.Message,
				})
			}
			res.Skipped++
			continue
		}

		canon, err := staging.Canonical(row)
		if err != nil {
			return nil, err
		}
		key := row.NaturalKey()
		if prev, ok := seen[key]; ok {
			if bytes.Equal(prev, canon) {
				continue
			}
			return nil, &ConsistencyError{
				Step:   kind.String(),
				Reason: fmt.Sprintf("自然键 %q 在暂存批次中出现不同内容", key),
			}
		}
		seen[key] = canon
		rows = append(rows, row)
	}
	return rows, nil
}

// index 自然键 → 主键；未在本次运行中写入的种类从已有生产数据加载
func (ex *etlExecution) index(ctx context.Context, kind staging.Kind) (map[string]string, error) {
	if idx, ok := ex.indexes[kind]; ok {
		return idx, nil
	}
	idx, err := ex.tx.Production.KeyIndex(ctx, ex.sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("加载 %s 自然键索引失败: %w", kind, err)
	}
	ex.indexes[kind] = idx
	return idx, nil
}

// warn 记录告警，行照常写入
func (ex *etlExecution) warn(res *model.EtlStepResult, kind staging.Kind, key, field, msg string) {
	res.Warnings++
	ex.issues = append(ex.issues, model.EtlIssue{
		Step: ex.current, Kind: kind.String(), NaturalKey: key, Field: field, Message: msg,
	})
}

// skip 记录告警并跳过该行
func (ex *etlExecution) skip(res *model.EtlStepResult, kind staging.Kind, key, field, msg string) {
	res.Skipped++
	ex.warn(res, kind, key, field, msg)
}

// mandatoryParent 必填父级缺失时整次运行失败
func (ex *etlExecution) mandatoryParent(ctx context.Context, parent staging.Kind, code, childKey string) (string, error) {
	idx, err := ex.index(ctx, parent)
	if err != nil {
		return "", err
	}
	id, ok := idx[code]
	if !ok {
		return "", &ConsistencyError{
			Step:   ex.current,
			Reason: fmt.Sprintf("%s 引用的 %s %q 不存在", childKey, parent, code),
		}
	}
	return id, nil
}

// ── 组织层级 ──

func writeFaculties(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.Faculty, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.FacultyRow)
		out = append(out, model.Faculty{SessionID: ex.sessionID, Code: row.Code, Name: row.Name})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertFaculties(ctx, out)
}

func writeDepartments(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.Department, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.DepartmentRow)
		facultyID, err := ex.mandatoryParent(ctx, staging.KindFaculty, row.FacultyCode, row.Code)
		if err != nil {
			return err
		}
		out = append(out, model.Department{
			SessionID: ex.sessionID, FacultyID: facultyID, Code: row.Code, Name: row.Name,
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertDepartments(ctx, out)
}

func writeBuildings(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	faculties, err := ex.index(ctx, staging.KindFaculty)
	if err != nil {
		return err
	}
	out := make([]model.Building, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.BuildingRow)
		b := model.Building{SessionID: ex.sessionID, Code: row.Code, Name: row.Name}
		if row.FacultyCode != "" {
			if id, ok := faculties[row.FacultyCode]; ok {
				b.FacultyID = &id
			} else {
				ex.warn(res, staging.KindBuilding, row.Code, "faculty_code",
					fmt.Sprintf("学院 %q 不存在，已置空", row.FacultyCode))
			}
		}
		out = append(out, b)
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertBuildings(ctx, out)
}

func writeRooms(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.Room, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.RoomRow)
		buildingID, err := ex.mandatoryParent(ctx, staging.KindBuilding, row.BuildingCode, row.Code)
		if err != nil {
			return err
		}
		examCap := row.ExamCapacity
		switch {
		case examCap == 0:
			examCap = row.Capacity
		case examCap > row.Capacity:
			ex.warn(res, staging.KindRoom, row.Code, "exam_capacity",
				fmt.Sprintf("考试容量 %d 超过座位数 %d，已截断", examCap, row.Capacity))
			examCap = row.Capacity
		}
		adjacent := row.AdjacentRoomCodes
		if adjacent == nil {
			adjacent = []string{}
		}
		out = append(out, model.Room{
			SessionID:         ex.sessionID,
			BuildingID:        buildingID,
			Code:              row.Code,
			Name:              row.Name,
			Capacity:          row.Capacity,
			ExamCapacity:      examCap,
			RoomType:          row.RoomType,
			Floor:             row.Floor,
			HasComputers:      row.HasComputers,
			Accessible:        row.Accessible,
			AdjacentRoomCodes: adjacent,
			IsActive:          staging.BoolOr(row.IsActive, true),
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertRooms(ctx, out)
}

func writeProgrammes(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.Programme, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.ProgrammeRow)
		deptID, err := ex.mandatoryParent(ctx, staging.KindDepartment, row.DepartmentCode, row.Code)
		if err != nil {
			return err
		}
		years := row.DurationYears
		if years == 0 {
			years = defaultDurationYears
		}
		out = append(out, model.Programme{
			SessionID: ex.sessionID, DepartmentID: deptID,
			Code: row.Code, Name: row.Name, DegreeType: row.DegreeType, DurationYears: years,
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertProgrammes(ctx, out)
}

// ── 人员 ──

func writeStaff(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	departments, err := ex.index(ctx, staging.KindDepartment)
	if err != nil {
		return err
	}
	out := make([]model.Staff, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.StaffRow)
		var deptID *string
		if row.DepartmentCode != "" {
			id, ok := departments[row.DepartmentCode]
			if !ok {
				ex.skip(res, staging.KindStaff, row.StaffNumber, "department_code",
					fmt.Sprintf("系 %q 不存在", row.DepartmentCode))
				continue
			}
			deptID = &id
		}
		out = append(out, model.Staff{
			SessionID:                 ex.sessionID,
			StaffNumber:               row.StaffNumber,
			FirstName:                 row.FirstName,
			LastName:                  row.LastName,
			Email:                     row.Email,
			DepartmentID:              deptID,
			StaffType:                 row.StaffType,
			CanInvigilate:             staging.BoolOr(row.CanInvigilate, true),
			MaxConcurrentExams:        orDefault(row.MaxConcurrentExams, defaultMaxConcurrentExams),
			MaxDailySessions:          orDefault(row.MaxDailySessions, defaultMaxDailySessions),
			MaxConsecutiveSessions:    orDefault(row.MaxConsecutiveSessions, defaultMaxConsecutiveSessions),
			MaxStudentsPerInvigilator: orDefault(row.MaxStudentsPerInvigilator, defaultMaxStudentsPerInvigilator),
			UserID:                    optionalString(row.UserID),
			IsActive:                  staging.BoolOr(row.IsActive, true),
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertStaff(ctx, out)
}

func writeStudents(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	programmes, err := ex.index(ctx, staging.KindProgramme)
	if err != nil {
		return err
	}
	out := make([]model.Student, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.StudentRow)
		var progID *string
		if row.ProgrammeCode != "" {
			id, ok := programmes[row.ProgrammeCode]
			if !ok {
				ex.skip(res, staging.KindStudent, row.MatricNumber, "programme_code",
					fmt.Sprintf("专业 %q 不存在", row.ProgrammeCode))
				continue
			}
			progID = &id
		}
		needs := row.SpecialNeeds
		if needs == nil {
			needs = []string{}
		}
		out = append(out, model.Student{
			SessionID:    ex.sessionID,
			MatricNumber: row.MatricNumber,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			Email:        row.Email,
			ProgrammeID:  progID,
			EntryYear:    row.EntryYear,
			CurrentLevel: row.CurrentLevel,
			StudentType:  row.StudentType,
			SpecialNeeds: needs,
			UserID:       optionalString(row.UserID),
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertStudents(ctx, out)
}

// ── 课程与关联 ──

func writeCourses(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.Course, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.CourseRow)
		out = append(out, model.Course{
			SessionID:           ex.sessionID,
			Code:                row.Code,
			Title:               row.Title,
			CreditUnits:         row.CreditUnits,
			Level:               row.Level,
			Semester:            row.Semester,
			ExamDurationMinutes: orDefault(row.ExamDurationMinutes, defaultExamDurationMinutes),
			IsPractical:         row.IsPractical,
			MorningOnly:         row.MorningOnly,
			IsActive:            staging.BoolOr(row.IsActive, true),
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertCourses(ctx, out)
}

// resolvePair 关联行的两端都必须能解析，否则跳过
func (ex *etlExecution) resolvePair(ctx context.Context, res *model.EtlStepResult, kind staging.Kind, key string,
	leftKind staging.Kind, left string, rightKind staging.Kind, right string) (string, string, bool, error) {
	li, err := ex.index(ctx, leftKind)
	if err != nil {
		return "", "", false, err
	}
	ri, err := ex.index(ctx, rightKind)
	if err != nil {
		return "", "", false, err
	}
	lid, ok := li[left]
	if !ok {
		ex.skip(res, kind, key, "", fmt.Sprintf("%s %q 不存在", leftKind, left))
		return "", "", false, nil
	}
	rid, ok := ri[right]
	if !ok {
		ex.skip(res, kind, key, "", fmt.Sprintf("%s %q 不存在", rightKind, right))
		return "", "", false, nil
	}
	return lid, rid, true, nil
}

func writeCourseDepartments(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.CourseDepartment, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.CourseDepartmentRow)
		courseID, deptID, ok, err := ex.resolvePair(ctx, res, staging.KindCourseDepartment, row.NaturalKey(),
			staging.KindCourse, row.CourseCode, staging.KindDepartment, row.DepartmentCode)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, model.CourseDepartment{SessionID: ex.sessionID, CourseID: courseID, DepartmentID: deptID})
		}
	}
	res.Upserted = len(out)
	return ex.tx.Production.InsertCourseDepartments(ctx, out)
}

func writeCourseFaculties(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.CourseFaculty, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.CourseFacultyRow)
		courseID, facultyID, ok, err := ex.resolvePair(ctx, res, staging.KindCourseFaculty, row.NaturalKey(),
			staging.KindCourse, row.CourseCode, staging.KindFaculty, row.FacultyCode)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, model.CourseFaculty{SessionID: ex.sessionID, CourseID: courseID, FacultyID: facultyID})
		}
	}
	res.Upserted = len(out)
	return ex.tx.Production.InsertCourseFaculties(ctx, out)
}

func writeCourseInstructors(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.CourseInstructor, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.CourseInstructorRow)
		courseID, staffID, ok, err := ex.resolvePair(ctx, res, staging.KindCourseInstructor, row.NaturalKey(),
			staging.KindCourse, row.CourseCode, staging.KindStaff, row.StaffNumber)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, model.CourseInstructor{SessionID: ex.sessionID, CourseID: courseID, StaffID: staffID})
		}
	}
	res.Upserted = len(out)
	return ex.tx.Production.InsertCourseInstructors(ctx, out)
}

func writeUnavailability(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	staff, err := ex.index(ctx, staging.KindStaff)
	if err != nil {
		return err
	}
	out := make([]model.StaffUnavailability, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.StaffUnavailabilityRow)
		staffID, ok := staff[row.StaffNumber]
		if !ok {
			ex.skip(res, staging.KindStaffUnavailability, row.NaturalKey(), "staff_number",
				fmt.Sprintf("教职工 %q 不存在", row.StaffNumber))
			continue
		}
		// 格式已由校验保证
		day, _ := time.Parse("2006-01-02", row.Date)
		out = append(out, model.StaffUnavailability{
			SessionID:       ex.sessionID,
			NaturalKey:      row.NaturalKey(),
			StaffID:         staffID,
			UnavailableDate: day,
			PeriodIndex:     row.PeriodIndex,
			Reason:          row.Reason,
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertUnavailability(ctx, out)
}

func writeRegistrations(ctx context.Context, ex *etlExecution, rows []staging.Row, res *model.EtlStepResult) error {
	out := make([]model.CourseRegistration, 0, len(rows))
	for _, r := range rows {
		row := r.(*staging.RegistrationRow)
		studentID, courseID, ok, err := ex.resolvePair(ctx, res, staging.KindRegistration, row.NaturalKey(),
			staging.KindStudent, row.MatricNumber, staging.KindCourse, row.CourseCode)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		regType := row.RegistrationType
		if regType == "" {
			regType = defaultRegistrationType
		}
		out = append(out, model.CourseRegistration{
			SessionID: ex.sessionID, StudentID: studentID, CourseID: courseID, RegistrationType: regType,
		})
	}
	res.Upserted = len(out)
	return ex.tx.Production.UpsertRegistrations(ctx, out)
}

// ── 考试自动生成 ──

// generateExams 每门有选课记录且尚无考试的在开课程生成一场考试；已有考试不覆盖
func (ex *etlExecution) generateExams(ctx context.Context) error {
	res := model.EtlStepResult{Step: stepExamGeneration}

	courses, err := ex.tx.Production.ListCourses(ctx, ex.sessionID)
	if err != nil {
		return fmt.Errorf("读取课程失败: %w", err)
	}
	counts, err := ex.tx.Production.RegistrationCounts(ctx, ex.sessionID)
	if err != nil {
		return fmt.Errorf("统计选课人数失败: %w", err)
	}
	existing, err := ex.tx.Production.ExamCourseIDs(ctx, ex.sessionID)
	if err != nil {
		return fmt.Errorf("读取已有考试失败: %w", err)
	}

	var exams []model.Exam
	for _, c := range courses {
		res.Processed++
		n := counts[c.CourseID]
		if !c.IsActive || n == 0 || existing[c.CourseID] {
			continue
		}
		exams = append(exams, model.Exam{
			SessionID:        ex.sessionID,
			CourseID:         c.CourseID,
			DurationMinutes:  c.ExamDurationMinutes,
			ExpectedStudents: n,
			IsPractical:      c.IsPractical,
			MorningOnly:      c.MorningOnly,
			Status:           model.ExamStatusPending,
		})
	}
	if err := ex.tx.Production.CreateExams(ctx, exams); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return &ConsistencyError{Step: stepExamGeneration, Reason: err.Error()}
		}
		return fmt.Errorf("生成考试失败: %w", err)
	}
	res.Upserted = len(exams)
	ex.steps = append(ex.steps, res)
	metrics.RecordETLRows(stepExamGeneration, "upserted", res.Upserted)
	return nil
}

// ── 小工具 ──

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
