package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/solver"
)

// ── 数据集模块业务错误 ──

var (
	ErrJobNotFound       = errors.New("排考任务不存在")
	ErrSessionNoTemplate = errors.New("学期会话未配置时段模板")
	ErrSessionNoExamDays = errors.New("学期会话考试周没有可用考试日")
)

const phaseDataset = "dataset"

// DatasetService 为排考任务组装求解数据集
type DatasetService interface {
	BuildForJob(ctx context.Context, jobID string) (*solver.Dataset, error)
}

type datasetService struct {
	repo       *repository.Repository
	constraint ConstraintService
	logger     *zap.Logger
}

// NewDatasetService 创建 DatasetService 实例
func NewDatasetService(repo *repository.Repository, constraint ConstraintService, logger *zap.Logger) DatasetService {
	return &datasetService{repo: repo, constraint: constraint, logger: logger}
}

// ────────────────────── BuildForJob ──────────────────────

// BuildForJob 运行配置缺失或无效时替换为默认配置，并写入任务进度日志
func (s *datasetService) BuildForJob(ctx context.Context, jobID string) (*solver.Dataset, error) {
	job, err := s.repo.Job.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	session, err := getSession(ctx, s.repo, job.SessionID)
	if err != nil {
		return nil, err
	}

	requested := ""
	if job.ConfigurationID != nil {
		requested = *job.ConfigurationID
	}
	resolved, err := s.constraint.Resolve(ctx, requested)
	if err != nil {
		return nil, err
	}
	if len(resolved.Notes) > 0 || requested != resolved.ConfigurationID {
		for _, note := range resolved.Notes {
			job.AppendProgress(phaseDataset, job.Progress, note)
		}
		if requested == "" {
			job.AppendProgress(phaseDataset, job.Progress, fmt.Sprintf("任务未指定运行配置，使用默认配置 %s", resolved.ConfigurationID))
		}
		job.ConfigurationID = &resolved.ConfigurationID
		if err := s.repo.Job.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("记录运行配置替换失败: %w", err)
		}
	}

	ds := &solver.Dataset{
		JobID:           job.JobID,
		SessionID:       session.SessionID,
		ConfigurationID: resolved.ConfigurationID,
		GeneratedAt:     time.Now().UTC(),
		Rules:           resolved.Rules,
		Params:          resolved.Params,
	}
	if ds.Grid, err = buildGrid(session); err != nil {
		return nil, err
	}
	if err := s.loadExams(ctx, ds); err != nil {
		return nil, err
	}
	if err := s.loadRooms(ctx, ds); err != nil {
		return nil, err
	}
	if err := s.loadInvigilators(ctx, ds); err != nil {
		return nil, err
	}
	if err := s.loadLocks(ctx, ds, job.ScenarioID); err != nil {
		return nil, err
	}

	s.logger.Info("求解数据集已生成",
		zap.String("job_id", job.JobID),
		zap.Int("exams", len(ds.Exams)),
		zap.Int("rooms", len(ds.Rooms)),
		zap.Int("invigilators", len(ds.Invigilators)),
		zap.Int("slots", ds.Grid.Slots()),
	)
	return ds, nil
}

func buildGrid(session *model.AcademicSession) (solver.Grid, error) {
	var grid solver.Grid
	if session.Template == nil || len(session.Template.Periods) == 0 {
		return grid, ErrSessionNoTemplate
	}
	for _, d := range session.ExamDays() {
		grid.Days = append(grid.Days, model.DateKey(d))
	}
	if len(grid.Days) == 0 {
		return grid, ErrSessionNoExamDays
	}
	for _, p := range session.Template.Periods {
		grid.Periods = append(grid.Periods, solver.Period{
			Index:     p.PeriodIndex,
			Name:      p.Name,
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			Morning:   p.IsMorning(),
		})
	}
	return grid, nil
}

// loadExams 考试、选课名单、授课教师与开课院系
func (s *datasetService) loadExams(ctx context.Context, ds *solver.Dataset) error {
	prod := s.repo.Production
	exams, err := prod.ListExams(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	regs, err := prod.ListRegistrations(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	instructors, err := prod.ListCourseInstructors(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	depts, err := prod.ListCourseDepartments(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	faculties, err := prod.ListCourseFaculties(ctx, ds.SessionID)
	if err != nil {
		return err
	}

	examByCourse := make(map[string]string, len(exams))
	for _, e := range exams {
		examByCourse[e.CourseID] = e.ExamID
	}
	studentsByCourse := make(map[string][]string)
	ds.StudentExams = make(map[string][]string)
	ds.Registrations = make([]solver.Registration, 0, len(regs))
	for _, r := range regs {
		examID := examByCourse[r.CourseID]
		ds.Registrations = append(ds.Registrations, solver.Registration{
			StudentID: r.StudentID, CourseID: r.CourseID, ExamID: examID,
		})
		studentsByCourse[r.CourseID] = append(studentsByCourse[r.CourseID], r.StudentID)
		if examID != "" {
			ds.StudentExams[r.StudentID] = append(ds.StudentExams[r.StudentID], examID)
		}
	}
	for _, ids := range ds.StudentExams {
		sort.Strings(ids)
	}

	instructorsByCourse := make(map[string][]string)
	for _, l := range instructors {
		instructorsByCourse[l.CourseID] = append(instructorsByCourse[l.CourseID], l.StaffID)
	}
	deptsByCourse := make(map[string][]string)
	for _, l := range depts {
		deptsByCourse[l.CourseID] = append(deptsByCourse[l.CourseID], l.DepartmentID)
	}
	facultiesByCourse := make(map[string][]string)
	for _, l := range faculties {
		facultiesByCourse[l.CourseID] = append(facultiesByCourse[l.CourseID], l.FacultyID)
	}

	ds.Exams = make([]solver.Exam, 0, len(exams))
	for _, e := range exams {
		ex := solver.Exam{
			ExamID:           e.ExamID,
			CourseID:         e.CourseID,
			DurationMinutes:  e.DurationMinutes,
			ExpectedStudents: e.ExpectedStudents,
			IsPractical:      e.IsPractical,
			MorningOnly:      e.MorningOnly,
			StudentIDs:       nonNil(studentsByCourse[e.CourseID]),
			InstructorIDs:    nonNil(instructorsByCourse[e.CourseID]),
			DepartmentIDs:    nonNil(deptsByCourse[e.CourseID]),
			FacultyIDs:       nonNil(facultiesByCourse[e.CourseID]),
		}
		if e.Course != nil {
			ex.CourseCode = e.Course.Code
			ex.CourseTitle = e.Course.Title
			ex.Level = e.Course.Level
		}
		ds.Exams = append(ds.Exams, ex)
	}
	return nil
}

// loadRooms 仅启用的考场；相邻考场编码换成 id，未知编码忽略
func (s *datasetService) loadRooms(ctx context.Context, ds *solver.Dataset) error {
	rooms, err := s.repo.Production.ListRooms(ctx, ds.SessionID, true)
	if err != nil {
		return err
	}
	idByCode := make(map[string]string, len(rooms))
	for _, r := range rooms {
		idByCode[r.Code] = r.RoomID
	}
	ds.Rooms = make([]solver.Room, 0, len(rooms))
	for _, r := range rooms {
		adjacent := make([]string, 0, len(r.AdjacentRoomCodes))
		for _, code := range r.AdjacentRoomCodes {
			if id, ok := idByCode[code]; ok {
				adjacent = append(adjacent, id)
			}
		}
		ds.Rooms = append(ds.Rooms, solver.Room{
			RoomID:          r.RoomID,
			Code:            r.Code,
			Name:            r.Name,
			BuildingID:      r.BuildingID,
			Capacity:        r.Capacity,
			ExamCapacity:    r.ExamCapacity,
			RoomType:        r.RoomType,
			HasComputers:    r.HasComputers,
			Accessible:      r.Accessible,
			AdjacentRoomIDs: adjacent,
		})
	}
	return nil
}

// loadInvigilators 在职且可监考的教职工及其不可用时间
func (s *datasetService) loadInvigilators(ctx context.Context, ds *solver.Dataset) error {
	staff, err := s.repo.Production.ListStaff(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	unavail, err := s.repo.Production.ListUnavailability(ctx, ds.SessionID)
	if err != nil {
		return err
	}
	byStaff := make(map[string][]solver.Unavailable)
	for _, u := range unavail {
		byStaff[u.StaffID] = append(byStaff[u.StaffID], solver.Unavailable{
			Date:        model.DateKey(u.UnavailableDate),
			PeriodIndex: u.PeriodIndex,
		})
	}

	ds.Invigilators = make([]solver.Invigilator, 0, len(staff))
	for _, st := range staff {
		if !st.IsActive || !st.CanInvigilate {
			continue
		}
		inv := solver.Invigilator{
			StaffID:                   st.StaffID,
			StaffNumber:               st.StaffNumber,
			Name:                      st.FirstName + " " + st.LastName,
			MaxConcurrentExams:        st.MaxConcurrentExams,
			MaxDailySessions:          st.MaxDailySessions,
			MaxConsecutiveSessions:    st.MaxConsecutiveSessions,
			MaxStudentsPerInvigilator: st.MaxStudentsPerInvigilator,
			Unavailable:               byStaff[st.StaffID],
		}
		if inv.Unavailable == nil {
			inv.Unavailable = []solver.Unavailable{}
		}
		if st.DepartmentID != nil {
			inv.DepartmentID = *st.DepartmentID
		}
		ds.Invigilators = append(ds.Invigilators, inv)
	}
	return nil
}

// loadLocks 会话级锁定 + 任务所属方案的锁定
func (s *datasetService) loadLocks(ctx context.Context, ds *solver.Dataset, scenarioID *string) error {
	locks, err := s.repo.ExamLock.ListActive(ctx, ds.SessionID, scenarioID)
	if err != nil {
		return err
	}
	ds.Locks = make([]solver.Lock, 0, len(locks))
	for _, l := range locks {
		lock := solver.Lock{ExamID: l.ExamID, Date: model.DateKey(l.ExamDate), PeriodIndex: l.PeriodIndex}
		if l.RoomID != nil {
			lock.RoomID = *l.RoomID
		}
		ds.Locks = append(ds.Locks, lock)
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
