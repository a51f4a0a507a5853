package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/solver"
	"exam-timetable/internal/staging"
	"exam-timetable/internal/testutil"
	"exam-timetable/pkg/redis"
)

const testActor = "admin@test"

// ── 测试替身 ──

// fakeDispatcher 记录投递与信号，不执行求解
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched map[string]*solver.Dataset
	signals    []solver.Signal
	err        error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{dispatched: map[string]*solver.Dataset{}}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string, ds *solver.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.dispatched[jobID] = ds
	return nil
}

func (d *fakeDispatcher) Signal(_ context.Context, _ string, sig solver.Signal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, sig)
	return nil
}

// memProgress 内存版进度缓存
type memProgress struct {
	mu    sync.Mutex
	snaps map[string]redis.ProgressSnapshot
}

func newMemProgress() *memProgress {
	return &memProgress{snaps: map[string]redis.ProgressSnapshot{}}
}

func (m *memProgress) SetProgress(_ context.Context, snap *redis.ProgressSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.JobID] = *snap
	return nil
}

func (m *memProgress) GetProgress(_ context.Context, jobID string) (*redis.ProgressSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[jobID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memProgress) DeleteProgress(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, jobID)
	return nil
}

// ── 测试环境 ──

type testEnv struct {
	svc        *Service
	repo       *repository.Repository
	dispatcher *fakeDispatcher
	progress   *memProgress
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLite(t)
	repo := repository.NewRepository(db, repository.WithBatchSize(3))
	env := &testEnv{
		repo:       repo,
		dispatcher: newFakeDispatcher(),
		progress:   newMemProgress(),
	}
	env.svc = NewService(repo, Options{Dispatcher: env.dispatcher, Progress: env.progress}, zap.NewNop())
	require.NoError(t, env.svc.Constraint.EnsureCatalog(context.Background()))
	return env
}

// createSession 2025-06-09（周一）至 06-13（周五），上午、下午两个时段
func (e *testEnv) createSession(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	tpl, err := e.svc.Template.Create(ctx, &dto.CreateTemplateRequest{
		Name: name + "-时段",
		Periods: []dto.PeriodRequest{
			{Name: "上午", StartTime: "09:00", EndTime: "12:00"},
			{Name: "下午", StartTime: "14:00", EndTime: "17:00"},
		},
	}, testActor)
	require.NoError(t, err)

	sess, err := e.svc.Session.Create(ctx, &dto.CreateSessionRequest{
		Name:          name,
		StartDate:     "2025-02-17",
		EndDate:       "2025-07-31",
		ExamStartDate: "2025-06-09",
		ExamEndDate:   "2025-06-13",
		TemplateID:    &tpl.ID,
	}, testActor)
	require.NoError(t, err)
	return sess.ID
}

func (e *testEnv) stage(t *testing.T, sessionID string, kind staging.Kind, rows ...any) *dto.StageRowsResponse {
	t.Helper()
	req := &dto.StageRowsRequest{Kind: kind.String()}
	for _, r := range rows {
		raw, err := json.Marshal(r)
		require.NoError(t, err)
		req.Rows = append(req.Rows, raw)
	}
	resp, err := e.svc.Staging.StageRows(context.Background(), sessionID, req, testActor)
	require.NoError(t, err)
	return resp
}

// stageCampus 一个院系、两个考场、两名教职工、三名学生、三门课程。
// 报名：M1、M2 → CSC101；M1 → CSC102；CSC103 无人报名。
func (e *testEnv) stageCampus(t *testing.T, sessionID string) {
	t.Helper()
	e.stage(t, sessionID, staging.KindFaculty, staging.FacultyRow{Code: "ENG", Name: "工学院"})
	e.stage(t, sessionID, staging.KindDepartment, staging.DepartmentRow{Code: "CSC", Name: "计算机系", FacultyCode: "ENG"})
	e.stage(t, sessionID, staging.KindBuilding, staging.BuildingRow{Code: "B1", Name: "一号楼", FacultyCode: "ENG"})
	e.stage(t, sessionID, staging.KindRoom,
		staging.RoomRow{Code: "R1", Name: "101", BuildingCode: "B1", Capacity: 30},
		staging.RoomRow{Code: "R2", Name: "102", BuildingCode: "B1", Capacity: 60, ExamCapacity: 40},
	)
	e.stage(t, sessionID, staging.KindProgramme, staging.ProgrammeRow{Code: "BSC-CS", Name: "计算机科学", DepartmentCode: "CSC"})
	e.stage(t, sessionID, staging.KindStaff,
		staging.StaffRow{StaffNumber: "S1", FirstName: "Ada", LastName: "L", DepartmentCode: "CSC"},
		staging.StaffRow{StaffNumber: "S2", FirstName: "Alan", LastName: "T", DepartmentCode: "CSC"},
	)
	e.stage(t, sessionID, staging.KindStudent,
		staging.StudentRow{MatricNumber: "M1", FirstName: "A", LastName: "One", ProgrammeCode: "BSC-CS", EntryYear: 2022, CurrentLevel: 3},
		staging.StudentRow{MatricNumber: "M2", FirstName: "B", LastName: "Two", ProgrammeCode: "BSC-CS", EntryYear: 2022, CurrentLevel: 3},
		staging.StudentRow{MatricNumber: "M3", FirstName: "C", LastName: "Three", ProgrammeCode: "BSC-CS", EntryYear: 2023, CurrentLevel: 2},
	)
	e.stage(t, sessionID, staging.KindCourse,
		staging.CourseRow{Code: "CSC101", Title: "程序设计", CreditUnits: 3, Level: 1, Semester: 2},
		staging.CourseRow{Code: "CSC102", Title: "数据结构", CreditUnits: 3, Level: 1, Semester: 2, ExamDurationMinutes: 120},
		staging.CourseRow{Code: "CSC103", Title: "离散数学", CreditUnits: 2, Level: 1, Semester: 2},
	)
	e.stage(t, sessionID, staging.KindCourseDepartment, staging.CourseDepartmentRow{CourseCode: "CSC101", DepartmentCode: "CSC"})
	e.stage(t, sessionID, staging.KindCourseInstructor, staging.CourseInstructorRow{CourseCode: "CSC101", StaffNumber: "S1"})
	e.stage(t, sessionID, staging.KindRegistration,
		staging.RegistrationRow{MatricNumber: "M1", CourseCode: "CSC101"},
		staging.RegistrationRow{MatricNumber: "M2", CourseCode: "CSC101"},
		staging.RegistrationRow{MatricNumber: "M1", CourseCode: "CSC102"},
	)
}

// loadedSession 完成暂存与规范化的会话
func (e *testEnv) loadedSession(t *testing.T, name string) string {
	t.Helper()
	sessionID := e.createSession(t, name)
	e.stageCampus(t, sessionID)
	run, err := e.svc.ETL.Run(context.Background(), sessionID, false, testActor)
	require.NoError(t, err)
	require.Equal(t, model.EtlStatusCompleted, run.Status)
	return sessionID
}

// refs 按自然键取生产数据主键
type refs struct {
	exams map[string]string // course code → exam id
	rooms map[string]string
	staff map[string]string
	stud  map[string]string
}

func (e *testEnv) refs(t *testing.T, sessionID string) refs {
	t.Helper()
	ctx := context.Background()
	out := refs{exams: map[string]string{}}
	var err error
	out.rooms, err = e.repo.Production.KeyIndex(ctx, sessionID, staging.KindRoom)
	require.NoError(t, err)
	out.staff, err = e.repo.Production.KeyIndex(ctx, sessionID, staging.KindStaff)
	require.NoError(t, err)
	out.stud, err = e.repo.Production.KeyIndex(ctx, sessionID, staging.KindStudent)
	require.NoError(t, err)
	exams, err := e.repo.Production.ListExams(ctx, sessionID)
	require.NoError(t, err)
	for _, ex := range exams {
		out.exams[ex.Course.Code] = ex.ExamID
	}
	return out
}

// runningJob 创建并启动任务（投递到替身执行器）
func (e *testEnv) runningJob(t *testing.T, sessionID string, scenarioID *string) string {
	t.Helper()
	job, err := e.svc.Job.Create(context.Background(), &dto.CreateJobRequest{
		SessionID:  sessionID,
		ScenarioID: scenarioID,
		Start:      true,
	}, testActor)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusRunning, job.Status)
	return job.ID
}

// clashResult CSC101 与 CSC102 排在同一天同一时段：M1 同时参加两场
func clashResult(r refs) *solver.Result {
	return &solver.Result{
		Assignments: map[string]solver.ExamAssignment{
			r.exams["CSC101"]: {
				Date: "2025-06-09", PeriodIndex: 0,
				Rooms:        []solver.RoomAllocation{{RoomID: r.rooms["R1"], Students: 2}},
				Invigilators: []solver.StaffAllocation{{StaffID: r.staff["S2"]}},
			},
			r.exams["CSC102"]: {
				Date: "2025-06-09", PeriodIndex: 0,
				Rooms: []solver.RoomAllocation{{RoomID: r.rooms["R2"], Students: 1}},
			},
		},
		Metrics: solver.Metrics{HardViolations: 1, Utilization: 0.4},
	}
}

// spreadResult 两场考试错开
func spreadResult(r refs) *solver.Result {
	return &solver.Result{
		Assignments: map[string]solver.ExamAssignment{
			r.exams["CSC101"]: {
				Date: "2025-06-09", PeriodIndex: 0,
				Rooms: []solver.RoomAllocation{{RoomID: r.rooms["R1"], Students: 2}},
			},
			r.exams["CSC102"]: {
				Date: "2025-06-10", PeriodIndex: 1,
				Rooms: []solver.RoomAllocation{{RoomID: r.rooms["R2"], Students: 1}},
			},
		},
	}
}

// completedJob 启动并以给定结果完成任务
func (e *testEnv) completedJob(t *testing.T, sessionID string, scenarioID *string, result *solver.Result) string {
	t.Helper()
	id := e.runningJob(t, sessionID, scenarioID)
	require.NoError(t, e.svc.Job.CompleteJob(context.Background(), id, result))
	return id
}
