package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/staging"
)

func TestETL_RunNormalizesAndGeneratesExams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	counts, err := env.repo.Production.Counts(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts["rooms"])
	assert.EqualValues(t, 3, counts["students"])
	assert.EqualValues(t, 3, counts["courses"])

	exams, err := env.repo.Production.ListExams(ctx, sessionID)
	require.NoError(t, err)
	byCourse := map[string]model.Exam{}
	for _, e := range exams {
		byCourse[e.Course.Code] = e
	}
	require.Len(t, byCourse, 2, "无人报名的课程不生成考试")
	assert.Equal(t, 2, byCourse["CSC101"].ExpectedStudents)
	assert.Equal(t, 1, byCourse["CSC102"].ExpectedStudents)
	assert.Equal(t, defaultExamDurationMinutes, byCourse["CSC101"].DurationMinutes)
	assert.Equal(t, 120, byCourse["CSC102"].DurationMinutes)
	assert.NotContains(t, byCourse, "CSC103")

	rooms, err := env.repo.Production.ListRooms(ctx, sessionID, false)
	require.NoError(t, err)
	assert.Equal(t, 30, rooms[0].ExamCapacity, "exam_capacity 缺省取 capacity")
	assert.Equal(t, 40, rooms[1].ExamCapacity)

	staff, err := env.repo.Production.ListStaff(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.True(t, staff[0].CanInvigilate)
	assert.Equal(t, defaultMaxDailySessions, staff[0].MaxDailySessions)

	summary, err := env.svc.Staging.Summary(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, summary.Total, "成功运行后暂存区清空")
}

func TestETL_RerunIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	before := env.refs(t, sessionID)

	env.stageCampus(t, sessionID)
	run, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.EtlStatusCompleted, run.Status)

	after := env.refs(t, sessionID)
	assert.Equal(t, before.rooms, after.rooms)
	assert.Equal(t, before.staff, after.staff)
	assert.Equal(t, before.stud, after.stud)
	assert.Equal(t, before.exams, after.exams, "考试不重复生成")

	regs, err := env.repo.Production.ListRegistrations(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, regs, 3)
}

// 暂存顺序与依赖顺序无关：子实体先于父实体暂存
func TestETL_DependencyOrderIndependentOfStagingOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	env.stage(t, sessionID, staging.KindRegistration, staging.RegistrationRow{MatricNumber: "M1", CourseCode: "CSC101"})
	env.stage(t, sessionID, staging.KindCourse, staging.CourseRow{Code: "CSC101", Title: "程序设计", Level: 1, Semester: 1})
	env.stage(t, sessionID, staging.KindStudent, staging.StudentRow{MatricNumber: "M1", FirstName: "A", LastName: "B", ProgrammeCode: "P1", EntryYear: 2024, CurrentLevel: 1})
	env.stage(t, sessionID, staging.KindProgramme, staging.ProgrammeRow{Code: "P1", Name: "程序", DepartmentCode: "D1"})
	env.stage(t, sessionID, staging.KindDepartment, staging.DepartmentRow{Code: "D1", Name: "系", FacultyCode: "F1"})
	env.stage(t, sessionID, staging.KindFaculty, staging.FacultyRow{Code: "F1", Name: "院"})

	run, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	require.NoError(t, err)

	var order []string
	for _, st := range run.Steps {
		order = append(order, st.Step)
	}
	assert.Equal(t, []string{"faculty", "department", "programme", "student", "course", "registration", stepExamGeneration}, order)

	students, err := env.repo.Production.ListStudents(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.NotNil(t, students[0].ProgrammeID)
}

func TestETL_MissingMandatoryParentAbortsAndKeepsStaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	env.stage(t, sessionID, staging.KindFaculty, staging.FacultyRow{Code: "ENG", Name: "工学院"})
	env.stage(t, sessionID, staging.KindRoom, staging.RoomRow{Code: "R9", Name: "无楼", BuildingCode: "NOPE", Capacity: 10})

	run, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	require.Error(t, err)

	var ce *ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "room", ce.Step)
	require.NotNil(t, run)
	assert.Equal(t, model.EtlStatusFailed, run.Status)
	assert.Equal(t, "room", run.FailedStep)

	// 事务整体回滚：faculty 也未写入，暂存行原样保留
	faculties, err := env.repo.Production.ListFaculties(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, faculties)
	summary, err := env.svc.Staging.Summary(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.Total)

	stored, err := env.svc.ETL.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.EtlStatusFailed, stored.Status)
}

func TestETL_ConflictingDuplicateInBatchAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	env.stage(t, sessionID, staging.KindFaculty,
		staging.FacultyRow{Code: "ENG", Name: "工学院"},
		staging.FacultyRow{Code: "ENG", Name: "工程学院"},
	)
	_, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "faculty", ce.Step)
}

func TestETL_IdenticalDuplicateCollapses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	env.stage(t, sessionID, staging.KindFaculty,
		staging.FacultyRow{Code: "ENG", Name: "工学院"},
		staging.FacultyRow{Code: "ENG", Name: "工学院"},
	)
	_, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	require.NoError(t, err)

	faculties, err := env.repo.Production.ListFaculties(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, faculties, 1)
}

// stepResult 按步骤名取运行记录中的统计
func stepResult(t *testing.T, run *model.EtlRun, name string) model.EtlStepResult {
	t.Helper()
	for _, st := range run.Steps {
		if st.Step == name {
			return st
		}
	}
	require.Failf(t, "缺少步骤", "step %s not in run", name)
	return model.EtlStepResult{}
}

func TestETL_InvalidRowsSkippedWithIssues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	resp := env.stage(t, sessionID, staging.KindStaff,
		staging.StaffRow{StaffNumber: "S1", FirstName: "Ada", LastName: "L"},
		staging.StaffRow{StaffNumber: "S2", FirstName: "Bad", LastName: "Mail", Email: "not-an-email"},
		staging.StaffRow{StaffNumber: "S3", FirstName: "No", LastName: "Dept", DepartmentCode: "GHOST"},
	)
	assert.Equal(t, 3, resp.Accepted)
	require.NotEmpty(t, resp.Issues)

	run, err := env.svc.ETL.Run(ctx, sessionID, false, testActor)
	require.NoError(t, err)
	staffStep := stepResult(t, run, string(staging.KindStaff))
	assert.Equal(t, 3, staffStep.Processed)
	assert.Equal(t, 1, staffStep.Upserted)
	assert.Equal(t, 2, staffStep.Skipped)

	// 没有课程，考试生成步骤照常记录但不产出
	gen := stepResult(t, run, stepExamGeneration)
	assert.Zero(t, gen.Upserted)
	assert.GreaterOrEqual(t, len(run.Issues), 2)

	staff, err := env.repo.Production.ListStaff(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "S1", staff[0].StaffNumber)
	assert.Nil(t, staff[0].DepartmentID)
}

func TestETL_DryRunRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")
	env.stageCampus(t, sessionID)

	run, err := env.svc.ETL.Run(ctx, sessionID, true, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.EtlStatusDryRun, run.Status)
	assert.NotEmpty(t, run.Steps)

	counts, err := env.repo.Production.Counts(ctx, sessionID)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zerof(t, n, "试运行不应写入 %s", table)
	}
	summary, err := env.svc.Staging.Summary(ctx, sessionID)
	require.NoError(t, err)
	assert.Positive(t, summary.Total)

	runs, total, err := env.svc.ETL.ListRuns(ctx, sessionID, &dto.PaginationRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, run.RunID, runs[0].RunID)
}

func TestStaging_RejectsUndecodableRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2024/2025-2")

	resp, err := env.svc.Staging.StageRows(ctx, sessionID, &dto.StageRowsRequest{
		Kind: "faculty",
		Rows: []json.RawMessage{
			json.RawMessage(`{"code":"ENG","name":"工学院"}`),
			json.RawMessage(`{"code":42}`),
		},
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)

	_, err = env.svc.Staging.StageRows(ctx, sessionID, &dto.StageRowsRequest{
		Kind: "spaceship", Rows: []json.RawMessage{json.RawMessage(`{}`)},
	}, testActor)
	assert.Error(t, err)

	n, err := env.svc.Staging.Clear(ctx, sessionID, "", testActor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
