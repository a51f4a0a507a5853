package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
)

// branchFromClash 已完成的冲突版本及其方案分支
func (e *testEnv) branchFromClash(t *testing.T, sessionID string, r refs) (*model.TimetableVersion, *dto.BranchResponse) {
	t.Helper()
	ctx := context.Background()
	parent, err := e.repo.Version.GetPrimaryByJob(ctx, e.completedJob(t, sessionID, nil, clashResult(r)))
	require.NoError(t, err)
	branch, err := e.svc.Scenario.Branch(ctx, &dto.CreateScenarioRequest{
		ParentVersionID: parent.VersionID,
		Name:            "错峰方案",
	}, testActor)
	require.NoError(t, err)
	return parent, branch
}

func TestScenario_BranchCopiesAssignments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	parent, branch := env.branchFromClash(t, sessionID, r)
	assert.Equal(t, 2, branch.Copied)
	assert.Equal(t, 1, branch.Version.VersionNumber)
	assert.Equal(t, model.VersionTypeDraft, branch.Version.VersionType)
	assert.False(t, branch.Version.IsPublished)
	require.NotNil(t, branch.Version.ParentVersionID)
	assert.Equal(t, parent.VersionID, *branch.Version.ParentVersionID)
	assert.Equal(t, parent.VersionID, branch.Scenario.ParentVersionID)

	src, err := env.repo.Assignment.ListByVersion(ctx, parent.VersionID)
	require.NoError(t, err)
	dst, err := env.repo.Assignment.ListByVersion(ctx, branch.Version.ID)
	require.NoError(t, err)
	require.Len(t, dst, len(src))
	for i := range src {
		assert.NotEqual(t, src[i].AssignmentID, dst[i].AssignmentID)
		assert.Equal(t, src[i].ExamID, dst[i].ExamID)
		assert.Equal(t, src[i].RoomID, dst[i].RoomID)
		assert.Equal(t, model.DateKey(src[i].ExamDate), model.DateKey(dst[i].ExamDate))
		assert.Equal(t, src[i].PeriodIndex, dst[i].PeriodIndex)
		assert.Equal(t, src[i].AllocatedCapacity, dst[i].AllocatedCapacity)
		require.Len(t, dst[i].Invigilators, len(src[i].Invigilators))
		for j := range src[i].Invigilators {
			assert.Equal(t, src[i].Invigilators[j].StaffID, dst[i].Invigilators[j].StaffID)
			assert.Equal(t, src[i].Invigilators[j].Role, dst[i].Invigilators[j].Role)
			assert.Equal(t, dst[i].AssignmentID, dst[i].Invigilators[j].AssignmentID)
		}
	}

	counts, err := env.repo.Conflict.CountByType(ctx, branch.Version.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.ConflictStudent], "分支版本的冲突同步重算")

	published, err := env.repo.Version.CountPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, published, "分支不发布任何版本")
}

func TestScenario_VersionNumbering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	_, branch := env.branchFromClash(t, sessionID, r)
	scenarioID := branch.Scenario.ID

	v2, err := env.svc.Scenario.CreateVersion(ctx, scenarioID, testActor)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	require.NotNil(t, v2.ParentVersionID)
	assert.Equal(t, branch.Version.ID, *v2.ParentVersionID)

	// 方案内的求解任务接着方案内编号
	jobID := env.completedJob(t, sessionID, &scenarioID, spreadResult(r))
	primary, err := env.repo.Version.GetPrimaryByJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.VersionNumber)
	require.NotNil(t, primary.ScenarioID)
	assert.Equal(t, scenarioID, *primary.ScenarioID)

	// 无方案的版本编号互不影响
	mainline := env.completedJob(t, sessionID, nil, spreadResult(r))
	mv, err := env.repo.Version.GetPrimaryByJob(ctx, mainline)
	require.NoError(t, err)
	assert.Equal(t, 2, mv.VersionNumber)

	inScenario, err := env.svc.Version.List(ctx, sessionID, &scenarioID)
	require.NoError(t, err)
	assert.Len(t, inScenario, 3)
}

func TestScenario_MoveAssignmentRecomputesConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	parent, branch := env.branchFromClash(t, sessionID, r)

	draft, err := env.repo.Assignment.ListByExam(ctx, branch.Version.ID, r.exams["CSC102"])
	require.NoError(t, err)
	require.Len(t, draft, 1)

	room := r.rooms["R1"]
	moved, err := env.svc.Scenario.MoveAssignment(ctx, draft[0].AssignmentID, &dto.MoveAssignmentRequest{
		Date: "2025-06-11", PeriodIndex: 1, RoomID: &room,
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-11", moved.Date)
	assert.Equal(t, 1, moved.PeriodIndex)
	assert.Equal(t, room, moved.RoomID)
	assert.False(t, moved.IsConfirmed)

	counts, err := env.repo.Conflict.CountByType(ctx, branch.Version.ID)
	require.NoError(t, err)
	assert.Zero(t, counts[model.ConflictStudent])

	parentCounts, err := env.repo.Conflict.CountByType(ctx, parent.VersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, parentCounts[model.ConflictStudent], "父版本不受影响")

	entries, _, err := env.svc.Audit.List(ctx, &dto.AuditQuery{EntityType: "timetable_assignment", EntityID: draft[0].AssignmentID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Before)
	assert.NotEmpty(t, entries[0].After)
}

func TestScenario_MoveAssignmentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	parent, branch := env.branchFromClash(t, sessionID, r)

	draft, err := env.repo.Assignment.ListByVersion(ctx, branch.Version.ID)
	require.NoError(t, err)
	id := draft[0].AssignmentID

	tests := []struct {
		name string
		req  dto.MoveAssignmentRequest
		want error
	}{
		{"周末", dto.MoveAssignmentRequest{Date: "2025-06-14", PeriodIndex: 0}, ErrPlacementInvalid},
		{"考试周外", dto.MoveAssignmentRequest{Date: "2025-06-16", PeriodIndex: 0}, ErrPlacementInvalid},
		{"时段不存在", dto.MoveAssignmentRequest{Date: "2025-06-10", PeriodIndex: 2}, ErrPlacementInvalid},
		{"日期格式", dto.MoveAssignmentRequest{Date: "10/06/2025", PeriodIndex: 0}, ErrPlacementInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Scenario.MoveAssignment(ctx, id, &tt.req, testActor)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ghost := "00000000-0000-0000-0000-000000000000"
	_, err = env.svc.Scenario.MoveAssignment(ctx, id, &dto.MoveAssignmentRequest{Date: "2025-06-10", RoomID: &ghost}, testActor)
	assert.ErrorIs(t, err, ErrRoomNotInSession)

	_, err = env.svc.Scenario.MoveAssignment(ctx, ghost, &dto.MoveAssignmentRequest{Date: "2025-06-10"}, testActor)
	assert.ErrorIs(t, err, ErrAssignmentNotFound)

	primary, err := env.repo.Assignment.ListByVersion(ctx, parent.VersionID)
	require.NoError(t, err)
	_, err = env.svc.Scenario.MoveAssignment(ctx, primary[0].AssignmentID, &dto.MoveAssignmentRequest{Date: "2025-06-10"}, testActor)
	assert.ErrorIs(t, err, ErrVersionNotDraft, "求解产生的主版本不可手工调整")
}

func TestScenario_Archive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	_, branch := env.branchFromClash(t, sessionID, r)
	scenarioID := branch.Scenario.ID

	require.NoError(t, env.svc.Scenario.Archive(ctx, scenarioID, testActor))
	assert.ErrorIs(t, env.svc.Scenario.Archive(ctx, scenarioID, testActor), ErrScenarioArchived)

	_, err := env.svc.Scenario.CreateVersion(ctx, scenarioID, testActor)
	assert.ErrorIs(t, err, ErrScenarioArchived)

	draft, err := env.repo.Assignment.ListByVersion(ctx, branch.Version.ID)
	require.NoError(t, err)
	_, err = env.svc.Scenario.MoveAssignment(ctx, draft[0].AssignmentID, &dto.MoveAssignmentRequest{Date: "2025-06-10"}, testActor)
	assert.ErrorIs(t, err, ErrScenarioArchived)

	_, err = env.svc.Job.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID, ScenarioID: &scenarioID}, testActor)
	assert.ErrorIs(t, err, ErrScenarioArchived)

	active, err := env.svc.Scenario.List(ctx, sessionID, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := env.svc.Scenario.List(ctx, sessionID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsArchived)

	// 归档后版本仍可查询
	_, err = env.svc.Version.Get(ctx, branch.Version.ID)
	assert.NoError(t, err)
}

func TestScenario_Locks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	room := r.rooms["R2"]
	lock, err := env.svc.Scenario.CreateLock(ctx, &dto.CreateLockRequest{
		SessionID: sessionID, ExamID: r.exams["CSC101"],
		Date: "2025-06-12", PeriodIndex: 0, RoomID: &room, Reason: "院系要求",
	}, testActor)
	require.NoError(t, err)
	assert.True(t, lock.IsActive)

	// 锁定进入求解数据集
	jobID := env.runningJob(t, sessionID, nil)
	ds := env.dispatcher.dispatched[jobID]
	require.Len(t, ds.Locks, 1)
	assert.Equal(t, r.exams["CSC101"], ds.Locks[0].ExamID)
	assert.Equal(t, "2025-06-12", ds.Locks[0].Date)
	assert.Equal(t, room, ds.Locks[0].RoomID)

	require.NoError(t, env.svc.Scenario.DeactivateLock(ctx, lock.LockID, testActor))
	assert.ErrorIs(t, env.svc.Scenario.DeactivateLock(ctx, lock.LockID, testActor), ErrLockAlreadyInactive)

	jobID = env.runningJob(t, sessionID, nil)
	assert.Empty(t, env.dispatcher.dispatched[jobID].Locks, "失效的锁定不再下发")

	locks, err := env.svc.Scenario.ListLocks(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.False(t, locks[0].IsActive)

	require.NoError(t, env.svc.Scenario.DeleteLock(ctx, lock.LockID, testActor))
	assert.ErrorIs(t, env.svc.Scenario.DeleteLock(ctx, lock.LockID, testActor), ErrLockNotFound)
}

func TestScenario_LockValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	other := env.loadedSession(t, "2024/2025-1")
	r := env.refs(t, sessionID)
	foreign := env.refs(t, other)

	_, err := env.svc.Scenario.CreateLock(ctx, &dto.CreateLockRequest{
		SessionID: sessionID, ExamID: foreign.exams["CSC101"], Date: "2025-06-12",
	}, testActor)
	assert.ErrorIs(t, err, ErrExamNotInSession)

	_, err = env.svc.Scenario.CreateLock(ctx, &dto.CreateLockRequest{
		SessionID: sessionID, ExamID: r.exams["CSC101"], Date: "2025-06-15",
	}, testActor)
	assert.ErrorIs(t, err, ErrPlacementInvalid)

	room := foreign.rooms["R1"]
	_, err = env.svc.Scenario.CreateLock(ctx, &dto.CreateLockRequest{
		SessionID: sessionID, ExamID: r.exams["CSC101"], Date: "2025-06-12", RoomID: &room,
	}, testActor)
	assert.ErrorIs(t, err, ErrRoomNotInSession)
}
