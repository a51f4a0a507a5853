package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/solver"
)

func TestJob_CreateQueuedWithoutStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	job, err := env.svc.Job.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID}, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.True(t, job.CanCancel)
	assert.False(t, job.CanPause)
	assert.NotNil(t, job.ConfigurationID, "未指定时取默认运行配置")
	assert.Empty(t, env.dispatcher.dispatched)

	// 排队中取消：不通知执行器
	cancelled, err := env.svc.Job.Cancel(ctx, job.ID, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
	assert.Empty(t, env.dispatcher.signals)
}

func TestJob_StartDispatchesDataset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	id := env.runningJob(t, sessionID, nil)
	ds, ok := env.dispatcher.dispatched[id]
	require.True(t, ok)
	require.NotNil(t, ds)

	job, err := env.svc.Job.Get(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, job.StartedAt)
	assert.True(t, job.CanPause)
	assert.Greater(t, job.Version, 1)

	_, err = env.svc.Job.Start(ctx, id, testActor)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestJob_DatasetRecordsDefaultConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	job := &model.TimetableJob{SessionID: sessionID, InitiatedBy: testActor, Status: model.JobStatusQueued}
	require.NoError(t, env.repo.Job.Create(ctx, job))

	ds, err := env.svc.Dataset.BuildForJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotEmpty(t, ds.ConfigurationID)

	stored, err := env.repo.Job.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConfigurationID)
	assert.Equal(t, ds.ConfigurationID, *stored.ConfigurationID)
	require.NotEmpty(t, stored.ProgressLog)
	last := stored.ProgressLog[len(stored.ProgressLog)-1]
	assert.Equal(t, phaseDataset, last.Phase)
	assert.Contains(t, last.Message, ds.ConfigurationID)
}

func TestJob_StartWithoutDispatcher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	jobs := NewJobService(env.repo, env.svc.Dataset, nil, nil, zap.NewNop())
	created, err := jobs.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID}, testActor)
	require.NoError(t, err)

	_, err = jobs.Start(ctx, created.ID, testActor)
	assert.ErrorIs(t, err, ErrDispatcherUnavailable)
}

func TestJob_DispatchFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	env.dispatcher.err = errors.New("queue full")

	_, err := env.svc.Job.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID, Start: true}, testActor)
	require.Error(t, err)

	jobs, total, err := env.svc.Job.List(ctx, &dto.JobListQuery{SessionID: sessionID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].ErrorMessage, "queue full")
}

func TestJob_PauseResumeCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	id := env.runningJob(t, sessionID, nil)

	paused, err := env.svc.Job.Pause(ctx, id, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, paused.Status)
	assert.True(t, paused.CanResume)
	assert.False(t, paused.CanPause)

	_, err = env.svc.Job.Pause(ctx, id, testActor)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resumed, err := env.svc.Job.Resume(ctx, id, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, resumed.Status)

	cancelled, err := env.svc.Job.Cancel(ctx, id, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.CanCancel)
	assert.NotNil(t, cancelled.CompletedAt)

	assert.Equal(t, []solver.Signal{solver.SignalPause, solver.SignalResume, solver.SignalCancel}, env.dispatcher.signals)

	_, err = env.svc.Job.Resume(ctx, id, testActor)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, env.svc.Job.CompleteJob(ctx, id, spreadResult(env.refs(t, sessionID))), ErrInvalidTransition)
}

func TestJob_ResultWhilePausedCompletesOnResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	id := env.runningJob(t, sessionID, nil)

	_, err := env.svc.Job.Pause(ctx, id, testActor)
	require.NoError(t, err)

	// 求解器在暂停生效前已经返回
	require.NoError(t, env.svc.Job.CompleteJob(ctx, id, spreadResult(r)))
	held, err := env.svc.Job.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, held.Status)
	assert.True(t, held.HasResult)

	versions, err := env.repo.Version.ListBySession(ctx, sessionID, nil)
	require.NoError(t, err)
	assert.Empty(t, versions, "暂停中不建立版本")

	resumed, err := env.svc.Job.Resume(ctx, id, testActor)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, resumed.Status)
	assert.Equal(t, 100, resumed.Progress)

	primary, err := env.repo.Version.GetPrimaryByJob(ctx, id)
	require.NoError(t, err)
	assignments, err := env.repo.Assignment.ListByVersion(ctx, primary.VersionID)
	require.NoError(t, err)
	assert.Len(t, assignments, 2)

	// 求解器已退出，恢复不再转发信号
	assert.Equal(t, []solver.Signal{solver.SignalPause}, env.dispatcher.signals)
}

func TestJob_ProgressCacheThenDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	id := env.runningJob(t, sessionID, nil)

	require.NoError(t, env.svc.Job.UpdateProgress(ctx, id, 40, "search", "第 12 轮"))
	p, err := env.svc.Job.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, progressSourceCache, p.Source)
	assert.Equal(t, 40, p.Progress)
	assert.Equal(t, "第 12 轮", p.Message)

	// 越界值截断
	require.NoError(t, env.svc.Job.UpdateProgress(ctx, id, 150, "search", "收尾"))
	p, err = env.svc.Job.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Progress)

	require.NoError(t, env.svc.Job.FailJob(ctx, id, "求解器崩溃"))
	p, err = env.svc.Job.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, progressSourceDB, p.Source)
	assert.Equal(t, model.JobStatusFailed, p.Status)
	assert.Equal(t, "求解器崩溃", p.Message)

	assert.ErrorIs(t, env.svc.Job.UpdateProgress(ctx, id, 10, "search", ""), ErrInvalidTransition)
}

func TestJob_GetUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Job.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJob_CompleteMaterializesPrimaryVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	id := env.completedJob(t, sessionID, nil, clashResult(r))

	job, err := env.svc.Job.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.True(t, job.HasResult)
	require.NotNil(t, job.Metrics)
	assert.Equal(t, 1, job.Metrics.HardViolations)

	versions, err := env.repo.Version.ListBySession(ctx, sessionID, nil)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	v := versions[0]
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, model.VersionTypePrimary, v.VersionType)
	assert.False(t, v.IsPublished)
	require.NotNil(t, v.JobID)
	assert.Equal(t, id, *v.JobID)

	assignments, err := env.repo.Assignment.ListByVersion(ctx, v.VersionID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	for _, a := range assignments {
		assert.Equal(t, "2025-06-09", model.DateKey(a.ExamDate))
		if a.ExamID == r.exams["CSC101"] {
			assert.Equal(t, r.rooms["R1"], a.RoomID)
			assert.Equal(t, 2, a.AllocatedCapacity)
			require.Len(t, a.Invigilators, 1)
			assert.Equal(t, r.staff["S2"], a.Invigilators[0].StaffID)
			assert.Equal(t, model.InvigilatorRoleChief, a.Invigilators[0].Role)
		} else {
			assert.Empty(t, a.Invigilators)
		}
	}

	counts, err := env.repo.Conflict.CountByType(ctx, v.VersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.ConflictStudent])

	// 再次完成被状态机拒绝，不会产生第二个版本
	assert.ErrorIs(t, env.svc.Job.CompleteJob(ctx, id, clashResult(r)), ErrInvalidTransition)
	versions, err = env.repo.Version.ListBySession(ctx, sessionID, nil)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestJob_SubmitResultPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	id := env.runningJob(t, sessionID, nil)

	payload := fmt.Sprintf(`{
		"assignments": {
			%q: {"date": "2025-06-10", "period_index": 1, "rooms": [{"room_id": %q, "students": 2}],
			     "invigilators": [{"staff_id": %q}, {"staff_id": %q}]}
		},
		"metrics": {"hard_violations": 0, "soft_violations": 3, "utilization": 0.07, "solve_seconds": 1.5, "iterations": 900}
	}`, r.exams["CSC101"], r.rooms["R2"], r.staff["S1"], r.staff["S2"])

	job, err := env.svc.Job.SubmitResult(ctx, id, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Metrics.SoftViolations)

	stored, err := env.repo.Job.GetByID(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(stored.ResultPayload), "载荷原样保存")

	v, err := env.repo.Version.GetPrimaryByJob(ctx, id)
	require.NoError(t, err)
	assignments, err := env.repo.Assignment.ListByVersion(ctx, v.VersionID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	roles := map[string]string{}
	for _, inv := range assignments[0].Invigilators {
		roles[inv.StaffID] = inv.Role
	}
	assert.Equal(t, model.InvigilatorRoleChief, roles[r.staff["S1"]])
	assert.Equal(t, model.InvigilatorRoleAssistant, roles[r.staff["S2"]])
}

func TestJob_InvalidResultRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	id := env.runningJob(t, sessionID, nil)

	_, err := env.svc.Job.SubmitResult(ctx, id, []byte(`{"metrics":{}}`))
	assert.ErrorIs(t, err, solver.ErrInvalidResult)

	unknown := &solver.Result{Assignments: map[string]solver.ExamAssignment{
		"11111111-1111-1111-1111-111111111111": {
			Date: "2025-06-09", Rooms: []solver.RoomAllocation{{RoomID: r.rooms["R1"], Students: 1}},
		},
	}}
	assert.ErrorIs(t, env.svc.Job.CompleteJob(ctx, id, unknown), solver.ErrInvalidResult)

	job, err := env.svc.Job.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status, "结果无效时任务状态不变")
	assert.False(t, job.HasResult)

	versions, err := env.repo.Version.ListBySession(ctx, sessionID, nil)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestJob_RecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")

	running := env.runningJob(t, sessionID, nil)
	paused := env.runningJob(t, sessionID, nil)
	_, err := env.svc.Job.Pause(ctx, paused, testActor)
	require.NoError(t, err)
	queued, err := env.svc.Job.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID}, testActor)
	require.NoError(t, err)

	n, err := env.svc.Job.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{running, paused} {
		job, err := env.svc.Job.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.NotEmpty(t, job.ErrorMessage)
	}
	job, err := env.svc.Job.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)

	failed, total, err := env.svc.Job.List(ctx, &dto.JobListQuery{SessionID: sessionID, Status: model.JobStatusFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, j := range failed {
		assert.Nil(t, j.ProgressLog, "列表不返回进度日志")
	}
}

func TestJob_ArchivedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	require.NoError(t, env.svc.Session.Archive(ctx, sessionID, testActor))

	_, err := env.svc.Job.Create(ctx, &dto.CreateJobRequest{SessionID: sessionID}, testActor)
	assert.ErrorIs(t, err, ErrSessionArchived)
}
