package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
)

func TestVersion_PublishKeepsSinglePublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	first := env.completedJob(t, sessionID, nil, clashResult(r))
	second := env.completedJob(t, sessionID, nil, spreadResult(r))

	v1, err := env.svc.Version.Publish(ctx, first, testActor, "初版")
	require.NoError(t, err)
	assert.True(t, v1.IsPublished)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, testActor, v1.PublishedBy)

	v2, err := env.svc.Version.Publish(ctx, second, testActor, "修正冲突")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	n, err := env.repo.Version.CountPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	current, err := env.svc.Version.GetPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	// 重复发布同一任务是幂等的
	again, err := env.svc.Version.Publish(ctx, second, testActor, "")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, again.ID)

	entries, total, err := env.svc.Audit.List(ctx, &dto.AuditQuery{SessionID: sessionID, Action: model.AuditActionPublish})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	var switched *dto.AuditEntryResponse
	for i := range entries {
		if entries[i].EntityID == v2.ID && entries[i].Note == "修正冲突" {
			switched = &entries[i]
		}
	}
	require.NotNil(t, switched)
	diff, err := env.svc.Audit.Diff(ctx, switched.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, diff.Patch)
}

func TestVersion_ConcurrentPublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	jobs := make([]string, 4)
	for i := range jobs {
		jobs[i] = env.completedJob(t, sessionID, nil, spreadResult(r))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	for i, id := range jobs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.svc.Version.Publish(ctx, id, testActor, "")
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	n, err := env.repo.Version.CountPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	versions, err := env.svc.Version.List(ctx, sessionID, nil)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	numbers := map[int]bool{}
	for _, v := range versions {
		numbers[v.VersionNumber] = true
	}
	assert.Len(t, numbers, 4, "版本号不重复")
}

func TestVersion_PublishRequiresCompletedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	id := env.runningJob(t, sessionID, nil)

	_, err := env.svc.Version.Publish(ctx, id, testActor, "")
	assert.ErrorIs(t, err, ErrJobNotCompleted)

	_, err = env.svc.Version.Publish(ctx, "00000000-0000-0000-0000-000000000000", testActor, "")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = env.svc.Version.GetPublished(ctx, sessionID)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestVersion_PublishScenarioDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	parent, branch := env.branchFromClash(t, sessionID, r)

	_, err := env.svc.Version.Publish(ctx, *parent.JobID, testActor, "初版")
	require.NoError(t, err)

	draft, err := env.repo.Assignment.ListByExam(ctx, branch.Version.ID, r.exams["CSC102"])
	require.NoError(t, err)
	require.Len(t, draft, 1)
	room := r.rooms["R1"]
	_, err = env.svc.Scenario.MoveAssignment(ctx, draft[0].AssignmentID, &dto.MoveAssignmentRequest{
		Date: "2025-06-11", PeriodIndex: 1, RoomID: &room,
	}, testActor)
	require.NoError(t, err)

	v, err := env.svc.Version.PublishVersion(ctx, branch.Version.ID, testActor, "采用错峰方案")
	require.NoError(t, err)
	assert.Equal(t, branch.Version.ID, v.ID)
	assert.True(t, v.IsPublished)
	assert.Equal(t, testActor, v.PublishedBy)

	current, err := env.svc.Version.GetPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, branch.Version.ID, current.ID)

	n, err := env.repo.Version.CountPublished(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	old, err := env.repo.Version.GetByID(ctx, parent.VersionID)
	require.NoError(t, err)
	assert.False(t, old.IsPublished, "父版本已撤下")

	entries, total, err := env.svc.Audit.List(ctx, &dto.AuditQuery{
		SessionID: sessionID, Action: model.AuditActionPublish, EntityID: branch.Version.ID,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "采用错峰方案", entries[0].Note)

	_, err = env.svc.Version.PublishVersion(ctx, "00000000-0000-0000-0000-000000000000", testActor, "")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestVersion_Unpublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	v, err := env.svc.Version.Publish(ctx, env.completedJob(t, sessionID, nil, spreadResult(r)), testActor, "")
	require.NoError(t, err)

	require.NoError(t, env.svc.Version.Unpublish(ctx, v.ID, testActor, "撤回"))
	_, err = env.svc.Version.GetPublished(ctx, sessionID)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	assert.ErrorIs(t, env.svc.Version.Unpublish(ctx, v.ID, testActor, ""), ErrVersionNotPublished)
	assert.ErrorIs(t, env.svc.Version.Unpublish(ctx, "00000000-0000-0000-0000-000000000000", testActor, ""), ErrVersionNotFound)
}

func TestVersion_GetDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	jobID := env.completedJob(t, sessionID, nil, clashResult(r))

	v, err := env.repo.Version.GetPrimaryByJob(ctx, jobID)
	require.NoError(t, err)

	detail, err := env.svc.Version.Get(ctx, v.VersionID)
	require.NoError(t, err)
	assert.Len(t, detail.Assignments, 2)
	assert.EqualValues(t, 1, detail.Conflicts[model.ConflictStudent])
	assert.Equal(t, "2025-06-09", detail.Assignments[0].Date)
}

func TestVersion_Compare(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	base, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, clashResult(r)))
	require.NoError(t, err)
	target, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, spreadResult(r)))
	require.NoError(t, err)

	diff, err := env.svc.Version.Compare(ctx, base.VersionID, target.VersionID)
	require.NoError(t, err)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Equal(t, 1, diff.Unchanged)
	require.Len(t, diff.Moved, 1)
	move := diff.Moved[0]
	assert.Equal(t, r.exams["CSC102"], move.ExamID)
	assert.Equal(t, dto.ExamPlacement{Date: "2025-06-09", PeriodIndex: 0, RoomIDs: []string{r.rooms["R2"]}}, move.From)
	assert.Equal(t, dto.ExamPlacement{Date: "2025-06-10", PeriodIndex: 1, RoomIDs: []string{r.rooms["R2"]}}, move.To)

	same, err := env.svc.Version.Compare(ctx, base.VersionID, base.VersionID)
	require.NoError(t, err)
	assert.Equal(t, 2, same.Unchanged)
	assert.Empty(t, same.Moved)
}

func TestVersion_CompareAcrossSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s1 := env.loadedSession(t, "2024/2025-1")
	s2 := env.loadedSession(t, "2024/2025-2")

	v1, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, s1, nil, spreadResult(env.refs(t, s1))))
	require.NoError(t, err)
	v2, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, s2, nil, spreadResult(env.refs(t, s2))))
	require.NoError(t, err)

	_, err = env.svc.Version.Compare(ctx, v1.VersionID, v2.VersionID)
	assert.ErrorIs(t, err, ErrVersionSessionDiffer)
}

func TestVersion_Recipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	v, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, clashResult(r)))
	require.NoError(t, err)

	rec, err := env.svc.Version.Recipients(ctx, v.VersionID)
	require.NoError(t, err)

	var students []string
	for _, s := range rec.Students {
		students = append(students, s.Number)
	}
	assert.ElementsMatch(t, []string{"M1", "M2"}, students, "未报名任何考试的学生不在通知名单中")
	assert.Len(t, rec.Staff, 2)
}
