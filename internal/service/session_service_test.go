package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/staging"
	pkgerrors "exam-timetable/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestSession_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := func() *dto.CreateSessionRequest {
		return &dto.CreateSessionRequest{
			Name:          "2025春",
			StartDate:     "2025-02-17",
			EndDate:       "2025-07-31",
			ExamStartDate: "2025-06-09",
			ExamEndDate:   "2025-06-13",
		}
	}

	tests := []struct {
		name   string
		modify func(r *dto.CreateSessionRequest)
		want   error
	}{
		{"日期格式", func(r *dto.CreateSessionRequest) { r.StartDate = "2025/02/17" }, ErrInvalidDate},
		{"结束早于开始", func(r *dto.CreateSessionRequest) { r.EndDate = "2025-01-01" }, ErrSessionDateInvalid},
		{"考试周倒置", func(r *dto.CreateSessionRequest) { r.ExamEndDate = "2025-06-01" }, ErrSessionDateInvalid},
		{"考试周超出学期", func(r *dto.CreateSessionRequest) { r.ExamEndDate = "2025-08-15" }, ErrSessionDateInvalid},
		{"模板不存在", func(r *dto.CreateSessionRequest) { r.TemplateID = strPtr("00000000-0000-0000-0000-000000000000") }, ErrTemplateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.modify(req)
			_, err := env.svc.Session.Create(ctx, req, testActor)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	created, err := env.svc.Session.Create(ctx, base(), testActor)
	require.NoError(t, err)
	assert.Equal(t, 5, created.ExamDays)
	assert.Equal(t, model.SessionStatusActive, created.Status)
	assert.False(t, created.IsActive)

	_, err = env.svc.Session.Create(ctx, base(), testActor)
	assert.ErrorIs(t, err, ErrSessionNameExists)
}

func TestSession_UpdateOptimisticLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2025春")

	current, err := env.svc.Session.GetByID(ctx, sessionID)
	require.NoError(t, err)

	updated, err := env.svc.Session.Update(ctx, sessionID, &dto.UpdateSessionRequest{
		ExamEndDate: strPtr("2025-06-16"),
		Version:     current.Version,
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16", updated.ExamEndDate)
	assert.Equal(t, current.Version+1, updated.Version)
	assert.Equal(t, 6, updated.ExamDays)

	_, err = env.svc.Session.Update(ctx, sessionID, &dto.UpdateSessionRequest{
		Name:    strPtr("过期写入"),
		Version: current.Version,
	}, testActor)
	assert.ErrorIs(t, err, pkgerrors.ErrOptimisticLock)

	_, err = env.svc.Session.Update(ctx, sessionID, &dto.UpdateSessionRequest{
		ExamStartDate: strPtr("2025-01-01"),
		Version:       updated.Version,
	}, testActor)
	assert.ErrorIs(t, err, ErrSessionDateInvalid)
}

func TestSession_ActivateSingle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Session.GetActive(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	first := env.createSession(t, "2024秋")
	second := env.createSession(t, "2025春")

	require.NoError(t, env.svc.Session.Activate(ctx, first, testActor))
	require.NoError(t, env.svc.Session.Activate(ctx, second, testActor))

	active, err := env.svc.Session.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, active.ID)

	n, err := env.repo.Session.CountActive(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// 归档会话不能激活，归档同时取消激活
	require.NoError(t, env.svc.Session.Archive(ctx, second, testActor))
	assert.ErrorIs(t, env.svc.Session.Activate(ctx, second, testActor), ErrSessionArchived)
	_, err = env.svc.Session.GetActive(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	open, err := env.svc.Session.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first, open[0].ID)

	all, err := env.svc.Session.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSession_ArchivedIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.createSession(t, "2025春")

	require.NoError(t, env.svc.Session.Archive(ctx, sessionID, testActor))
	// 重复归档无副作用
	require.NoError(t, env.svc.Session.Archive(ctx, sessionID, testActor))

	sess, err := env.svc.Session.GetByID(ctx, sessionID)
	require.NoError(t, err)
	_, err = env.svc.Session.Update(ctx, sessionID, &dto.UpdateSessionRequest{Name: strPtr("改名"), Version: sess.Version}, testActor)
	assert.ErrorIs(t, err, ErrSessionArchived)
}

func TestSession_DeleteOnlyWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	empty := env.createSession(t, "空会话")
	require.NoError(t, env.svc.Session.Delete(ctx, empty, testActor))
	_, err := env.svc.Session.GetByID(ctx, empty)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	staged := env.createSession(t, "2025春")
	env.stage(t, staged, staging.KindFaculty, staging.FacultyRow{Code: "ENG", Name: "工学院"})
	assert.ErrorIs(t, env.svc.Session.Delete(ctx, staged, testActor), ErrSessionHasData)

	assert.ErrorIs(t, env.svc.Session.Delete(ctx, "00000000-0000-0000-0000-000000000000", testActor), ErrSessionNotFound)
}
