package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/staging"
	"exam-timetable/internal/testutil"
	pkgerrors "exam-timetable/pkg/errors"
)

func newRepo(t *testing.T) (*repository.Repository, *gorm.DB) {
	t.Helper()
	db := testutil.NewSQLite(t)
	return repository.NewRepository(db, repository.WithBatchSize(2)), db
}

func createSession(t *testing.T, repo *repository.Repository, name string) *model.AcademicSession {
	t.Helper()
	s := &model.AcademicSession{
		Name:          name,
		StartDate:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		ExamStartDate: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		ExamEndDate:   time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC),
		Status:        model.SessionStatusActive,
	}
	require.NoError(t, repo.Session.Create(context.Background(), s))
	return s
}

// ── Production upsert ──

func TestProduction_UpsertIsIdempotent(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "2024/2025-2")

	rows := []model.Faculty{
		{SessionID: s.SessionID, Code: "ENG", Name: "工学院"},
		{SessionID: s.SessionID, Code: "SCI", Name: "理学院"},
		{SessionID: s.SessionID, Code: "ART", Name: "文学院"},
	}
	require.NoError(t, repo.Production.UpsertFaculties(ctx, rows))

	first, err := repo.Production.KeyIndex(ctx, s.SessionID, staging.KindFaculty)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// 再次写入同一批自然键：主键不变，名称被更新
	again := []model.Faculty{
		{SessionID: s.SessionID, Code: "ENG", Name: "工程学院"},
		{SessionID: s.SessionID, Code: "SCI", Name: "理学院"},
		{SessionID: s.SessionID, Code: "ART", Name: "文学院"},
	}
	require.NoError(t, repo.Production.UpsertFaculties(ctx, again))

	second, err := repo.Production.KeyIndex(ctx, s.SessionID, staging.KindFaculty)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	list, err := repo.Production.ListFaculties(ctx, s.SessionID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "工程学院", list[1].Name) // 按 code 排序：ART, ENG, SCI
}

func TestProduction_NaturalKeysAreSessionScoped(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	a := createSession(t, repo, "A")
	b := createSession(t, repo, "B")

	require.NoError(t, repo.Production.UpsertFaculties(ctx, []model.Faculty{{SessionID: a.SessionID, Code: "ENG", Name: "A"}}))
	require.NoError(t, repo.Production.UpsertFaculties(ctx, []model.Faculty{{SessionID: b.SessionID, Code: "ENG", Name: "B"}}))

	ia, err := repo.Production.KeyIndex(ctx, a.SessionID, staging.KindFaculty)
	require.NoError(t, err)
	ib, err := repo.Production.KeyIndex(ctx, b.SessionID, staging.KindFaculty)
	require.NoError(t, err)
	assert.NotEqual(t, ia["ENG"], ib["ENG"])
}

func TestProduction_ExamStudentsAndCounts(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "S")

	course := model.Course{SessionID: s.SessionID, Code: "CS101", Title: "程序设计", ExamDurationMinutes: 120, IsActive: true}
	require.NoError(t, repo.Production.UpsertCourses(ctx, []model.Course{course}))
	courses, err := repo.Production.KeyIndex(ctx, s.SessionID, staging.KindCourse)
	require.NoError(t, err)
	courseID := courses["CS101"]

	students := []model.Student{
		{SessionID: s.SessionID, MatricNumber: "M1", FirstName: "甲", LastName: "张", SpecialNeeds: datatypes.JSONSlice[string]{}},
		{SessionID: s.SessionID, MatricNumber: "M2", FirstName: "乙", LastName: "李", SpecialNeeds: datatypes.JSONSlice[string]{}},
	}
	require.NoError(t, repo.Production.UpsertStudents(ctx, students))
	sidx, err := repo.Production.KeyIndex(ctx, s.SessionID, staging.KindStudent)
	require.NoError(t, err)

	regs := []model.CourseRegistration{
		{SessionID: s.SessionID, StudentID: sidx["M1"], CourseID: courseID, RegistrationType: "regular"},
		{SessionID: s.SessionID, StudentID: sidx["M2"], CourseID: courseID, RegistrationType: "regular"},
	}
	require.NoError(t, repo.Production.UpsertRegistrations(ctx, regs))
	// 重复写入不产生新行
	require.NoError(t, repo.Production.UpsertRegistrations(ctx, regs[:1]))

	counts, err := repo.Production.RegistrationCounts(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[courseID])

	exam := model.Exam{SessionID: s.SessionID, CourseID: courseID, DurationMinutes: 120, ExpectedStudents: 2, Status: model.ExamStatusPending}
	require.NoError(t, repo.Production.CreateExams(ctx, []model.Exam{exam}))
	exams, err := repo.Production.ListExams(ctx, s.SessionID)
	require.NoError(t, err)
	require.Len(t, exams, 1)

	byExam, err := repo.Production.ExamStudents(ctx, []string{exams[0].ExamID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sidx["M1"], sidx["M2"]}, byExam[exams[0].ExamID])

	all, err := repo.Production.Counts(ctx, s.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, all["course_registrations"])
	assert.EqualValues(t, 1, all["exams"])
}

// ── 乐观锁 ──

func TestSession_UpdateOptimisticLock(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "S")

	stale := *s
	s.Name = "S-renamed"
	require.NoError(t, repo.Session.Update(ctx, s))
	assert.Equal(t, 2, s.Version)

	stale.Name = "S-stale"
	err := repo.Session.Update(ctx, &stale)
	assert.ErrorIs(t, err, pkgerrors.ErrOptimisticLock)
}

func TestJob_UpdateOptimisticLock(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "S")

	job := &model.TimetableJob{SessionID: s.SessionID, InitiatedBy: "admin"}
	job.SetStatus(model.JobStatusQueued)
	require.NoError(t, repo.Job.Create(ctx, job))

	stale := *job
	job.SetStatus(model.JobStatusRunning)
	job.AppendProgress("solve", 10, "开始求解")
	require.NoError(t, repo.Job.Update(ctx, job))

	stale.SetStatus(model.JobStatusCancelled)
	assert.ErrorIs(t, repo.Job.Update(ctx, &stale), pkgerrors.ErrOptimisticLock)

	got, err := repo.Job.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	assert.True(t, got.CanPause)
	require.Len(t, got.ProgressLog, 1)
	assert.Equal(t, "solve", got.ProgressLog[0].Phase)
}

// ── 版本 ──

func TestVersion_PublishBookkeeping(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "S")

	n, err := repo.Version.MaxVersionNumber(ctx, s.SessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	v1 := &model.TimetableVersion{SessionID: s.SessionID, VersionNumber: 1, VersionType: model.VersionTypePrimary}
	v2 := &model.TimetableVersion{SessionID: s.SessionID, VersionNumber: 2, VersionType: model.VersionTypeDraft}
	require.NoError(t, repo.Version.Create(ctx, v1))
	require.NoError(t, repo.Version.Create(ctx, v2))

	// 方案内的版本单独编号
	scenario := "22222222-2222-2222-2222-222222222222"
	draft := &model.TimetableVersion{SessionID: s.SessionID, ScenarioID: &scenario, VersionNumber: 5, VersionType: model.VersionTypeDraft}
	require.NoError(t, repo.Version.Create(ctx, draft))

	n, err = repo.Version.MaxVersionNumber(ctx, s.SessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.Version.MaxVersionNumber(ctx, s.SessionID, &scenario)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	now := time.Now().UTC()
	require.NoError(t, repo.Version.MarkPublished(ctx, v1.VersionID, "admin", now))

	_, err = repo.Version.UnpublishOthers(ctx, s.SessionID, v2.VersionID)
	require.NoError(t, err)
	require.NoError(t, repo.Version.MarkPublished(ctx, v2.VersionID, "admin", now))

	count, err := repo.Version.CountPublished(ctx, s.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	published, err := repo.Version.GetPublished(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, published.VersionID)

	affected, err := repo.Version.Unpublish(ctx, v2.VersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = repo.Version.Unpublish(ctx, v2.VersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	assert.ErrorIs(t, repo.Version.MarkPublished(ctx, "00000000-0000-0000-0000-000000000000", "admin", now), gorm.ErrRecordNotFound)
}

// ── 锁定 / 冲突 / 审计 ──

func TestExamLock_ListActiveScoping(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo, "S")
	scenario := "11111111-1111-1111-1111-111111111111"
	day := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	global := &model.ExamLock{SessionID: s.SessionID, ExamID: "e1", ExamDate: day, IsActive: true}
	scoped := &model.ExamLock{SessionID: s.SessionID, ScenarioID: &scenario, ExamID: "e2", ExamDate: day, IsActive: true}
	inactive := &model.ExamLock{SessionID: s.SessionID, ExamID: "e3", ExamDate: day, IsActive: false}
	for _, l := range []*model.ExamLock{global, scoped, inactive} {
		require.NoError(t, repo.ExamLock.Create(ctx, l))
	}

	locks, err := repo.ExamLock.ListActive(ctx, s.SessionID, nil)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "e1", locks[0].ExamID)

	locks, err = repo.ExamLock.ListActive(ctx, s.SessionID, &scenario)
	require.NoError(t, err)
	assert.Len(t, locks, 2)

	n, err := repo.ExamLock.Deactivate(ctx, global.LockID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = repo.ExamLock.Deactivate(ctx, global.LockID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestConflict_ReplaceAndCount(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	versionID := "22222222-2222-2222-2222-222222222222"

	mk := func(id, typ, fp string) model.TimetableConflict {
		return model.TimetableConflict{
			ConflictID: id, VersionID: versionID, ConflictType: typ, Severity: model.SeverityHard,
			Fingerprint: fp, Message: fp,
			Details: datatypes.NewJSONType(model.ConflictDetails{ExamIDs: []string{"e1"}, Date: "2025-06-09"}),
		}
	}
	conflicts := []model.TimetableConflict{
		mk("33333333-3333-3333-3333-333333333331", model.ConflictStudent, "a"),
		mk("33333333-3333-3333-3333-333333333332", model.ConflictStudent, "b"),
		mk("33333333-3333-3333-3333-333333333333", model.ConflictRoomDoubleBooking, "c"),
	}
	require.NoError(t, repo.Conflict.BatchCreate(ctx, conflicts))

	counts, err := repo.Conflict.CountByType(ctx, versionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[model.ConflictStudent])
	assert.EqualValues(t, 1, counts[model.ConflictRoomDoubleBooking])

	list, err := repo.Conflict.ListByVersion(ctx, versionID, model.ConflictStudent)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"e1"}, list[0].Details.Data().ExamIDs)

	n, err := repo.Conflict.DeleteByVersion(ctx, versionID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestAudit_ListFilter(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	for _, e := range []*model.AuditLogEntry{
		{Actor: "alice", Action: model.AuditActionPublish, EntityType: "timetable_version", EntityID: "v1"},
		{Actor: "bob", Action: model.AuditActionUnpublish, EntityType: "timetable_version", EntityID: "v1"},
		{Actor: "alice", Action: model.AuditActionCreate, EntityType: "academic_session", EntityID: "s1"},
	} {
		require.NoError(t, repo.Audit.Create(ctx, e))
	}

	entries, total, err := repo.Audit.List(ctx, repository.AuditFilter{EntityType: "timetable_version", EntityID: "v1"}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, entries, 2)

	entries, total, err = repo.Audit.List(ctx, repository.AuditFilter{Actor: "alice"}, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, entries, 1)
}

// ── 事务 / 作用域 ──

func TestRepository_WithinScopeRollsBack(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	err := repo.WithinScope(ctx, "test", "k", func(tx *repository.Repository) error {
		s := &model.AcademicSession{Name: "rolled-back", Status: model.SessionStatusActive}
		if err := tx.Session.Create(ctx, s); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	list, err := repo.Session.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_NilDBRunsInline(t *testing.T) {
	repo := &repository.Repository{}
	tx, err := repo.BeginTx(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, tx)
	assert.Same(t, repo, repo.WithTx(nil))

	called := false
	require.NoError(t, repo.WithinScope(context.Background(), "ns", "k", func(*repository.Repository) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
