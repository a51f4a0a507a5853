package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/pkg/database"
	"exam-timetable/pkg/metrics"
)

// ── 版本模块业务错误 ──

var (
	ErrJobNotCompleted      = errors.New("任务尚未完成，不能发布")
	ErrVersionNotPublished  = errors.New("该版本未发布")
	ErrVersionSessionDiffer = errors.New("两个版本不属于同一学期会话")
)

// VersionService 版本发布与查询
type VersionService interface {
	// Publish 发布已完成任务的版本（必要时先建立），同一会话内其他版本全部撤下
	Publish(ctx context.Context, jobID string, actor, note string) (*dto.VersionResponse, error)
	// PublishVersion 发布指定版本（含方案草稿），要求其所属任务已完成
	PublishVersion(ctx context.Context, versionID string, actor, note string) (*dto.VersionResponse, error)
	Unpublish(ctx context.Context, versionID string, actor, note string) error
	List(ctx context.Context, sessionID string, scenarioID *string) ([]dto.VersionResponse, error)
	Get(ctx context.Context, id string) (*dto.VersionDetailResponse, error)
	GetPublished(ctx context.Context, sessionID string) (*dto.VersionResponse, error)
	Compare(ctx context.Context, baseID, targetID string) (*dto.CompareVersionsResponse, error)
	Recipients(ctx context.Context, versionID string) (*dto.RecipientsResponse, error)
}

type versionService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewVersionService 创建 VersionService 实例
func NewVersionService(repo *repository.Repository, logger *zap.Logger) VersionService {
	return &versionService{repo: repo, logger: logger}
}

// ────────────────────── Publish ──────────────────────

// Publish 按任务发布：取任务的主版本（必要时先建立）后走统一的发布流程
func (s *versionService) Publish(ctx context.Context, jobID string, actor, note string) (*dto.VersionResponse, error) {
	job, err := s.repo.Job.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var published *model.TimetableVersion
	err = s.repo.WithinScope(ctx, database.ScopePublish, job.SessionID, func(tx *repository.Repository) error {
		// 锁内重读，避免与并发的取消或失败交错
		job, err := tx.Job.GetByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != model.JobStatusCompleted {
			return ErrJobNotCompleted
		}
		version, _, err := ensureJobVersion(ctx, tx, job, nil)
		if err != nil {
			return err
		}
		published, err = publishLocked(ctx, tx, version, actor, note)
		return err
	})
	return s.finishPublish(published, err, zap.String("job_id", jobID), actor)
}

// PublishVersion 按版本发布，方案草稿也由此发布；版本所属任务必须已完成
func (s *versionService) PublishVersion(ctx context.Context, versionID string, actor, note string) (*dto.VersionResponse, error) {
	version, err := getVersion(ctx, s.repo, versionID)
	if err != nil {
		return nil, err
	}

	var published *model.TimetableVersion
	err = s.repo.WithinScope(ctx, database.ScopePublish, version.SessionID, func(tx *repository.Repository) error {
		version, err := getVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if version.JobID == nil {
			return ErrJobNotCompleted
		}
		job, err := tx.Job.GetByID(ctx, *version.JobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != model.JobStatusCompleted {
			return ErrJobNotCompleted
		}
		published, err = publishLocked(ctx, tx, version, actor, note)
		return err
	})
	return s.finishPublish(published, err, zap.String("version_id", versionID), actor)
}

// publishLocked 在会话发布锁内撤下其他版本并标记 version 为唯一已发布版本
func publishLocked(ctx context.Context, tx *repository.Repository, version *model.TimetableVersion, actor, note string) (*model.TimetableVersion, error) {
	var before *model.TimetableVersion
	if prev, err := tx.Version.GetPublished(ctx, version.SessionID); err == nil {
		before = prev
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if _, err := tx.Version.UnpublishOthers(ctx, version.SessionID, version.VersionID); err != nil {
		return nil, fmt.Errorf("撤下旧版本失败: %w", err)
	}
	now := time.Now().UTC()
	if err := tx.Version.MarkPublished(ctx, version.VersionID, actor, now); err != nil {
		return nil, fmt.Errorf("标记发布失败: %w", err)
	}

	n, err := tx.Version.CountPublished(ctx, version.SessionID)
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("发布后会话 %s 的已发布版本数为 %d", version.SessionID, n)
	}

	version.IsPublished = true
	version.PublishedAt = &now
	version.PublishedBy = actor

	var beforeRef any
	if before != nil {
		beforeRef = map[string]any{"version_id": before.VersionID, "version_number": before.VersionNumber}
	}
	after := map[string]any{"version_id": version.VersionID, "version_number": version.VersionNumber}
	if version.JobID != nil {
		after["job_id"] = *version.JobID
	}
	if version.ScenarioID != nil {
		after["scenario_id"] = *version.ScenarioID
	}
	err = appendAudit(ctx, tx, auditRecord{
		Actor: actor, Action: model.AuditActionPublish,
		EntityType: "timetable_version", EntityID: version.VersionID, SessionID: version.SessionID,
		Before: beforeRef,
		After:  after,
		Note:   note,
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (s *versionService) finishPublish(published *model.TimetableVersion, err error, target zap.Field, actor string) (*dto.VersionResponse, error) {
	if err != nil {
		metrics.RecordPublish("failed")
		if !errors.Is(err, ErrJobNotCompleted) && !errors.Is(err, ErrJobNotFound) && !errors.Is(err, ErrVersionNotFound) {
			s.logger.Error("发布版本失败", target, zap.Error(err))
		}
		return nil, err
	}

	metrics.RecordPublish("published")
	s.logger.Info("版本已发布",
		zap.String("session_id", published.SessionID),
		zap.String("version_id", published.VersionID),
		zap.Int("version_number", published.VersionNumber),
		zap.String("actor", actor),
	)
	resp := toVersionResponse(published)
	return &resp, nil
}

// ────────────────────── Unpublish ──────────────────────

func (s *versionService) Unpublish(ctx context.Context, versionID string, actor, note string) error {
	version, err := getVersion(ctx, s.repo, versionID)
	if err != nil {
		return err
	}

	err = s.repo.WithinScope(ctx, database.ScopePublish, version.SessionID, func(tx *repository.Repository) error {
		n, err := tx.Version.Unpublish(ctx, versionID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrVersionNotPublished
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUnpublish,
			EntityType: "timetable_version", EntityID: versionID, SessionID: version.SessionID,
			Before: map[string]any{"is_published": true},
			After:  map[string]any{"is_published": false},
			Note:   note,
		})
	})
	if err != nil {
		return err
	}
	metrics.RecordPublish("unpublished")
	s.logger.Info("版本已撤销发布", zap.String("version_id", versionID), zap.String("actor", actor))
	return nil
}

// ────────────────────── List / Get ──────────────────────

func (s *versionService) List(ctx context.Context, sessionID string, scenarioID *string) ([]dto.VersionResponse, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}
	versions, err := s.repo.Version.ListBySession(ctx, sessionID, scenarioID)
	if err != nil {
		s.logger.Error("查询版本列表失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.VersionResponse, 0, len(versions))
	for i := range versions {
		out = append(out, toVersionResponse(&versions[i]))
	}
	return out, nil
}

func (s *versionService) Get(ctx context.Context, id string) (*dto.VersionDetailResponse, error) {
	version, err := getVersion(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.Assignment.ListByVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.Conflict.CountByType(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.VersionDetailResponse{
		VersionResponse: toVersionResponse(version),
		Assignments:     make([]dto.AssignmentResponse, 0, len(assignments)),
		Conflicts:       counts,
	}
	for i := range assignments {
		resp.Assignments = append(resp.Assignments, toAssignmentResponse(&assignments[i]))
	}
	return resp, nil
}

func (s *versionService) GetPublished(ctx context.Context, sessionID string) (*dto.VersionResponse, error) {
	version, err := s.repo.Version.GetPublished(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	resp := toVersionResponse(version)
	return &resp, nil
}

// ────────────────────── Compare ──────────────────────

// Compare 以考试为单位比较两个版本：新增、移除、位置变化（日期、时段或考场集合不同）
func (s *versionService) Compare(ctx context.Context, baseID, targetID string) (*dto.CompareVersionsResponse, error) {
	base, err := getVersion(ctx, s.repo, baseID)
	if err != nil {
		return nil, err
	}
	target, err := getVersion(ctx, s.repo, targetID)
	if err != nil {
		return nil, err
	}
	if base.SessionID != target.SessionID {
		return nil, ErrVersionSessionDiffer
	}

	from, err := s.placements(ctx, baseID)
	if err != nil {
		return nil, err
	}
	to, err := s.placements(ctx, targetID)
	if err != nil {
		return nil, err
	}

	resp := &dto.CompareVersionsResponse{
		BaseVersionID:   baseID,
		TargetVersionID: targetID,
		Added:           []string{},
		Removed:         []string{},
		Moved:           []dto.ExamMove{},
	}
	for examID, p := range to {
		old, ok := from[examID]
		switch {
		case !ok:
			resp.Added = append(resp.Added, examID)
		case samePlacement(old, p):
			resp.Unchanged++
		default:
			resp.Moved = append(resp.Moved, dto.ExamMove{ExamID: examID, From: old, To: p})
		}
	}
	for examID := range from {
		if _, ok := to[examID]; !ok {
			resp.Removed = append(resp.Removed, examID)
		}
	}
	sort.Strings(resp.Added)
	sort.Strings(resp.Removed)
	sort.Slice(resp.Moved, func(i, j int) bool { return resp.Moved[i].ExamID < resp.Moved[j].ExamID })
	return resp, nil
}

func (s *versionService) placements(ctx context.Context, versionID string) (map[string]dto.ExamPlacement, error) {
	assignments, err := s.repo.Assignment.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dto.ExamPlacement)
	for _, a := range assignments {
		p := out[a.ExamID]
		p.Date = model.DateKey(a.ExamDate)
		p.PeriodIndex = a.PeriodIndex
		p.RoomIDs = append(p.RoomIDs, a.RoomID)
		out[a.ExamID] = p
	}
	for id, p := range out {
		sort.Strings(p.RoomIDs)
		out[id] = p
	}
	return out, nil
}

func samePlacement(a, b dto.ExamPlacement) bool {
	return a.Date == b.Date && a.PeriodIndex == b.PeriodIndex && slices.Equal(a.RoomIDs, b.RoomIDs)
}

// ────────────────────── Recipients ──────────────────────

// Recipients 通知对象：版本内考试的报名学生，以及该会话的在职教职工
func (s *versionService) Recipients(ctx context.Context, versionID string) (*dto.RecipientsResponse, error) {
	version, err := getVersion(ctx, s.repo, versionID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.Assignment.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	examIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if !seen[a.ExamID] {
			seen[a.ExamID] = true
			examIDs = append(examIDs, a.ExamID)
		}
	}

	rosters, err := s.repo.Production.ExamStudents(ctx, examIDs)
	if err != nil {
		return nil, err
	}
	studentSet := make(map[string]bool)
	for _, ids := range rosters {
		for _, id := range ids {
			studentSet[id] = true
		}
	}
	studentIDs := make([]string, 0, len(studentSet))
	for id := range studentSet {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	students, err := s.repo.Production.ListStudentsByIDs(ctx, studentIDs)
	if err != nil {
		return nil, err
	}
	staff, err := s.repo.Production.ListStaff(ctx, version.SessionID)
	if err != nil {
		return nil, err
	}

	resp := &dto.RecipientsResponse{
		VersionID: versionID,
		Students:  make([]dto.Recipient, 0, len(students)),
		Staff:     make([]dto.Recipient, 0, len(staff)),
	}
	for _, st := range students {
		resp.Students = append(resp.Students, dto.Recipient{
			ID: st.StudentID, Number: st.MatricNumber, Name: st.FirstName + " " + st.LastName,
			Email: st.Email, UserID: st.UserID,
		})
	}
	for _, st := range staff {
		if !st.IsActive {
			continue
		}
		resp.Staff = append(resp.Staff, dto.Recipient{
			ID: st.StaffID, Number: st.StaffNumber, Name: st.FirstName + " " + st.LastName,
			Email: st.Email, UserID: st.UserID,
		})
	}
	return resp, nil
}

// ── 转换 ──

func toVersionResponse(v *model.TimetableVersion) dto.VersionResponse {
	return dto.VersionResponse{
		ID:              v.VersionID,
		JobID:           v.JobID,
		SessionID:       v.SessionID,
		ScenarioID:      v.ScenarioID,
		ParentVersionID: v.ParentVersionID,
		VersionNumber:   v.VersionNumber,
		VersionType:     v.VersionType,
		IsPublished:     v.IsPublished,
		PublishedAt:     v.PublishedAt,
		PublishedBy:     v.PublishedBy,
		Notes:           v.Notes,
		CreatedBy:       v.CreatedBy,
		CreatedAt:       v.CreatedAt,
	}
}

func toAssignmentResponse(a *model.TimetableAssignment) dto.AssignmentResponse {
	resp := dto.AssignmentResponse{
		ID:                a.AssignmentID,
		ExamID:            a.ExamID,
		RoomID:            a.RoomID,
		Date:              model.DateKey(a.ExamDate),
		PeriodIndex:       a.PeriodIndex,
		AllocatedCapacity: a.AllocatedCapacity,
		IsConfirmed:       a.IsConfirmed,
		Notes:             a.Notes,
	}
	for _, inv := range a.Invigilators {
		resp.Invigilators = append(resp.Invigilators, dto.InvigilatorResponse{StaffID: inv.StaffID, Role: inv.Role})
	}
	return resp
}
