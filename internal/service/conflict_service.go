package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/conflict"
	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/pkg/database"
	"exam-timetable/pkg/metrics"
)

// ── 冲突模块业务错误 ──

var (
	ErrVersionNotFound = errors.New("排考版本不存在")
)

// recomputeParallelism RecomputeMany 的并发上限
const recomputeParallelism = 4

// ConflictService 版本冲突的重算与查询
type ConflictService interface {
	Recompute(ctx context.Context, versionID string) (*dto.RecomputeResponse, error)
	RecomputeMany(ctx context.Context, versionIDs []string) ([]dto.RecomputeResponse, error)
	List(ctx context.Context, versionID, conflictType string) ([]dto.ConflictResponse, error)
	Summary(ctx context.Context, versionID string) (map[string]int64, error)
}

type conflictService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewConflictService 创建 ConflictService 实例
func NewConflictService(repo *repository.Repository, logger *zap.Logger) ConflictService {
	return &conflictService{repo: repo, logger: logger}
}

// ────────────────────── Recompute ──────────────────────

// Recompute 持有版本锁，在一个事务内删除旧冲突并写入完整的新结果
func (s *conflictService) Recompute(ctx context.Context, versionID string) (*dto.RecomputeResponse, error) {
	var summary map[string]int
	err := s.repo.WithinScope(ctx, database.ScopeVersion, versionID, func(tx *repository.Repository) error {
		var err error
		summary, err = recomputeConflicts(ctx, tx, versionID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrVersionNotFound) {
			s.logger.Error("重算冲突失败", zap.String("version_id", versionID), zap.Error(err))
		}
		return nil, err
	}
	return toRecomputeResponse(versionID, summary), nil
}

// ────────────────────── RecomputeMany ──────────────────────

// RecomputeMany 多个版本并发重算，任一失败即返回该错误
func (s *conflictService) RecomputeMany(ctx context.Context, versionIDs []string) ([]dto.RecomputeResponse, error) {
	out := make([]dto.RecomputeResponse, len(versionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeParallelism)
	for i, id := range versionIDs {
		g.Go(func() error {
			resp, err := s.Recompute(gctx, id)
			if err != nil {
				return fmt.Errorf("版本 %s: %w", id, err)
			}
			out[i] = *resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ────────────────────── List / Summary ──────────────────────

func (s *conflictService) List(ctx context.Context, versionID, conflictType string) ([]dto.ConflictResponse, error) {
	if _, err := getVersion(ctx, s.repo, versionID); err != nil {
		return nil, err
	}
	rows, err := s.repo.Conflict.ListByVersion(ctx, versionID, conflictType)
	if err != nil {
		s.logger.Error("查询冲突失败", zap.String("version_id", versionID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.ConflictResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toConflictResponse(&rows[i]))
	}
	return out, nil
}

func (s *conflictService) Summary(ctx context.Context, versionID string) (map[string]int64, error) {
	if _, err := getVersion(ctx, s.repo, versionID); err != nil {
		return nil, err
	}
	return s.repo.Conflict.CountByType(ctx, versionID)
}

// ── 内部辅助方法 ──

// recomputeConflicts 在调用方事务内重算版本冲突（调用方负责持有版本锁）
func recomputeConflicts(ctx context.Context, tx *repository.Repository, versionID string) (map[string]int, error) {
	start := time.Now()
	version, err := getVersion(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}
	in, err := conflictInput(ctx, tx, version)
	if err != nil {
		return nil, err
	}
	found, err := conflict.Detect(ctx, in)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Conflict.DeleteByVersion(ctx, versionID); err != nil {
		return nil, fmt.Errorf("删除旧冲突失败: %w", err)
	}
	rows := make([]model.TimetableConflict, 0, len(found))
	for _, c := range found {
		rows = append(rows, model.TimetableConflict{
			ConflictID:   conflict.ID(versionID, c),
			VersionID:    versionID,
			ConflictType: c.Type,
			Severity:     c.Severity,
			Fingerprint:  c.Fingerprint,
			Message:      c.Message,
			Details:      datatypes.NewJSONType(c.Details),
		})
	}
	if err := tx.Conflict.BatchCreate(ctx, rows); err != nil {
		return nil, fmt.Errorf("写入冲突失败: %w", err)
	}

	summary := conflict.Summary(found)
	metrics.RecordConflicts(summary, time.Since(start).Seconds())
	return summary, nil
}

// conflictInput 读取版本快照：考场安排、监考、选课名单、考场容量
func conflictInput(ctx context.Context, repo *repository.Repository, version *model.TimetableVersion) (conflict.Input, error) {
	var in conflict.Input
	assignments, err := repo.Assignment.ListByVersion(ctx, version.VersionID)
	if err != nil {
		return in, err
	}
	rooms, err := repo.Production.ListRooms(ctx, version.SessionID, false)
	if err != nil {
		return in, err
	}

	in.RoomCapacity = make(map[string]int, len(rooms))
	for _, r := range rooms {
		in.RoomCapacity[r.RoomID] = r.ExamCapacity
	}
	seen := make(map[string]bool)
	var examIDs []string
	for _, a := range assignments {
		in.Assignments = append(in.Assignments, conflict.Assignment{
			AssignmentID: a.AssignmentID,
			ExamID:       a.ExamID,
			RoomID:       a.RoomID,
			Date:         model.DateKey(a.ExamDate),
			PeriodIndex:  a.PeriodIndex,
			Allocated:    a.AllocatedCapacity,
		})
		for _, inv := range a.Invigilators {
			in.Invigilations = append(in.Invigilations, conflict.Invigilation{
				AssignmentID: a.AssignmentID,
				StaffID:      inv.StaffID,
			})
		}
		if !seen[a.ExamID] {
			seen[a.ExamID] = true
			examIDs = append(examIDs, a.ExamID)
		}
	}
	if in.ExamStudents, err = repo.Production.ExamStudents(ctx, examIDs); err != nil {
		return in, err
	}
	return in, nil
}

func getVersion(ctx context.Context, repo *repository.Repository, id string) (*model.TimetableVersion, error) {
	version, err := repo.Version.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return version, nil
}

func toRecomputeResponse(versionID string, summary map[string]int) *dto.RecomputeResponse {
	resp := &dto.RecomputeResponse{VersionID: versionID, ByType: summary}
	for _, n := range summary {
		resp.Total += n
	}
	return resp
}

func toConflictResponse(c *model.TimetableConflict) dto.ConflictResponse {
	d := c.Details.Data()
	return dto.ConflictResponse{
		ID:          c.ConflictID,
		Type:        c.ConflictType,
		Severity:    c.Severity,
		Message:     c.Message,
		ExamIDs:     d.ExamIDs,
		StudentIDs:  d.StudentIDs,
		RoomID:      d.RoomID,
		StaffID:     d.StaffID,
		Date:        d.Date,
		PeriodIndex: d.PeriodIndex,
		Capacity:    d.Capacity,
		Headcount:   d.Headcount,
	}
}
