package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/staging"
)

// StagingService 暂存区业务接口：上传入口写入暂存行，规范化消费
type StagingService interface {
	StageRows(ctx context.Context, sessionID string, req *dto.StageRowsRequest, actor string) (*dto.StageRowsResponse, error)
	Summary(ctx context.Context, sessionID string) (*dto.StagingSummaryResponse, error)
	Clear(ctx context.Context, sessionID, kind string, actor string) (int64, error)
}

type stagingService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewStagingService 创建 StagingService 实例
func NewStagingService(repo *repository.Repository, logger *zap.Logger) StagingService {
	return &stagingService{repo: repo, logger: logger}
}

// ────────────────────── StageRows ──────────────────────

// StageRows 无法解码的行直接拒绝；可解码但校验不通过的行照常暂存，
// 问题随响应返回，规范化时同样会跳过
func (s *stagingService) StageRows(ctx context.Context, sessionID string, req *dto.StageRowsRequest, actor string) (*dto.StageRowsResponse, error) {
	kind, err := staging.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if err := requireOpenSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}

	resp := &dto.StageRowsResponse{Kind: kind.String()}
	records := make([]model.StagingRecord, 0, len(req.Rows))
	for _, raw := range req.Rows {
		row, err := staging.Decode(kind, raw)
		if err != nil {
			resp.Rejected++
			resp.Issues = append(resp.Issues, dto.IssueEntry{Kind: kind.String(), Message: err.Error()})
			continue
		}
		for _, is := range staging.Validate(kind, row) {
			resp.Issues = append(resp.Issues, toIssueEntry(is))
		}
		records = append(records, model.StagingRecord{
			SessionID:  sessionID,
			EntityKind: kind.String(),
			NaturalKey: row.NaturalKey(),
			Payload:    datatypes.JSON(raw),
		})
	}

	if err := s.repo.Staging.BatchCreate(ctx, records); err != nil {
		s.logger.Error("写入暂存行失败", zap.String("session_id", sessionID), zap.String("kind", kind.String()), zap.Error(err))
		return nil, err
	}
	resp.Accepted = len(records)

	s.logger.Info("暂存行已写入",
		zap.String("session_id", sessionID),
		zap.String("kind", kind.String()),
		zap.Int("accepted", resp.Accepted),
		zap.Int("rejected", resp.Rejected),
		zap.String("actor", actor),
	)
	return resp, nil
}

// ────────────────────── Summary ──────────────────────

func (s *stagingService) Summary(ctx context.Context, sessionID string) (*dto.StagingSummaryResponse, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}
	counts, err := s.repo.Staging.CountByKind(ctx, sessionID)
	if err != nil {
		s.logger.Error("统计暂存行失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	resp := &dto.StagingSummaryResponse{SessionID: sessionID, Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	return resp, nil
}

// ────────────────────── Clear ──────────────────────

// Clear kind 为空时清空整个会话的暂存区
func (s *stagingService) Clear(ctx context.Context, sessionID, kind string, actor string) (int64, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return 0, err
	}

	var (
		n   int64
		err error
	)
	if kind == "" {
		n, err = s.repo.Staging.DeleteBySession(ctx, sessionID)
	} else {
		k, perr := staging.ParseKind(kind)
		if perr != nil {
			return 0, perr
		}
		n, err = s.repo.Staging.DeleteByKind(ctx, sessionID, k.String())
	}
	if err != nil {
		s.logger.Error("清空暂存区失败", zap.String("session_id", sessionID), zap.Error(err))
		return 0, err
	}

	s.logger.Info("暂存区已清空", zap.String("session_id", sessionID), zap.String("kind", kind), zap.Int64("rows", n), zap.String("actor", actor))
	return n, nil
}

// ── 内部辅助方法 ──

func getSession(ctx context.Context, repo *repository.Repository, id string) (*model.AcademicSession, error) {
	session, err := repo.Session.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// requireOpenSession 已归档会话不接受新的数据
func requireOpenSession(ctx context.Context, repo *repository.Repository, id string) error {
	session, err := getSession(ctx, repo, id)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusArchived {
		return ErrSessionArchived
	}
	return nil
}

func toIssueEntry(is staging.Issue) dto.IssueEntry {
	return dto.IssueEntry{
		Kind:       is.Kind.String(),
		NaturalKey: is.NaturalKey,
		Field:      is.Field,
		Message:    is.Message,
	}
}
