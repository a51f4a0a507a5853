package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wI2L/jsondiff"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
)

// ── 审计模块业务错误 ──

var (
	ErrAuditNotFound = errors.New("审计记录不存在")
)

// AuditService 审计日志查询接口；写入由各业务操作在自身事务内完成
type AuditService interface {
	List(ctx context.Context, q *dto.AuditQuery) ([]dto.AuditEntryResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.AuditEntryResponse, error)
	Diff(ctx context.Context, id string) (*dto.AuditDiffResponse, error)
}

type auditService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewAuditService 创建 AuditService 实例
func NewAuditService(repo *repository.Repository, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, logger: logger}
}

// auditRecord 一条待写入的审计记录，Before/After 为任意可序列化快照
type auditRecord struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	SessionID  string
	Before     any
	After      any
	Note       string
}

// appendAudit 在调用方的事务聚合上追加审计记录
func appendAudit(ctx context.Context, repo *repository.Repository, rec auditRecord) error {
	before, err := snapshot(rec.Before)
	if err != nil {
		return err
	}
	after, err := snapshot(rec.After)
	if err != nil {
		return err
	}
	entry := &model.AuditLogEntry{
		Actor:      rec.Actor,
		Action:     rec.Action,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Before:     before,
		After:      after,
		Note:       rec.Note,
		CreatedAt:  time.Now().UTC(),
	}
	if rec.SessionID != "" {
		sid := rec.SessionID
		entry.SessionID = &sid
	}
	if err := repo.Audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}
	return nil
}

func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化审计快照失败: %w", err)
	}
	return datatypes.JSON(b), nil
}

// ────────────────────── List ──────────────────────

func (s *auditService) List(ctx context.Context, q *dto.AuditQuery) ([]dto.AuditEntryResponse, int64, error) {
	filter := repository.AuditFilter{
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		SessionID:  q.SessionID,
		Action:     q.Action,
		Actor:      q.Actor,
	}
	if q.Since != "" {
		since, err := time.Parse("2006-01-02", q.Since)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: since", ErrInvalidDate)
		}
		filter.Since = &since
	}

	entries, total, err := s.repo.Audit.List(ctx, filter, q.GetOffset(), q.GetPageSize())
	if err != nil {
		s.logger.Error("查询审计日志失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AuditEntryResponse, 0, len(entries))
	for i := range entries {
		result = append(result, toAuditResponse(&entries[i]))
	}
	return result, total, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *auditService) GetByID(ctx context.Context, id string) (*dto.AuditEntryResponse, error) {
	entry, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toAuditResponse(entry)
	return &resp, nil
}

// ────────────────────── Diff ──────────────────────

// Diff 以 JSON Patch 表示 before → after 的变化；缺失的一侧按 {} 处理
func (s *auditService) Diff(ctx context.Context, id string) (*dto.AuditDiffResponse, error) {
	entry, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch, err := jsondiff.CompareJSON(orEmptyObject(entry.Before), orEmptyObject(entry.After))
	if err != nil {
		s.logger.Warn("审计快照无法比较", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("比较审计快照失败: %w", err)
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	ops := []dto.PatchOperation{}
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, err
	}
	return &dto.AuditDiffResponse{ID: entry.AuditID, Patch: ops}, nil
}

// ── 内部辅助方法 ──

func (s *auditService) get(ctx context.Context, id string) (*model.AuditLogEntry, error) {
	entry, err := s.repo.Audit.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuditNotFound
		}
		s.logger.Error("查询审计记录失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

func orEmptyObject(b datatypes.JSON) []byte {
	if len(b) == 0 || string(b) == "null" {
		return []byte("{}")
	}
	return b
}

func toAuditResponse(e *model.AuditLogEntry) dto.AuditEntryResponse {
	resp := dto.AuditEntryResponse{
		ID:         e.AuditID,
		Actor:      e.Actor,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		SessionID:  e.SessionID,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt,
	}
	if len(e.Before) > 0 && string(e.Before) != "null" {
		resp.Before = json.RawMessage(e.Before)
	}
	if len(e.After) > 0 && string(e.After) != "null" {
		resp.After = json.RawMessage(e.After)
	}
	return resp
}
