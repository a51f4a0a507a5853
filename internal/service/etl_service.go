package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/pkg/database"
	"exam-timetable/pkg/metrics"
)

// ── 规范化模块业务错误 ──

var (
	ErrEtlRunNotFound = errors.New("规范化运行记录不存在")

	errDryRun = errors.New("dry run")
)

// ConsistencyError 数据一致性错误，整次运行回滚
type ConsistencyError struct {
	Step   string
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("规范化步骤 %s 数据不一致: %s", e.Step, e.Reason)
}

// ETLService 暂存 → 生产数据的规范化管线
type ETLService interface {
	Run(ctx context.Context, sessionID string, dryRun bool, actor string) (*model.EtlRun, error)
	ListRuns(ctx context.Context, sessionID string, page *dto.PaginationRequest) ([]model.EtlRun, int64, error)
	GetRun(ctx context.Context, id string) (*model.EtlRun, error)
}

type etlService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewETLService 创建 ETLService 实例
func NewETLService(repo *repository.Repository, logger *zap.Logger) ETLService {
	return &etlService{repo: repo, logger: logger}
}

// ────────────────────── Run ──────────────────────

// Run 整次运行在持有会话级 ETL 锁的单个事务内执行。
// 运行记录在事务外写入：失败时事务回滚、暂存区原样保留，记录仍可查询。
func (s *etlService) Run(ctx context.Context, sessionID string, dryRun bool, actor string) (*model.EtlRun, error) {
	if err := requireOpenSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}

	run := &model.EtlRun{
		SessionID:   sessionID,
		Status:      model.EtlStatusRunning,
		TriggeredBy: actor,
		StartedAt:   time.Now(),
	}
	if err := s.repo.EtlRun.Create(ctx, run); err != nil {
		s.logger.Error("创建规范化运行记录失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	var ex *etlExecution
	err := s.repo.WithinScope(ctx, database.ScopeETL, sessionID, func(tx *repository.Repository) error {
		ex = newETLExecution(tx, sessionID)
		if err := ex.runAll(ctx); err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionETLRun,
			EntityType: "etl_run", EntityID: run.RunID, SessionID: sessionID,
			After: ex.steps,
		})
	})

	finished := time.Now()
	run.FinishedAt = &finished
	if ex != nil {
		run.Steps = ex.steps
		run.Issues = ex.issues
	}
	switch {
	case err == nil:
		run.Status = model.EtlStatusCompleted
	case errors.Is(err, errDryRun):
		run.Status = model.EtlStatusDryRun
		err = nil
	default:
		run.Status = model.EtlStatusFailed
		run.Error = err.Error()
		if ex != nil {
			run.FailedStep = ex.current
		}
	}
	metrics.RecordETLRun(run.Status, finished.Sub(run.StartedAt).Seconds())

	// ctx 可能已取消，运行记录仍需落库
	if uerr := s.repo.EtlRun.Update(context.WithoutCancel(ctx), run); uerr != nil {
		s.logger.Error("更新规范化运行记录失败", zap.String("run_id", run.RunID), zap.Error(uerr))
	}

	if err != nil {
		s.logger.Warn("规范化运行失败",
			zap.String("session_id", sessionID),
			zap.String("run_id", run.RunID),
			zap.String("step", run.FailedStep),
			zap.Error(err),
		)
		return run, err
	}

	s.logger.Info("规范化运行完成",
		zap.String("session_id", sessionID),
		zap.String("run_id", run.RunID),
		zap.String("status", run.Status),
		zap.Int("issues", len(run.Issues)),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	)
	return run, nil
}

// ────────────────────── ListRuns ──────────────────────

func (s *etlService) ListRuns(ctx context.Context, sessionID string, page *dto.PaginationRequest) ([]model.EtlRun, int64, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return nil, 0, err
	}
	runs, total, err := s.repo.EtlRun.ListBySession(ctx, sessionID, page.GetOffset(), page.GetPageSize())
	if err != nil {
		s.logger.Error("查询规范化运行记录失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, 0, err
	}
	return runs, total, nil
}

// ────────────────────── GetRun ──────────────────────

func (s *etlService) GetRun(ctx context.Context, id string) (*model.EtlRun, error) {
	run, err := s.repo.EtlRun.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEtlRunNotFound
		}
		return nil, err
	}
	return run, nil
}
