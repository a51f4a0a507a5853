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
	pkgerrors "exam-timetable/pkg/errors"
)

// ── 学期会话模块业务错误 ──

var (
	ErrSessionNotFound    = errors.New("学期会话不存在")
	ErrSessionDateInvalid = errors.New("学期结束日期必须晚于开始日期，考试周须落在学期内")
	ErrSessionHasData     = errors.New("学期会话已有数据，只能归档不能删除")
	ErrSessionArchived    = errors.New("学期会话已归档")
	ErrSessionNameExists  = errors.New("学期会话名称已存在")
	ErrNoActiveSession    = errors.New("当前没有激活的学期会话")
	ErrInvalidDate        = errors.New("日期格式错误，应为 YYYY-MM-DD")
	ErrTemplateNotFound   = errors.New("时段模板不存在")
)

// SessionService 学期会话业务接口
type SessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest, actor string) (*dto.SessionResponse, error)
	GetByID(ctx context.Context, id string) (*dto.SessionResponse, error)
	GetActive(ctx context.Context) (*dto.SessionResponse, error)
	List(ctx context.Context, includeArchived bool) ([]dto.SessionResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateSessionRequest, actor string) (*dto.SessionResponse, error)
	Activate(ctx context.Context, id string, actor string) error
	Archive(ctx context.Context, id string, actor string) error
	Delete(ctx context.Context, id string, actor string) error
}

type sessionService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(repo *repository.Repository, logger *zap.Logger) SessionService {
	return &sessionService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest, actor string) (*dto.SessionResponse, error) {
	session := &model.AcademicSession{
		Name:            req.Name,
		IncludeWeekends: req.IncludeWeekends,
		TemplateID:      req.TemplateID,
		Status:          model.SessionStatusActive,
	}
	var err error
	if session.StartDate, err = parseDate(req.StartDate); err != nil {
		return nil, err
	}
	if session.EndDate, err = parseDate(req.EndDate); err != nil {
		return nil, err
	}
	if session.ExamStartDate, err = parseDate(req.ExamStartDate); err != nil {
		return nil, err
	}
	if session.ExamEndDate, err = parseDate(req.ExamEndDate); err != nil {
		return nil, err
	}
	if err := validateSessionDates(session); err != nil {
		return nil, err
	}
	if err := s.checkTemplate(ctx, session.TemplateID); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Session.Create(ctx, session); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "academic_session", EntityID: session.SessionID, SessionID: session.SessionID,
			After: session,
		})
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, ErrSessionNameExists
		}
		s.logger.Error("创建学期会话失败", zap.Error(err))
		return nil, err
	}

	return s.toSessionResponse(session), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *sessionService) GetByID(ctx context.Context, id string) (*dto.SessionResponse, error) {
	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toSessionResponse(session), nil
}

// ────────────────────── GetActive ──────────────────────

func (s *sessionService) GetActive(ctx context.Context) (*dto.SessionResponse, error) {
	session, err := s.repo.Session.GetActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSession
		}
		s.logger.Error("查询激活学期会话失败", zap.Error(err))
		return nil, err
	}
	return s.toSessionResponse(session), nil
}

// ────────────────────── List ──────────────────────

func (s *sessionService) List(ctx context.Context, includeArchived bool) ([]dto.SessionResponse, error) {
	sessions, err := s.repo.Session.List(ctx, includeArchived)
	if err != nil {
		s.logger.Error("列出学期会话失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		result = append(result, *s.toSessionResponse(&sessions[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *sessionService) Update(ctx context.Context, id string, req *dto.UpdateSessionRequest, actor string) (*dto.SessionResponse, error) {
	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusArchived {
		return nil, ErrSessionArchived
	}
	if req.Version != session.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}
	before := *session

	if req.Name != nil {
		session.Name = *req.Name
	}
	if req.IncludeWeekends != nil {
		session.IncludeWeekends = *req.IncludeWeekends
	}
	dates := []struct {
		in  *string
		out *time.Time
	}{
		{req.StartDate, &session.StartDate},
		{req.EndDate, &session.EndDate},
		{req.ExamStartDate, &session.ExamStartDate},
		{req.ExamEndDate, &session.ExamEndDate},
	}
	for _, d := range dates {
		if d.in == nil {
			continue
		}
		if *d.out, err = parseDate(*d.in); err != nil {
			return nil, err
		}
	}
	if err := validateSessionDates(session); err != nil {
		return nil, err
	}
	if req.TemplateID != nil {
		if err := s.checkTemplate(ctx, req.TemplateID); err != nil {
			return nil, err
		}
		session.TemplateID = req.TemplateID
		session.Template = nil
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Session.Update(ctx, session); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "academic_session", EntityID: id, SessionID: id,
			Before: before, After: session,
		})
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, ErrSessionNameExists
		}
		s.logger.Error("更新学期会话失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return s.toSessionResponse(session), nil
}

// ────────────────────── Activate ──────────────────────

// Activate 清除其他会话的激活标记并激活目标会话，两步在同一事务内完成
func (s *sessionService) Activate(ctx context.Context, id string, actor string) error {
	session, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusArchived {
		return ErrSessionArchived
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	txRepo := s.repo.WithTx(tx)

	// 先将所有会话置为非激活
	if err := txRepo.Session.ClearActive(ctx); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("清除激活学期会话失败", zap.Error(err))
		return err
	}

	// ClearActive 可能已递增目标行的 version，重新读取
	if tx != nil {
		if session, err = txRepo.Session.GetByID(ctx, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	session.IsActive = true
	session.Template = nil

	if err := txRepo.Session.Update(ctx, session); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("激活学期会话失败", zap.String("id", id), zap.Error(err))
		return err
	}

	if err := appendAudit(ctx, txRepo, auditRecord{
		Actor: actor, Action: model.AuditActionActivate,
		EntityType: "academic_session", EntityID: id, SessionID: id,
	}); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return err
		}
	}

	s.logger.Info("学期会话已激活", zap.String("id", id), zap.String("actor", actor))
	return nil
}

// ────────────────────── Archive ──────────────────────

func (s *sessionService) Archive(ctx context.Context, id string, actor string) error {
	session, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusArchived {
		return nil
	}

	session.Status = model.SessionStatusArchived
	session.IsActive = false
	session.Template = nil

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Session.Update(ctx, session); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionArchive,
			EntityType: "academic_session", EntityID: id, SessionID: id,
		})
	})
	if err != nil {
		s.logger.Error("归档学期会话失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

// Delete 仅允许删除尚无任何数据的会话
func (s *sessionService) Delete(ctx context.Context, id string, actor string) error {
	session, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	hasData, err := s.repo.Session.HasData(ctx, id)
	if err != nil {
		s.logger.Error("检查学期会话数据失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if hasData {
		return ErrSessionHasData
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Session.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionDelete,
			EntityType: "academic_session", EntityID: id,
			Before: session,
		})
	})
	if err != nil {
		s.logger.Error("删除学期会话失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *sessionService) get(ctx context.Context, id string) (*model.AcademicSession, error) {
	session, err := s.repo.Session.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询学期会话失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return session, nil
}

func (s *sessionService) checkTemplate(ctx context.Context, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := s.repo.Template.GetByID(ctx, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	return nil
}

func validateSessionDates(s *model.AcademicSession) error {
	if !s.EndDate.After(s.StartDate) {
		return ErrSessionDateInvalid
	}
	if s.ExamEndDate.Before(s.ExamStartDate) {
		return ErrSessionDateInvalid
	}
	if s.ExamStartDate.Before(s.StartDate) || s.ExamEndDate.After(s.EndDate) {
		return ErrSessionDateInvalid
	}
	return nil
}

// parseDate 解析 YYYY-MM-DD，统一为 UTC 零点
func parseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return t, nil
}

func (s *sessionService) toSessionResponse(session *model.AcademicSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:              session.SessionID,
		Name:            session.Name,
		StartDate:       model.DateKey(session.StartDate),
		EndDate:         model.DateKey(session.EndDate),
		ExamStartDate:   model.DateKey(session.ExamStartDate),
		ExamEndDate:     model.DateKey(session.ExamEndDate),
		IncludeWeekends: session.IncludeWeekends,
		ExamDays:        len(session.ExamDays()),
		TemplateID:      session.TemplateID,
		IsActive:        session.IsActive,
		Status:          session.Status,
		Version:         session.Version,
		CreatedAt:       session.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       session.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if session.Template != nil {
		resp.Template = toTemplateResponse(session.Template)
	}
	return resp
}
