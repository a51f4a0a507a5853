package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	pkgerrors "exam-timetable/pkg/errors"
)

// ── 时段模板模块业务错误 ──

var (
	ErrTemplateInUse      = errors.New("时段模板仍被学期会话引用")
	ErrTemplateNameExists = errors.New("时段模板名称已存在")
	ErrPeriodTimeInvalid  = errors.New("时段结束时间必须晚于开始时间")
	ErrPeriodsOverlap     = errors.New("时段之间不能重叠，且须按时间先后排列")
)

// TimeSlotService 考试时段模板业务接口
type TimeSlotService interface {
	Create(ctx context.Context, req *dto.CreateTemplateRequest, actor string) (*dto.TemplateResponse, error)
	GetByID(ctx context.Context, id string) (*dto.TemplateResponse, error)
	List(ctx context.Context) ([]dto.TemplateResponse, error)
	ReplacePeriods(ctx context.Context, id string, req *dto.ReplacePeriodsRequest, actor string) (*dto.TemplateResponse, error)
	Delete(ctx context.Context, id string, actor string) error
}

type timeSlotService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewTimeSlotService 创建 TimeSlotService 实例
func NewTimeSlotService(repo *repository.Repository, logger *zap.Logger) TimeSlotService {
	return &timeSlotService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *timeSlotService) Create(ctx context.Context, req *dto.CreateTemplateRequest, actor string) (*dto.TemplateResponse, error) {
	periods, err := buildPeriods(req.Periods)
	if err != nil {
		return nil, err
	}

	tpl := &model.TimeSlotTemplate{Name: req.Name, Description: req.Description}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Template.Create(ctx, tpl); err != nil {
			return err
		}
		if err := tx.Template.ReplacePeriods(ctx, tpl.TemplateID, periods); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "time_slot_template", EntityID: tpl.TemplateID,
			After: req,
		})
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, ErrTemplateNameExists
		}
		s.logger.Error("创建时段模板失败", zap.Error(err))
		return nil, err
	}

	tpl.Periods = periods
	return toTemplateResponse(tpl), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *timeSlotService) GetByID(ctx context.Context, id string) (*dto.TemplateResponse, error) {
	tpl, err := s.repo.Template.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		s.logger.Error("查询时段模板失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return toTemplateResponse(tpl), nil
}

// ────────────────────── List ──────────────────────

func (s *timeSlotService) List(ctx context.Context) ([]dto.TemplateResponse, error) {
	tpls, err := s.repo.Template.List(ctx)
	if err != nil {
		s.logger.Error("列出时段模板失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.TemplateResponse, 0, len(tpls))
	for i := range tpls {
		result = append(result, *toTemplateResponse(&tpls[i]))
	}
	return result, nil
}

// ────────────────────── ReplacePeriods ──────────────────────

func (s *timeSlotService) ReplacePeriods(ctx context.Context, id string, req *dto.ReplacePeriodsRequest, actor string) (*dto.TemplateResponse, error) {
	tpl, err := s.repo.Template.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	periods, err := buildPeriods(req.Periods)
	if err != nil {
		return nil, err
	}
	before := toTemplateResponse(tpl)

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Template.ReplacePeriods(ctx, id, periods); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "time_slot_template", EntityID: id,
			Before: before, After: req,
		})
	})
	if err != nil {
		s.logger.Error("替换模板时段失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	tpl.Periods = periods
	return toTemplateResponse(tpl), nil
}

// ────────────────────── Delete ──────────────────────

func (s *timeSlotService) Delete(ctx context.Context, id string, actor string) error {
	if _, err := s.repo.Template.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	n, err := s.repo.Template.CountSessionsUsing(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrTemplateInUse
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Template.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionDelete,
			EntityType: "time_slot_template", EntityID: id,
		})
	})
	if err != nil {
		s.logger.Error("删除时段模板失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

// buildPeriods 按请求顺序编号；时段须严格递增且互不重叠
func buildPeriods(reqs []dto.PeriodRequest) ([]model.TimeSlotPeriod, error) {
	periods := make([]model.TimeSlotPeriod, 0, len(reqs))
	prevEnd := ""
	for i, p := range reqs {
		if p.EndTime <= p.StartTime {
			return nil, ErrPeriodTimeInvalid
		}
		if prevEnd != "" && p.StartTime < prevEnd {
			return nil, ErrPeriodsOverlap
		}
		prevEnd = p.EndTime
		periods = append(periods, model.TimeSlotPeriod{
			PeriodIndex: i,
			Name:        p.Name,
			StartTime:   p.StartTime,
			EndTime:     p.EndTime,
		})
	}
	return periods, nil
}

func toTemplateResponse(tpl *model.TimeSlotTemplate) *dto.TemplateResponse {
	resp := &dto.TemplateResponse{
		ID:          tpl.TemplateID,
		Name:        tpl.Name,
		Description: tpl.Description,
		Periods:     make([]dto.PeriodResponse, 0, len(tpl.Periods)),
	}
	for _, p := range tpl.Periods {
		resp.Periods = append(resp.Periods, dto.PeriodResponse{
			Index:     p.PeriodIndex,
			Name:      p.Name,
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
		})
	}
	return resp
}
