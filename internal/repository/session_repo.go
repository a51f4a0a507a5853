package repository

import (
	"context"

	"gorm.io/gorm"

	"exam-timetable/internal/model"
	pkgerrors "exam-timetable/pkg/errors"
)

// SessionRepository 学期会话数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, session *model.AcademicSession) error
	GetByID(ctx context.Context, id string) (*model.AcademicSession, error)
	GetActive(ctx context.Context) (*model.AcademicSession, error)
	List(ctx context.Context, includeArchived bool) ([]model.AcademicSession, error)
	Update(ctx context.Context, session *model.AcademicSession) error
	Delete(ctx context.Context, id string) error
	ClearActive(ctx context.Context) error
	CountActive(ctx context.Context) (int64, error)
	HasData(ctx context.Context, id string) (bool, error)
}

type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo 创建 SessionRepository 实例
func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.AcademicSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.AcademicSession, error) {
	var session model.AcademicSession
	err := r.db.WithContext(ctx).
		Preload("Template").
		Preload("Template.Periods", func(db *gorm.DB) *gorm.DB { return db.Order("period_index") }).
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetActive(ctx context.Context) (*model.AcademicSession, error) {
	var session model.AcademicSession
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) List(ctx context.Context, includeArchived bool) ([]model.AcademicSession, error) {
	var sessions []model.AcademicSession
	q := r.db.WithContext(ctx)
	if !includeArchived {
		q = q.Where("status <> ?", model.SessionStatusArchived)
	}
	err := q.Order("exam_start_date DESC").Find(&sessions).Error
	return sessions, err
}

// Update 带乐观锁的更新
func (r *sessionRepo) Update(ctx context.Context, session *model.AcademicSession) error {
	oldVersion := session.Version
	result := r.db.WithContext(ctx).
		Model(&model.AcademicSession{}).
		Where("session_id = ? AND version = ?", session.SessionID, oldVersion).
		Updates(map[string]interface{}{
			"name":             session.Name,
			"start_date":       session.StartDate,
			"end_date":         session.EndDate,
			"exam_start_date":  session.ExamStartDate,
			"exam_end_date":    session.ExamEndDate,
			"include_weekends": session.IncludeWeekends,
			"template_id":      session.TemplateID,
			"is_active":        session.IsActive,
			"status":           session.Status,
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	session.Version = oldVersion + 1
	return nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", id).
		Delete(&model.AcademicSession{}).Error
}

// ClearActive 将所有会话的 is_active 设为 false
func (r *sessionRepo) ClearActive(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.AcademicSession{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active": false,
			"version":   gorm.Expr("version + 1"),
		}).Error
}

func (r *sessionRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.AcademicSession{}).
		Where("is_active = ?", true).
		Count(&n).Error
	return n, err
}

// HasData 会话下是否已有暂存、生产或排考数据
func (r *sessionRepo) HasData(ctx context.Context, id string) (bool, error) {
	tables := []interface{}{
		&model.StagingRecord{},
		&model.Faculty{},
		&model.Building{},
		&model.Course{},
		&model.Student{},
		&model.Staff{},
		&model.TimetableJob{},
		&model.EtlRun{},
	}
	for _, t := range tables {
		var n int64
		if err := r.db.WithContext(ctx).Model(t).Where("session_id = ?", id).Limit(1).Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// ════════════════════════════════════════════════════════════
// 时段模板
// ════════════════════════════════════════════════════════════

// TimeSlotTemplateRepository 考试时段模板数据访问接口
type TimeSlotTemplateRepository interface {
	Create(ctx context.Context, tpl *model.TimeSlotTemplate) error
	GetByID(ctx context.Context, id string) (*model.TimeSlotTemplate, error)
	List(ctx context.Context) ([]model.TimeSlotTemplate, error)
	Delete(ctx context.Context, id string) error
	ReplacePeriods(ctx context.Context, templateID string, periods []model.TimeSlotPeriod) error
	CountSessionsUsing(ctx context.Context, templateID string) (int64, error)
}

type timeSlotTemplateRepo struct {
	db *gorm.DB
}

// NewTimeSlotTemplateRepo 创建 TimeSlotTemplateRepository 实例
func NewTimeSlotTemplateRepo(db *gorm.DB) TimeSlotTemplateRepository {
	return &timeSlotTemplateRepo{db: db}
}

func (r *timeSlotTemplateRepo) Create(ctx context.Context, tpl *model.TimeSlotTemplate) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}

func (r *timeSlotTemplateRepo) GetByID(ctx context.Context, id string) (*model.TimeSlotTemplate, error) {
	var tpl model.TimeSlotTemplate
	err := r.db.WithContext(ctx).
		Preload("Periods", func(db *gorm.DB) *gorm.DB { return db.Order("period_index") }).
		Where("template_id = ?", id).
		First(&tpl).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *timeSlotTemplateRepo) List(ctx context.Context) ([]model.TimeSlotTemplate, error) {
	var tpls []model.TimeSlotTemplate
	err := r.db.WithContext(ctx).
		Preload("Periods", func(db *gorm.DB) *gorm.DB { return db.Order("period_index") }).
		Order("name").
		Find(&tpls).Error
	return tpls, err
}

func (r *timeSlotTemplateRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("template_id = ?", id).Delete(&model.TimeSlotPeriod{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("template_id = ?", id).Delete(&model.TimeSlotTemplate{}).Error
}

// ReplacePeriods 整体替换模板的时段（调用方负责事务）
func (r *timeSlotTemplateRepo) ReplacePeriods(ctx context.Context, templateID string, periods []model.TimeSlotPeriod) error {
	if err := r.db.WithContext(ctx).Where("template_id = ?", templateID).Delete(&model.TimeSlotPeriod{}).Error; err != nil {
		return err
	}
	if len(periods) == 0 {
		return nil
	}
	for i := range periods {
		periods[i].TemplateID = templateID
	}
	return r.db.WithContext(ctx).Create(&periods).Error
}

func (r *timeSlotTemplateRepo) CountSessionsUsing(ctx context.Context, templateID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.AcademicSession{}).
		Where("template_id = ?", templateID).
		Count(&n).Error
	return n, err
}
