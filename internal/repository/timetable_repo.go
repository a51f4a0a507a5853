package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-timetable/internal/model"
	pkgerrors "exam-timetable/pkg/errors"
)

// JobFilter 任务列表筛选条件
type JobFilter struct {
	SessionID string
	Status    string
}

// JobRepository 排考任务数据访问接口
type JobRepository interface {
	Create(ctx context.Context, job *model.TimetableJob) error
	GetByID(ctx context.Context, id string) (*model.TimetableJob, error)
	List(ctx context.Context, filter JobFilter, offset, limit int) ([]model.TimetableJob, int64, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]model.TimetableJob, error)
	Update(ctx context.Context, job *model.TimetableJob) error
}

type jobRepo struct {
	db *gorm.DB
}

// NewJobRepo 创建 JobRepository 实例
func NewJobRepo(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *model.TimetableJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*model.TimetableJob, error) {
	var job model.TimetableJob
	if err := r.db.WithContext(ctx).Where("job_id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List 列表不加载结果载荷
func (r *jobRepo) List(ctx context.Context, filter JobFilter, offset, limit int) ([]model.TimetableJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.TimetableJob{})
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []model.TimetableJob
	err := query.Omit("result_payload").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&jobs).Error
	return jobs, total, err
}

// ListByStatus 用于启动时回收中断的任务
func (r *jobRepo) ListByStatus(ctx context.Context, statuses ...string) ([]model.TimetableJob, error) {
	var jobs []model.TimetableJob
	err := r.db.WithContext(ctx).Omit("result_payload").
		Where("status IN ?", statuses).
		Order("created_at").
		Find(&jobs).Error
	return jobs, err
}

// Update 带乐观锁的整行更新
func (r *jobRepo) Update(ctx context.Context, job *model.TimetableJob) error {
	oldVersion := job.Version
	result := r.db.WithContext(ctx).
		Model(&model.TimetableJob{}).
		Where("job_id = ? AND version = ?", job.JobID, oldVersion).
		Updates(map[string]interface{}{
			"status":         job.Status,
			"can_pause":      job.CanPause,
			"can_resume":     job.CanResume,
			"can_cancel":     job.CanCancel,
			"progress":       job.Progress,
			"phase":          job.Phase,
			"progress_log":   job.ProgressLog,
			"metrics":        job.Metrics,
			"result_payload": job.ResultPayload,
			"error_message":  job.ErrorMessage,
			"started_at":     job.StartedAt,
			"completed_at":   job.CompletedAt,
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	job.Version = oldVersion + 1
	return nil
}

// ════════════════════════════════════════════════════════════
// 版本
// ════════════════════════════════════════════════════════════

// VersionRepository 排考版本数据访问接口
type VersionRepository interface {
	Create(ctx context.Context, version *model.TimetableVersion) error
	GetByID(ctx context.Context, id string) (*model.TimetableVersion, error)
	GetPrimaryByJob(ctx context.Context, jobID string) (*model.TimetableVersion, error)
	GetPublished(ctx context.Context, sessionID string) (*model.TimetableVersion, error)
	ListBySession(ctx context.Context, sessionID string, scenarioID *string) ([]model.TimetableVersion, error)
	MaxVersionNumber(ctx context.Context, sessionID string, scenarioID *string) (int, error)
	UnpublishOthers(ctx context.Context, sessionID, keepVersionID string) (int64, error)
	MarkPublished(ctx context.Context, versionID, actor string, at time.Time) error
	Unpublish(ctx context.Context, versionID string) (int64, error)
	CountPublished(ctx context.Context, sessionID string) (int64, error)
}

type versionRepo struct {
	db *gorm.DB
}

// NewVersionRepo 创建 VersionRepository 实例
func NewVersionRepo(db *gorm.DB) VersionRepository {
	return &versionRepo{db: db}
}

func (r *versionRepo) Create(ctx context.Context, version *model.TimetableVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *versionRepo) GetByID(ctx context.Context, id string) (*model.TimetableVersion, error) {
	var v model.TimetableVersion
	if err := r.db.WithContext(ctx).Where("version_id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepo) GetPrimaryByJob(ctx context.Context, jobID string) (*model.TimetableVersion, error) {
	var v model.TimetableVersion
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND version_type = ?", jobID, model.VersionTypePrimary).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepo) GetPublished(ctx context.Context, sessionID string) (*model.TimetableVersion, error) {
	var v model.TimetableVersion
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_published = ?", sessionID, true).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListBySession scenarioID 为 nil 时返回全部版本
func (r *versionRepo) ListBySession(ctx context.Context, sessionID string, scenarioID *string) ([]model.TimetableVersion, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if scenarioID != nil {
		query = query.Where("scenario_id = ?", *scenarioID)
	}
	var versions []model.TimetableVersion
	err := query.Order("version_number DESC").Find(&versions).Error
	return versions, err
}

// MaxVersionNumber 编号范围：scenarioID 为 nil 时是会话内不属于任何方案的版本，否则为该方案内的版本
func (r *versionRepo) MaxVersionNumber(ctx context.Context, sessionID string, scenarioID *string) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&model.TimetableVersion{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("session_id = ?", sessionID)
	if scenarioID == nil {
		query = query.Where("scenario_id IS NULL")
	} else {
		query = query.Where("scenario_id = ?", *scenarioID)
	}
	var n int
	err := query.Scan(&n).Error
	return n, err
}

// UnpublishOthers 撤下该 session 下除 keepVersionID 外的已发布版本
func (r *versionRepo) UnpublishOthers(ctx context.Context, sessionID, keepVersionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableVersion{}).
		Where("session_id = ? AND is_published = ? AND version_id <> ?", sessionID, true, keepVersionID).
		Updates(map[string]interface{}{"is_published": false})
	return result.RowsAffected, result.Error
}

func (r *versionRepo) MarkPublished(ctx context.Context, versionID, actor string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableVersion{}).
		Where("version_id = ?", versionID).
		Updates(map[string]interface{}{
			"is_published": true,
			"published_at": at,
			"published_by": actor,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *versionRepo) Unpublish(ctx context.Context, versionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableVersion{}).
		Where("version_id = ? AND is_published = ?", versionID, true).
		Updates(map[string]interface{}{"is_published": false})
	return result.RowsAffected, result.Error
}

func (r *versionRepo) CountPublished(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.TimetableVersion{}).
		Where("session_id = ? AND is_published = ?", sessionID, true).
		Count(&n).Error
	return n, err
}

// ════════════════════════════════════════════════════════════
// 方案分支
// ════════════════════════════════════════════════════════════

// ScenarioRepository 方案分支数据访问接口
type ScenarioRepository interface {
	Create(ctx context.Context, scenario *model.TimetableScenario) error
	GetByID(ctx context.Context, id string) (*model.TimetableScenario, error)
	List(ctx context.Context, sessionID string, includeArchived bool) ([]model.TimetableScenario, error)
	Archive(ctx context.Context, id string, at time.Time) (int64, error)
}

type scenarioRepo struct {
	db *gorm.DB
}

// NewScenarioRepo 创建 ScenarioRepository 实例
func NewScenarioRepo(db *gorm.DB) ScenarioRepository {
	return &scenarioRepo{db: db}
}

func (r *scenarioRepo) Create(ctx context.Context, scenario *model.TimetableScenario) error {
	return r.db.WithContext(ctx).Create(scenario).Error
}

func (r *scenarioRepo) GetByID(ctx context.Context, id string) (*model.TimetableScenario, error) {
	var s model.TimetableScenario
	if err := r.db.WithContext(ctx).Where("scenario_id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scenarioRepo) List(ctx context.Context, sessionID string, includeArchived bool) ([]model.TimetableScenario, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}
	var scenarios []model.TimetableScenario
	err := query.Order("created_at").Find(&scenarios).Error
	return scenarios, err
}

// Archive 已归档的方案不会重复更新，返回受影响行数
func (r *scenarioRepo) Archive(ctx context.Context, id string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableScenario{}).
		Where("scenario_id = ? AND is_archived = ?", id, false).
		Updates(map[string]interface{}{"is_archived": true, "archived_at": at})
	return result.RowsAffected, result.Error
}
