package repository

import (
	"context"

	"gorm.io/gorm"

	"exam-timetable/internal/model"
)

// StagingRepository 暂存区数据访问接口
type StagingRepository interface {
	BatchCreate(ctx context.Context, records []model.StagingRecord) error
	ListByKind(ctx context.Context, sessionID, kind string) ([]model.StagingRecord, error)
	CountByKind(ctx context.Context, sessionID string) (map[string]int64, error)
	DeleteByKind(ctx context.Context, sessionID, kind string) (int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

type stagingRepo struct {
	db        *gorm.DB
	batchSize int
}

// NewStagingRepo 创建 StagingRepository 实例
func NewStagingRepo(db *gorm.DB, batchSize int) StagingRepository {
	return &stagingRepo{db: db, batchSize: batchSize}
}

func (r *stagingRepo) BatchCreate(ctx context.Context, records []model.StagingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&records, r.batchSize).Error
}

// ListByKind 按写入顺序返回某种类的全部暂存行
func (r *stagingRepo) ListByKind(ctx context.Context, sessionID, kind string) ([]model.StagingRecord, error) {
	var records []model.StagingRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND entity_kind = ?", sessionID, kind).
		Order("created_at, record_id").
		Find(&records).Error
	return records, err
}

func (r *stagingRepo) CountByKind(ctx context.Context, sessionID string) (map[string]int64, error) {
	var rows []struct {
		EntityKind string
		N          int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.StagingRecord{}).
		Select("entity_kind, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("entity_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.EntityKind] = row.N
	}
	return out, nil
}

func (r *stagingRepo) DeleteByKind(ctx context.Context, sessionID, kind string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id = ? AND entity_kind = ?", sessionID, kind).
		Delete(&model.StagingRecord{})
	return result.RowsAffected, result.Error
}

func (r *stagingRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.StagingRecord{})
	return result.RowsAffected, result.Error
}

// ════════════════════════════════════════════════════════════
// ETL 运行记录
// ════════════════════════════════════════════════════════════

// EtlRunRepository ETL 运行记录数据访问接口
type EtlRunRepository interface {
	Create(ctx context.Context, run *model.EtlRun) error
	Update(ctx context.Context, run *model.EtlRun) error
	GetByID(ctx context.Context, id string) (*model.EtlRun, error)
	ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]model.EtlRun, int64, error)
}

type etlRunRepo struct {
	db *gorm.DB
}

// NewEtlRunRepo 创建 EtlRunRepository 实例
func NewEtlRunRepo(db *gorm.DB) EtlRunRepository {
	return &etlRunRepo{db: db}
}

func (r *etlRunRepo) Create(ctx context.Context, run *model.EtlRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *etlRunRepo) Update(ctx context.Context, run *model.EtlRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *etlRunRepo) GetByID(ctx context.Context, id string) (*model.EtlRun, error) {
	var run model.EtlRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *etlRunRepo) ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]model.EtlRun, int64, error) {
	var (
		runs  []model.EtlRun
		total int64
	)
	q := r.db.WithContext(ctx).Model(&model.EtlRun{}).Where("session_id = ?", sessionID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	return runs, total, err
}
