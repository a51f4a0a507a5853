package repository

import (
	"context"

	"gorm.io/gorm"

	"exam-timetable/internal/model"
)

// AssignmentRepository 考试安排与监考安排数据访问接口
type AssignmentRepository interface {
	BatchCreate(ctx context.Context, assignments []model.TimetableAssignment) error
	BatchCreateInvigilators(ctx context.Context, invigilators []model.TimetableInvigilator) error
	ListByVersion(ctx context.Context, versionID string) ([]model.TimetableAssignment, error)
	ListByExam(ctx context.Context, versionID, examID string) ([]model.TimetableAssignment, error)
	GetByID(ctx context.Context, id string) (*model.TimetableAssignment, error)
	Update(ctx context.Context, assignment *model.TimetableAssignment) error
	CountByVersion(ctx context.Context, versionID string) (int64, error)
	ListInvigilatorsByVersion(ctx context.Context, versionID string) ([]model.TimetableInvigilator, error)
	DeleteInvigilatorsByAssignment(ctx context.Context, assignmentID string) error
}

type assignmentRepo struct {
	db        *gorm.DB
	batchSize int
}

// NewAssignmentRepo 创建 AssignmentRepository 实例
func NewAssignmentRepo(db *gorm.DB, batchSize int) AssignmentRepository {
	return &assignmentRepo{db: db, batchSize: batchSize}
}

// BatchCreate 监考安排单独写入
func (r *assignmentRepo) BatchCreate(ctx context.Context, assignments []model.TimetableAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Invigilators").CreateInBatches(&assignments, r.batchSize).Error
}

func (r *assignmentRepo) BatchCreateInvigilators(ctx context.Context, invigilators []model.TimetableInvigilator) error {
	if len(invigilators) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&invigilators, r.batchSize).Error
}

func (r *assignmentRepo) ListByVersion(ctx context.Context, versionID string) ([]model.TimetableAssignment, error) {
	var assignments []model.TimetableAssignment
	err := r.db.WithContext(ctx).
		Preload("Invigilators", func(db *gorm.DB) *gorm.DB { return db.Order("role, staff_id") }).
		Where("version_id = ?", versionID).
		Order("exam_date, period_index, room_id").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepo) ListByExam(ctx context.Context, versionID, examID string) ([]model.TimetableAssignment, error) {
	var assignments []model.TimetableAssignment
	err := r.db.WithContext(ctx).
		Preload("Invigilators").
		Where("version_id = ? AND exam_id = ?", versionID, examID).
		Order("room_id").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*model.TimetableAssignment, error) {
	var a model.TimetableAssignment
	if err := r.db.WithContext(ctx).Preload("Invigilators").Where("assignment_id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// Update 只更新安排本身的位置字段
func (r *assignmentRepo) Update(ctx context.Context, assignment *model.TimetableAssignment) error {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableAssignment{}).
		Where("assignment_id = ?", assignment.AssignmentID).
		Updates(map[string]interface{}{
			"room_id":            assignment.RoomID,
			"exam_date":          assignment.ExamDate,
			"period_index":       assignment.PeriodIndex,
			"allocated_capacity": assignment.AllocatedCapacity,
			"is_confirmed":       assignment.IsConfirmed,
			"notes":              assignment.Notes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assignmentRepo) CountByVersion(ctx context.Context, versionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TimetableAssignment{}).Where("version_id = ?", versionID).Count(&n).Error
	return n, err
}

func (r *assignmentRepo) ListInvigilatorsByVersion(ctx context.Context, versionID string) ([]model.TimetableInvigilator, error) {
	var invigilators []model.TimetableInvigilator
	err := r.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("assignment_id, role, staff_id").
		Find(&invigilators).Error
	return invigilators, err
}

func (r *assignmentRepo) DeleteInvigilatorsByAssignment(ctx context.Context, assignmentID string) error {
	return r.db.WithContext(ctx).Where("assignment_id = ?", assignmentID).Delete(&model.TimetableInvigilator{}).Error
}

// ════════════════════════════════════════════════════════════
// 人工锁定
// ════════════════════════════════════════════════════════════

// ExamLockRepository 人工锁定数据访问接口
type ExamLockRepository interface {
	Create(ctx context.Context, lock *model.ExamLock) error
	GetByID(ctx context.Context, id string) (*model.ExamLock, error)
	List(ctx context.Context, sessionID string) ([]model.ExamLock, error)
	ListActive(ctx context.Context, sessionID string, scenarioID *string) ([]model.ExamLock, error)
	Deactivate(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type examLockRepo struct {
	db *gorm.DB
}

// NewExamLockRepo 创建 ExamLockRepository 实例
func NewExamLockRepo(db *gorm.DB) ExamLockRepository {
	return &examLockRepo{db: db}
}

func (r *examLockRepo) Create(ctx context.Context, lock *model.ExamLock) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

func (r *examLockRepo) GetByID(ctx context.Context, id string) (*model.ExamLock, error) {
	var l model.ExamLock
	if err := r.db.WithContext(ctx).Where("lock_id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *examLockRepo) List(ctx context.Context, sessionID string) ([]model.ExamLock, error) {
	var locks []model.ExamLock
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at").Find(&locks).Error
	return locks, err
}

// ListActive 返回对 session 整体生效的锁定，以及指定方案的锁定
func (r *examLockRepo) ListActive(ctx context.Context, sessionID string, scenarioID *string) ([]model.ExamLock, error) {
	query := r.db.WithContext(ctx).Where("session_id = ? AND is_active = ?", sessionID, true)
	if scenarioID != nil {
		query = query.Where("scenario_id IS NULL OR scenario_id = ?", *scenarioID)
	} else {
		query = query.Where("scenario_id IS NULL")
	}
	var locks []model.ExamLock
	err := query.Order("exam_id").Find(&locks).Error
	return locks, err
}

func (r *examLockRepo) Deactivate(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ExamLock{}).
		Where("lock_id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false})
	return result.RowsAffected, result.Error
}

func (r *examLockRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("lock_id = ?", id).Delete(&model.ExamLock{}).Error
}

// ════════════════════════════════════════════════════════════
// 冲突
// ════════════════════════════════════════════════════════════

// ConflictRepository 冲突记录数据访问接口
type ConflictRepository interface {
	DeleteByVersion(ctx context.Context, versionID string) (int64, error)
	BatchCreate(ctx context.Context, conflicts []model.TimetableConflict) error
	ListByVersion(ctx context.Context, versionID, conflictType string) ([]model.TimetableConflict, error)
	CountByType(ctx context.Context, versionID string) (map[string]int64, error)
}

type conflictRepo struct {
	db        *gorm.DB
	batchSize int
}

// NewConflictRepo 创建 ConflictRepository 实例
func NewConflictRepo(db *gorm.DB, batchSize int) ConflictRepository {
	return &conflictRepo{db: db, batchSize: batchSize}
}

func (r *conflictRepo) DeleteByVersion(ctx context.Context, versionID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("version_id = ?", versionID).Delete(&model.TimetableConflict{})
	return result.RowsAffected, result.Error
}

func (r *conflictRepo) BatchCreate(ctx context.Context, conflicts []model.TimetableConflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&conflicts, r.batchSize).Error
}

// ListByVersion conflictType 为空时不过滤
func (r *conflictRepo) ListByVersion(ctx context.Context, versionID, conflictType string) ([]model.TimetableConflict, error) {
	query := r.db.WithContext(ctx).Where("version_id = ?", versionID)
	if conflictType != "" {
		query = query.Where("conflict_type = ?", conflictType)
	}
	var conflicts []model.TimetableConflict
	err := query.Order("conflict_type, fingerprint").Find(&conflicts).Error
	return conflicts, err
}

func (r *conflictRepo) CountByType(ctx context.Context, versionID string) (map[string]int64, error) {
	var rows []struct {
		ConflictType string
		N            int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.TimetableConflict{}).
		Select("conflict_type, COUNT(*) AS n").
		Where("version_id = ?", versionID).
		Group("conflict_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ConflictType] = row.N
	}
	return out, nil
}
