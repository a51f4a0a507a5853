package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-timetable/internal/model"
	pkgerrors "exam-timetable/pkg/errors"
)

// ConstraintRuleRepository 约束规则目录数据访问接口
type ConstraintRuleRepository interface {
	List(ctx context.Context) ([]model.ConstraintRule, error)
	GetByCode(ctx context.Context, code string) (*model.ConstraintRule, error)
	InsertMissing(ctx context.Context, rules []model.ConstraintRule) (int64, error)
}

type constraintRuleRepo struct {
	db *gorm.DB
}

// NewConstraintRuleRepo 创建 ConstraintRuleRepository 实例
func NewConstraintRuleRepo(db *gorm.DB) ConstraintRuleRepository {
	return &constraintRuleRepo{db: db}
}

func (r *constraintRuleRepo) List(ctx context.Context) ([]model.ConstraintRule, error) {
	var rules []model.ConstraintRule
	err := r.db.WithContext(ctx).Order("code").Find(&rules).Error
	return rules, err
}

func (r *constraintRuleRepo) GetByCode(ctx context.Context, code string) (*model.ConstraintRule, error) {
	var rule model.ConstraintRule
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// InsertMissing 按 code 补齐目录，已存在的条目保持不变
func (r *constraintRuleRepo) InsertMissing(ctx context.Context, rules []model.ConstraintRule) (int64, error) {
	if len(rules) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: columns("code"), DoNothing: true}).
		Create(&rules)
	return result.RowsAffected, result.Error
}

// ════════════════════════════════════════════════════════════
// 约束配置方案
// ════════════════════════════════════════════════════════════

// ConstraintProfileRepository 约束配置方案数据访问接口
type ConstraintProfileRepository interface {
	Create(ctx context.Context, profile *model.ConstraintProfile) error
	GetByID(ctx context.Context, id string) (*model.ConstraintProfile, error)
	GetDefault(ctx context.Context) (*model.ConstraintProfile, error)
	List(ctx context.Context) ([]model.ConstraintProfile, error)
	Update(ctx context.Context, profile *model.ConstraintProfile) error
	Delete(ctx context.Context, id string) error
	ClearDefault(ctx context.Context) error
	ReplaceRules(ctx context.Context, profileID string, rules []model.ConstraintProfileRule) error
}

type constraintProfileRepo struct {
	db *gorm.DB
}

// NewConstraintProfileRepo 创建 ConstraintProfileRepository 实例
func NewConstraintProfileRepo(db *gorm.DB) ConstraintProfileRepository {
	return &constraintProfileRepo{db: db}
}

func (r *constraintProfileRepo) Create(ctx context.Context, profile *model.ConstraintProfile) error {
	return r.db.WithContext(ctx).Omit("Rules").Create(profile).Error
}

func (r *constraintProfileRepo) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Rules").Preload("Rules.Rule")
}

func (r *constraintProfileRepo) GetByID(ctx context.Context, id string) (*model.ConstraintProfile, error) {
	var profile model.ConstraintProfile
	if err := r.preloaded(ctx).Where("profile_id = ?", id).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *constraintProfileRepo) GetDefault(ctx context.Context) (*model.ConstraintProfile, error) {
	var profile model.ConstraintProfile
	if err := r.preloaded(ctx).Where("is_default = ?", true).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *constraintProfileRepo) List(ctx context.Context) ([]model.ConstraintProfile, error) {
	var profiles []model.ConstraintProfile
	err := r.db.WithContext(ctx).Order("name").Find(&profiles).Error
	return profiles, err
}

// Update 带乐观锁的更新（不含规则设置）
func (r *constraintProfileRepo) Update(ctx context.Context, profile *model.ConstraintProfile) error {
	oldVersion := profile.Version
	result := r.db.WithContext(ctx).
		Model(&model.ConstraintProfile{}).
		Where("profile_id = ? AND version = ?", profile.ProfileID, oldVersion).
		Updates(map[string]interface{}{
			"name":        profile.Name,
			"description": profile.Description,
			"is_default":  profile.IsDefault,
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	profile.Version = oldVersion + 1
	return nil
}

func (r *constraintProfileRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("profile_id = ?", id).Delete(&model.ConstraintProfileRule{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("profile_id = ?", id).Delete(&model.ConstraintProfile{}).Error
}

func (r *constraintProfileRepo) ClearDefault(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.ConstraintProfile{}).
		Where("is_default = ?", true).
		Updates(map[string]interface{}{"is_default": false, "version": gorm.Expr("version + 1")}).Error
}

// ReplaceRules 删除方案的全部规则设置后写入新列表（调用方负责事务）
func (r *constraintProfileRepo) ReplaceRules(ctx context.Context, profileID string, rules []model.ConstraintProfileRule) error {
	if err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).Delete(&model.ConstraintProfileRule{}).Error; err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	for i := range rules {
		rules[i].ProfileID = profileID
		rules[i].ProfileRuleID = ""
	}
	return r.db.WithContext(ctx).Omit("Rule").Create(&rules).Error
}

// ════════════════════════════════════════════════════════════
// 系统运行配置
// ════════════════════════════════════════════════════════════

// SystemConfigurationRepository 系统运行配置数据访问接口
type SystemConfigurationRepository interface {
	Create(ctx context.Context, cfg *model.SystemConfiguration) error
	GetByID(ctx context.Context, id string) (*model.SystemConfiguration, error)
	GetDefault(ctx context.Context) (*model.SystemConfiguration, error)
	List(ctx context.Context) ([]model.SystemConfiguration, error)
	Update(ctx context.Context, cfg *model.SystemConfiguration) error
	Delete(ctx context.Context, id string) error
	ClearDefault(ctx context.Context) error
	CountByProfile(ctx context.Context, profileID string) (int64, error)
}

type systemConfigurationRepo struct {
	db *gorm.DB
}

// NewSystemConfigurationRepo 创建 SystemConfigurationRepository 实例
func NewSystemConfigurationRepo(db *gorm.DB) SystemConfigurationRepository {
	return &systemConfigurationRepo{db: db}
}

func (r *systemConfigurationRepo) Create(ctx context.Context, cfg *model.SystemConfiguration) error {
	return r.db.WithContext(ctx).Omit("Profile").Create(cfg).Error
}

func (r *systemConfigurationRepo) GetByID(ctx context.Context, id string) (*model.SystemConfiguration, error) {
	var cfg model.SystemConfiguration
	if err := r.db.WithContext(ctx).Where("configuration_id = ?", id).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *systemConfigurationRepo) GetDefault(ctx context.Context) (*model.SystemConfiguration, error) {
	var cfg model.SystemConfiguration
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *systemConfigurationRepo) List(ctx context.Context) ([]model.SystemConfiguration, error) {
	var cfgs []model.SystemConfiguration
	err := r.db.WithContext(ctx).Order("name").Find(&cfgs).Error
	return cfgs, err
}

// Update 带乐观锁的更新
func (r *systemConfigurationRepo) Update(ctx context.Context, cfg *model.SystemConfiguration) error {
	oldVersion := cfg.Version
	result := r.db.WithContext(ctx).
		Model(&model.SystemConfiguration{}).
		Where("configuration_id = ? AND version = ?", cfg.ConfigurationID, oldVersion).
		Updates(map[string]interface{}{
			"name":          cfg.Name,
			"description":   cfg.Description,
			"profile_id":    cfg.ProfileID,
			"solver_params": cfg.SolverParams,
			"is_default":    cfg.IsDefault,
			"version":       oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	cfg.Version = oldVersion + 1
	return nil
}

func (r *systemConfigurationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("configuration_id = ?", id).Delete(&model.SystemConfiguration{}).Error
}

func (r *systemConfigurationRepo) ClearDefault(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.SystemConfiguration{}).
		Where("is_default = ?", true).
		Updates(map[string]interface{}{"is_default": false, "version": gorm.Expr("version + 1")}).Error
}

func (r *systemConfigurationRepo) CountByProfile(ctx context.Context, profileID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SystemConfiguration{}).Where("profile_id = ?", profileID).Count(&n).Error
	return n, err
}
