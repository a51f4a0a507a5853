package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/solver"
	"exam-timetable/pkg/database"
	pkgerrors "exam-timetable/pkg/errors"
)

// ── 约束配置模块业务错误 ──

var (
	ErrValidation             = errors.New("约束配置校验失败")
	ErrNoDefaultProfile       = errors.New("系统没有默认约束方案")
	ErrNoDefaultConfiguration = errors.New("系统没有默认运行配置")
	ErrProfileNotFound        = errors.New("约束方案不存在")
	ErrProfileNameExists      = errors.New("约束方案名称已存在")
	ErrProfileInUse           = errors.New("约束方案被运行配置引用或为默认方案，不能删除")
	ErrConfigNotFound         = errors.New("运行配置不存在")
	ErrConfigNameExists       = errors.New("运行配置名称已存在")
	ErrConfigIsDefault        = errors.New("默认运行配置不能删除")
)

// ResolvedConstraints 某运行配置解析后的完整规则集
type ResolvedConstraints struct {
	ConfigurationID string
	ProfileID       string
	ProfileName     string
	Rules           []solver.Rule
	Params          solver.Params
	// Substituted 请求的配置缺失或无效，已替换为默认配置
	Substituted bool
	Notes       []string
}

// ConstraintService 约束目录、方案与运行配置
type ConstraintService interface {
	EnsureCatalog(ctx context.Context) error
	ListRules(ctx context.Context) ([]model.ConstraintRule, error)
	Resolve(ctx context.Context, configurationID string) (*ResolvedConstraints, error)

	CreateProfile(ctx context.Context, req *dto.SaveProfileRequest, actor string) (*dto.ProfileResponse, error)
	GetProfile(ctx context.Context, id string) (*dto.ProfileResponse, error)
	ListProfiles(ctx context.Context) ([]dto.ProfileResponse, error)
	SaveProfile(ctx context.Context, id string, req *dto.SaveProfileRequest, actor string) (*dto.ProfileResponse, error)
	DeleteProfile(ctx context.Context, id string, actor string) error
	SetDefaultProfile(ctx context.Context, id string, actor string) error

	CreateConfig(ctx context.Context, req *dto.SystemConfigRequest, actor string) (*dto.SystemConfigResponse, error)
	GetConfig(ctx context.Context, id string) (*dto.SystemConfigResponse, error)
	ListConfigs(ctx context.Context) ([]dto.SystemConfigResponse, error)
	UpdateConfig(ctx context.Context, id string, req *dto.SystemConfigRequest, actor string) (*dto.SystemConfigResponse, error)
	DeleteConfig(ctx context.Context, id string, actor string) error
	SetDefaultConfig(ctx context.Context, id string, actor string) error
}

type constraintService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewConstraintService 创建 ConstraintService 实例
func NewConstraintService(repo *repository.Repository, logger *zap.Logger) ConstraintService {
	return &constraintService{repo: repo, logger: logger}
}

// ════════════════════════════════════════════════════════════
// 目录与解析
// ════════════════════════════════════════════════════════════

// ────────────────────── EnsureCatalog ──────────────────────

// EnsureCatalog 补齐内置规则，并保证存在默认方案与默认运行配置。幂等。
func (s *constraintService) EnsureCatalog(ctx context.Context) error {
	return s.repo.WithinScope(ctx, database.ScopeCatalog, catalogScopeKey, func(tx *repository.Repository) error {
		inserted, err := tx.Rule.InsertMissing(ctx, builtinRules())
		if err != nil {
			return fmt.Errorf("补齐约束目录失败: %w", err)
		}

		profile, err := tx.Profile.GetDefault(ctx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = &model.ConstraintProfile{
				Name:        defaultProfileName,
				Description: "内置默认方案，全部规则沿用目录默认值",
				IsDefault:   true,
				CreatedBy:   "system",
			}
			if err := tx.Profile.Create(ctx, profile); err != nil {
				return fmt.Errorf("创建默认约束方案失败: %w", err)
			}
		} else if err != nil {
			return err
		}

		if _, err := tx.SystemConfig.GetDefault(ctx); errors.Is(err, gorm.ErrRecordNotFound) {
			cfg := &model.SystemConfiguration{
				Name:      defaultConfigurationName,
				ProfileID: &profile.ProfileID,
				SolverParams: datatypes.NewJSONType(model.SolverParams{
					TimeLimitSeconds: defaultSolverTimeLimit,
					Algorithm:        defaultSolverAlgorithm,
					PopulationSize:   defaultSolverPopulation,
				}),
				IsDefault: true,
				CreatedBy: "system",
			}
			if err := tx.SystemConfig.Create(ctx, cfg); err != nil {
				return fmt.Errorf("创建默认运行配置失败: %w", err)
			}
		} else if err != nil {
			return err
		}

		if inserted > 0 {
			s.logger.Info("约束目录已补齐", zap.Int64("inserted", inserted))
		}
		return nil
	})
}

func (s *constraintService) ListRules(ctx context.Context) ([]model.ConstraintRule, error) {
	return s.repo.Rule.List(ctx)
}

// ────────────────────── Resolve ──────────────────────

// Resolve 配置缺失或无效时使用默认配置；配置未指定方案或方案缺失时使用默认方案。
// 参数覆盖按 key 替换目录默认值。
func (s *constraintService) Resolve(ctx context.Context, configurationID string) (*ResolvedConstraints, error) {
	out := &ResolvedConstraints{}

	var cfg *model.SystemConfiguration
	if configurationID != "" {
		found, err := s.repo.SystemConfig.GetByID(ctx, configurationID)
		switch {
		case err == nil:
			cfg = found
		case errors.Is(err, gorm.ErrRecordNotFound):
			out.Substituted = true
			out.Notes = append(out.Notes, fmt.Sprintf("运行配置 %s 不存在，使用默认配置", configurationID))
		default:
			return nil, err
		}
	}
	if cfg == nil {
		def, err := s.repo.SystemConfig.GetDefault(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoDefaultConfiguration
			}
			return nil, err
		}
		cfg = def
	}
	out.ConfigurationID = cfg.ConfigurationID
	params := cfg.SolverParams.Data()
	out.Params = solver.Params{
		TimeLimitSeconds: params.TimeLimitSeconds,
		Algorithm:        params.Algorithm,
		PopulationSize:   params.PopulationSize,
		Extra:            params.Extra,
	}

	profile, err := s.profileFor(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	out.ProfileID = profile.ProfileID
	out.ProfileName = profile.Name

	catalog, err := s.repo.Rule.List(ctx)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]model.ConstraintProfileRule, len(profile.Rules))
	for _, pr := range profile.Rules {
		settings[pr.RuleID] = pr
	}
	out.Rules = make([]solver.Rule, 0, len(catalog))
	for _, rule := range catalog {
		out.Rules = append(out.Rules, effectiveRule(rule, settings[rule.RuleID]))
	}
	return out, nil
}

func (s *constraintService) profileFor(ctx context.Context, cfg *model.SystemConfiguration, out *ResolvedConstraints) (*model.ConstraintProfile, error) {
	if cfg.ProfileID != nil {
		profile, err := s.repo.Profile.GetByID(ctx, *cfg.ProfileID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		out.Notes = append(out.Notes, fmt.Sprintf("约束方案 %s 不存在，使用默认方案", *cfg.ProfileID))
	}
	profile, err := s.repo.Profile.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoDefaultProfile
		}
		return nil, err
	}
	return profile, nil
}

// effectiveRule 目录默认值叠加方案设置
func effectiveRule(rule model.ConstraintRule, setting model.ConstraintProfileRule) solver.Rule {
	out := solver.Rule{
		Code:     rule.Code,
		Name:     rule.Name,
		Type:     rule.RuleType,
		Category: rule.Category,
		Enabled:  rule.EnabledByDefault,
		Weight:   rule.DefaultWeight,
		Params:   make(map[string]any, len(rule.Parameters)),
	}
	defs := make(map[string]model.RuleParameter, len(rule.Parameters))
	for _, p := range rule.Parameters {
		defs[p.Key] = p
		out.Params[p.Key] = normalizeParam(p, p.Default)
	}
	if setting.IsEnabled != nil {
		out.Enabled = *setting.IsEnabled
	}
	if setting.Weight != nil {
		out.Weight = *setting.Weight
	}
	for k, v := range setting.ParameterOverrides {
		if def, ok := defs[k]; ok {
			v = normalizeParam(def, v)
		}
		out.Params[k] = v
	}
	return out
}

// normalizeParam 按参数声明的类型统一取值：整数为 int64，小数为 float64
// 无法转换时原样返回，由求解服务自行报错
func normalizeParam(def model.RuleParameter, v any) any {
	switch def.Type {
	case model.ParamTypeInt:
		if f, ok := toFloat(v); ok {
			return int64(f)
		}
	case model.ParamTypeFloat:
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return v
}

// ════════════════════════════════════════════════════════════
// 约束方案
// ════════════════════════════════════════════════════════════

// ────────────────────── CreateProfile ──────────────────────

func (s *constraintService) CreateProfile(ctx context.Context, req *dto.SaveProfileRequest, actor string) (*dto.ProfileResponse, error) {
	rules, err := s.buildSettings(ctx, req.Rules)
	if err != nil {
		return nil, err
	}
	profile := &model.ConstraintProfile{Name: req.Name, Description: req.Description, CreatedBy: actor}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Profile.Create(ctx, profile); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrProfileNameExists
			}
			return err
		}
		if err := tx.Profile.ReplaceRules(ctx, profile.ProfileID, rules); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "constraint_profile", EntityID: profile.ProfileID,
			After: req,
		})
	})
	if err != nil {
		if !errors.Is(err, ErrProfileNameExists) {
			s.logger.Error("创建约束方案失败", zap.Error(err))
		}
		return nil, err
	}
	return s.GetProfile(ctx, profile.ProfileID)
}

func (s *constraintService) GetProfile(ctx context.Context, id string) (*dto.ProfileResponse, error) {
	profile, err := s.repo.Profile.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	resp := toProfileResponse(profile)
	return &resp, nil
}

func (s *constraintService) ListProfiles(ctx context.Context) ([]dto.ProfileResponse, error) {
	profiles, err := s.repo.Profile.List(ctx)
	if err != nil {
		s.logger.Error("查询约束方案列表失败", zap.Error(err))
		return nil, err
	}
	out := make([]dto.ProfileResponse, 0, len(profiles))
	for i := range profiles {
		out = append(out, toProfileResponse(&profiles[i]))
	}
	return out, nil
}

// ────────────────────── SaveProfile ──────────────────────

// SaveProfile 在一个事务内更新方案并整体替换规则设置
func (s *constraintService) SaveProfile(ctx context.Context, id string, req *dto.SaveProfileRequest, actor string) (*dto.ProfileResponse, error) {
	rules, err := s.buildSettings(ctx, req.Rules)
	if err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		profile, err := tx.Profile.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		if req.Version != 0 && req.Version != profile.Version {
			return pkgerrors.ErrOptimisticLock
		}
		before := toProfileResponse(profile)

		profile.Name = req.Name
		profile.Description = req.Description
		if err := tx.Profile.Update(ctx, profile); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrProfileNameExists
			}
			return err
		}
		if err := tx.Profile.ReplaceRules(ctx, id, rules); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "constraint_profile", EntityID: id,
			Before: before, After: req,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, id)
}

// ────────────────────── DeleteProfile ──────────────────────

func (s *constraintService) DeleteProfile(ctx context.Context, id string, actor string) error {
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		profile, err := tx.Profile.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		if profile.IsDefault {
			return ErrProfileInUse
		}
		n, err := tx.SystemConfig.CountByProfile(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrProfileInUse
		}
		if err := tx.Profile.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionDelete,
			EntityType: "constraint_profile", EntityID: id,
			Before: toProfileResponse(profile),
		})
	})
}

// ────────────────────── SetDefaultProfile ──────────────────────

// SetDefaultProfile 清除其他默认标记与设置新默认在同一事务内完成
func (s *constraintService) SetDefaultProfile(ctx context.Context, id string, actor string) error {
	return s.repo.WithinScope(ctx, database.ScopeCatalog, catalogScopeKey, func(tx *repository.Repository) error {
		if err := tx.Profile.ClearDefault(ctx); err != nil {
			return err
		}
		profile, err := tx.Profile.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		profile.IsDefault = true
		if err := tx.Profile.Update(ctx, profile); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "constraint_profile", EntityID: id,
			Note: "设为默认方案",
		})
	})
}

// buildSettings 校验规则设置并转换为方案规则行
func (s *constraintService) buildSettings(ctx context.Context, reqs []dto.RuleSettingRequest) ([]model.ConstraintProfileRule, error) {
	catalog, err := s.repo.Rule.List(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]model.ConstraintRule, len(catalog))
	for _, r := range catalog {
		byCode[r.Code] = r
	}

	out := make([]model.ConstraintProfileRule, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		rule, ok := byCode[req.RuleCode]
		if !ok {
			return nil, fmt.Errorf("%w: 规则 %q 不存在", ErrValidation, req.RuleCode)
		}
		if seen[req.RuleCode] {
			return nil, fmt.Errorf("%w: 规则 %q 重复设置", ErrValidation, req.RuleCode)
		}
		seen[req.RuleCode] = true

		hasOverride := req.IsEnabled != nil || req.Weight != nil || len(req.Parameters) > 0
		if hasOverride && !rule.IsConfigurable {
			return nil, fmt.Errorf("%w: 规则 %q 不可配置", ErrValidation, req.RuleCode)
		}
		params, err := validateParameters(rule, req.Parameters)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ConstraintProfileRule{
			RuleID:             rule.RuleID,
			IsEnabled:          req.IsEnabled,
			Weight:             req.Weight,
			ParameterOverrides: params,
		})
	}
	return out, nil
}

// validateParameters 参数必须在目录中定义，类型与范围符合定义
func validateParameters(rule model.ConstraintRule, in map[string]any) (datatypes.JSONMap, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(datatypes.JSONMap, len(in))
	for key, v := range in {
		def, ok := rule.Param(key)
		if !ok {
			return nil, fmt.Errorf("%w: 规则 %s 没有参数 %q", ErrValidation, rule.Code, key)
		}
		norm, err := coerceParam(def, v)
		if err != nil {
			return nil, fmt.Errorf("%w: 规则 %s 参数 %q %s", ErrValidation, rule.Code, key, err.Error())
		}
		out[key] = norm
	}
	return out, nil
}

func coerceParam(def model.RuleParameter, v any) (any, error) {
	switch def.Type {
	case model.ParamTypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.New("应为布尔值")
		}
		return b, nil
	case model.ParamTypeString:
		str, ok := v.(string)
		if !ok {
			return nil, errors.New("应为字符串")
		}
		return str, nil
	case model.ParamTypeInt, model.ParamTypeFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, errors.New("应为数值")
		}
		if def.Type == model.ParamTypeInt && f != math.Trunc(f) {
			return nil, errors.New("应为整数")
		}
		if def.Min != nil && f < *def.Min {
			return nil, fmt.Errorf("不能小于 %v", *def.Min)
		}
		if def.Max != nil && f > *def.Max {
			return nil, fmt.Errorf("不能大于 %v", *def.Max)
		}
		if def.Type == model.ParamTypeInt {
			return int64(f), nil
		}
		return f, nil
	default:
		return nil, fmt.Errorf("未知参数类型 %s", def.Type)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toProfileResponse(p *model.ConstraintProfile) dto.ProfileResponse {
	resp := dto.ProfileResponse{
		ID:          p.ProfileID,
		Name:        p.Name,
		Description: p.Description,
		IsDefault:   p.IsDefault,
		Version:     p.Version,
		Rules:       make([]dto.RuleSettingResponse, 0, len(p.Rules)),
	}
	for _, r := range p.Rules {
		code := r.RuleID
		if r.Rule != nil {
			code = r.Rule.Code
		}
		resp.Rules = append(resp.Rules, dto.RuleSettingResponse{
			RuleCode:   code,
			IsEnabled:  r.IsEnabled,
			Weight:     r.Weight,
			Parameters: r.ParameterOverrides,
		})
	}
	sort.Slice(resp.Rules, func(i, j int) bool { return resp.Rules[i].RuleCode < resp.Rules[j].RuleCode })
	return resp
}

// ════════════════════════════════════════════════════════════
// 运行配置
// ════════════════════════════════════════════════════════════

// ────────────────────── CreateConfig ──────────────────────

func (s *constraintService) CreateConfig(ctx context.Context, req *dto.SystemConfigRequest, actor string) (*dto.SystemConfigResponse, error) {
	cfg := &model.SystemConfiguration{
		Name:         req.Name,
		Description:  req.Description,
		ProfileID:    req.ProfileID,
		SolverParams: datatypes.NewJSONType(solverParamsFrom(req)),
		CreatedBy:    actor,
	}
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := checkProfile(ctx, tx, req.ProfileID); err != nil {
			return err
		}
		if err := tx.SystemConfig.Create(ctx, cfg); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrConfigNameExists
			}
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "system_configuration", EntityID: cfg.ConfigurationID,
			After: req,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetConfig(ctx, cfg.ConfigurationID)
}

func (s *constraintService) GetConfig(ctx context.Context, id string) (*dto.SystemConfigResponse, error) {
	cfg, err := s.repo.SystemConfig.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	resp := toSystemConfigResponse(cfg)
	return &resp, nil
}

func (s *constraintService) ListConfigs(ctx context.Context) ([]dto.SystemConfigResponse, error) {
	cfgs, err := s.repo.SystemConfig.List(ctx)
	if err != nil {
		s.logger.Error("查询运行配置列表失败", zap.Error(err))
		return nil, err
	}
	out := make([]dto.SystemConfigResponse, 0, len(cfgs))
	for i := range cfgs {
		out = append(out, toSystemConfigResponse(&cfgs[i]))
	}
	return out, nil
}

// ────────────────────── UpdateConfig ──────────────────────

func (s *constraintService) UpdateConfig(ctx context.Context, id string, req *dto.SystemConfigRequest, actor string) (*dto.SystemConfigResponse, error) {
	var updated *model.SystemConfiguration
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		cfg, err := tx.SystemConfig.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConfigNotFound
			}
			return err
		}
		if req.Version != 0 && req.Version != cfg.Version {
			return pkgerrors.ErrOptimisticLock
		}
		if err := checkProfile(ctx, tx, req.ProfileID); err != nil {
			return err
		}
		before := toSystemConfigResponse(cfg)

		cfg.Name = req.Name
		cfg.Description = req.Description
		cfg.ProfileID = req.ProfileID
		cfg.SolverParams = datatypes.NewJSONType(solverParamsFrom(req))
		if err := tx.SystemConfig.Update(ctx, cfg); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrConfigNameExists
			}
			return err
		}
		updated = cfg
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "system_configuration", EntityID: id,
			Before: before, After: req,
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toSystemConfigResponse(updated)
	return &resp, nil
}

// ────────────────────── DeleteConfig ──────────────────────

func (s *constraintService) DeleteConfig(ctx context.Context, id string, actor string) error {
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		cfg, err := tx.SystemConfig.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConfigNotFound
			}
			return err
		}
		if cfg.IsDefault {
			return ErrConfigIsDefault
		}
		if err := tx.SystemConfig.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionDelete,
			EntityType: "system_configuration", EntityID: id,
			Before: toSystemConfigResponse(cfg),
		})
	})
}

// ────────────────────── SetDefaultConfig ──────────────────────

func (s *constraintService) SetDefaultConfig(ctx context.Context, id string, actor string) error {
	return s.repo.WithinScope(ctx, database.ScopeCatalog, catalogScopeKey, func(tx *repository.Repository) error {
		if err := tx.SystemConfig.ClearDefault(ctx); err != nil {
			return err
		}
		cfg, err := tx.SystemConfig.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConfigNotFound
			}
			return err
		}
		cfg.IsDefault = true
		if err := tx.SystemConfig.Update(ctx, cfg); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "system_configuration", EntityID: id,
			Note: "设为默认运行配置",
		})
	})
}

// ── 内部辅助方法 ──

func checkProfile(ctx context.Context, tx *repository.Repository, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := tx.Profile.GetByID(ctx, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		return err
	}
	return nil
}

func solverParamsFrom(req *dto.SystemConfigRequest) model.SolverParams {
	p := model.SolverParams{
		TimeLimitSeconds: req.TimeLimitSeconds,
		Algorithm:        req.Algorithm,
		PopulationSize:   req.PopulationSize,
		Extra:            req.Extra,
	}
	if p.TimeLimitSeconds == 0 {
		p.TimeLimitSeconds = defaultSolverTimeLimit
	}
	if p.Algorithm == "" {
		p.Algorithm = defaultSolverAlgorithm
	}
	return p
}

func toSystemConfigResponse(c *model.SystemConfiguration) dto.SystemConfigResponse {
	p := c.SolverParams.Data()
	return dto.SystemConfigResponse{
		ID:               c.ConfigurationID,
		Name:             c.Name,
		Description:      c.Description,
		ProfileID:        c.ProfileID,
		TimeLimitSeconds: p.TimeLimitSeconds,
		Algorithm:        p.Algorithm,
		PopulationSize:   p.PopulationSize,
		Extra:            p.Extra,
		IsDefault:        c.IsDefault,
		Version:          c.Version,
	}
}
