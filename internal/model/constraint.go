package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 规则类型
const (
	RuleTypeHard = "hard"
	RuleTypeSoft = "soft"
)

// 参数类型
const (
	ParamTypeInt    = "int"
	ParamTypeFloat  = "float"
	ParamTypeBool   = "bool"
	ParamTypeString = "string"
)

// RuleParameter 规则参数定义
type RuleParameter struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"` // int | float | bool | string
	Default     any      `json:"default"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ConstraintRule 约束规则目录 — 对应 constraint_rules
// 目录条目写入后只读，由 EnsureCatalog 按 code 补齐
type ConstraintRule struct {
	RuleID             string                             `gorm:"type:uuid;primaryKey"                                   json:"rule_id"`
	Code               string                             `gorm:"type:varchar(60);not null;uniqueIndex:uq_rules_code"   json:"code"`
	Name               string                             `gorm:"type:varchar(200);not null"                             json:"name"`
	Description        string                             `gorm:"type:varchar(1000)"                                     json:"description,omitempty"`
	RuleType           string                             `gorm:"type:varchar(10);not null"                              json:"rule_type"`
	Category           string                             `gorm:"type:varchar(50);not null"                              json:"category"`
	DefaultWeight      float64                            `gorm:"not null"                                               json:"default_weight"`
	EnabledByDefault   bool                               `gorm:"not null"                                               json:"is_enabled_by_default"`
	IsConfigurable     bool                               `gorm:"not null"                                               json:"is_configurable"`
	Parameters         datatypes.JSONSlice[RuleParameter] `gorm:"not null"                                               json:"parameters"`
	BaseModel
}

func (ConstraintRule) TableName() string { return "constraint_rules" }

func (r *ConstraintRule) BeforeCreate(*gorm.DB) error {
	ensureID(&r.RuleID)
	return nil
}

// Param 按 key 查找参数定义
func (r *ConstraintRule) Param(key string) (RuleParameter, bool) {
	for _, p := range r.Parameters {
		if p.Key == key {
			return p, true
		}
	}
	return RuleParameter{}, false
}

// ConstraintProfile 约束配置方案 — 对应 constraint_profiles
// 全系统至多一个 is_default = true
type ConstraintProfile struct {
	ProfileID   string `gorm:"type:uuid;primaryKey"                                      json:"profile_id"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:uq_profiles_name"  json:"name"`
	Description string `gorm:"type:varchar(500)"                                         json:"description,omitempty"`
	IsDefault   bool   `gorm:"not null;default:false"                                    json:"is_default"`
	CreatedBy   string `gorm:"type:varchar(100)"                                         json:"created_by,omitempty"`
	VersionedModel

	Rules []ConstraintProfileRule `gorm:"foreignKey:ProfileID" json:"rules,omitempty"`
}

func (ConstraintProfile) TableName() string { return "constraint_profiles" }

func (p *ConstraintProfile) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ProfileID)
	return nil
}

// ConstraintProfileRule 方案内的单条规则设置 — 对应 constraint_profile_rules
// is_enabled / weight 为空表示沿用目录默认值
type ConstraintProfileRule struct {
	ProfileRuleID      string            `gorm:"type:uuid;primaryKey"                               json:"profile_rule_id"`
	ProfileID          string            `gorm:"type:uuid;not null;uniqueIndex:uq_profile_rules"   json:"profile_id"`
	RuleID             string            `gorm:"type:uuid;not null;uniqueIndex:uq_profile_rules"   json:"rule_id"`
	IsEnabled          *bool             `json:"is_enabled,omitempty"`
	Weight             *float64          `json:"weight,omitempty"`
	ParameterOverrides datatypes.JSONMap `json:"parameter_overrides,omitempty"`

	Rule *ConstraintRule `gorm:"foreignKey:RuleID;references:RuleID" json:"rule,omitempty"`
}

func (ConstraintProfileRule) TableName() string { return "constraint_profile_rules" }

func (r *ConstraintProfileRule) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ProfileRuleID)
	return nil
}

// SolverParams 求解器运行参数；Extra 承载未建模的扩展字段
type SolverParams struct {
	TimeLimitSeconds int            `json:"time_limit_seconds"`
	Algorithm        string         `json:"algorithm"`
	PopulationSize   int            `json:"population_size,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// SystemConfiguration 系统运行配置 — 对应 system_configurations
// 启动排考任务时选择的单元：方案 + 求解参数
type SystemConfiguration struct {
	ConfigurationID string                           `gorm:"type:uuid;primaryKey"                                    json:"configuration_id"`
	Name            string                           `gorm:"type:varchar(100);not null;uniqueIndex:uq_sysconf_name" json:"name"`
	Description     string                           `gorm:"type:varchar(500)"                                       json:"description,omitempty"`
	ProfileID       *string                          `gorm:"type:uuid"                                               json:"profile_id,omitempty"`
	SolverParams    datatypes.JSONType[SolverParams] `gorm:"not null"                                                json:"solver_params"`
	IsDefault       bool                             `gorm:"not null;default:false"                                  json:"is_default"`
	CreatedBy       string                           `gorm:"type:varchar(100)"                                       json:"created_by,omitempty"`
	VersionedModel

	Profile *ConstraintProfile `gorm:"foreignKey:ProfileID;references:ProfileID" json:"profile,omitempty"`
}

func (SystemConfiguration) TableName() string { return "system_configurations" }

func (c *SystemConfiguration) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ConfigurationID)
	return nil
}
