package dto

// ── 约束配置模块 DTO ──

// RuleSettingRequest 方案中单条规则的设置；字段为空表示沿用目录默认
type RuleSettingRequest struct {
	RuleCode   string         `json:"rule_code"  binding:"required,max=60"`
	IsEnabled  *bool          `json:"is_enabled"`
	Weight     *float64       `json:"weight"     binding:"omitempty,gte=0"`
	Parameters map[string]any `json:"parameters"`
}

// SaveProfileRequest 创建或整体保存约束方案
type SaveProfileRequest struct {
	Name        string               `json:"name"        binding:"required,min=2,max=100"`
	Description string               `json:"description" binding:"max=1000"`
	Rules       []RuleSettingRequest `json:"rules"       binding:"dive"`
	Version     int                  `json:"version"` // 更新时必填
}

// ProfileResponse 约束方案响应
type ProfileResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	IsDefault   bool                  `json:"is_default"`
	Version     int                   `json:"version"`
	Rules       []RuleSettingResponse `json:"rules"`
}

// RuleSettingResponse 方案规则设置响应
type RuleSettingResponse struct {
	RuleCode   string         `json:"rule_code"`
	IsEnabled  *bool          `json:"is_enabled,omitempty"`
	Weight     *float64       `json:"weight,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// SystemConfigRequest 创建或更新系统运行配置
type SystemConfigRequest struct {
	Name             string         `json:"name"               binding:"required,min=2,max=100"`
	Description      string         `json:"description"        binding:"max=1000"`
	ProfileID        *string        `json:"profile_id"         binding:"omitempty,uuid"`
	TimeLimitSeconds int            `json:"time_limit_seconds" binding:"omitempty,min=1,max=86400"`
	Algorithm        string         `json:"algorithm"          binding:"omitempty,max=50"`
	PopulationSize   int            `json:"population_size"    binding:"omitempty,min=1"`
	Extra            map[string]any `json:"extra"`
	Version          int            `json:"version"`
}

// SystemConfigResponse 系统运行配置响应
type SystemConfigResponse struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	ProfileID        *string        `json:"profile_id,omitempty"`
	TimeLimitSeconds int            `json:"time_limit_seconds"`
	Algorithm        string         `json:"algorithm"`
	PopulationSize   int            `json:"population_size,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
	IsDefault        bool           `json:"is_default"`
	Version          int            `json:"version"`
}
