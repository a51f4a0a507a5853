package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// ConstraintHandler 约束规则、约束方案与运行配置 HTTP 处理器
type ConstraintHandler struct {
	constraintSvc service.ConstraintService
}

// NewConstraintHandler 创建 ConstraintHandler
func NewConstraintHandler(constraintSvc service.ConstraintService) *ConstraintHandler {
	return &ConstraintHandler{constraintSvc: constraintSvc}
}

// ListRules 约束规则目录
// GET /api/v1/constraint-rules
func (h *ConstraintHandler) ListRules(c *gin.Context) {
	rules, err := h.constraintSvc.ListRules(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": rules})
}

// ── 约束方案 ──

// ListProfiles GET /api/v1/constraint-profiles
func (h *ConstraintHandler) ListProfiles(c *gin.Context) {
	list, err := h.constraintSvc.ListProfiles(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetProfile GET /api/v1/constraint-profiles/:id
func (h *ConstraintHandler) GetProfile(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "约束方案")
	if !ok {
		return
	}

	profile, err := h.constraintSvc.GetProfile(c.Request.Context(), id)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.OK(c, profile)
}

// CreateProfile POST /api/v1/constraint-profiles
func (h *ConstraintHandler) CreateProfile(c *gin.Context) {
	var req dto.SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	profile, err := h.constraintSvc.CreateProfile(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.Created(c, profile)
}

// SaveProfile 整体替换方案的规则设置（乐观锁）
// PUT /api/v1/constraint-profiles/:id
func (h *ConstraintHandler) SaveProfile(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "约束方案")
	if !ok {
		return
	}

	var req dto.SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	profile, err := h.constraintSvc.SaveProfile(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.OK(c, profile)
}

// DeleteProfile DELETE /api/v1/constraint-profiles/:id
func (h *ConstraintHandler) DeleteProfile(c *gin.Context) {
	h.idAction(c, "约束方案", h.constraintSvc.DeleteProfile)
}

// SetDefaultProfile PUT /api/v1/constraint-profiles/:id/default
func (h *ConstraintHandler) SetDefaultProfile(c *gin.Context) {
	h.idAction(c, "约束方案", h.constraintSvc.SetDefaultProfile)
}

// ── 运行配置 ──

// ListConfigs GET /api/v1/system-configs
func (h *ConstraintHandler) ListConfigs(c *gin.Context) {
	list, err := h.constraintSvc.ListConfigs(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetConfig GET /api/v1/system-configs/:id
func (h *ConstraintHandler) GetConfig(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "运行配置")
	if !ok {
		return
	}

	cfg, err := h.constraintSvc.GetConfig(c.Request.Context(), id)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.OK(c, cfg)
}

// CreateConfig POST /api/v1/system-configs
func (h *ConstraintHandler) CreateConfig(c *gin.Context) {
	var req dto.SystemConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cfg, err := h.constraintSvc.CreateConfig(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.Created(c, cfg)
}

// UpdateConfig PUT /api/v1/system-configs/:id
func (h *ConstraintHandler) UpdateConfig(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "运行配置")
	if !ok {
		return
	}

	var req dto.SystemConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cfg, err := h.constraintSvc.UpdateConfig(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.OK(c, cfg)
}

// DeleteConfig DELETE /api/v1/system-configs/:id
func (h *ConstraintHandler) DeleteConfig(c *gin.Context) {
	h.idAction(c, "运行配置", h.constraintSvc.DeleteConfig)
}

// SetDefaultConfig PUT /api/v1/system-configs/:id/default
func (h *ConstraintHandler) SetDefaultConfig(c *gin.Context) {
	h.idAction(c, "运行配置", h.constraintSvc.SetDefaultConfig)
}

func (h *ConstraintHandler) idAction(c *gin.Context, label string, fn func(ctx context.Context, id, actor string) error) {
	id, ok := MustGetUUIDParam(c, "id", label)
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id, callerID); err != nil {
		h.handleConstraintError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleConstraintError 统一处理约束配置业务错误
func (h *ConstraintHandler) handleConstraintError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, 23001, err.Error())
	case errors.Is(err, service.ErrProfileNotFound):
		response.NotFound(c, 23002, "约束方案不存在")
	case errors.Is(err, service.ErrProfileNameExists):
		response.Conflict(c, 23003, "约束方案名称已存在")
	case errors.Is(err, service.ErrProfileInUse):
		response.Conflict(c, 23004, err.Error())
	case errors.Is(err, service.ErrConfigNotFound):
		response.NotFound(c, 23005, "运行配置不存在")
	case errors.Is(err, service.ErrConfigNameExists):
		response.Conflict(c, 23006, "运行配置名称已存在")
	case errors.Is(err, service.ErrConfigIsDefault):
		response.Conflict(c, 23007, "默认运行配置不能删除")
	case errors.Is(err, service.ErrNoDefaultProfile), errors.Is(err, service.ErrNoDefaultConfiguration):
		response.Conflict(c, 23008, err.Error())
	default:
		handleCommonError(c, err)
	}
}
