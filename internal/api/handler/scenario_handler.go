package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// ScenarioHandler 方案分支、草稿调整与人工锁定 HTTP 处理器
type ScenarioHandler struct {
	scenarioSvc service.ScenarioService
}

// NewScenarioHandler 创建 ScenarioHandler
func NewScenarioHandler(scenarioSvc service.ScenarioService) *ScenarioHandler {
	return &ScenarioHandler{scenarioSvc: scenarioSvc}
}

// BranchScenario 从某版本创建方案分支并复制全部考场安排
// POST /api/v1/scenarios
func (h *ScenarioHandler) BranchScenario(c *gin.Context) {
	var req dto.CreateScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	branch, err := h.scenarioSvc.Branch(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.Created(c, branch)
}

// ListScenarios GET /api/v1/scenarios?session_id=&include_archived=
func (h *ScenarioHandler) ListScenarios(c *gin.Context) {
	var q dto.ScenarioListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.scenarioSvc.List(c.Request.Context(), q.SessionID, q.IncludeArchived)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetScenario GET /api/v1/scenarios/:id
func (h *ScenarioHandler) GetScenario(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "方案分支")
	if !ok {
		return
	}

	scenario, err := h.scenarioSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.OK(c, scenario)
}

// ArchiveScenario PUT /api/v1/scenarios/:id/archive
func (h *ScenarioHandler) ArchiveScenario(c *gin.Context) {
	h.idAction(c, "方案分支", h.scenarioSvc.Archive)
}

// CreateScenarioVersion 以分支最新版本为底新建草稿
// POST /api/v1/scenarios/:id/versions
func (h *ScenarioHandler) CreateScenarioVersion(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "方案分支")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	version, err := h.scenarioSvc.CreateVersion(c.Request.Context(), id, callerID)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.Created(c, version)
}

// MoveAssignment 调整草稿版本中的一条考场安排，随后重算冲突
// PUT /api/v1/assignments/:id
func (h *ScenarioHandler) MoveAssignment(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "考场安排")
	if !ok {
		return
	}

	var req dto.MoveAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	assignment, err := h.scenarioSvc.MoveAssignment(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.OK(c, assignment)
}

// ── 人工锁定 ──

// CreateLock POST /api/v1/exam-locks
func (h *ScenarioHandler) CreateLock(c *gin.Context) {
	var req dto.CreateLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	lock, err := h.scenarioSvc.CreateLock(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.Created(c, lock)
}

// ListLocks GET /api/v1/sessions/:id/exam-locks
func (h *ScenarioHandler) ListLocks(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	locks, err := h.scenarioSvc.ListLocks(c.Request.Context(), sessionID)
	if err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.OK(c, gin.H{"list": locks})
}

// DeactivateLock PUT /api/v1/exam-locks/:id/deactivate
func (h *ScenarioHandler) DeactivateLock(c *gin.Context) {
	h.idAction(c, "锁定记录", h.scenarioSvc.DeactivateLock)
}

// DeleteLock DELETE /api/v1/exam-locks/:id
func (h *ScenarioHandler) DeleteLock(c *gin.Context) {
	h.idAction(c, "锁定记录", h.scenarioSvc.DeleteLock)
}

func (h *ScenarioHandler) idAction(c *gin.Context, label string, fn func(ctx context.Context, id, actor string) error) {
	id, ok := MustGetUUIDParam(c, "id", label)
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id, callerID); err != nil {
		h.handleScenarioError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleScenarioError 统一处理方案分支业务错误
func (h *ScenarioHandler) handleScenarioError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrScenarioNotFound):
		response.NotFound(c, 26001, "方案分支不存在")
	case errors.Is(err, service.ErrScenarioArchived):
		response.Conflict(c, 26002, "方案分支已归档")
	case errors.Is(err, service.ErrScenarioSession):
		response.BadRequest(c, 26003, "方案分支不属于该学期会话")
	case errors.Is(err, service.ErrScenarioEmpty):
		response.Conflict(c, 26004, "方案分支下没有版本")
	case errors.Is(err, service.ErrVersionNotFound):
		response.NotFound(c, 25001, "排考版本不存在")
	case errors.Is(err, service.ErrVersionNotDraft):
		response.Conflict(c, 26005, "只能调整方案分支中的草稿版本")
	case errors.Is(err, service.ErrAssignmentNotFound):
		response.NotFound(c, 26006, "考场安排不存在")
	case errors.Is(err, service.ErrPlacementInvalid):
		response.BadRequest(c, 26007, "日期或时段不在考试周安排范围内")
	case errors.Is(err, service.ErrRoomNotInSession):
		response.BadRequest(c, 26008, "考场不存在或已停用")
	case errors.Is(err, service.ErrExamNotInSession):
		response.BadRequest(c, 26009, "考试不属于该学期会话")
	case errors.Is(err, service.ErrLockNotFound):
		response.NotFound(c, 26010, "锁定记录不存在")
	case errors.Is(err, service.ErrLockAlreadyInactive):
		response.Conflict(c, 26011, "锁定记录已失效")
	case errors.Is(err, service.ErrSessionNoTemplate):
		response.Conflict(c, 24004, err.Error())
	default:
		handleCommonError(c, err)
	}
}
