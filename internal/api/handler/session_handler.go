package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// SessionHandler 学期会话模块 HTTP 处理器
type SessionHandler struct {
	sessionSvc service.SessionService
}

// NewSessionHandler 创建 SessionHandler
func NewSessionHandler(sessionSvc service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// ListSessions 获取学期会话列表
// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var q dto.SessionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.sessionSvc.List(c.Request.Context(), q.IncludeArchived)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetActiveSession 获取当前激活的学期会话
// GET /api/v1/sessions/active
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	session, err := h.sessionSvc.GetActive(c.Request.Context())
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, session)
}

// GetSession 获取学期会话详情
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	session, err := h.sessionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, session)
}

// CreateSession 创建学期会话
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.Created(c, session)
}

// UpdateSession 更新学期会话（乐观锁）
// PUT /api/v1/sessions/:id
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	var req dto.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, session)
}

// ActivateSession 激活学期会话
// PUT /api/v1/sessions/:id/activate
func (h *SessionHandler) ActivateSession(c *gin.Context) {
	h.simpleAction(c, h.sessionSvc.Activate)
}

// ArchiveSession 归档学期会话
// PUT /api/v1/sessions/:id/archive
func (h *SessionHandler) ArchiveSession(c *gin.Context) {
	h.simpleAction(c, h.sessionSvc.Archive)
}

// DeleteSession 删除尚无数据的学期会话
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	h.simpleAction(c, h.sessionSvc.Delete)
}

func (h *SessionHandler) simpleAction(c *gin.Context, fn func(ctx context.Context, id, actor string) error) {
	id, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id, callerID); err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleSessionError 统一处理学期会话模块业务错误
func (h *SessionHandler) handleSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		response.NotFound(c, 20002, "当前没有激活的学期会话")
	case errors.Is(err, service.ErrSessionDateInvalid):
		response.BadRequest(c, 20003, err.Error())
	case errors.Is(err, service.ErrSessionHasData):
		response.Conflict(c, 20005, "学期会话已有数据，只能归档不能删除")
	case errors.Is(err, service.ErrSessionNameExists):
		response.Conflict(c, 20006, "学期会话名称已存在")
	case errors.Is(err, service.ErrTemplateNotFound):
		response.BadRequest(c, 20007, "关联的时段模板不存在")
	default:
		handleCommonError(c, err)
	}
}
