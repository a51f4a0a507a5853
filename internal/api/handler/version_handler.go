package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// VersionHandler 排考版本 HTTP 处理器
type VersionHandler struct {
	versionSvc service.VersionService
}

// NewVersionHandler 创建 VersionHandler
func NewVersionHandler(versionSvc service.VersionService) *VersionHandler {
	return &VersionHandler{versionSvc: versionSvc}
}

// ListVersions 会话的主线版本，或某方案分支下的版本
// GET /api/v1/versions?session_id=&scenario_id=
func (h *VersionHandler) ListVersions(c *gin.Context) {
	var q dto.VersionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.versionSvc.List(c.Request.Context(), q.SessionID, q.ScenarioID)
	if err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetPublished 会话当前发布的版本
// GET /api/v1/sessions/:id/published-version
func (h *VersionHandler) GetPublished(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	version, err := h.versionSvc.GetPublished(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrVersionNotFound) {
			response.NotFound(c, 25002, "该学期会话没有已发布的版本")
			return
		}
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, version)
}

// GetVersion 版本详情（含考场安排与冲突统计）
// GET /api/v1/versions/:id
func (h *VersionHandler) GetVersion(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	detail, err := h.versionSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, detail)
}

// PublishVersion 发布指定版本（含方案草稿）
// POST /api/v1/versions/:id/publish
func (h *VersionHandler) PublishVersion(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	var req dto.PublishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	version, err := h.versionSvc.PublishVersion(c.Request.Context(), id, callerID, req.Note)
	if err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, version)
}

// UnpublishVersion 撤销发布
// POST /api/v1/versions/:id/unpublish
func (h *VersionHandler) UnpublishVersion(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	var req dto.PublishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.versionSvc.Unpublish(c.Request.Context(), id, callerID, req.Note); err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, nil)
}

// CompareVersions 以考试为单位对比两个版本
// GET /api/v1/versions/compare?base=&target=
func (h *VersionHandler) CompareVersions(c *gin.Context) {
	var q dto.CompareVersionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	diff, err := h.versionSvc.Compare(c.Request.Context(), q.Base, q.Target)
	if err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, diff)
}

// GetRecipients 版本的通知对象（报名学生与在职教职工）
// GET /api/v1/versions/:id/recipients
func (h *VersionHandler) GetRecipients(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	recipients, err := h.versionSvc.Recipients(c.Request.Context(), id)
	if err != nil {
		h.handleVersionError(c, err)
		return
	}

	response.OK(c, recipients)
}

// handleVersionError 统一处理排考版本业务错误
func (h *VersionHandler) handleVersionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVersionNotFound):
		response.NotFound(c, 25001, "排考版本不存在")
	case errors.Is(err, service.ErrVersionNotPublished):
		response.Conflict(c, 25003, "该版本未发布")
	case errors.Is(err, service.ErrVersionSessionDiffer):
		response.BadRequest(c, 25004, "两个版本不属于同一学期会话")
	case errors.Is(err, service.ErrJobNotCompleted):
		response.Conflict(c, 24005, "任务尚未完成，不能发布")
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFound(c, 24001, "排考任务不存在")
	default:
		handleCommonError(c, err)
	}
}
