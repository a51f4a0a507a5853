package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// TimeSlotHandler 考试时段模板 HTTP 处理器
type TimeSlotHandler struct {
	timeSlotSvc service.TimeSlotService
}

// NewTimeSlotHandler 创建 TimeSlotHandler
func NewTimeSlotHandler(timeSlotSvc service.TimeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{timeSlotSvc: timeSlotSvc}
}

// ListTemplates 获取时段模板列表
// GET /api/v1/time-slot-templates
func (h *TimeSlotHandler) ListTemplates(c *gin.Context) {
	list, err := h.timeSlotSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetTemplate 获取时段模板详情
// GET /api/v1/time-slot-templates/:id
func (h *TimeSlotHandler) GetTemplate(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "时段模板")
	if !ok {
		return
	}

	tpl, err := h.timeSlotSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, tpl)
}

// CreateTemplate 创建时段模板
// POST /api/v1/time-slot-templates
func (h *TimeSlotHandler) CreateTemplate(c *gin.Context) {
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	tpl, err := h.timeSlotSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.Created(c, tpl)
}

// ReplacePeriods 整体替换模板的时段
// PUT /api/v1/time-slot-templates/:id/periods
func (h *TimeSlotHandler) ReplacePeriods(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "时段模板")
	if !ok {
		return
	}

	var req dto.ReplacePeriodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	tpl, err := h.timeSlotSvc.ReplacePeriods(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, tpl)
}

// DeleteTemplate 删除未被引用的时段模板
// DELETE /api/v1/time-slot-templates/:id
func (h *TimeSlotHandler) DeleteTemplate(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "时段模板")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.timeSlotSvc.Delete(c.Request.Context(), id, callerID); err != nil {
		h.handleTimeSlotError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleTimeSlotError 统一处理时段模板业务错误
func (h *TimeSlotHandler) handleTimeSlotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTemplateNotFound):
		response.NotFound(c, 21001, "时段模板不存在")
	case errors.Is(err, service.ErrTemplateNameExists):
		response.Conflict(c, 21002, "时段模板名称已存在")
	case errors.Is(err, service.ErrTemplateInUse):
		response.Conflict(c, 21003, "时段模板仍被学期会话引用")
	case errors.Is(err, service.ErrPeriodTimeInvalid), errors.Is(err, service.ErrPeriodsOverlap):
		response.BadRequest(c, 21004, err.Error())
	default:
		handleCommonError(c, err)
	}
}
