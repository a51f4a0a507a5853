package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportVersion 版本导出为 Excel
// GET /api/v1/versions/:id/export
func (h *ExportHandler) ExportVersion(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportVersion(c.Request.Context(), id)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, xlsxContentType, buf.Bytes())
}

// ExportCalendar 个人考试日历（已发布版本）
// GET /api/v1/sessions/:id/calendar?person_type=student&person_id=xxx
func (h *ExportHandler) ExportCalendar(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	data, filename, err := h.exportSvc.ExportCalendar(c.Request.Context(), sessionID, q.PersonType, q.PersonID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, icsContentType, data)
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVersionNotFound):
		response.NotFound(c, 25001, "排考版本不存在")
	case errors.Is(err, service.ErrExportNoAssignments):
		response.BadRequest(c, 29001, "该版本没有考场安排")
	case errors.Is(err, service.ErrExportNoPublished):
		response.NotFound(c, 29002, "该学期会话没有已发布的版本")
	case errors.Is(err, service.ErrPersonNotFound):
		response.NotFound(c, 29003, "学生或教职工不存在")
	case errors.Is(err, service.ErrPersonType):
		response.BadRequest(c, 29004, "人员类型只能是 student 或 staff")
	case errors.Is(err, service.ErrSessionNoTemplate):
		response.Conflict(c, 24004, err.Error())
	default:
		handleCommonError(c, err)
	}
}
