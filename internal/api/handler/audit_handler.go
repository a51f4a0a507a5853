package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// AuditHandler 审计日志只读接口
type AuditHandler struct {
	auditSvc service.AuditService
}

// NewAuditHandler 创建 AuditHandler
func NewAuditHandler(auditSvc service.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// ListEntries GET /api/v1/audit-logs
func (h *AuditHandler) ListEntries(c *gin.Context) {
	var q dto.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.auditSvc.List(c.Request.Context(), &q)
	if err != nil {
		h.handleAuditError(c, err)
		return
	}

	response.OKPage(c, list, total, q.GetPage(), q.GetPageSize())
}

// GetEntry GET /api/v1/audit-logs/:id
func (h *AuditHandler) GetEntry(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "审计记录")
	if !ok {
		return
	}

	entry, err := h.auditSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleAuditError(c, err)
		return
	}

	response.OK(c, entry)
}

// GetDiff 变更前后快照的 JSON Patch
// GET /api/v1/audit-logs/:id/diff
func (h *AuditHandler) GetDiff(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "审计记录")
	if !ok {
		return
	}

	diff, err := h.auditSvc.Diff(c.Request.Context(), id)
	if err != nil {
		h.handleAuditError(c, err)
		return
	}

	response.OK(c, diff)
}

func (h *AuditHandler) handleAuditError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAuditNotFound) {
		response.NotFound(c, 28001, "审计记录不存在")
		return
	}
	handleCommonError(c, err)
}
