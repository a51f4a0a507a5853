package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/pkg/response"
)

// ConflictHandler 版本冲突 HTTP 处理器
type ConflictHandler struct {
	conflictSvc service.ConflictService
}

// NewConflictHandler 创建 ConflictHandler
func NewConflictHandler(conflictSvc service.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflictSvc: conflictSvc}
}

// ListConflicts GET /api/v1/versions/:id/conflicts?type=
func (h *ConflictHandler) ListConflicts(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	var q dto.ConflictListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.conflictSvc.List(c.Request.Context(), id, q.Type)
	if err != nil {
		h.handleConflictError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetSummary 按类型统计冲突数
// GET /api/v1/versions/:id/conflicts/summary
func (h *ConflictHandler) GetSummary(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	summary, err := h.conflictSvc.Summary(c.Request.Context(), id)
	if err != nil {
		h.handleConflictError(c, err)
		return
	}

	response.OK(c, summary)
}

// Recompute POST /api/v1/versions/:id/conflicts/recompute
func (h *ConflictHandler) Recompute(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "版本")
	if !ok {
		return
	}

	result, err := h.conflictSvc.Recompute(c.Request.Context(), id)
	if err != nil {
		h.handleConflictError(c, err)
		return
	}

	response.OK(c, result)
}

// RecomputeMany POST /api/v1/conflicts/recompute
func (h *ConflictHandler) RecomputeMany(c *gin.Context) {
	var req dto.RecomputeManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	results, err := h.conflictSvc.RecomputeMany(c.Request.Context(), req.VersionIDs)
	if err != nil {
		h.handleConflictError(c, err)
		return
	}

	response.OK(c, gin.H{"list": results})
}

func (h *ConflictHandler) handleConflictError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrVersionNotFound) {
		response.NotFound(c, 25001, "排考版本不存在")
		return
	}
	handleCommonError(c, err)
}
