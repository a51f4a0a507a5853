package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/internal/staging"
	"exam-timetable/pkg/response"
)

// StagingHandler 暂存导入与规范化 HTTP 处理器
type StagingHandler struct {
	stagingSvc service.StagingService
	etlSvc     service.ETLService
}

// NewStagingHandler 创建 StagingHandler
func NewStagingHandler(stagingSvc service.StagingService, etlSvc service.ETLService) *StagingHandler {
	return &StagingHandler{stagingSvc: stagingSvc, etlSvc: etlSvc}
}

// StageRows 写入一批同种类暂存行
// POST /api/v1/sessions/:id/staging
func (h *StagingHandler) StageRows(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	var req dto.StageRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	resp, err := h.stagingSvc.StageRows(c.Request.Context(), sessionID, &req, callerID)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OK(c, resp)
}

// GetSummary 按种类统计暂存行
// GET /api/v1/sessions/:id/staging
func (h *StagingHandler) GetSummary(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	summary, err := h.stagingSvc.Summary(c.Request.Context(), sessionID)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OK(c, summary)
}

// ClearStaging 清空暂存区；?kind= 只清一种
// DELETE /api/v1/sessions/:id/staging
func (h *StagingHandler) ClearStaging(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	n, err := h.stagingSvc.Clear(c.Request.Context(), sessionID, c.Query("kind"), callerID)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OK(c, gin.H{"deleted": n})
}

// RunETL 触发规范化
// POST /api/v1/sessions/:id/etl/run
//
// 一致性错误时运行记录仍会写入，响应 422 并在 details 中说明失败步骤
func (h *StagingHandler) RunETL(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	var req dto.EtlRunRequest
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

	run, err := h.etlSvc.Run(c.Request.Context(), sessionID, req.DryRun, callerID)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OK(c, run)
}

// ListRuns 规范化运行记录
// GET /api/v1/sessions/:id/etl/runs
func (h *StagingHandler) ListRuns(c *gin.Context) {
	sessionID, ok := MustGetUUIDParam(c, "id", "学期会话")
	if !ok {
		return
	}

	var q dto.EtlRunListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	runs, total, err := h.etlSvc.ListRuns(c.Request.Context(), sessionID, &q.PaginationRequest)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OKPage(c, runs, total, q.GetPage(), q.GetPageSize())
}

// GetRun 单次运行记录（含步骤计数与行级问题）
// GET /api/v1/etl-runs/:id
func (h *StagingHandler) GetRun(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "运行记录")
	if !ok {
		return
	}

	run, err := h.etlSvc.GetRun(c.Request.Context(), id)
	if err != nil {
		h.handleStagingError(c, err)
		return
	}

	response.OK(c, run)
}

// handleStagingError 统一处理暂存与规范化业务错误
func (h *StagingHandler) handleStagingError(c *gin.Context, err error) {
	var consistency *service.ConsistencyError
	switch {
	case errors.As(err, &consistency):
		response.UnprocessableEntity(c, 22001, "数据一致性校验失败，本次规范化已回滚", consistency.Error())
	case errors.Is(err, staging.ErrUnknownKind):
		response.BadRequest(c, 22002, "不支持的暂存实体种类")
	case errors.Is(err, service.ErrEtlRunNotFound):
		response.NotFound(c, 22003, "规范化运行记录不存在")
	default:
		handleCommonError(c, err)
	}
}
