package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/service"
	"exam-timetable/internal/solver"
	"exam-timetable/internal/worker"
	"exam-timetable/pkg/response"
)

// JobHandler 排考任务 HTTP 处理器
//
// 进度、结果与失败三个回报接口供外部求解服务回调，与执行器内的回报走同一套状态机
type JobHandler struct {
	jobSvc     service.JobService
	versionSvc service.VersionService
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(jobSvc service.JobService, versionSvc service.VersionService) *JobHandler {
	return &JobHandler{jobSvc: jobSvc, versionSvc: versionSvc}
}

// CreateJob 创建排考任务，start=true 时立即启动
// POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	job, err := h.jobSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.Created(c, job)
}

// ListJobs 任务列表
// GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var q dto.JobListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.jobSvc.List(c.Request.Context(), &q)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OKPage(c, list, total, q.GetPage(), q.GetPageSize())
}

// GetJob 任务详情
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	job, err := h.jobSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, job)
}

// GetProgress 轮询进度，优先读缓存快照
// GET /api/v1/jobs/:id/progress
func (h *JobHandler) GetProgress(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	progress, err := h.jobSvc.GetProgress(c.Request.Context(), id)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, progress)
}

// StartJob POST /api/v1/jobs/:id/start
func (h *JobHandler) StartJob(c *gin.Context) {
	h.control(c, h.jobSvc.Start)
}

// PauseJob POST /api/v1/jobs/:id/pause
func (h *JobHandler) PauseJob(c *gin.Context) {
	h.control(c, h.jobSvc.Pause)
}

// ResumeJob POST /api/v1/jobs/:id/resume
func (h *JobHandler) ResumeJob(c *gin.Context) {
	h.control(c, h.jobSvc.Resume)
}

// CancelJob POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	h.control(c, h.jobSvc.Cancel)
}

// PublishJob 发布已完成任务的版本
// POST /api/v1/jobs/:id/publish
func (h *JobHandler) PublishJob(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
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

	version, err := h.versionSvc.Publish(c.Request.Context(), id, callerID, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotCompleted):
			response.Conflict(c, 24005, "任务尚未完成，不能发布")
		default:
			h.handleJobError(c, err)
		}
		return
	}

	response.OK(c, version)
}

// ── 求解服务回报 ──

// ReportProgress POST /api/v1/jobs/:id/progress
func (h *JobHandler) ReportProgress(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	var req dto.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.jobSvc.UpdateProgress(c.Request.Context(), id, req.Progress, req.Phase, req.Message); err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, nil)
}

// SubmitResult 提交结果载荷；载荷原样保存
// POST /api/v1/jobs/:id/result
func (h *JobHandler) SubmitResult(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return
		}
		response.BadRequest(c, 10001, "读取结果载荷失败")
		return
	}

	job, err := h.jobSvc.SubmitResult(c.Request.Context(), id, payload)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, job)
}

// FailJob POST /api/v1/jobs/:id/fail
func (h *JobHandler) FailJob(c *gin.Context) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	var req dto.FailJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.jobSvc.FailJob(c.Request.Context(), id, req.Message); err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, nil)
}

func (h *JobHandler) control(c *gin.Context, fn func(ctx context.Context, id, actor string) (*dto.JobResponse, error)) {
	id, ok := MustGetUUIDParam(c, "id", "任务")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	job, err := fn(c.Request.Context(), id, callerID)
	if err != nil {
		h.handleJobError(c, err)
		return
	}

	response.OK(c, job)
}

// handleJobError 统一处理排考任务业务错误
func (h *JobHandler) handleJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFound(c, 24001, "排考任务不存在")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, 24002, "任务当前状态不允许该操作")
	case errors.Is(err, solver.ErrInvalidResult):
		response.UnprocessableEntity(c, 24003, "求解结果格式错误", err.Error())
	case errors.Is(err, service.ErrDispatcherUnavailable), errors.Is(err, worker.ErrPoolStopped):
		response.ServiceUnavailable(c, "求解执行器未启用")
	case errors.Is(err, worker.ErrQueueFull):
		response.ServiceUnavailable(c, "求解队列已满，请稍后重试")
	case errors.Is(err, service.ErrSessionNoTemplate), errors.Is(err, service.ErrSessionNoExamDays):
		response.Conflict(c, 24004, err.Error())
	case errors.Is(err, service.ErrScenarioNotFound):
		response.BadRequest(c, 26001, "方案分支不存在")
	case errors.Is(err, service.ErrScenarioArchived):
		response.Conflict(c, 26002, "方案分支已归档")
	case errors.Is(err, service.ErrScenarioSession):
		response.BadRequest(c, 26003, "方案分支不属于该学期会话")
	case errors.Is(err, service.ErrConfigNotFound):
		response.BadRequest(c, 23005, "运行配置不存在")
	case errors.Is(err, service.ErrNoDefaultProfile), errors.Is(err, service.ErrNoDefaultConfiguration):
		response.Conflict(c, 23008, err.Error())
	default:
		handleCommonError(c, err)
	}
}
