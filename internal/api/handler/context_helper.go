package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"exam-timetable/internal/service"
	pkgerrors "exam-timetable/pkg/errors"
	"exam-timetable/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id，作为审计日志的操作人。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetUUIDParam 读取路径参数并校验为 UUID，不合法时写入 400
func MustGetUUIDParam(c *gin.Context, name, label string) (string, bool) {
	id := c.Param(name)
	if id == "" {
		response.BadRequest(c, 10001, label+"ID不能为空")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		response.BadRequest(c, 10001, label+"ID格式错误")
		return "", false
	}
	return id, true
}

// handleCommonError 各模块共享的错误映射，未识别的错误按 500 处理
func handleCommonError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, 20001, "学期会话不存在")
	case errors.Is(err, service.ErrSessionArchived):
		response.Conflict(c, 20004, "学期会话已归档，不能修改")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 10001, err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 10006, "数据已被其他操作修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrLockTimeout):
		response.ServiceUnavailable(c, "操作繁忙，请稍后重试")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
