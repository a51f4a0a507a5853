package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/config"
	"exam-timetable/internal/api/handler"
	"exam-timetable/internal/api/middleware"
	"exam-timetable/pkg/jwt"
	"exam-timetable/pkg/metrics"
	"exam-timetable/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "db": "ok"}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["status"], status["db"] = "degraded", "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 重操作接口限流（ETL、启动任务、发布、冲突批量重算）
	heavy := middleware.RateLimit(
		middleware.NewLimiterStore(rdb, logger),
		cfg.Feature.RateLimitPerMinute,
		logger,
	)

	admin := middleware.RoleAuth(middleware.RoleAdmin)
	scheduler := middleware.RoleAuth(middleware.RoleAdmin, middleware.RoleScheduler)
	solver := middleware.RoleAuth(middleware.RoleAdmin, middleware.RoleSolver)

	// ── API v1（全部需要认证） ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
	{
		// 学期会话
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", h.Session.ListSessions)
			sessions.GET("/active", h.Session.GetActiveSession)
			sessions.GET("/:id", h.Session.GetSession)
			sessions.POST("", admin, h.Session.CreateSession)
			sessions.PUT("/:id", admin, h.Session.UpdateSession)
			sessions.PUT("/:id/activate", admin, h.Session.ActivateSession)
			sessions.PUT("/:id/archive", admin, h.Session.ArchiveSession)
			sessions.DELETE("/:id", admin, h.Session.DeleteSession)

			// 暂存导入与规范化
			sessions.GET("/:id/staging", scheduler, h.Staging.GetSummary)
			sessions.POST("/:id/staging", scheduler, h.Staging.StageRows)
			sessions.DELETE("/:id/staging", scheduler, h.Staging.ClearStaging)
			sessions.POST("/:id/etl/run", scheduler, heavy, h.Staging.RunETL)
			sessions.GET("/:id/etl/runs", scheduler, h.Staging.ListRuns)

			sessions.GET("/:id/published-version", h.Version.GetPublished)
			sessions.GET("/:id/exam-locks", scheduler, h.Scenario.ListLocks)
			sessions.GET("/:id/calendar", h.Export.ExportCalendar)
		}

		v1.GET("/etl-runs/:id", scheduler, h.Staging.GetRun)

		// 时段模板
		templates := v1.Group("/time-slot-templates")
		{
			templates.GET("", h.TimeSlot.ListTemplates)
			templates.GET("/:id", h.TimeSlot.GetTemplate)
			templates.POST("", admin, h.TimeSlot.CreateTemplate)
			templates.PUT("/:id/periods", admin, h.TimeSlot.ReplacePeriods)
			templates.DELETE("/:id", admin, h.TimeSlot.DeleteTemplate)
		}

		// 约束规则、约束方案、运行配置
		v1.GET("/constraint-rules", h.Constraint.ListRules)
		profiles := v1.Group("/constraint-profiles")
		{
			profiles.GET("", h.Constraint.ListProfiles)
			profiles.GET("/:id", h.Constraint.GetProfile)
			profiles.POST("", admin, h.Constraint.CreateProfile)
			profiles.PUT("/:id", admin, h.Constraint.SaveProfile)
			profiles.PUT("/:id/default", admin, h.Constraint.SetDefaultProfile)
			profiles.DELETE("/:id", admin, h.Constraint.DeleteProfile)
		}
		configs := v1.Group("/system-configs")
		{
			configs.GET("", h.Constraint.ListConfigs)
			configs.GET("/:id", h.Constraint.GetConfig)
			configs.POST("", admin, h.Constraint.CreateConfig)
			configs.PUT("/:id", admin, h.Constraint.UpdateConfig)
			configs.PUT("/:id/default", admin, h.Constraint.SetDefaultConfig)
			configs.DELETE("/:id", admin, h.Constraint.DeleteConfig)
		}

		// 排考任务
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Job.ListJobs)
			jobs.GET("/:id", h.Job.GetJob)
			jobs.GET("/:id/progress", h.Job.GetProgress)
			jobs.POST("", scheduler, heavy, h.Job.CreateJob)
			jobs.POST("/:id/start", scheduler, heavy, h.Job.StartJob)
			jobs.POST("/:id/pause", scheduler, h.Job.PauseJob)
			jobs.POST("/:id/resume", scheduler, h.Job.ResumeJob)
			jobs.POST("/:id/cancel", scheduler, h.Job.CancelJob)
			jobs.POST("/:id/publish", admin, heavy, h.Job.PublishJob)

			// 求解服务回报
			jobs.POST("/:id/progress", solver, h.Job.ReportProgress)
			jobs.POST("/:id/result", solver, h.Job.SubmitResult)
			jobs.POST("/:id/fail", solver, h.Job.FailJob)
		}

		// 排考版本
		versions := v1.Group("/versions")
		{
			versions.GET("", h.Version.ListVersions)
			versions.GET("/compare", h.Version.CompareVersions)
			versions.GET("/:id", h.Version.GetVersion)
			versions.POST("/:id/publish", admin, heavy, h.Version.PublishVersion)
			versions.POST("/:id/unpublish", admin, h.Version.UnpublishVersion)
			versions.GET("/:id/recipients", h.Version.GetRecipients)
			versions.GET("/:id/export", h.Export.ExportVersion)

			versions.GET("/:id/conflicts", h.Conflict.ListConflicts)
			versions.GET("/:id/conflicts/summary", h.Conflict.GetSummary)
			versions.POST("/:id/conflicts/recompute", scheduler, h.Conflict.Recompute)
		}
		v1.POST("/conflicts/recompute", scheduler, heavy, h.Conflict.RecomputeMany)

		// 方案分支与草稿调整
		scenarios := v1.Group("/scenarios")
		{
			scenarios.GET("", h.Scenario.ListScenarios)
			scenarios.GET("/:id", h.Scenario.GetScenario)
			scenarios.POST("", scheduler, h.Scenario.BranchScenario)
			scenarios.PUT("/:id/archive", scheduler, h.Scenario.ArchiveScenario)
			scenarios.POST("/:id/versions", scheduler, h.Scenario.CreateScenarioVersion)
		}
		v1.PUT("/assignments/:id", scheduler, h.Scenario.MoveAssignment)

		// 人工锁定
		locks := v1.Group("/exam-locks")
		{
			locks.POST("", scheduler, h.Scenario.CreateLock)
			locks.PUT("/:id/deactivate", scheduler, h.Scenario.DeactivateLock)
			locks.DELETE("/:id", scheduler, h.Scenario.DeleteLock)
		}

		// 审计日志（只读）
		audit := v1.Group("/audit-logs", admin)
		{
			audit.GET("", h.Audit.ListEntries)
			audit.GET("/:id", h.Audit.GetEntry)
			audit.GET("/:id/diff", h.Audit.GetDiff)
		}
	}

	return r
}
