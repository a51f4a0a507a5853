package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"exam-timetable/config"
	"exam-timetable/internal/api/handler"
	"exam-timetable/internal/api/router"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/service"
	"exam-timetable/internal/solver"
	"exam-timetable/internal/worker"
	"exam-timetable/pkg/database"
	"exam-timetable/pkg/jwt"
	applogger "exam-timetable/pkg/logger"
	"exam-timetable/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("solver_endpoint", cfg.Solver.Endpoint),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、进度缓存与共享限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 求解执行器（未配置求解服务时任务只能排队，无法启动）
	var opts service.Options
	var pool *worker.Pool
	if cfg.Solver.Endpoint != "" {
		optimizer := solver.NewHTTPClient(cfg.Solver.Endpoint, cfg.Solver.Timeout, logger)
		pool = worker.NewPool(optimizer, worker.Config{
			Workers:      cfg.Solver.Workers,
			QueueSize:    cfg.Solver.QueueSize,
			SolveTimeout: cfg.Solver.Timeout,
		}, logger)
		opts.Dispatcher = pool
	} else {
		logger.Warn("未配置求解服务地址，排考任务将无法启动")
	}
	if rdb != nil && cfg.Feature.RedisProgressCache {
		opts.Progress = rdb
	}

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db, repository.WithBatchSize(cfg.ETL.BatchSize))
	svc := service.NewService(repo, opts, logger)
	h := handler.NewHandler(svc)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Constraint.EnsureCatalog(bootCtx); err != nil {
		logger.Fatal("初始化约束规则目录失败", zap.Error(err))
	}
	if n, err := svc.Job.RecoverInterrupted(bootCtx); err != nil {
		logger.Error("回收中断任务失败", zap.Error(err))
	} else if n > 0 {
		logger.Warn("上次运行中断的任务已标记为失败", zap.Int("count", n))
	}
	bootCancel()

	poolCtx, poolCancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	if pool != nil {
		pool.SetReporter(svc.Job)
		go func() {
			defer close(poolDone)
			pool.Run(poolCtx)
		}()
	} else {
		close(poolDone)
	}

	// 8. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, db, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 停止求解执行器，正在求解的任务下次启动时由 RecoverInterrupted 回收
	poolCancel()
	select {
	case <-poolDone:
	case <-ctx.Done():
		logger.Warn("等待求解执行器退出超时")
	}

	// 关闭数据库连接
	if closeDB, _ := db.DB(); closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
