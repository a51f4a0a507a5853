package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"exam-timetable/internal/solver"
)

var (
	ErrQueueFull   = errors.New("求解队列已满")
	ErrPoolStopped = errors.New("求解执行器已停止")
)

// Reporter 接收求解过程的回报，由 JobService 实现
type Reporter interface {
	UpdateProgress(ctx context.Context, id string, progress int, phase, message string) error
	CompleteJob(ctx context.Context, id string, result *solver.Result) error
	FailJob(ctx context.Context, id string, message string) error
}

// Config 执行器配置
type Config struct {
	Workers      int
	QueueSize    int
	SolveTimeout time.Duration // 0 表示不限时
}

type task struct {
	jobID string
	ds    *solver.Dataset
}

// Pool 固定数量的协程从队列取任务调用外部求解器。
// 取消信号直接取消对应任务的 context；暂停 / 恢复只转发给支持 Signaler 的求解器。
type Pool struct {
	optimizer solver.Optimizer
	reporter  Reporter
	cfg       Config
	logger    *zap.Logger

	queue chan task

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	queued    map[string]bool // 已入队尚未被工作协程取走
	cancelled map[string]bool // 排队期间被取消的任务，取走时丢弃
	stopped   bool

	wg sync.WaitGroup
}

// NewPool 创建执行器；需调用 SetReporter 后再 Run
func NewPool(optimizer solver.Optimizer, cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pool{
		optimizer: optimizer,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan task, cfg.QueueSize),
		running:   make(map[string]context.CancelFunc),
		queued:    make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

// SetReporter JobService 依赖执行器，执行器回报给 JobService，构造后再注入
func (p *Pool) SetReporter(r Reporter) {
	p.reporter = r
}

// Run 启动工作协程，阻塞到 ctx 结束后等待进行中的求解退出
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("求解执行器启动", zap.Int("workers", p.cfg.Workers), zap.Int("queue_size", p.cfg.QueueSize))

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	p.mu.Lock()
	p.stopped = true
	for _, cancel := range p.running {
		cancel()
	}
	p.mu.Unlock()

	p.logger.Info("求解执行器停止中，等待工作协程退出")
	p.wg.Wait()
	p.logger.Info("求解执行器已停止")
}

// Dispatch 非阻塞入队；队列满时立即返回 ErrQueueFull
func (p *Pool) Dispatch(ctx context.Context, jobID string, ds *solver.Dataset) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.queued[jobID] = true
	p.mu.Unlock()

	select {
	case p.queue <- task{jobID: jobID, ds: ds}:
		p.logger.Debug("求解任务入队", zap.String("job_id", jobID))
		return nil
	case <-ctx.Done():
		p.unqueue(jobID)
		return ctx.Err()
	default:
		p.unqueue(jobID)
		return ErrQueueFull
	}
}

func (p *Pool) unqueue(jobID string) {
	p.mu.Lock()
	delete(p.queued, jobID)
	p.mu.Unlock()
}

// Signal 取消在本地生效；其余信号只转发，求解器不支持时忽略
func (p *Pool) Signal(ctx context.Context, jobID string, sig solver.Signal) error {
	if sig == solver.SignalCancel {
		p.mu.Lock()
		if cancel, ok := p.running[jobID]; ok {
			cancel()
		} else if p.queued[jobID] {
			p.cancelled[jobID] = true
		}
		p.mu.Unlock()
	}

	signaler, ok := p.optimizer.(solver.Signaler)
	if !ok {
		return nil
	}
	if err := signaler.Signal(ctx, jobID, sig); err != nil {
		return fmt.Errorf("转发控制信号失败: %w", err)
	}
	return nil
}

// Running 正在求解的任务数
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Pending 排队中的任务数与其中已取消的数目
func (p *Pool) Pending() (queued, cancelled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued), len(p.cancelled)
}

func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.process(ctx, workerID, t)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, t task) {
	var (
		solveCtx context.Context
		cancel   context.CancelFunc
	)
	if p.cfg.SolveTimeout > 0 {
		solveCtx, cancel = context.WithTimeout(ctx, p.cfg.SolveTimeout)
	} else {
		solveCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	p.mu.Lock()
	delete(p.queued, t.jobID)
	if p.cancelled[t.jobID] {
		delete(p.cancelled, t.jobID)
		p.mu.Unlock()
		p.logger.Info("任务在排队期间已取消", zap.String("job_id", t.jobID))
		return
	}
	p.running[t.jobID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, t.jobID)
		p.mu.Unlock()
	}()

	logger := p.logger.With(zap.Int("worker_id", workerID), zap.String("job_id", t.jobID))
	logger.Info("开始求解")
	started := time.Now()

	// 回报使用独立于求解的 context，取消求解后仍能写回状态
	reportCtx := context.WithoutCancel(ctx)
	progress := func(pct int, phase, message string) {
		if err := p.reporter.UpdateProgress(reportCtx, t.jobID, pct, phase, message); err != nil {
			logger.Warn("回报进度失败", zap.Error(err))
		}
	}

	result, err := p.optimizer.Solve(solveCtx, t.ds, progress)
	switch {
	case err == nil:
		if err := p.reporter.CompleteJob(reportCtx, t.jobID, result); err != nil {
			logger.Error("保存求解结果失败", zap.Error(err))
			if ferr := p.reporter.FailJob(reportCtx, t.jobID, "保存求解结果失败: "+err.Error()); ferr != nil {
				logger.Error("标记任务失败出错", zap.Error(ferr))
			}
			return
		}
		logger.Info("求解完成", zap.Duration("elapsed", time.Since(started)))
	case errors.Is(solveCtx.Err(), context.Canceled):
		// 任务已被取消（状态由取消操作写入）或服务正在停止
		logger.Info("求解已中止", zap.Error(err))
	default:
		msg := err.Error()
		if errors.Is(solveCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("求解超时（%s）", p.cfg.SolveTimeout)
		}
		logger.Warn("求解失败", zap.String("reason", msg))
		if ferr := p.reporter.FailJob(reportCtx, t.jobID, msg); ferr != nil {
			logger.Error("标记任务失败出错", zap.Error(ferr))
		}
	}
}
