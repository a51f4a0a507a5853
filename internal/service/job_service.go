package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/internal/solver"
	pkgerrors "exam-timetable/pkg/errors"
	"exam-timetable/pkg/metrics"
	"exam-timetable/pkg/redis"
)

// ── 排考任务模块业务错误 ──

var (
	ErrInvalidTransition     = errors.New("任务当前状态不允许该操作")
	ErrDispatcherUnavailable = errors.New("求解执行器未启用")
)

const (
	jobUpdateRetries = 3

	phaseQueued   = "queued"
	phaseStart    = "start"
	phaseControl  = "control"
	phaseComplete = "complete"
	phaseFailed   = "failed"

	progressSourceCache = "cache"
	progressSourceDB    = "db"
)

// jobTransitions 状态机：queued → running → {paused, completed, failed, cancelled}；paused → running | cancelled
var jobTransitions = map[string][]string{
	model.JobStatusQueued:  {model.JobStatusRunning, model.JobStatusCancelled},
	model.JobStatusRunning: {model.JobStatusPaused, model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled},
	model.JobStatusPaused:  {model.JobStatusRunning, model.JobStatusCancelled, model.JobStatusFailed},
}

func canTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// JobService 排考任务生命周期；同时作为 worker 的回报对象
type JobService interface {
	Create(ctx context.Context, req *dto.CreateJobRequest, actor string) (*dto.JobResponse, error)
	Start(ctx context.Context, id string, actor string) (*dto.JobResponse, error)
	Pause(ctx context.Context, id string, actor string) (*dto.JobResponse, error)
	Resume(ctx context.Context, id string, actor string) (*dto.JobResponse, error)
	Cancel(ctx context.Context, id string, actor string) (*dto.JobResponse, error)
	Get(ctx context.Context, id string) (*dto.JobResponse, error)
	List(ctx context.Context, q *dto.JobListQuery) ([]dto.JobResponse, int64, error)
	GetProgress(ctx context.Context, id string) (*dto.JobProgressResponse, error)
	SubmitResult(ctx context.Context, id string, payload []byte) (*dto.JobResponse, error)

	UpdateProgress(ctx context.Context, id string, progress int, phase, message string) error
	CompleteJob(ctx context.Context, id string, result *solver.Result) error
	FailJob(ctx context.Context, id string, message string) error

	// RecoverInterrupted 启动时把上次进程遗留的 running / paused 任务标记为失败
	RecoverInterrupted(ctx context.Context) (int, error)
}

type jobService struct {
	repo       *repository.Repository
	dataset    DatasetService
	dispatcher Dispatcher
	progress   ProgressCache
	logger     *zap.Logger
}

// NewJobService 创建 JobService 实例；dispatcher / progress 可为 nil
func NewJobService(repo *repository.Repository, dataset DatasetService, dispatcher Dispatcher, progress ProgressCache, logger *zap.Logger) JobService {
	return &jobService{repo: repo, dataset: dataset, dispatcher: dispatcher, progress: progress, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *jobService) Create(ctx context.Context, req *dto.CreateJobRequest, actor string) (*dto.JobResponse, error) {
	if err := requireOpenSession(ctx, s.repo, req.SessionID); err != nil {
		return nil, err
	}
	if req.ScenarioID != nil {
		if _, err := openScenario(ctx, s.repo, *req.ScenarioID, req.SessionID); err != nil {
			return nil, err
		}
	}

	job := &model.TimetableJob{
		SessionID:       req.SessionID,
		ConfigurationID: req.ConfigurationID,
		ScenarioID:      req.ScenarioID,
		InitiatedBy:     actor,
		Metrics:         datatypes.NewJSONType(model.JobMetrics{}),
	}
	job.SetStatus(model.JobStatusQueued)
	job.Version = 1
	if job.ConfigurationID == nil {
		if def, err := s.repo.SystemConfig.GetDefault(ctx); err == nil {
			job.ConfigurationID = &def.ConfigurationID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	job.AppendProgress(phaseQueued, 0, "任务已创建")

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Job.Create(ctx, job); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "timetable_job", EntityID: job.JobID, SessionID: job.SessionID,
			After: req,
		})
	})
	if err != nil {
		s.logger.Error("创建排考任务失败", zap.String("session_id", req.SessionID), zap.Error(err))
		return nil, err
	}
	metrics.RecordJobTransition(model.JobStatusQueued)
	s.logger.Info("排考任务已创建", zap.String("job_id", job.JobID), zap.String("session_id", job.SessionID))

	if req.Start {
		return s.Start(ctx, job.JobID, actor)
	}
	resp := toJobResponse(job)
	return &resp, nil
}

// ────────────────────── Start ──────────────────────

// Start queued → running，组装数据集后交给执行器；组装或投递失败时任务转为 failed
func (s *jobService) Start(ctx context.Context, id string, actor string) (*dto.JobResponse, error) {
	if s.dispatcher == nil {
		return nil, ErrDispatcherUnavailable
	}
	job, err := s.mutate(ctx, id, func(job *model.TimetableJob) error {
		if job.Status != model.JobStatusQueued {
			return ErrInvalidTransition
		}
		now := time.Now().UTC()
		job.StartedAt = &now
		job.AppendProgress(phaseStart, 0, "任务由 "+actor+" 启动")
		return s.transition(job, model.JobStatusRunning)
	})
	if err != nil {
		return nil, err
	}
	metrics.JobStarted()
	s.cacheProgress(ctx, job, "任务已启动")

	ds, err := s.dataset.BuildForJob(ctx, id)
	if err != nil {
		_ = s.FailJob(ctx, id, "组装数据集失败: "+err.Error())
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, id, ds); err != nil {
		_ = s.FailJob(ctx, id, "投递求解任务失败: "+err.Error())
		return nil, err
	}
	return s.Get(ctx, id)
}

// ────────────────────── Pause / Resume / Cancel ──────────────────────

func (s *jobService) Pause(ctx context.Context, id string, actor string) (*dto.JobResponse, error) {
	return s.control(ctx, id, actor, model.JobStatusPaused, solver.SignalPause)
}

// Resume 恢复求解；暂停期间已保存结果的任务直接完成
func (s *jobService) Resume(ctx context.Context, id string, actor string) (*dto.JobResponse, error) {
	resp, err := s.control(ctx, id, actor, model.JobStatusRunning, solver.SignalResume)
	if err != nil || !resp.HasResult {
		return resp, err
	}

	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := solver.ParseResult(job.ResultPayload)
	if err != nil {
		return nil, err
	}
	if err := s.CompleteJob(ctx, id, result); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Cancel 只切换状态并向求解器发出取消信号，不回滚求解器状态
func (s *jobService) Cancel(ctx context.Context, id string, actor string) (*dto.JobResponse, error) {
	return s.control(ctx, id, actor, model.JobStatusCancelled, solver.SignalCancel)
}

func (s *jobService) control(ctx context.Context, id, actor, target string, sig solver.Signal) (*dto.JobResponse, error) {
	var from string
	job, err := s.mutate(ctx, id, func(job *model.TimetableJob) error {
		from = job.Status
		if target == model.JobStatusCancelled {
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
		job.AppendProgress(phaseControl, job.Progress, fmt.Sprintf("%s: %s → %s", actor, job.Status, target))
		return s.transition(job, target)
	})
	if err != nil {
		return nil, err
	}

	// 排队中的任务尚未投递；已带结果的任务求解器早已退出
	if from != model.JobStatusQueued && !job.HasResult() && s.dispatcher != nil {
		if err := s.dispatcher.Signal(ctx, id, sig); err != nil {
			s.logger.Warn("发送控制信号失败", zap.String("job_id", id), zap.String("signal", string(sig)), zap.Error(err))
		}
	}
	if job.IsTerminal() {
		if from != model.JobStatusQueued {
			metrics.JobFinished()
		}
		s.dropProgress(ctx, id)
	} else {
		s.cacheProgress(ctx, job, string(sig))
	}

	s.logger.Info("排考任务状态变更", zap.String("job_id", id), zap.String("from", from), zap.String("to", target), zap.String("actor", actor))
	resp := toJobResponse(job)
	return &resp, nil
}

// ────────────────────── Get / List ──────────────────────

func (s *jobService) Get(ctx context.Context, id string) (*dto.JobResponse, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toJobResponse(job)
	return &resp, nil
}

func (s *jobService) List(ctx context.Context, q *dto.JobListQuery) ([]dto.JobResponse, int64, error) {
	jobs, total, err := s.repo.Job.List(ctx, repository.JobFilter{SessionID: q.SessionID, Status: q.Status}, q.GetOffset(), q.GetPageSize())
	if err != nil {
		s.logger.Error("查询排考任务列表失败", zap.Error(err))
		return nil, 0, err
	}
	out := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		resp := toJobResponse(&jobs[i])
		resp.ProgressLog = nil
		out = append(out, resp)
	}
	return out, total, nil
}

// ────────────────────── GetProgress ──────────────────────

// GetProgress 优先读缓存快照，缓存不可用或没有快照时读数据库
func (s *jobService) GetProgress(ctx context.Context, id string) (*dto.JobProgressResponse, error) {
	if s.progress != nil {
		snap, err := s.progress.GetProgress(ctx, id)
		if err != nil {
			s.logger.Warn("读取进度缓存失败，改读数据库", zap.String("job_id", id), zap.Error(err))
		} else if snap != nil {
			return &dto.JobProgressResponse{
				JobID:     snap.JobID,
				Status:    snap.Status,
				Progress:  snap.Progress,
				Phase:     snap.Phase,
				Message:   snap.Message,
				UpdatedAt: snap.UpdatedAt,
				Source:    progressSourceCache,
			}, nil
		}
	}

	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.JobProgressResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		Progress:  job.Progress,
		Phase:     job.Phase,
		UpdatedAt: job.UpdatedAt,
		Source:    progressSourceDB,
	}
	if n := len(job.ProgressLog); n > 0 {
		resp.Message = job.ProgressLog[n-1].Message
	}
	return resp, nil
}

// ────────────────────── UpdateProgress ──────────────────────

func (s *jobService) UpdateProgress(ctx context.Context, id string, progress int, phase, message string) error {
	progress = min(max(progress, 0), 100)
	job, err := s.mutate(ctx, id, func(job *model.TimetableJob) error {
		if job.Status != model.JobStatusRunning && job.Status != model.JobStatusPaused {
			return ErrInvalidTransition
		}
		job.Progress = progress
		job.Phase = phase
		job.AppendProgress(phase, progress, message)
		return nil
	})
	if err != nil {
		return err
	}
	s.cacheProgress(ctx, job, message)
	return nil
}

// ────────────────────── SubmitResult ──────────────────────

// SubmitResult 外部回传的结果载荷，解析校验后按完成处理
func (s *jobService) SubmitResult(ctx context.Context, id string, payload []byte) (*dto.JobResponse, error) {
	result, err := solver.ParseResult(payload)
	if err != nil {
		return nil, err
	}
	if err := s.CompleteJob(ctx, id, result); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ────────────────────── CompleteJob ──────────────────────

// CompleteJob 载荷原样保存；同一事务内建立主版本、展开考场与监考安排并重算冲突
func (s *jobService) CompleteJob(ctx context.Context, id string, result *solver.Result) error {
	var (
		version *model.TimetableVersion
		held    bool
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		job, err := tx.Job.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}

		// 暂停期间求解器已返回：先保存结果，恢复时再完成
		if job.Status == model.JobStatusPaused {
			if err := storeResult(job, result); err != nil {
				return err
			}
			job.AppendProgress(job.Phase, job.Progress, "暂停期间求解完成，结果已保存，恢复后生效")
			held = true
			return tx.Job.Update(ctx, job)
		}
		if !canTransition(job.Status, model.JobStatusCompleted) {
			return ErrInvalidTransition
		}

		if err := storeResult(job, result); err != nil {
			return err
		}
		now := time.Now().UTC()
		job.Progress = 100
		job.Phase = phaseComplete
		job.CompletedAt = &now
		job.AppendProgress(phaseComplete, 100, fmt.Sprintf("求解完成，%d 场考试已安排", len(result.Assignments)))
		if err := s.transition(job, model.JobStatusCompleted); err != nil {
			return err
		}
		if err := tx.Job.Update(ctx, job); err != nil {
			return err
		}

		version, _, err = ensureJobVersion(ctx, tx, job, result)
		return err
	})
	if err != nil {
		s.logger.Error("保存求解结果失败", zap.String("job_id", id), zap.Error(err))
		return err
	}
	if held {
		s.logger.Info("任务处于暂停状态，求解结果已保存待恢复", zap.String("job_id", id))
		return nil
	}

	metrics.JobFinished()
	s.dropProgress(ctx, id)
	s.logger.Info("排考任务完成", zap.String("job_id", id), zap.String("version_id", version.VersionID), zap.Int("exams", len(result.Assignments)))
	return nil
}

// storeResult 原始载荷与指标写入任务
func storeResult(job *model.TimetableJob, result *solver.Result) error {
	raw := result.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return err
		}
	}
	job.ResultPayload = datatypes.JSON(raw)
	job.Metrics = datatypes.NewJSONType(model.JobMetrics{
		HardViolations: result.Metrics.HardViolations,
		SoftViolations: result.Metrics.SoftViolations,
		Utilization:    result.Metrics.Utilization,
		SolveSeconds:   result.Metrics.SolveSeconds,
		Extra:          result.Metrics.Extra,
	})
	return nil
}

// ────────────────────── FailJob ──────────────────────

func (s *jobService) FailJob(ctx context.Context, id string, message string) error {
	return s.fail(ctx, id, message, true)
}

// ────────────────────── RecoverInterrupted ──────────────────────

func (s *jobService) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.repo.Job.ListByStatus(ctx, model.JobStatusRunning, model.JobStatusPaused)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range jobs {
		// 上一个进程的计数不在本进程的 gauge 中
		if err := s.fail(ctx, job.JobID, "服务重启，求解中断", false); err != nil {
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Warn("已回收中断的排考任务", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *jobService) fail(ctx context.Context, id, message string, counted bool) error {
	_, err := s.mutate(ctx, id, func(job *model.TimetableJob) error {
		now := time.Now().UTC()
		job.ErrorMessage = message
		job.CompletedAt = &now
		job.AppendProgress(phaseFailed, job.Progress, message)
		return s.transition(job, model.JobStatusFailed)
	})
	if err != nil {
		s.logger.Error("标记任务失败出错", zap.String("job_id", id), zap.Error(err))
		return err
	}
	if counted {
		metrics.JobFinished()
	}
	s.dropProgress(ctx, id)
	s.logger.Warn("排考任务失败", zap.String("job_id", id), zap.String("reason", message))
	return nil
}

// ── 内部辅助方法 ──

func (s *jobService) get(ctx context.Context, id string) (*model.TimetableJob, error) {
	job, err := s.repo.Job.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// mutate 读取 → 修改 → 乐观锁写回；版本冲突时重读重试
func (s *jobService) mutate(ctx context.Context, id string, fn func(job *model.TimetableJob) error) (*model.TimetableJob, error) {
	for attempt := 1; ; attempt++ {
		job, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return nil, err
		}
		err = s.repo.Job.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) || attempt >= jobUpdateRetries {
			return nil, err
		}
	}
}

// transition 校验并切换状态，能力标志随状态派生
func (s *jobService) transition(job *model.TimetableJob, to string) error {
	if !canTransition(job.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, to)
	}
	job.SetStatus(to)
	metrics.RecordJobTransition(to)
	return nil
}

func (s *jobService) cacheProgress(ctx context.Context, job *model.TimetableJob, message string) {
	if s.progress == nil {
		return
	}
	snap := &redis.ProgressSnapshot{
		JobID:     job.JobID,
		Status:    job.Status,
		Progress:  job.Progress,
		Phase:     job.Phase,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.progress.SetProgress(ctx, snap); err != nil {
		s.logger.Warn("写入进度缓存失败", zap.String("job_id", job.JobID), zap.Error(err))
	}
}

func (s *jobService) dropProgress(ctx context.Context, id string) {
	if s.progress == nil {
		return
	}
	if err := s.progress.DeleteProgress(ctx, id); err != nil {
		s.logger.Warn("清理进度缓存失败", zap.String("job_id", id), zap.Error(err))
	}
}

// ════════════════════════════════════════════════════════════
// 结果展开为版本
// ════════════════════════════════════════════════════════════

// ensureJobVersion 已完成任务的主版本；不存在时按结果载荷建立并重算冲突。
// 编号在任务所属方案内（无方案时在会话内无方案的版本中）取最大值加一。
func ensureJobVersion(ctx context.Context, tx *repository.Repository, job *model.TimetableJob, result *solver.Result) (*model.TimetableVersion, bool, error) {
	existing, err := tx.Version.GetPrimaryByJob(ctx, job.JobID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if result == nil {
		if !job.HasResult() {
			return nil, false, fmt.Errorf("%w: 任务没有结果载荷", solver.ErrInvalidResult)
		}
		if result, err = solver.ParseResult(job.ResultPayload); err != nil {
			return nil, false, err
		}
	}

	maxNo, err := tx.Version.MaxVersionNumber(ctx, job.SessionID, job.ScenarioID)
	if err != nil {
		return nil, false, err
	}
	jobID := job.JobID
	version := &model.TimetableVersion{
		JobID:         &jobID,
		SessionID:     job.SessionID,
		ScenarioID:    job.ScenarioID,
		VersionNumber: maxNo + 1,
		VersionType:   model.VersionTypePrimary,
		CreatedBy:     job.InitiatedBy,
	}
	if err := tx.Version.Create(ctx, version); err != nil {
		return nil, false, err
	}
	if err := materializeAssignments(ctx, tx, version, result); err != nil {
		return nil, false, err
	}
	if _, err := recomputeConflicts(ctx, tx, version.VersionID); err != nil {
		return nil, false, err
	}
	return version, true, nil
}

// materializeAssignments 每场考试每个考场一行；监考未指定考场时挂到第一个考场
func materializeAssignments(ctx context.Context, tx *repository.Repository, version *model.TimetableVersion, result *solver.Result) error {
	known, err := sessionRefs(ctx, tx, version.SessionID)
	if err != nil {
		return err
	}

	examIDs := make([]string, 0, len(result.Assignments))
	for id := range result.Assignments {
		examIDs = append(examIDs, id)
	}
	sort.Strings(examIDs)

	var (
		assignments  []model.TimetableAssignment
		invigilators []model.TimetableInvigilator
	)
	for _, examID := range examIDs {
		ea := result.Assignments[examID]
		if !known.exams[examID] {
			return fmt.Errorf("%w: 考试 %s 不属于该学期", solver.ErrInvalidResult, examID)
		}
		day, err := time.Parse("2006-01-02", ea.Date)
		if err != nil {
			return fmt.Errorf("%w: 考试 %s 日期格式错误", solver.ErrInvalidResult, examID)
		}

		byRoom := make(map[string]string, len(ea.Rooms))
		first := ""
		for _, room := range ea.Rooms {
			if !known.rooms[room.RoomID] {
				return fmt.Errorf("%w: 考场 %s 不属于该学期", solver.ErrInvalidResult, room.RoomID)
			}
			id := uuid.NewString()
			if first == "" {
				first = id
			}
			byRoom[room.RoomID] = id
			assignments = append(assignments, model.TimetableAssignment{
				AssignmentID:      id,
				VersionID:         version.VersionID,
				ExamID:            examID,
				RoomID:            room.RoomID,
				ExamDate:          day,
				PeriodIndex:       ea.PeriodIndex,
				AllocatedCapacity: room.Students,
			})
		}

		chief := make(map[string]bool)
		for _, inv := range ea.Invigilators {
			if !known.staff[inv.StaffID] {
				return fmt.Errorf("%w: 监考 %s 不属于该学期", solver.ErrInvalidResult, inv.StaffID)
			}
			target := first
			if inv.RoomID != "" {
				id, ok := byRoom[inv.RoomID]
				if !ok {
					return fmt.Errorf("%w: 考试 %s 的监考考场 %s 未分配", solver.ErrInvalidResult, examID, inv.RoomID)
				}
				target = id
			}
			role := inv.Role
			if role == "" {
				role = model.InvigilatorRoleAssistant
				if !chief[target] {
					role = model.InvigilatorRoleChief
				}
			}
			if role == model.InvigilatorRoleChief {
				chief[target] = true
			}
			invigilators = append(invigilators, model.TimetableInvigilator{
				VersionID:    version.VersionID,
				AssignmentID: target,
				StaffID:      inv.StaffID,
				Role:         role,
			})
		}
	}

	if err := tx.Assignment.BatchCreate(ctx, assignments); err != nil {
		return fmt.Errorf("写入考场安排失败: %w", err)
	}
	if err := tx.Assignment.BatchCreateInvigilators(ctx, invigilators); err != nil {
		return fmt.Errorf("写入监考安排失败: %w", err)
	}
	return nil
}

type refSet struct {
	exams, rooms, staff map[string]bool
}

func sessionRefs(ctx context.Context, tx *repository.Repository, sessionID string) (*refSet, error) {
	exams, err := tx.Production.ListExams(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rooms, err := tx.Production.ListRooms(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	staff, err := tx.Production.ListStaff(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := &refSet{
		exams: make(map[string]bool, len(exams)),
		rooms: make(map[string]bool, len(rooms)),
		staff: make(map[string]bool, len(staff)),
	}
	for _, e := range exams {
		out.exams[e.ExamID] = true
	}
	for _, r := range rooms {
		out.rooms[r.RoomID] = true
	}
	for _, st := range staff {
		out.staff[st.StaffID] = true
	}
	return out, nil
}

func toJobResponse(j *model.TimetableJob) dto.JobResponse {
	resp := dto.JobResponse{
		ID:              j.JobID,
		SessionID:       j.SessionID,
		ConfigurationID: j.ConfigurationID,
		ScenarioID:      j.ScenarioID,
		InitiatedBy:     j.InitiatedBy,
		Status:          j.Status,
		CanPause:        j.CanPause,
		CanResume:       j.CanResume,
		CanCancel:       j.CanCancel,
		Progress:        j.Progress,
		Phase:           j.Phase,
		HasResult:       j.HasResult(),
		ErrorMessage:    j.ErrorMessage,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		CreatedAt:       j.CreatedAt,
		Version:         j.Version,
	}
	for _, e := range j.ProgressLog {
		resp.ProgressLog = append(resp.ProgressLog, dto.ProgressEntry{At: e.At, Phase: e.Phase, Progress: e.Progress, Message: e.Message})
	}
	m := j.Metrics.Data()
	if j.Status == model.JobStatusCompleted {
		resp.Metrics = &dto.JobMetrics{
			HardViolations: m.HardViolations,
			SoftViolations: m.SoftViolations,
			Utilization:    m.Utilization,
			SolveSeconds:   m.SolveSeconds,
			Extra:          m.Extra,
		}
	}
	return resp
}
