package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/dto"
	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
	"exam-timetable/pkg/database"
)

// ── 方案分支模块业务错误 ──

var (
	ErrScenarioNotFound    = errors.New("方案分支不存在")
	ErrScenarioArchived    = errors.New("方案分支已归档")
	ErrScenarioSession     = errors.New("方案分支不属于该学期会话")
	ErrScenarioEmpty       = errors.New("方案分支下没有版本")
	ErrVersionNotDraft     = errors.New("只能调整方案分支中的草稿版本")
	ErrAssignmentNotFound  = errors.New("考场安排不存在")
	ErrPlacementInvalid    = errors.New("日期或时段不在考试周安排范围内")
	ErrRoomNotInSession    = errors.New("考场不存在或已停用")
	ErrExamNotInSession    = errors.New("考试不属于该学期会话")
	ErrLockNotFound        = errors.New("锁定记录不存在")
	ErrLockAlreadyInactive = errors.New("锁定记录已失效")
)

// ScenarioService 方案分支、草稿版本调整与人工锁定
type ScenarioService interface {
	Branch(ctx context.Context, req *dto.CreateScenarioRequest, actor string) (*dto.BranchResponse, error)
	List(ctx context.Context, sessionID string, includeArchived bool) ([]dto.ScenarioResponse, error)
	Get(ctx context.Context, id string) (*dto.ScenarioResponse, error)
	Archive(ctx context.Context, id string, actor string) error
	CreateVersion(ctx context.Context, scenarioID string, actor string) (*dto.VersionResponse, error)
	MoveAssignment(ctx context.Context, assignmentID string, req *dto.MoveAssignmentRequest, actor string) (*dto.AssignmentResponse, error)

	CreateLock(ctx context.Context, req *dto.CreateLockRequest, actor string) (*model.ExamLock, error)
	ListLocks(ctx context.Context, sessionID string) ([]model.ExamLock, error)
	DeactivateLock(ctx context.Context, id string, actor string) error
	DeleteLock(ctx context.Context, id string, actor string) error
}

type scenarioService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewScenarioService 创建 ScenarioService 实例
func NewScenarioService(repo *repository.Repository, logger *zap.Logger) ScenarioService {
	return &scenarioService{repo: repo, logger: logger}
}

// ────────────────────── Branch ──────────────────────

// Branch 从父版本建立方案分支：方案 + 编号为 1 的草稿版本 + 全部安排的副本，不发布
func (s *scenarioService) Branch(ctx context.Context, req *dto.CreateScenarioRequest, actor string) (*dto.BranchResponse, error) {
	parent, err := getVersion(ctx, s.repo, req.ParentVersionID)
	if err != nil {
		return nil, err
	}
	if err := requireOpenSession(ctx, s.repo, parent.SessionID); err != nil {
		return nil, err
	}

	var (
		scenario *model.TimetableScenario
		version  *model.TimetableVersion
		copied   int
	)
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		scenario = &model.TimetableScenario{
			SessionID:       parent.SessionID,
			ParentVersionID: parent.VersionID,
			Name:            req.Name,
			Description:     req.Description,
			CreatedBy:       actor,
		}
		if err := tx.Scenario.Create(ctx, scenario); err != nil {
			return err
		}

		parentID := parent.VersionID
		version = &model.TimetableVersion{
			JobID:           parent.JobID,
			SessionID:       parent.SessionID,
			ScenarioID:      &scenario.ScenarioID,
			ParentVersionID: &parentID,
			VersionNumber:   1,
			VersionType:     model.VersionTypeDraft,
			Notes:           fmt.Sprintf("由版本 %d 分支", parent.VersionNumber),
			CreatedBy:       actor,
		}
		if err := tx.Version.Create(ctx, version); err != nil {
			return err
		}

		n, err := copyAssignments(ctx, tx, parent.VersionID, version.VersionID)
		if err != nil {
			return err
		}
		copied = n
		if _, err := recomputeConflicts(ctx, tx, version.VersionID); err != nil {
			return err
		}

		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionBranch,
			EntityType: "timetable_scenario", EntityID: scenario.ScenarioID, SessionID: parent.SessionID,
			After: map[string]any{
				"name":              scenario.Name,
				"parent_version_id": parent.VersionID,
				"version_id":        version.VersionID,
				"copied":            copied,
			},
		})
	})
	if err != nil {
		s.logger.Error("创建方案分支失败", zap.String("parent_version_id", req.ParentVersionID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("方案分支已创建",
		zap.String("scenario_id", scenario.ScenarioID),
		zap.String("version_id", version.VersionID),
		zap.Int("copied", copied),
	)
	return &dto.BranchResponse{
		Scenario: toScenarioResponse(scenario),
		Version:  toVersionResponse(version),
		Copied:   copied,
	}, nil
}

// ────────────────────── List / Get / Archive ──────────────────────

func (s *scenarioService) List(ctx context.Context, sessionID string, includeArchived bool) ([]dto.ScenarioResponse, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}
	scenarios, err := s.repo.Scenario.List(ctx, sessionID, includeArchived)
	if err != nil {
		s.logger.Error("查询方案分支失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.ScenarioResponse, 0, len(scenarios))
	for i := range scenarios {
		out = append(out, toScenarioResponse(&scenarios[i]))
	}
	return out, nil
}

func (s *scenarioService) Get(ctx context.Context, id string) (*dto.ScenarioResponse, error) {
	scenario, err := getScenario(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	resp := toScenarioResponse(scenario)
	return &resp, nil
}

// Archive 软归档，方案及其版本保留
func (s *scenarioService) Archive(ctx context.Context, id string, actor string) error {
	scenario, err := getScenario(ctx, s.repo, id)
	if err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.Scenario.Archive(ctx, id, time.Now().UTC())
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrScenarioArchived
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionArchive,
			EntityType: "timetable_scenario", EntityID: id, SessionID: scenario.SessionID,
			Before: map[string]any{"is_archived": false},
			After:  map[string]any{"is_archived": true},
		})
	})
}

// ────────────────────── CreateVersion ──────────────────────

// CreateVersion 以方案内最新版本为底稿复制出新的草稿版本，编号为方案内最大值加一
func (s *scenarioService) CreateVersion(ctx context.Context, scenarioID string, actor string) (*dto.VersionResponse, error) {
	scenario, err := getScenario(ctx, s.repo, scenarioID)
	if err != nil {
		return nil, err
	}
	if scenario.IsArchived {
		return nil, ErrScenarioArchived
	}

	var version *model.TimetableVersion
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		versions, err := tx.Version.ListBySession(ctx, scenario.SessionID, &scenario.ScenarioID)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return ErrScenarioEmpty
		}
		latest := versions[0]

		maxNo, err := tx.Version.MaxVersionNumber(ctx, scenario.SessionID, &scenario.ScenarioID)
		if err != nil {
			return err
		}
		latestID := latest.VersionID
		version = &model.TimetableVersion{
			JobID:           latest.JobID,
			SessionID:       scenario.SessionID,
			ScenarioID:      &scenario.ScenarioID,
			ParentVersionID: &latestID,
			VersionNumber:   maxNo + 1,
			VersionType:     model.VersionTypeDraft,
			CreatedBy:       actor,
		}
		if err := tx.Version.Create(ctx, version); err != nil {
			return err
		}
		if _, err := copyAssignments(ctx, tx, latest.VersionID, version.VersionID); err != nil {
			return err
		}
		if _, err := recomputeConflicts(ctx, tx, version.VersionID); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "timetable_version", EntityID: version.VersionID, SessionID: scenario.SessionID,
			After: map[string]any{"scenario_id": scenarioID, "version_number": version.VersionNumber, "parent_version_id": latestID},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toVersionResponse(version)
	return &resp, nil
}

// ────────────────────── MoveAssignment ──────────────────────

// MoveAssignment 调整草稿版本的一条考场安排，同一事务内重算冲突
func (s *scenarioService) MoveAssignment(ctx context.Context, assignmentID string, req *dto.MoveAssignmentRequest, actor string) (*dto.AssignmentResponse, error) {
	current, err := s.repo.Assignment.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	version, err := getVersion(ctx, s.repo, current.VersionID)
	if err != nil {
		return nil, err
	}
	if version.VersionType != model.VersionTypeDraft || version.ScenarioID == nil {
		return nil, ErrVersionNotDraft
	}
	scenario, err := getScenario(ctx, s.repo, *version.ScenarioID)
	if err != nil {
		return nil, err
	}
	if scenario.IsArchived {
		return nil, ErrScenarioArchived
	}

	day, err := s.checkPlacement(ctx, version.SessionID, req.Date, req.PeriodIndex)
	if err != nil {
		return nil, err
	}
	if req.RoomID != nil {
		if err := s.checkRoom(ctx, version.SessionID, *req.RoomID); err != nil {
			return nil, err
		}
	}

	var moved *model.TimetableAssignment
	err = s.repo.WithinScope(ctx, database.ScopeVersion, version.VersionID, func(tx *repository.Repository) error {
		a, err := tx.Assignment.GetByID(ctx, assignmentID)
		if err != nil {
			return err
		}
		before := toAssignmentResponse(a)
		a.ExamDate = day
		a.PeriodIndex = req.PeriodIndex
		if req.RoomID != nil {
			a.RoomID = *req.RoomID
		}
		a.IsConfirmed = false
		if err := tx.Assignment.Update(ctx, a); err != nil {
			return err
		}
		if _, err := recomputeConflicts(ctx, tx, version.VersionID); err != nil {
			return err
		}
		moved = a
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "timetable_assignment", EntityID: assignmentID, SessionID: version.SessionID,
			Before: before, After: toAssignmentResponse(a),
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		s.logger.Error("调整考场安排失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("考场安排已调整",
		zap.String("assignment_id", assignmentID),
		zap.String("date", req.Date),
		zap.Int("period_index", req.PeriodIndex),
		zap.String("actor", actor),
	)
	resp := toAssignmentResponse(moved)
	return &resp, nil
}

// checkPlacement 日期须是考试周内的可用考试日，时段须存在于会话模板
func (s *scenarioService) checkPlacement(ctx context.Context, sessionID, date string, periodIndex int) (time.Time, error) {
	session, err := getSession(ctx, s.repo, sessionID)
	if err != nil {
		return time.Time{}, err
	}
	grid, err := buildGrid(session)
	if err != nil {
		return time.Time{}, err
	}
	day, err := parseDate(date)
	if err != nil {
		return time.Time{}, ErrPlacementInvalid
	}
	dayOK, periodOK := false, false
	for _, d := range grid.Days {
		if d == date {
			dayOK = true
		}
	}
	for _, p := range grid.Periods {
		if p.Index == periodIndex {
			periodOK = true
		}
	}
	if !dayOK || !periodOK {
		return time.Time{}, ErrPlacementInvalid
	}
	return day, nil
}

func (s *scenarioService) checkRoom(ctx context.Context, sessionID, roomID string) error {
	room, err := s.repo.Production.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotInSession
		}
		return err
	}
	if room.SessionID != sessionID || !room.IsActive {
		return ErrRoomNotInSession
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// 人工锁定
// ════════════════════════════════════════════════════════════

func (s *scenarioService) CreateLock(ctx context.Context, req *dto.CreateLockRequest, actor string) (*model.ExamLock, error) {
	if err := requireOpenSession(ctx, s.repo, req.SessionID); err != nil {
		return nil, err
	}
	if req.ScenarioID != nil {
		if _, err := openScenario(ctx, s.repo, *req.ScenarioID, req.SessionID); err != nil {
			return nil, err
		}
	}
	exam, err := s.repo.Production.GetExam(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotInSession
		}
		return nil, err
	}
	if exam.SessionID != req.SessionID {
		return nil, ErrExamNotInSession
	}
	day, err := s.checkPlacement(ctx, req.SessionID, req.Date, req.PeriodIndex)
	if err != nil {
		return nil, err
	}
	if req.RoomID != nil {
		if err := s.checkRoom(ctx, req.SessionID, *req.RoomID); err != nil {
			return nil, err
		}
	}

	lock := &model.ExamLock{
		LockID:      uuid.NewString(),
		SessionID:   req.SessionID,
		ScenarioID:  req.ScenarioID,
		ExamID:      req.ExamID,
		ExamDate:    day,
		PeriodIndex: req.PeriodIndex,
		RoomID:      req.RoomID,
		Reason:      req.Reason,
		IsActive:    true,
		CreatedBy:   actor,
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ExamLock.Create(ctx, lock); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionCreate,
			EntityType: "exam_lock", EntityID: lock.LockID, SessionID: lock.SessionID,
			After: req,
		})
	})
	if err != nil {
		s.logger.Error("创建锁定失败", zap.String("exam_id", req.ExamID), zap.Error(err))
		return nil, err
	}
	return lock, nil
}

func (s *scenarioService) ListLocks(ctx context.Context, sessionID string) ([]model.ExamLock, error) {
	if _, err := getSession(ctx, s.repo, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ExamLock.List(ctx, sessionID)
}

// DeactivateLock 失效后不再进入求解数据集，记录保留
func (s *scenarioService) DeactivateLock(ctx context.Context, id string, actor string) error {
	lock, err := s.getLock(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.ExamLock.Deactivate(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockAlreadyInactive
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionUpdate,
			EntityType: "exam_lock", EntityID: id, SessionID: lock.SessionID,
			Before: map[string]any{"is_active": true},
			After:  map[string]any{"is_active": false},
		})
	})
}

func (s *scenarioService) DeleteLock(ctx context.Context, id string, actor string) error {
	lock, err := s.getLock(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ExamLock.Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, auditRecord{
			Actor: actor, Action: model.AuditActionDelete,
			EntityType: "exam_lock", EntityID: id, SessionID: lock.SessionID,
			Before: lock,
		})
	})
}

func (s *scenarioService) getLock(ctx context.Context, id string) (*model.ExamLock, error) {
	lock, err := s.repo.ExamLock.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLockNotFound
		}
		return nil, err
	}
	return lock, nil
}

// ── 内部辅助方法 ──

func getScenario(ctx context.Context, repo *repository.Repository, id string) (*model.TimetableScenario, error) {
	scenario, err := repo.Scenario.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScenarioNotFound
		}
		return nil, err
	}
	return scenario, nil
}

// openScenario 方案须属于该会话且未归档
func openScenario(ctx context.Context, repo *repository.Repository, id, sessionID string) (*model.TimetableScenario, error) {
	scenario, err := getScenario(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if scenario.SessionID != sessionID {
		return nil, ErrScenarioSession
	}
	if scenario.IsArchived {
		return nil, ErrScenarioArchived
	}
	return scenario, nil
}

// copyAssignments 复制考场安排与监考安排，全部换用新 ID
func copyAssignments(ctx context.Context, tx *repository.Repository, fromVersionID, toVersionID string) (int, error) {
	source, err := tx.Assignment.ListByVersion(ctx, fromVersionID)
	if err != nil {
		return 0, err
	}
	assignments := make([]model.TimetableAssignment, 0, len(source))
	var invigilators []model.TimetableInvigilator
	for _, a := range source {
		id := uuid.NewString()
		for _, inv := range a.Invigilators {
			invigilators = append(invigilators, model.TimetableInvigilator{
				VersionID:    toVersionID,
				AssignmentID: id,
				StaffID:      inv.StaffID,
				Role:         inv.Role,
			})
		}
		a.AssignmentID = id
		a.VersionID = toVersionID
		a.Invigilators = nil
		a.BaseModel = model.BaseModel{}
		assignments = append(assignments, a)
	}
	if err := tx.Assignment.BatchCreate(ctx, assignments); err != nil {
		return 0, fmt.Errorf("复制考场安排失败: %w", err)
	}
	if err := tx.Assignment.BatchCreateInvigilators(ctx, invigilators); err != nil {
		return 0, fmt.Errorf("复制监考安排失败: %w", err)
	}
	return len(assignments), nil
}

func toScenarioResponse(sc *model.TimetableScenario) dto.ScenarioResponse {
	return dto.ScenarioResponse{
		ID:              sc.ScenarioID,
		SessionID:       sc.SessionID,
		ParentVersionID: sc.ParentVersionID,
		Name:            sc.Name,
		Description:     sc.Description,
		IsArchived:      sc.IsArchived,
		ArchivedAt:      sc.ArchivedAt,
		CreatedBy:       sc.CreatedBy,
		CreatedAt:       sc.CreatedAt,
	}
}
