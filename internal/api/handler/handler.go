package handler

import "exam-timetable/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Session    *SessionHandler
	TimeSlot   *TimeSlotHandler
	Staging    *StagingHandler
	Constraint *ConstraintHandler
	Job        *JobHandler
	Version    *VersionHandler
	Scenario   *ScenarioHandler
	Conflict   *ConflictHandler
	Audit      *AuditHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Session:    NewSessionHandler(svc.Session),
		TimeSlot:   NewTimeSlotHandler(svc.Template),
		Staging:    NewStagingHandler(svc.Staging, svc.ETL),
		Constraint: NewConstraintHandler(svc.Constraint),
		Job:        NewJobHandler(svc.Job, svc.Version),
		Version:    NewVersionHandler(svc.Version),
		Scenario:   NewScenarioHandler(svc.Scenario),
		Conflict:   NewConflictHandler(svc.Conflict),
		Audit:      NewAuditHandler(svc.Audit),
		Export:     NewExportHandler(svc.Export),
	}
}
