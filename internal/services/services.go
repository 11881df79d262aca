package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/anomaly"
	"github.com/sjperalta/interlock-api/internal/authority"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/logparser"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Log          *LogService
	Schedule     *ScheduleService
	Action       *ActionService
	Notification *NotificationService
	Audit        *AuditService
	Export       *ExportService
	Job          *JobService
}

// Deps are the collaborators the services are built from
type Deps struct {
	Repos     *repository.Repositories
	Worker    *jobs.Worker
	Blobs     storage.BlobStore
	Authority authority.LicensingAuthority
	Locker    lock.Locker
	Events    events.Publisher
	Config    *config.Config
}

// NewServices creates all service instances
func NewServices(deps Deps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())

	notificationSvc := NewNotificationService(deps.Repos.Notification)
	auditSvc := NewAuditService(deps.Repos.Audit)

	scheduleSvc := NewScheduleService(deps.Repos.Schedule, locker, notificationSvc, auditSvc, publisher, deps.Worker, validate, ScheduleOptions{
		SweepWorkers:      cfg.SweepWorkers,
		ReminderDaysAhead: cfg.ReminderDaysAhead,
	})
	logSvc := NewLogService(deps.Repos.Log, deps.Blobs, logparser.New(cfg.LogMaxRows), anomaly.New(),
		scheduleSvc, notificationSvc, auditSvc, publisher, deps.Worker, locker, validate)
	actionSvc := NewActionService(deps.Repos.Action, logSvc, deps.Authority, notificationSvc, auditSvc,
		publisher, deps.Worker, locker, validate, cfg.AuthorityTimeout)

	return &Services{
		Log:          logSvc,
		Schedule:     scheduleSvc,
		Action:       actionSvc,
		Notification: notificationSvc,
		Audit:        auditSvc,
		Export:       NewExportService(deps.Repos.Log, deps.Repos.Schedule, deps.Repos.Action),
		Job:          NewJobService(deps.Worker),
	}
}

// SetClock replaces the time source of every service
func (s *Services) SetClock(now func() time.Time) {
	s.Log.now = now
	s.Schedule.now = now
	s.Action.now = now
	s.Export.now = now
}

// runAsync hands side effects to the worker, or runs them inline without one
func runAsync(worker *jobs.Worker, job jobs.Job) {
	if worker == nil {
		_ = job(context.Background())
		return
	}
	worker.EnqueueAsync(job)
}
