package handlers

import (
	"github.com/sjperalta/interlock-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health       *HealthHandler
	Log          *LogHandler
	Schedule     *ScheduleHandler
	Action       *ActionHandler
	Notification *NotificationHandler
	Report       *ReportHandler
	Audit        *AuditHandler
	Job          *JobHandler
}

// NewHandlers creates all handler instances. maxUploadBytes caps a log upload.
func NewHandlers(svcs *services.Services, maxUploadBytes int64) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Log:          NewLogHandler(svcs.Log, maxUploadBytes),
		Schedule:     NewScheduleHandler(svcs.Schedule),
		Action:       NewActionHandler(svcs.Action),
		Notification: NewNotificationHandler(svcs.Notification),
		Report:       NewReportHandler(svcs.Export),
		Audit:        NewAuditHandler(svcs.Audit),
		Job:          NewJobHandler(svcs.Job),
	}
}
