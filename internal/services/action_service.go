package services

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/authority"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/observability"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/statemachine"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// DefaultAuthorityTimeout bounds a licensing authority call
const DefaultAuthorityTimeout = 10 * time.Second

// CreateActionInput is an administrator's intervention request
type CreateActionInput struct {
	LogID      *string           `json:"log_id"`
	SubjectID  uint              `json:"subject_id" validate:"required"`
	AdminID    uint              `json:"admin_id" validate:"required"`
	ActionType models.ActionType `json:"action_type" validate:"required"`
	Detail     string            `json:"detail" validate:"max=4000"`
}

// ActionService owns admin action creation, execution and acknowledgement
type ActionService struct {
	repo             repository.ActionRepository
	logSvc           *LogService
	authority        authority.LicensingAuthority
	notificationSvc  *NotificationService
	auditSvc         *AuditService
	publisher        events.Publisher
	worker           *jobs.Worker
	locker           lock.Locker
	validate         *validator.Validate
	authorityTimeout time.Duration
	now              func() time.Time
}

func NewActionService(
	repo repository.ActionRepository,
	logSvc *LogService,
	licensing authority.LicensingAuthority,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	publisher events.Publisher,
	worker *jobs.Worker,
	locker lock.Locker,
	validate *validator.Validate,
	authorityTimeout time.Duration,
) *ActionService {
	if licensing == nil {
		licensing = authority.NewMock()
	}
	if authorityTimeout <= 0 {
		authorityTimeout = DefaultAuthorityTimeout
	}
	return &ActionService{
		repo:             repo,
		logSvc:           logSvc,
		authority:        licensing,
		notificationSvc:  notificationSvc,
		auditSvc:         auditSvc,
		publisher:        publisher,
		worker:           worker,
		locker:           locker,
		validate:         validate,
		authorityTimeout: authorityTimeout,
		now:              time.Now,
	}
}

func actionKey(id string) string {
	return "action:" + id
}

// CreateAction persists a PENDING action, links it to its log and executes it
// straight away. Execution failures end up on the returned action as FAILED;
// only validation and persistence errors are returned.
func (s *ActionService) CreateAction(ctx context.Context, input CreateActionInput) (*models.AdminAction, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid(err)
	}
	if !input.ActionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action type %s", ErrInvalidInput, input.ActionType)
	}
	if input.LogID != nil && *input.LogID == "" {
		input.LogID = nil
	}

	if input.LogID != nil {
		log, err := s.logSvc.FindByID(ctx, *input.LogID)
		if err != nil {
			return nil, err
		}
		if log.SubjectID != input.SubjectID {
			return nil, fmt.Errorf("%w: log %s belongs to subject %d", ErrInvalidInput, log.ID, log.SubjectID)
		}
	}

	action := &models.AdminAction{
		LogID:       input.LogID,
		SubjectID:   input.SubjectID,
		AdminID:     input.AdminID,
		ActionType:  input.ActionType,
		Detail:      input.Detail,
		Status:      models.ActionStatusPending,
		CreatedTime: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, action); err != nil {
		logger.Error("Failed to create admin action", "subject_id", input.SubjectID, "action_type", input.ActionType, "error", err)
		return nil, err
	}
	logger.Info("Admin action created",
		"action_id", action.ID,
		"subject_id", action.SubjectID,
		"admin_id", action.AdminID,
		"action_type", action.ActionType)

	if action.LogID != nil {
		if err := s.logSvc.MarkActioned(ctx, *action.LogID, action.ID); err != nil {
			logger.Error("Failed to link action to log", "action_id", action.ID, "log_id", *action.LogID, "error", err)
		}
	}

	s.auditSvc.Log(ctx, action.AdminID, AuditActionCreate, models.EntityAction, action.ID,
		fmt.Sprintf("%s for subject %d", action.ActionType, action.SubjectID))

	executed, err := s.Execute(ctx, action.ID)
	if err != nil {
		logger.Error("Admin action did not execute", "action_id", action.ID, "error", err)
		return action, nil
	}

	issued := *executed
	runAsync(s.worker, func(ctx context.Context) error {
		message := issued.ActionType.Title()
		if issued.Detail != "" {
			message = message + ": " + issued.Detail
		}
		return s.notificationSvc.NotifySubject(ctx, issued.SubjectID,
			issued.ActionType.Title(), message, models.NotificationTypeActionIssued, &issued.ID)
	})

	return executed, nil
}

// Execute runs a PENDING action. License-affecting types are relayed to the
// licensing authority with a bounded timeout; a failed relay marks the action
// FAILED. No lock is held during the relay.
func (s *ActionService) Execute(ctx context.Context, id string) (*models.AdminAction, error) {
	action, err := s.start(ctx, id)
	if err != nil {
		return nil, err
	}

	var execErr error
	if action.ActionType.AffectsLicense() {
		execErr = s.relay(ctx, action)
	}

	fsm := statemachine.NewActionFSM(action)
	if execErr != nil {
		detail := execErr.Error()
		action.ErrorDetail = &detail
		if err := fsm.Fail(ctx); err != nil {
			return nil, err
		}
	} else {
		if err := fsm.Complete(ctx); err != nil {
			return nil, err
		}
		completed := s.now().UTC()
		action.CompletedTime = &completed
	}

	if err := s.repo.Update(ctx, action); err != nil {
		logger.Error("Failed to store action outcome", "action_id", id, "status", action.Status, "error", err)
		return nil, err
	}

	observability.Actions().WithLabelValues(string(action.ActionType), string(action.Status)).Inc()
	s.auditSvc.Log(ctx, action.AdminID, AuditActionExecute, models.EntityAction, action.ID, "Status "+string(action.Status))

	finished := *action
	if execErr != nil {
		logger.Error("Admin action failed", "action_id", id, "action_type", action.ActionType, "error", execErr)
		sentry.CaptureException(fmt.Errorf("action %s (%s) failed: %w", id, action.ActionType, execErr))
		runAsync(s.worker, func(ctx context.Context) error {
			return s.publisher.Publish(ctx, events.SubjectActionFailed, finished)
		})
	} else {
		logger.Info("Admin action completed", "action_id", id, "action_type", action.ActionType, "authority_synced", action.AuthoritySynced)
		runAsync(s.worker, func(ctx context.Context) error {
			return s.publisher.Publish(ctx, events.SubjectActionExecuted, finished)
		})
	}

	return action, nil
}

// start moves the action to IN_PROGRESS under its lock
func (s *ActionService) start(ctx context.Context, id string) (*models.AdminAction, error) {
	unlock, err := s.locker.Lock(ctx, actionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	action, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fsm := statemachine.NewActionFSM(action)
	if err := fsm.Start(ctx); err != nil {
		return nil, fmt.Errorf("cannot execute action %s: %w", id, err)
	}
	executed := s.now().UTC()
	action.ExecutedTime = &executed

	if err := s.repo.Update(ctx, action); err != nil {
		return nil, err
	}
	return action, nil
}

// relay calls the licensing authority and stores its reply on the action
func (s *ActionService) relay(ctx context.Context, action *models.AdminAction) error {
	callCtx, cancel := context.WithTimeout(ctx, s.authorityTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.authority.Apply(callCtx, action.ActionType, action.SubjectID)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		observability.AuthorityLatency().WithLabelValues("error").Observe(elapsed)
		msg := err.Error()
		action.AuthoritySynced = false
		action.AuthorityResponse = &msg
		return fmt.Errorf("licensing authority: %w", err)
	}

	outcome := "accepted"
	if !result.Success {
		outcome = "rejected"
	}
	observability.AuthorityLatency().WithLabelValues(outcome).Observe(elapsed)

	raw := result.Raw
	if raw == "" {
		raw = result.Message
	}
	action.AuthoritySynced = result.Success
	action.AuthorityResponse = &raw
	logger.Info("Licensing authority replied", "action_id", action.ID, "success", result.Success, "message", result.Message)
	return nil
}

// Cancel withdraws an action that has not started
func (s *ActionService) Cancel(ctx context.Context, id string, adminID uint) (*models.AdminAction, error) {
	unlock, err := s.locker.Lock(ctx, actionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	action, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fsm := statemachine.NewActionFSM(action)
	if err := fsm.Cancel(ctx); err != nil {
		return nil, fmt.Errorf("cannot cancel action %s: %w", id, err)
	}
	if err := s.repo.Update(ctx, action); err != nil {
		return nil, err
	}

	observability.Actions().WithLabelValues(string(action.ActionType), string(action.Status)).Inc()
	s.auditSvc.Log(ctx, adminID, AuditActionCancel, models.EntityAction, action.ID, "Cancelled")
	logger.Info("Admin action cancelled", "action_id", id, "admin_id", adminID)

	cancelled := *action
	runAsync(s.worker, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.SubjectActionCancelled, cancelled)
	})
	return action, nil
}

// MarkRead acknowledges an action on behalf of its subject. Acknowledging
// twice keeps the first read time.
func (s *ActionService) MarkRead(ctx context.Context, id string, subjectID uint) (*models.AdminAction, error) {
	action, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.SubjectID != subjectID {
		logger.Warn("Action acknowledgement by another subject refused", "action_id", id, "subject_id", subjectID)
		return nil, fmt.Errorf("action %s belongs to another subject: %w", id, ErrPermissionDenied)
	}
	if action.IsRead {
		return action, nil
	}

	readAt := s.now().UTC()
	changed, err := s.repo.MarkRead(ctx, id, readAt)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Someone else acknowledged it first; return the stored read time
		return s.FindByID(ctx, id)
	}
	action.MarkRead(readAt)
	logger.Info("Admin action acknowledged", "action_id", id, "subject_id", subjectID)
	return action, nil
}

// FindByID gets an admin action by ID
func (s *ActionService) FindByID(ctx context.Context, id string) (*models.AdminAction, error) {
	action, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "admin action "+id)
	}
	return action, nil
}

// ListForSubject lists a subject's actions, unread first then newest first
func (s *ActionService) ListForSubject(ctx context.Context, subjectID uint) ([]models.AdminAction, error) {
	return s.repo.FindBySubject(ctx, subjectID)
}

func (s *ActionService) FindByLog(ctx context.Context, logID string) ([]models.AdminAction, error) {
	return s.repo.FindByLog(ctx, logID)
}

func (s *ActionService) FindByAdmin(ctx context.Context, adminID uint) ([]models.AdminAction, error) {
	return s.repo.FindByAdmin(ctx, adminID)
}

func (s *ActionService) FindUnread(ctx context.Context) ([]models.AdminAction, error) {
	return s.repo.FindUnread(ctx)
}

// FindByStatus lists actions in one status
func (s *ActionService) FindByStatus(ctx context.Context, status models.ActionStatus) ([]models.AdminAction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown action status %s", ErrInvalidInput, status)
	}
	return s.repo.FindByStatus(ctx, status)
}
