package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/anomaly"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/logparser"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/observability"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/statemachine"
	"github.com/sjperalta/interlock-api/internal/storage"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// SubmitInput is one driving log upload
type SubmitInput struct {
	DeviceID    uint      `validate:"required"`
	SubjectID   uint      `validate:"required"`
	PeriodStart time.Time `validate:"required"`
	PeriodEnd   time.Time `validate:"required"`
	Notes       *string
	FileName    string `validate:"required,max=255"`
	MimeType    string
	Data        []byte
}

// ReviewInput records a reviewer's decision
type ReviewInput struct {
	LogID      string           `validate:"required"`
	Outcome    models.LogStatus `validate:"required"`
	ReviewerID uint             `validate:"required"`
	Notes      *string
}

// Download is a raw log file ready to stream back
type Download struct {
	Body     io.ReadCloser
	FileName string
	MimeType string
	Size     int64
}

// DeviceLogStats summarises the logs of one device
type DeviceLogStats struct {
	DeviceID  uint               `json:"device_id"`
	LogCount  int64              `json:"log_count"`
	LatestLog *models.DrivingLog `json:"latest_log"`
}

// LogService owns the driving log lifecycle from ingestion to review
type LogService struct {
	repo            repository.LogRepository
	blobs           storage.BlobStore
	parser          *logparser.Parser
	classifier      *anomaly.Classifier
	scheduleSvc     *ScheduleService
	notificationSvc *NotificationService
	auditSvc        *AuditService
	publisher       events.Publisher
	worker          *jobs.Worker
	locker          lock.Locker
	validate        *validator.Validate
	now             func() time.Time
}

func NewLogService(
	repo repository.LogRepository,
	blobs storage.BlobStore,
	parser *logparser.Parser,
	classifier *anomaly.Classifier,
	scheduleSvc *ScheduleService,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	publisher events.Publisher,
	worker *jobs.Worker,
	locker lock.Locker,
	validate *validator.Validate,
) *LogService {
	return &LogService{
		repo:            repo,
		blobs:           blobs,
		parser:          parser,
		classifier:      classifier,
		scheduleSvc:     scheduleSvc,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		publisher:       publisher,
		worker:          worker,
		locker:          locker,
		validate:        validate,
		now:             time.Now,
	}
}

func logKey(id string) string {
	return "log:" + id
}

// Submit stores, parses and classifies a driving log, then records the
// submission against the subject's schedule. A file that cannot be read back
// or parsed is classified on zero statistics and marked parse-failed.
func (s *LogService) Submit(ctx context.Context, input SubmitInput) (*models.DrivingLog, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid(err)
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	periodStart := models.DateOf(input.PeriodStart)
	periodEnd := models.DateOf(input.PeriodEnd)
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("%w: period end %s is before period start %s",
			ErrInvalidInput, periodEnd.Format(models.DateLayout), periodStart.Format(models.DateLayout))
	}

	mimeType := input.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(input.Data).String()
	}

	path, err := s.blobs.Store(ctx, input.Data, input.DeviceID, input.SubjectID, input.FileName)
	if err != nil {
		logger.Error("Failed to store driving log file", "device_id", input.DeviceID, "subject_id", input.SubjectID, "error", err)
		return nil, fmt.Errorf("store log file: %w", err)
	}

	result, parseErr := s.parse(ctx, path)
	stats := result.Statistics

	verdict := s.classifier.Classify(anomaly.Input{
		Statistics:  stats,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		FileSize:    int64(len(input.Data)),
	})

	submittedAt := s.now().UTC()
	log := &models.DrivingLog{
		DeviceID:       input.DeviceID,
		SubjectID:      input.SubjectID,
		SubmittedAt:    submittedAt,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Notes:          input.Notes,
		FilePath:       path,
		FileSize:       int64(len(input.Data)),
		FileName:       input.FileName,
		MimeType:       mimeType,
		Status:         models.InitialStatus(verdict.Anomaly),
		AnomalyType:    verdict.Anomaly,
		RiskLevel:      verdict.Risk,
		AnomalyDetails: verdict.Anomaly.Description(),
		AnalysisResult: analysisText(stats, verdict, result),
		Statistics:     stats,
	}
	if parseErr != nil {
		msg := parseErr.Error()
		log.ParseFailed = true
		log.ParseError = &msg
	}

	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("Failed to create driving log", "device_id", input.DeviceID, "subject_id", input.SubjectID, "error", err)
		if delErr := s.blobs.Delete(ctx, path); delErr != nil {
			logger.Warn("Failed to remove orphaned log file", "path", path, "error", delErr)
		}
		return nil, err
	}

	observability.LogsIngested().WithLabelValues(string(log.AnomalyType), string(log.RiskLevel)).Inc()
	logger.Info("Driving log submitted",
		"log_id", log.ID,
		"device_id", log.DeviceID,
		"subject_id", log.SubjectID,
		"status", log.Status,
		"anomaly_type", log.AnomalyType,
		"risk_level", log.RiskLevel,
		"rule", verdict.Rule,
		"parse_failed", log.ParseFailed)

	s.recordSubmission(ctx, log)

	s.auditSvc.Log(ctx, log.SubjectID, AuditSubmit, models.EntityDrivingLog, log.ID,
		fmt.Sprintf("Log %s for device %d, %s..%s, %s/%s", input.FileName, log.DeviceID,
			periodStart.Format(models.DateLayout), periodEnd.Format(models.DateLayout), log.AnomalyType, log.RiskLevel))

	submitted := *log
	runAsync(s.worker, func(ctx context.Context) error {
		_ = s.publisher.Publish(ctx, events.SubjectLogSubmitted, submitted)
		if submitted.Status != models.LogStatusFlagged {
			return nil
		}
		_ = s.publisher.Publish(ctx, events.SubjectLogFlagged, submitted)
		return s.notificationSvc.NotifySubject(ctx, submitted.SubjectID,
			"Driving log flagged",
			fmt.Sprintf("Your driving log %s was flagged for review: %s", submitted.FileName, submitted.AnomalyDetails),
			models.NotificationTypeLogFlagged, &submitted.ID)
	})

	return log, nil
}

// parse streams a stored file through the parser. On failure the zero
// result is returned together with the reason.
func (s *LogService) parse(ctx context.Context, path string) (logparser.Result, error) {
	rc, err := s.blobs.Open(ctx, path)
	if err != nil {
		logger.Warn("Stored log file unreadable, using zero statistics", "path", path, "error", err)
		return logparser.Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer rc.Close()

	result, err := s.parser.Parse(rc)
	if err != nil {
		logger.Warn("Log file could not be parsed, using zero statistics", "path", path, "error", err)
		return logparser.Result{}, err
	}
	if len(result.MissingColumns) > 0 {
		logger.Warn("Log file is missing columns", "path", path, "columns", strings.Join(result.MissingColumns, ","))
	}
	if result.Truncated {
		logger.Warn("Log file truncated at row limit", "path", path, "max_rows", s.parser.MaxRows)
	}
	return result, nil
}

func analysisText(stats models.Statistics, verdict anomaly.Verdict, result logparser.Result) string {
	text := anomaly.Summary(stats, verdict)
	var notes []string
	if result.Truncated {
		notes = append(notes, "file truncated at the row limit")
	}
	if result.Unrecognized > 0 {
		notes = append(notes, fmt.Sprintf("%d unrecognized test results", result.Unrecognized))
	}
	if result.MalformedRows > 0 {
		notes = append(notes, fmt.Sprintf("%d malformed rows counted as unrecognized", result.MalformedRows))
	}
	if len(result.MissingColumns) > 0 {
		notes = append(notes, "missing columns: "+strings.Join(result.MissingColumns, ", "))
	}
	if len(notes) > 0 {
		text += "Notes: " + strings.Join(notes, "; ") + "\n"
	}
	return text
}

// recordSubmission forwards the submission date to the schedule. The log is
// already persisted, so failures here are reported but not returned.
func (s *LogService) recordSubmission(ctx context.Context, log *models.DrivingLog) {
	if s.scheduleSvc == nil {
		return
	}
	_, _, err := s.scheduleSvc.RecordSubmission(ctx, log.SubjectID, log.SubmittedAt)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		logger.Warn("Log submitted by subject without a schedule", "subject_id", log.SubjectID, "log_id", log.ID)
	default:
		logger.Error("Failed to record submission on schedule", "subject_id", log.SubjectID, "log_id", log.ID, "error", err)
		sentry.CaptureException(fmt.Errorf("record submission for subject %d: %w", log.SubjectID, err))
	}
}

// FindByID gets a driving log by ID
func (s *LogService) FindByID(ctx context.Context, id string) (*models.DrivingLog, error) {
	log, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "driving log "+id)
	}
	return log, nil
}

// StartReview moves a submitted or flagged log to UNDER_REVIEW
func (s *LogService) StartReview(ctx context.Context, id string, reviewerID uint) (*models.DrivingLog, error) {
	if reviewerID == 0 {
		return nil, fmt.Errorf("%w: reviewer is required", ErrInvalidInput)
	}

	unlock, err := s.locker.Lock(ctx, logKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	log, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fsm := statemachine.NewLogFSM(log)
	if err := fsm.StartReview(ctx); err != nil {
		return nil, fmt.Errorf("cannot start review of log %s: %w", id, err)
	}
	log.ReviewerID = &reviewerID

	if err := s.repo.UpdateReview(ctx, log); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, reviewerID, AuditStartReview, models.EntityDrivingLog, log.ID, "Review started")
	logger.Info("Log review started", "log_id", id, "reviewer_id", reviewerID)
	return log, nil
}

// Review records a final APPROVED or REJECTED outcome
func (s *LogService) Review(ctx context.Context, input ReviewInput) (*models.DrivingLog, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid(err)
	}
	if !input.Outcome.IsReviewOutcome() {
		return nil, fmt.Errorf("%w: %s is not a review outcome", ErrInvalidInput, input.Outcome)
	}

	unlock, err := s.locker.Lock(ctx, logKey(input.LogID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	log, err := s.FindByID(ctx, input.LogID)
	if err != nil {
		return nil, err
	}

	fsm := statemachine.NewLogFSM(log)
	if err := fsm.Review(ctx, input.Outcome); err != nil {
		return nil, fmt.Errorf("cannot review log %s: %w", input.LogID, err)
	}
	reviewedAt := s.now().UTC()
	log.ReviewerID = &input.ReviewerID
	log.ReviewedAt = &reviewedAt
	log.ReviewNotes = input.Notes

	if err := s.repo.UpdateReview(ctx, log); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, input.ReviewerID, AuditReview, models.EntityDrivingLog, log.ID, "Outcome "+string(input.Outcome))
	logger.Info("Log reviewed", "log_id", log.ID, "reviewer_id", input.ReviewerID, "outcome", input.Outcome)

	reviewed := *log
	runAsync(s.worker, func(ctx context.Context) error {
		_ = s.publisher.Publish(ctx, events.SubjectLogReviewed, reviewed)
		return s.notificationSvc.NotifySubject(ctx, reviewed.SubjectID,
			"Driving log reviewed",
			fmt.Sprintf("Your driving log %s was %s.", reviewed.FileName, strings.ToLower(string(reviewed.Status))),
			models.NotificationTypeLogReviewed, &reviewed.ID)
	})

	return log, nil
}

// MarkActioned links an admin action to the log. Repeating the call with the
// same action id changes nothing; a different id replaces the link.
func (s *LogService) MarkActioned(ctx context.Context, id, actionID string) error {
	log, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if log.ActionTaken && log.ActionID != nil && *log.ActionID == actionID {
		return nil
	}
	if log.ActionID != nil && *log.ActionID != actionID {
		logger.Info("Log action link replaced", "log_id", id, "previous_action_id", *log.ActionID, "action_id", actionID)
	}
	return notFound(s.repo.SetAction(ctx, id, actionID), "driving log "+id)
}

// FindBySubject lists a subject's logs, newest first
func (s *LogService) FindBySubject(ctx context.Context, subjectID uint) ([]models.DrivingLog, error) {
	return s.repo.FindBySubject(ctx, subjectID)
}

// FindByDevice lists a device's logs, newest first
func (s *LogService) FindByDevice(ctx context.Context, deviceID uint) ([]models.DrivingLog, error) {
	return s.repo.FindByDevice(ctx, deviceID)
}

// FindLatestByDevice returns the most recent log of a device
func (s *LogService) FindLatestByDevice(ctx context.Context, deviceID uint) (*models.DrivingLog, error) {
	log, err := s.repo.FindLatestByDevice(ctx, deviceID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("logs for device %d", deviceID))
	}
	return log, nil
}

// DeviceStats returns the log count and latest log of a device
func (s *LogService) DeviceStats(ctx context.Context, deviceID uint) (*DeviceLogStats, error) {
	count, err := s.repo.CountByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	stats := &DeviceLogStats{DeviceID: deviceID, LogCount: count}
	if count == 0 {
		return stats, nil
	}
	latest, err := s.FindLatestByDevice(ctx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	stats.LatestLog = latest
	return stats, nil
}

// List returns a page of logs
func (s *LogService) List(ctx context.Context, query *repository.ListQuery) ([]models.DrivingLog, int64, error) {
	return s.repo.List(ctx, query)
}

// FindFlagged lists logs with an anomaly other than NORMAL
func (s *LogService) FindFlagged(ctx context.Context) ([]models.DrivingLog, error) {
	return s.repo.FindFlagged(ctx)
}

// FindPendingReview lists FLAGGED and UNDER_REVIEW logs
func (s *LogService) FindPendingReview(ctx context.Context) ([]models.DrivingLog, error) {
	return s.repo.FindPendingReview(ctx)
}

// Download opens the raw file of a log. The caller closes Body.
func (s *LogService) Download(ctx context.Context, id string) (*Download, error) {
	log, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	body, err := s.blobs.Open(ctx, log.FilePath)
	if err != nil {
		return nil, notFound(err, "file of driving log "+id)
	}
	return &Download{
		Body:     body,
		FileName: log.FileName,
		MimeType: log.MimeType,
		Size:     log.FileSize,
	}, nil
}
