package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/observability"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/pkg/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Defaults used when ScheduleOptions leaves a field at zero
const (
	DefaultSweepWorkers      = 8
	DefaultReminderDaysAhead = 3
)

// ScheduleOptions tunes the sweep and reminder jobs
type ScheduleOptions struct {
	SweepWorkers      int
	ReminderDaysAhead int
}

// ScheduleInput creates or updates a subject's schedule
type ScheduleInput struct {
	SubjectID     uint                       `json:"subject_id" validate:"required"`
	DeviceID      uint                       `json:"device_id" validate:"required"`
	FrequencyDays models.SubmissionFrequency `json:"frequency_days" validate:"required"`
	ActorID       uint                       `json:"admin_id"`
}

// SweepFailure is one schedule the sweep could not update
type SweepFailure struct {
	SubjectID uint   `json:"subject_id"`
	Error     string `json:"error"`
}

// SweepReport is the outcome of one overdue sweep
type SweepReport struct {
	Today    string                      `json:"today"`
	Updated  []models.SubmissionSchedule `json:"updated"`
	Skipped  int                         `json:"skipped"`
	Failures []SweepFailure              `json:"failures"`
}

// DDayResult is the deadline view of one schedule
type DDayResult struct {
	SubjectID   uint   `json:"subject_id"`
	NextDueDate string `json:"next_due_date"`
	DDay        int    `json:"d_day"`
	Message     string `json:"message"`
	Overdue     bool   `json:"overdue"`
}

// ScheduleService owns per-subject submission schedules
type ScheduleService struct {
	repo            repository.ScheduleRepository
	locker          lock.Locker
	notificationSvc *NotificationService
	auditSvc        *AuditService
	publisher       events.Publisher
	worker          *jobs.Worker
	validate        *validator.Validate
	opts            ScheduleOptions
	now             func() time.Time
}

func NewScheduleService(
	repo repository.ScheduleRepository,
	locker lock.Locker,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	publisher events.Publisher,
	worker *jobs.Worker,
	validate *validator.Validate,
	opts ScheduleOptions,
) *ScheduleService {
	if opts.SweepWorkers <= 0 {
		opts.SweepWorkers = DefaultSweepWorkers
	}
	if opts.ReminderDaysAhead <= 0 {
		opts.ReminderDaysAhead = DefaultReminderDaysAhead
	}
	return &ScheduleService{
		repo:            repo,
		locker:          locker,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		publisher:       publisher,
		worker:          worker,
		validate:        validate,
		opts:            opts,
		now:             time.Now,
	}
}

func (s *ScheduleService) today() time.Time {
	return models.DateOf(s.now())
}

// Today is the calendar date the service evaluates deadlines against
func (s *ScheduleService) Today() time.Time {
	return s.today()
}

func subjectKey(subjectID uint) string {
	return "subject:" + strconv.FormatUint(uint64(subjectID), 10)
}

// withSubject runs fn while holding the subject's lock
func (s *ScheduleService) withSubject(ctx context.Context, subjectID uint, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, subjectKey(subjectID))
	if err != nil {
		return fmt.Errorf("lock subject %d: %w", subjectID, err)
	}
	defer unlock()
	return fn()
}

func (s *ScheduleService) find(ctx context.Context, subjectID uint) (*models.SubmissionSchedule, error) {
	schedule, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("schedule for subject %d", subjectID))
	}
	return schedule, nil
}

// CreateOrUpdate creates a schedule due one cadence from today, or updates the
// existing one. A changed cadence recomputes the due date from the last
// submission, or from today when there is none.
func (s *ScheduleService) CreateOrUpdate(ctx context.Context, input ScheduleInput) (*models.SubmissionSchedule, bool, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, false, invalid(err)
	}
	if !input.FrequencyDays.Valid() {
		return nil, false, fmt.Errorf("%w: unsupported frequency %d", ErrInvalidInput, input.FrequencyDays)
	}

	var (
		result  *models.SubmissionSchedule
		created bool
	)
	err := s.withSubject(ctx, input.SubjectID, func() error {
		today := s.today()
		existing, err := s.repo.FindBySubject(ctx, input.SubjectID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if existing == nil {
			schedule := &models.SubmissionSchedule{
				SubjectID:     input.SubjectID,
				DeviceID:      input.DeviceID,
				FrequencyDays: input.FrequencyDays,
				NextDueDate:   models.AddDays(today, input.FrequencyDays.Days()),
			}
			if err := s.repo.Create(ctx, schedule); err != nil {
				return notFound(err, fmt.Sprintf("schedule for subject %d", input.SubjectID))
			}
			result, created = schedule, true
			return nil
		}

		existing.DeviceID = input.DeviceID
		if existing.FrequencyDays != input.FrequencyDays {
			existing.FrequencyDays = input.FrequencyDays
			existing.Recompute(today)
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		logger.Error("Failed to save schedule", "subject_id", input.SubjectID, "error", err)
		return nil, false, err
	}

	action := AuditScheduleUpdate
	if created {
		action = AuditScheduleCreate
	}
	s.auditSvc.Log(ctx, input.ActorID, action, models.EntitySchedule, result.ID,
		fmt.Sprintf("Subject %d on %s cadence, next due %s", result.SubjectID, result.FrequencyDays, result.NextDueDate.Format(models.DateLayout)))
	logger.Info("Schedule saved", "subject_id", result.SubjectID, "created", created, "next_due_date", result.NextDueDate.Format(models.DateLayout))

	return result, created, nil
}

// RecordSubmission applies a submission made on date to the subject's schedule.
// It reports whether the submission met the deadline in force before it.
func (s *ScheduleService) RecordSubmission(ctx context.Context, subjectID uint, date time.Time) (*models.SubmissionSchedule, bool, error) {
	var (
		result *models.SubmissionSchedule
		onTime bool
	)
	err := s.withSubject(ctx, subjectID, func() error {
		schedule, err := s.find(ctx, subjectID)
		if err != nil {
			return err
		}
		onTime = schedule.RecordSubmission(date)
		if err := s.repo.Update(ctx, schedule); err != nil {
			return err
		}
		result = schedule
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	logger.Info("Submission recorded",
		"subject_id", subjectID,
		"on_time", onTime,
		"missed_submissions", result.MissedSubmissions,
		"next_due_date", result.NextDueDate.Format(models.DateLayout))
	return result, onTime, nil
}

// ChangeFrequency switches a subject to a new cadence and recomputes the due
// date. Passing the current cadence is a no-op.
func (s *ScheduleService) ChangeFrequency(ctx context.Context, subjectID uint, frequency models.SubmissionFrequency, actorID uint) (*models.SubmissionSchedule, error) {
	if !frequency.Valid() {
		return nil, fmt.Errorf("%w: unsupported frequency %d", ErrInvalidInput, frequency)
	}

	var (
		result    *models.SubmissionSchedule
		previous  models.SubmissionFrequency
		unchanged bool
	)
	err := s.withSubject(ctx, subjectID, func() error {
		schedule, err := s.find(ctx, subjectID)
		if err != nil {
			return err
		}
		result = schedule
		previous = schedule.FrequencyDays
		// Same cadence keeps the current deadline
		if previous == frequency {
			unchanged = true
			return nil
		}
		schedule.FrequencyDays = frequency
		schedule.Recompute(s.today())
		if err := s.repo.Update(ctx, schedule); err != nil {
			return err
		}
		result = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		logger.Info("Submission frequency unchanged", "subject_id", subjectID, "frequency", frequency.Days())
		return result, nil
	}

	due := result.NextDueDate.Format(models.DateLayout)
	s.auditSvc.Log(ctx, actorID, AuditFrequencyChange, models.EntitySchedule, result.ID,
		fmt.Sprintf("Cadence %s -> %s, next due %s", previous, frequency, due))

	runAsync(s.worker, func(ctx context.Context) error {
		_ = s.publisher.Publish(ctx, events.SubjectScheduleChanged, result)
		return s.notificationSvc.NotifySubject(ctx, subjectID,
			"Submission schedule changed",
			fmt.Sprintf("Your log submission cadence is now %s. Next log due %s.", frequency, due),
			models.NotificationTypeScheduleChanged, &result.ID)
	})

	logger.Info("Submission frequency changed", "subject_id", subjectID, "from", previous.Days(), "to", frequency.Days())
	return result, nil
}

// SweepOverdue marks every schedule due before today as missed and moves its
// deadline forward one cadence. Each schedule is locked and re-read before the
// update; failures are collected instead of aborting the sweep.
func (s *ScheduleService) SweepOverdue(ctx context.Context, today time.Time) (*SweepReport, error) {
	start := time.Now()
	today = models.DateOf(today)

	candidates, err := s.repo.FindOverdue(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list overdue schedules: %w", err)
	}

	report := &SweepReport{
		Today:    today.Format(models.DateLayout),
		Updated:  make([]models.SubmissionSchedule, 0, len(candidates)),
		Failures: make([]SweepFailure, 0),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.opts.SweepWorkers)
	for _, candidate := range candidates {
		subjectID := candidate.SubjectID
		g.Go(func() error {
			updated, skipped, err := s.sweepOne(ctx, subjectID, today)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failures = append(report.Failures, SweepFailure{SubjectID: subjectID, Error: err.Error()})
				observability.SweepUpdates().WithLabelValues("failed").Inc()
			case skipped:
				report.Skipped++
				observability.SweepUpdates().WithLabelValues("skipped").Inc()
			default:
				report.Updated = append(report.Updated, *updated)
				observability.SweepUpdates().WithLabelValues("updated").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Updated, func(i, j int) bool { return report.Updated[i].SubjectID < report.Updated[j].SubjectID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].SubjectID < report.Failures[j].SubjectID })
	observability.SweepDuration().Observe(time.Since(start).Seconds())

	for _, f := range report.Failures {
		logger.Error("Sweep failed for schedule", "subject_id", f.SubjectID, "error", f.Error)
		sentry.CaptureException(fmt.Errorf("sweep subject %d: %s", f.SubjectID, f.Error))
	}
	for i := range report.Updated {
		schedule := report.Updated[i]
		runAsync(s.worker, func(ctx context.Context) error {
			_ = s.publisher.Publish(ctx, events.SubjectScheduleOverdue, schedule)
			return s.notificationSvc.NotifySubject(ctx, schedule.SubjectID,
				"Log submission missed",
				fmt.Sprintf("A driving log was not submitted on time. Missed submissions: %d. Next log due %s.",
					schedule.MissedSubmissions, schedule.NextDueDate.Format(models.DateLayout)),
				models.NotificationTypeScheduleOverdue, &schedule.ID)
		})
	}
	if len(report.Updated) > 0 || len(report.Failures) > 0 {
		s.auditSvc.Log(ctx, SystemActor, AuditSweep, models.EntitySchedule, "",
			fmt.Sprintf("Sweep %s: %d updated, %d skipped, %d failed", report.Today, len(report.Updated), report.Skipped, len(report.Failures)))
	}

	logger.Info("Overdue sweep finished",
		"today", report.Today,
		"candidates", len(candidates),
		"updated", len(report.Updated),
		"skipped", report.Skipped,
		"failed", len(report.Failures),
		"duration", time.Since(start))
	return report, nil
}

func (s *ScheduleService) sweepOne(ctx context.Context, subjectID uint, today time.Time) (*models.SubmissionSchedule, bool, error) {
	var (
		result  *models.SubmissionSchedule
		skipped bool
	)
	err := s.withSubject(ctx, subjectID, func() error {
		schedule, err := s.repo.FindBySubject(ctx, subjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				skipped = true
				return nil
			}
			return err
		}
		// A submission may have landed between the listing and the lock
		if !schedule.IsOverdue(today) {
			skipped = true
			return nil
		}
		schedule.MarkMissed()
		if err := s.repo.Update(ctx, schedule); err != nil {
			return err
		}
		result = schedule
		return nil
	})
	return result, skipped, err
}

// DDay returns the signed day count to the subject's next deadline
func (s *ScheduleService) DDay(ctx context.Context, subjectID uint) (*DDayResult, error) {
	schedule, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	dDay := schedule.DDay(s.today())
	return &DDayResult{
		SubjectID:   subjectID,
		NextDueDate: schedule.NextDueDate.Format(models.DateLayout),
		DDay:        dDay,
		Message:     models.DDayMessage(dDay),
		Overdue:     dDay < 0,
	}, nil
}

// NotifyDueSoon reminds every subject whose deadline falls within the reminder window
func (s *ScheduleService) NotifyDueSoon(ctx context.Context) (int, error) {
	today := s.today()
	schedules, err := s.repo.FindDueBetween(ctx, today, models.AddDays(today, s.opts.ReminderDaysAhead))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range schedules {
		schedule := &schedules[i]
		dDay := schedule.DDay(today)
		err := s.notificationSvc.NotifySubject(ctx, schedule.SubjectID,
			"Driving log due soon",
			fmt.Sprintf("Your next driving log is due %s (%s).", schedule.NextDueDate.Format(models.DateLayout), models.DDayMessage(dDay)),
			models.NotificationTypeScheduleDueSoon, &schedule.ID)
		if err != nil {
			continue
		}
		sent++
	}
	logger.Info("Due-soon reminders sent", "count", sent, "window_days", s.opts.ReminderDaysAhead)
	return sent, nil
}

// FindBySubject returns the schedule of one subject
func (s *ScheduleService) FindBySubject(ctx context.Context, subjectID uint) (*models.SubmissionSchedule, error) {
	return s.find(ctx, subjectID)
}

func (s *ScheduleService) FindAll(ctx context.Context) ([]models.SubmissionSchedule, error) {
	return s.repo.FindAll(ctx)
}

// FindOverdue lists schedules whose deadline is before today
func (s *ScheduleService) FindOverdue(ctx context.Context) ([]models.SubmissionSchedule, error) {
	return s.repo.FindOverdue(ctx, s.today())
}

// FindByMissedAtLeast lists schedules with at least n missed submissions
func (s *ScheduleService) FindByMissedAtLeast(ctx context.Context, n int) ([]models.SubmissionSchedule, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: missed count must not be negative", ErrInvalidInput)
	}
	return s.repo.FindByMissedAtLeast(ctx, n)
}

// FindDueWithin lists schedules due between today and today+days inclusive
func (s *ScheduleService) FindDueWithin(ctx context.Context, days int) ([]models.SubmissionSchedule, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: window must not be negative", ErrInvalidInput)
	}
	today := s.today()
	return s.repo.FindDueBetween(ctx, today, models.AddDays(today, days))
}

// Delete removes a subject's schedule
func (s *ScheduleService) Delete(ctx context.Context, subjectID, actorID uint) error {
	err := s.withSubject(ctx, subjectID, func() error {
		return notFound(s.repo.DeleteBySubject(ctx, subjectID), fmt.Sprintf("schedule for subject %d", subjectID))
	})
	if err != nil {
		return err
	}
	s.auditSvc.Log(ctx, actorID, AuditScheduleDelete, models.EntitySchedule, strconv.FormatUint(uint64(subjectID), 10),
		fmt.Sprintf("Schedule for subject %d deleted", subjectID))
	logger.Info("Schedule deleted", "subject_id", subjectID)
	return nil
}
