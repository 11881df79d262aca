package services

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/events"
	"github.com/sjperalta/interlock-api/internal/lock"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekly(subjectID uint) ScheduleInput {
	return ScheduleInput{SubjectID: subjectID, DeviceID: subjectID + 1000, FrequencyDays: models.FrequencyWeekly}
}

func TestScheduleService_CreateOrUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	schedule, created, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, date(t, "2024-03-17"), schedule.NextDueDate)
	assert.Zero(t, schedule.MissedSubmissions)
	assert.Nil(t, schedule.LastSubmissionDate)

	// Same cadence keeps the deadline
	f.setDate(t, "2024-03-12")
	same, created, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, date(t, "2024-03-17"), same.NextDueDate)

	// A new cadence without submissions counts from today
	updated, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{SubjectID: 7, DeviceID: 1007, FrequencyDays: models.FrequencyMonthly})
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-04-11"), updated.NextDueDate)
	assert.Equal(t, schedule.ID, updated.ID)
}

func TestScheduleService_CreateOrUpdateRecomputesFromLastSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)
	_, _, err = f.svcs.Schedule.RecordSubmission(ctx, 7, date(t, "2024-03-14"))
	require.NoError(t, err)

	f.setDate(t, "2024-03-16")
	updated, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{SubjectID: 7, DeviceID: 1007, FrequencyDays: models.FrequencyBiweekly})
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-03-28"), updated.NextDueDate)
}

func TestScheduleService_CreateOrUpdateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{SubjectID: 7, DeviceID: 1007, FrequencyDays: 10})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{DeviceID: 1007, FrequencyDays: models.FrequencyWeekly})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScheduleService_OnTimeSubmissionResetsMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)

	report, err := f.svcs.Schedule.SweepOverdue(ctx, date(t, "2024-03-19"))
	require.NoError(t, err)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, 1, report.Updated[0].MissedSubmissions)
	assert.Equal(t, date(t, "2024-03-24"), report.Updated[0].NextDueDate)

	// Submitting exactly on the deadline counts as on time
	schedule, onTime, err := f.svcs.Schedule.RecordSubmission(ctx, 7, date(t, "2024-03-24"))
	require.NoError(t, err)
	assert.True(t, onTime)
	assert.Zero(t, schedule.MissedSubmissions)
	assert.Equal(t, date(t, "2024-03-31"), schedule.NextDueDate)
}

func TestScheduleService_LateSubmissionKeepsMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)
	_, err = f.svcs.Schedule.SweepOverdue(ctx, date(t, "2024-03-18"))
	require.NoError(t, err)

	schedule, onTime, err := f.svcs.Schedule.RecordSubmission(ctx, 7, date(t, "2024-03-25"))
	require.NoError(t, err)
	assert.False(t, onTime)
	assert.Equal(t, 1, schedule.MissedSubmissions)
	assert.Equal(t, date(t, "2024-04-01"), schedule.NextDueDate)
	require.NotNil(t, schedule.LastSubmissionDate)
	assert.Equal(t, date(t, "2024-03-25"), *schedule.LastSubmissionDate)
}

func TestScheduleService_RecordSubmissionUnknownSubject(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svcs.Schedule.RecordSubmission(context.Background(), 404, date(t, "2024-03-10"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleService_DoubleSweepIncrementsTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)

	today := date(t, "2024-04-10")
	first, err := f.svcs.Schedule.SweepOverdue(ctx, today)
	require.NoError(t, err)
	require.Len(t, first.Updated, 1)

	second, err := f.svcs.Schedule.SweepOverdue(ctx, today)
	require.NoError(t, err)
	require.Len(t, second.Updated, 1)

	schedule, err := f.svcs.Schedule.FindBySubject(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, schedule.MissedSubmissions)
	assert.Equal(t, date(t, "2024-03-31"), schedule.NextDueDate)
}

func TestScheduleService_SweepLeavesDueTodayAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)

	report, err := f.svcs.Schedule.SweepOverdue(ctx, date(t, "2024-03-17"))
	require.NoError(t, err)
	assert.Empty(t, report.Updated)
	assert.Empty(t, report.Failures)
}

func TestScheduleService_SweepManySubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for id := uint(1); id <= 25; id++ {
		_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(id))
		require.NoError(t, err)
	}

	report, err := f.svcs.Schedule.SweepOverdue(ctx, date(t, "2024-03-20"))
	require.NoError(t, err)
	require.Len(t, report.Updated, 25)
	for i, schedule := range report.Updated {
		assert.EqualValues(t, i+1, schedule.SubjectID)
		assert.Equal(t, 1, schedule.MissedSubmissions)
	}

	overdue, err := f.svcs.Notification.CountUnread(ctx, 13)
	require.NoError(t, err)
	assert.EqualValues(t, 1, overdue)
}

func TestScheduleService_SweepCollectsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for id := uint(1); id <= 3; id++ {
		_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(id))
		require.NoError(t, err)
	}

	repo := &failingScheduleRepo{ScheduleRepository: f.repos.Schedule, failSubject: 2}
	svc := NewScheduleService(repo, lock.NewKeyedMutex(), f.svcs.Notification, f.svcs.Audit,
		events.NopPublisher{}, nil, validator.New(), ScheduleOptions{SweepWorkers: 2})

	report, err := svc.SweepOverdue(ctx, date(t, "2024-03-20"))
	require.NoError(t, err)
	require.Len(t, report.Updated, 2)
	require.Len(t, report.Failures, 1)
	assert.EqualValues(t, 2, report.Failures[0].SubjectID)
	assert.Contains(t, report.Failures[0].Error, "write conflict")

	untouched, err := f.svcs.Schedule.FindBySubject(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, untouched.MissedSubmissions)
}

func TestScheduleService_DDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svcs.Schedule.DDay(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)

	d, err := f.svcs.Schedule.DDay(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, d.DDay)
	assert.Equal(t, "D-7", d.Message)
	assert.False(t, d.Overdue)

	f.setDate(t, "2024-03-17")
	d, err = f.svcs.Schedule.DDay(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "D-Day", d.Message)

	f.setDate(t, "2024-03-20")
	d, err = f.svcs.Schedule.DDay(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, -3, d.DDay)
	assert.Equal(t, "D+3", d.Message)
	assert.True(t, d.Overdue)
}

func TestScheduleService_ChangeFrequency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svcs.Schedule.ChangeFrequency(ctx, 7, models.FrequencyMonthly, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)

	_, err = f.svcs.Schedule.ChangeFrequency(ctx, 7, 45, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.setDate(t, "2024-03-12")
	schedule, err := f.svcs.Schedule.ChangeFrequency(ctx, 7, models.FrequencyQuarterly, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyQuarterly, schedule.FrequencyDays)
	assert.Equal(t, date(t, "2024-06-10"), schedule.NextDueDate)

	history, err := f.svcs.Audit.History(ctx, models.EntitySchedule, schedule.ID)
	require.NoError(t, err)
	var actions []string
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Contains(t, actions, AuditFrequencyChange)

	notifications, _, err := f.svcs.Notification.FindBySubject(ctx, 7, repository.NewListQuery())
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationTypeScheduleChanged, notifications[0].NotificationType)
}

func TestScheduleService_ChangeFrequencySameCadenceKeepsDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(7))
	require.NoError(t, err)
	require.Equal(t, date(t, "2024-03-17"), created.NextDueDate)

	// Re-basing from today would give 2024-03-19
	f.setDate(t, "2024-03-12")
	schedule, err := f.svcs.Schedule.ChangeFrequency(ctx, 7, models.FrequencyWeekly, 1)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-03-17"), schedule.NextDueDate)

	stored, err := f.svcs.Schedule.FindBySubject(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-03-17"), stored.NextDueDate)

	history, err := f.svcs.Audit.History(ctx, models.EntitySchedule, schedule.ID)
	require.NoError(t, err)
	for _, h := range history {
		assert.NotEqual(t, AuditFrequencyChange, h.Action)
	}

	notifications, _, err := f.svcs.Notification.FindBySubject(ctx, 7, repository.NewListQuery())
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestScheduleService_QueriesAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(1))
	require.NoError(t, err)
	_, _, err = f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{SubjectID: 2, DeviceID: 1002, FrequencyDays: models.FrequencyMonthly})
	require.NoError(t, err)

	f.setDate(t, "2024-03-15")
	soon, err := f.svcs.Schedule.FindDueWithin(ctx, 3)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.EqualValues(t, 1, soon[0].SubjectID)

	sent, err := f.svcs.Schedule.NotifyDueSoon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	f.setDate(t, "2024-03-20")
	overdue, err := f.svcs.Schedule.FindOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	_, err = f.svcs.Schedule.SweepOverdue(ctx, f.now)
	require.NoError(t, err)
	missed, err := f.svcs.Schedule.FindByMissedAtLeast(ctx, 1)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.EqualValues(t, 1, missed[0].SubjectID)

	all, err := f.svcs.Schedule.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, f.svcs.Schedule.Delete(ctx, 1, 99))
	_, err = f.svcs.Schedule.FindBySubject(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svcs.Schedule.Delete(ctx, 1, 99), ErrNotFound)
}
