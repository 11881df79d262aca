package repository

import (
	"context"
	"time"

	"github.com/sjperalta/interlock-api/internal/models"
	"gorm.io/gorm"
)

// ScheduleRepository defines the interface for submission schedule data access
type ScheduleRepository interface {
	FindBySubject(ctx context.Context, subjectID uint) (*models.SubmissionSchedule, error)
	Create(ctx context.Context, schedule *models.SubmissionSchedule) error
	Update(ctx context.Context, schedule *models.SubmissionSchedule) error
	DeleteBySubject(ctx context.Context, subjectID uint) error
	FindAll(ctx context.Context) ([]models.SubmissionSchedule, error)
	FindOverdue(ctx context.Context, today time.Time) ([]models.SubmissionSchedule, error)
	FindByMissedAtLeast(ctx context.Context, n int) ([]models.SubmissionSchedule, error)
	FindDueBetween(ctx context.Context, from, to time.Time) ([]models.SubmissionSchedule, error)
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) FindBySubject(ctx context.Context, subjectID uint) (*models.SubmissionSchedule, error) {
	var schedule models.SubmissionSchedule
	err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *models.SubmissionSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *models.SubmissionSchedule) error {
	return r.db.WithContext(ctx).Save(schedule).Error
}

func (r *scheduleRepository) DeleteBySubject(ctx context.Context, subjectID uint) error {
	result := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&models.SubmissionSchedule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *scheduleRepository) FindAll(ctx context.Context) ([]models.SubmissionSchedule, error) {
	var schedules []models.SubmissionSchedule
	err := r.db.WithContext(ctx).Order("next_due_date ASC").Find(&schedules).Error
	return schedules, err
}

// FindOverdue returns schedules whose next due date is strictly before today
func (r *scheduleRepository) FindOverdue(ctx context.Context, today time.Time) ([]models.SubmissionSchedule, error) {
	var schedules []models.SubmissionSchedule
	err := r.db.WithContext(ctx).
		Where("next_due_date < ?", models.DateOf(today)).
		Order("next_due_date ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepository) FindByMissedAtLeast(ctx context.Context, n int) ([]models.SubmissionSchedule, error) {
	var schedules []models.SubmissionSchedule
	err := r.db.WithContext(ctx).
		Where("missed_submissions >= ?", n).
		Order("missed_submissions DESC").
		Find(&schedules).Error
	return schedules, err
}

// FindDueBetween returns schedules due on a date in [from, to]
func (r *scheduleRepository) FindDueBetween(ctx context.Context, from, to time.Time) ([]models.SubmissionSchedule, error) {
	var schedules []models.SubmissionSchedule
	err := r.db.WithContext(ctx).
		Where("next_due_date >= ? AND next_due_date <= ?", models.DateOf(from), models.DateOf(to)).
		Order("next_due_date ASC").
		Find(&schedules).Error
	return schedules, err
}
