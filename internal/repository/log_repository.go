package repository

import (
	"context"
	"time"

	"github.com/sjperalta/interlock-api/internal/models"
	"gorm.io/gorm"
)

// LogRepository defines the interface for driving log data access
type LogRepository interface {
	FindByID(ctx context.Context, id string) (*models.DrivingLog, error)
	Create(ctx context.Context, log *models.DrivingLog) error
	UpdateReview(ctx context.Context, log *models.DrivingLog) error
	SetAction(ctx context.Context, id, actionID string) error
	FindBySubject(ctx context.Context, subjectID uint) ([]models.DrivingLog, error)
	FindByDevice(ctx context.Context, deviceID uint) ([]models.DrivingLog, error)
	FindLatestByDevice(ctx context.Context, deviceID uint) (*models.DrivingLog, error)
	CountByDevice(ctx context.Context, deviceID uint) (int64, error)
	CountBySubject(ctx context.Context, subjectID uint) (int64, int64, error)
	FindFlagged(ctx context.Context) ([]models.DrivingLog, error)
	FindPendingReview(ctx context.Context) ([]models.DrivingLog, error)
	List(ctx context.Context, query *ListQuery) ([]models.DrivingLog, int64, error)
}

// Columns a review is allowed to write
var reviewColumns = []string{"status", "reviewer_id", "reviewed_at", "review_notes", "updated_at"}

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new driving log repository
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) FindByID(ctx context.Context, id string) (*models.DrivingLog, error) {
	var log models.DrivingLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *logRepository) Create(ctx context.Context, log *models.DrivingLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// UpdateReview writes only the review columns so a concurrent SetAction is not overwritten
func (r *logRepository) UpdateReview(ctx context.Context, log *models.DrivingLog) error {
	log.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(log).Select(reviewColumns).Updates(log)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *logRepository) SetAction(ctx context.Context, id, actionID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.DrivingLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"action_taken": true,
			"action_id":    actionID,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *logRepository) FindBySubject(ctx context.Context, subjectID uint) ([]models.DrivingLog, error) {
	var logs []models.DrivingLog
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("submitted_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *logRepository) FindByDevice(ctx context.Context, deviceID uint) ([]models.DrivingLog, error) {
	var logs []models.DrivingLog
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("submitted_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *logRepository) FindLatestByDevice(ctx context.Context, deviceID uint) (*models.DrivingLog, error) {
	var log models.DrivingLog
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("submitted_at DESC").
		First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *logRepository) CountByDevice(ctx context.Context, deviceID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DrivingLog{}).
		Where("device_id = ?", deviceID).
		Count(&count).Error
	return count, err
}

// CountBySubject returns the total and flagged log counts of a subject
func (r *logRepository) CountBySubject(ctx context.Context, subjectID uint) (int64, int64, error) {
	var total, flagged int64
	db := r.db.WithContext(ctx).Model(&models.DrivingLog{}).Where("subject_id = ?", subjectID)
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Where("anomaly_type <> ?", models.AnomalyNormal).Count(&flagged).Error; err != nil {
		return 0, 0, err
	}
	return total, flagged, nil
}

func (r *logRepository) FindFlagged(ctx context.Context) ([]models.DrivingLog, error) {
	var logs []models.DrivingLog
	err := r.db.WithContext(ctx).
		Where("anomaly_type <> ?", models.AnomalyNormal).
		Order("submitted_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *logRepository) FindPendingReview(ctx context.Context) ([]models.DrivingLog, error) {
	var logs []models.DrivingLog
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.LogStatus{models.LogStatusFlagged, models.LogStatusUnderReview}).
		Order("submitted_at ASC").
		Find(&logs).Error
	return logs, err
}

// List supports the filters status, anomaly_type, risk_level, subject_id and device_id
func (r *logRepository) List(ctx context.Context, query *ListQuery) ([]models.DrivingLog, int64, error) {
	var logs []models.DrivingLog
	var total int64

	db := r.db.WithContext(ctx).Model(&models.DrivingLog{})

	if val := query.filter("status"); val != "" {
		db = db.Where("status = ?", val)
	}
	if val := query.filter("anomaly_type"); val != "" {
		db = db.Where("anomaly_type = ?", val)
	}
	if val := query.filter("risk_level"); val != "" {
		db = db.Where("risk_level = ?", val)
	}
	if val := query.filter("subject_id"); val != "" {
		db = db.Where("subject_id = ?", val)
	}
	if val := query.filter("device_id"); val != "" {
		db = db.Where("device_id = ?", val)
	}

	// Count total using a separate session so the main query is not altered by Count()
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch query.SortBy {
	case "submitted_at", "risk_level", "status":
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	default:
		db = db.Order("submitted_at DESC")
	}

	if query.PerPage > 0 {
		db = db.Offset(query.Offset()).Limit(query.PerPage)
	}

	err := db.Find(&logs).Error
	return logs, total, err
}
