package repository

import (
	"context"
	"time"

	"github.com/sjperalta/interlock-api/internal/models"
	"gorm.io/gorm"
)

// ActionRepository defines the interface for admin action data access
type ActionRepository interface {
	FindByID(ctx context.Context, id string) (*models.AdminAction, error)
	Create(ctx context.Context, action *models.AdminAction) error
	Update(ctx context.Context, action *models.AdminAction) error
	MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error)
	FindBySubject(ctx context.Context, subjectID uint) ([]models.AdminAction, error)
	FindByLog(ctx context.Context, logID string) ([]models.AdminAction, error)
	FindByAdmin(ctx context.Context, adminID uint) ([]models.AdminAction, error)
	FindUnread(ctx context.Context) ([]models.AdminAction, error)
	FindByStatus(ctx context.Context, status models.ActionStatus) ([]models.AdminAction, error)
}

type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new admin action repository
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) FindByID(ctx context.Context, id string) (*models.AdminAction, error) {
	var action models.AdminAction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&action).Error
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (r *actionRepository) Create(ctx context.Context, action *models.AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

// Update saves execution state; the read acknowledgement is owned by MarkRead
func (r *actionRepository) Update(ctx context.Context, action *models.AdminAction) error {
	return r.db.WithContext(ctx).Omit("is_read", "read_time").Save(action).Error
}

// MarkRead flips is_read once. It reports whether this call changed the row.
func (r *actionRepository) MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AdminAction{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"read_time":  readAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindBySubject orders unread first, then newest first
func (r *actionRepository) FindBySubject(ctx context.Context, subjectID uint) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("is_read ASC").
		Order("created_time DESC").
		Find(&actions).Error
	return actions, err
}

func (r *actionRepository) FindByLog(ctx context.Context, logID string) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("created_time DESC").
		Find(&actions).Error
	return actions, err
}

func (r *actionRepository) FindByAdmin(ctx context.Context, adminID uint) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.WithContext(ctx).
		Where("admin_id = ?", adminID).
		Order("created_time DESC").
		Find(&actions).Error
	return actions, err
}

func (r *actionRepository) FindUnread(ctx context.Context) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.WithContext(ctx).
		Where("is_read = ?", false).
		Order("created_time DESC").
		Find(&actions).Error
	return actions, err
}

func (r *actionRepository) FindByStatus(ctx context.Context, status models.ActionStatus) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_time ASC").
		Find(&actions).Error
	return actions, err
}
