package services

import (
	"context"
	"fmt"

	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

type NotificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) FindByID(ctx context.Context, id uint) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("notification %d", id))
	}
	return n, nil
}

func (s *NotificationService) FindBySubject(ctx context.Context, subjectID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	return s.repo.FindBySubject(ctx, subjectID, query)
}

func (s *NotificationService) CountUnread(ctx context.Context, subjectID uint) (int64, error) {
	return s.repo.CountUnread(ctx, subjectID)
}

// MarkAsRead acknowledges one notification on behalf of its subject
func (s *NotificationService) MarkAsRead(ctx context.Context, id, subjectID uint) (*models.Notification, error) {
	notification, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification.SubjectID != subjectID {
		return nil, fmt.Errorf("notification %d belongs to another subject: %w", id, ErrPermissionDenied)
	}
	if notification.IsRead() {
		return notification, nil
	}
	notification.MarkAsRead()
	if err := s.repo.Update(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, subjectID uint) error {
	return s.repo.MarkAllAsRead(ctx, subjectID)
}

// NotifySubject stores a notification for a subject
func (s *NotificationService) NotifySubject(ctx context.Context, subjectID uint, title, message, notifType string, referenceID *string) error {
	notification := &models.Notification{
		SubjectID:        subjectID,
		Title:            title,
		Message:          message,
		NotificationType: notifType,
		ReferenceID:      referenceID,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		logger.Error("Failed to store notification", "subject_id", subjectID, "type", notifType, "error", err)
		return err
	}
	return nil
}
