package services

import (
	"context"

	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// Audit actions
const (
	AuditSubmit          = "SUBMIT"
	AuditStartReview     = "START_REVIEW"
	AuditReview          = "REVIEW"
	AuditScheduleCreate  = "SCHEDULE_CREATE"
	AuditScheduleUpdate  = "SCHEDULE_UPDATE"
	AuditFrequencyChange = "FREQUENCY_CHANGE"
	AuditScheduleDelete  = "SCHEDULE_DELETE"
	AuditSweep           = "SWEEP"
	AuditActionCreate    = "ACTION_CREATE"
	AuditActionExecute   = "ACTION_EXECUTE"
	AuditActionCancel    = "ACTION_CANCEL"
)

// SystemActor is the actor id recorded for automated changes
const SystemActor uint = 0

type AuditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log records an audit entry. Failures are logged and never surface to the caller.
func (s *AuditService) Log(ctx context.Context, actorID uint, action, entity, entityID, details string) {
	entry := &models.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Details:  details,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		logger.Error("Failed to write audit entry", "action", action, "entity", entity, "entity_id", entityID, "error", err)
	}
}

// List retrieves audit logs, newest first
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, limit, offset)
}

// History returns the audit trail of one entity
func (s *AuditService) History(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	return s.repo.FindByEntity(ctx, entity, entityID)
}
