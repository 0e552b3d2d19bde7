package services

import (
	"context"
	"time"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

// AuditService is the sink every state transition and settlement attempt
// reports to. Entries are append-only; a failed write is returned to the
// caller rather than swallowed, and callers decide whether it may interrupt
// the business operation.
type AuditService struct {
	repo *repository.AuditLogRepository
}

func NewAuditService(repo *repository.AuditLogRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return s.repo.Insert(ctx, &entry)
}

func (s *AuditService) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

func (s *AuditService) List(ctx context.Context, filter repository.AuditListFilter) ([]models.AuditLog, error) {
	return s.repo.List(ctx, filter)
}

func auditEntry(entityType string, entityID int64, action string, actor models.Actor, notes string) models.AuditLog {
	entry := models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  time.Now().UTC(),
	}
	if actor.ID > 0 {
		actorID := actor.ID
		entry.ActorID = &actorID
	}
	if notes != "" {
		entry.Notes = &notes
	}
	return entry
}
