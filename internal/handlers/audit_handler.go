package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/services"
)

type AuditHandler struct {
	service auditListService
}

type auditListService interface {
	List(ctx context.Context, filter repository.AuditListFilter) ([]models.AuditLog, error)
}

func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// ListAuditLogs is the admin-wide view over the audit trail, filterable by
// entity type, entity id and actor.
func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if !actor.HasRole(models.RoleAdmin) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	filter := repository.AuditListFilter{
		EntityType: strings.ToUpper(strings.TrimSpace(c.Query("entity_type"))),
	}
	filter.Page, filter.Limit = parsePagination(c)

	if raw := c.Query("entity_id"); raw != "" {
		entityID, parseErr := parseQueryID(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid entity id"})
		}
		filter.EntityID = entityID
	}
	if raw := c.Query("actor_id"); raw != "" {
		actorID, parseErr := parseQueryID(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid actor id"})
		}
		filter.ActorID = actorID
	}

	entries, err := h.service.List(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to load audit logs"})
	}

	return c.JSON(fiber.Map{"audit_logs": entries})
}
