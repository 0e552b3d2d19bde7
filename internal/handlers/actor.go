package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
)

var errNoActor = errors.New("missing actor on request context")

// actorFromCtx rebuilds the authenticated actor from the values the auth
// middleware stored on the request.
func actorFromCtx(c *fiber.Ctx) (models.Actor, error) {
	userID, ok := c.Locals("user_id").(int64)
	if !ok || userID <= 0 {
		return models.Actor{}, errNoActor
	}
	role, ok := c.Locals("role").(string)
	if !ok || role == "" {
		return models.Actor{}, errNoActor
	}
	return models.Actor{ID: userID, Role: role}, nil
}
