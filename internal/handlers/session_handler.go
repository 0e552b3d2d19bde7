package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/billing"
	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/services"
)

type SessionHandler struct {
	service sessionApplicationService
}

type sessionApplicationService interface {
	CreateSession(ctx context.Context, actor models.Actor, input services.SessionInput) (*models.Session, error)
	UpdateSession(ctx context.Context, actor models.Actor, sessionID int64, input services.SessionInput) (*models.Session, error)
	Approve(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error)
	Reject(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error)
	GetSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, actor models.Actor, filter repository.SessionListFilter) ([]models.Session, int, error)
	DeleteSession(ctx context.Context, actor models.Actor, sessionID int64) error
	CalculatePreview(durationSeconds int64, hourlyRate, deductions decimal.Decimal) (billing.SessionAmounts, error)
}

func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type sessionRequest struct {
	MentorID        int64           `json:"mentor_id"`
	SessionType     string          `json:"session_type"`
	DurationSeconds int64           `json:"duration_seconds"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	SessionDate     string          `json:"session_date"`
	RecordedDate    string          `json:"recorded_date"`
	Deductions      decimal.Decimal `json:"deductions"`
	Notes           *string         `json:"notes"`
}

type calculateSessionRequest struct {
	DurationSeconds int64           `json:"duration_seconds"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	Deductions      decimal.Decimal `json:"deductions"`
}

func (r sessionRequest) toInput() (services.SessionInput, error) {
	sessionDate, err := parseDate(r.SessionDate)
	if err != nil {
		return services.SessionInput{}, errors.New("session_date must be a valid RFC3339 timestamp or date")
	}
	recordedDate, err := parseDate(r.RecordedDate)
	if err != nil {
		return services.SessionInput{}, errors.New("recorded_date must be a valid RFC3339 timestamp or date")
	}
	return services.SessionInput{
		MentorID:        r.MentorID,
		SessionType:     r.SessionType,
		DurationSeconds: r.DurationSeconds,
		HourlyRate:      r.HourlyRate,
		SessionDate:     sessionDate,
		RecordedDate:    recordedDate,
		Deductions:      r.Deductions,
		Notes:           r.Notes,
	}, nil
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	input, err := req.toInput()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	session, err := h.service.CreateSession(c.Context(), actor, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	input, err := req.toInput()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	session, err := h.service.UpdateSession(c.Context(), actor, sessionID, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ApproveSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Approve)
}

func (h *SessionHandler) RejectSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Reject)
}

func (h *SessionHandler) transition(c *fiber.Ctx, fn func(context.Context, models.Actor, int64) (*models.Session, error)) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := fn(c.Context(), actor, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actor, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if status != "" && !models.ValidSessionStatus(status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
	}

	filter := repository.SessionListFilter{Status: status}
	filter.Page, filter.Limit = parsePagination(c)

	if raw := c.Query("mentor_id"); raw != "" {
		mentorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || mentorID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
		}
		filter.MentorID = mentorID
	}
	if raw := c.Query("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from date"})
		}
		filter.FromDate = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to date"})
		}
		filter.ToDate = &to
	}

	sessions, total, err := h.service.ListSessions(c.Context(), actor, filter)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   sessions,
		"pagination": buildPaginationMeta(filter.Page, filter.Limit, total),
	})
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	if err := h.service.DeleteSession(c.Context(), actor, sessionID); err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// CalculateSession previews the derived amounts without creating anything.
func (h *SessionHandler) CalculateSession(c *fiber.Ctx) error {
	if _, err := actorFromCtx(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req calculateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	amounts, err := h.service.CalculatePreview(req.DurationSeconds, req.HourlyRate, req.Deductions)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"calculated_amount":   amounts.CalculatedAmount,
		"platform_fee":        amounts.PlatformFee,
		"gst_amount":          amounts.GSTAmount,
		"final_payout_amount": amounts.FinalPayoutAmount,
	})
}

func parseIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", raw)
}

func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrMentorNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
