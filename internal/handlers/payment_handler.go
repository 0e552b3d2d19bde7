package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/services"
)

type PaymentHandler struct {
	service  paymentApplicationService
	receipts receiptApplicationService
	audit    auditQueryService
	webhooks webhookVerifier
}

type paymentApplicationService interface {
	CreatePayment(ctx context.Context, actor models.Actor, req services.CreatePaymentRequest) (*services.PaymentOutcome, error)
	Settle(ctx context.Context, actor models.Actor, paymentID int64) (*services.PaymentOutcome, error)
	ConfirmPayment(ctx context.Context, actor models.Actor, paymentID int64, paymentIntentID string) (*services.PaymentOutcome, error)
	GetPayment(ctx context.Context, actor models.Actor, paymentID int64) (*models.PaymentDetail, error)
	ListPayments(ctx context.Context, actor models.Actor, filter repository.PaymentListFilter) ([]models.Payment, int, error)
	SetStatus(ctx context.Context, actor models.Actor, paymentID int64, status string) (*models.Payment, error)
	DeletePayment(ctx context.Context, actor models.Actor, paymentID int64) error
	Simulate(ctx context.Context, actor models.Actor, req services.CreatePaymentRequest) (*models.Payment, error)
	Exists(ctx context.Context, paymentID int64) error
}

type receiptApplicationService interface {
	Generate(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error)
	Send(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error)
}

type auditQueryService interface {
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error)
}

type webhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signatureHeader string) bool
}

func NewPaymentHandler(
	service *services.PaymentService,
	receipts *services.ReceiptService,
	audit *services.AuditService,
	webhooks webhookVerifier,
) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		receipts: receipts,
		audit:    audit,
		webhooks: webhooks,
	}
}

type createPaymentRequest struct {
	MentorID    int64           `json:"mentor_id"`
	SessionIDs  []int64         `json:"session_ids"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentDate string          `json:"payment_date"`
	Notes       *string         `json:"notes"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type updatePaymentStatusRequest struct {
	Status string `json:"status"`
}

func (r createPaymentRequest) toServiceRequest() (services.CreatePaymentRequest, error) {
	req := services.CreatePaymentRequest{
		MentorID:    r.MentorID,
		SessionIDs:  r.SessionIDs,
		TotalAmount: r.TotalAmount,
		Notes:       r.Notes,
	}
	if raw := strings.TrimSpace(r.PaymentDate); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return services.CreatePaymentRequest{}, errors.New("payment_date must be a valid RFC3339 timestamp or date")
		}
		req.PaymentDate = parsed
	}
	return req, nil
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	serviceReq, err := req.toServiceRequest()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	outcome, err := h.service.CreatePayment(c.Context(), actor, serviceReq)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(outcome)
}

// SettlePayment re-runs settlement for a payment that is not yet completed.
func (h *PaymentHandler) SettlePayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	outcome, err := h.service.Settle(c.Context(), actor, paymentID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(outcome)
}

func (h *PaymentHandler) ConfirmPayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	outcome, err := h.service.ConfirmPayment(c.Context(), actor, paymentID, req.PaymentIntentID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(outcome)
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	payment, err := h.service.GetPayment(c.Context(), actor, paymentID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if status != "" && !models.ValidPaymentStatus(status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
	}

	filter := repository.PaymentListFilter{Status: status}
	filter.Page, filter.Limit = parsePagination(c)

	if raw := c.Query("mentor_id"); raw != "" {
		mentorID, parseErr := parseQueryID(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
		}
		filter.MentorID = mentorID
	}
	if raw := c.Query("from"); raw != "" {
		from, parseErr := parseDate(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from date"})
		}
		filter.FromDate = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, parseErr := parseDate(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to date"})
		}
		filter.ToDate = &to
	}

	payments, total, err := h.service.ListPayments(c.Context(), actor, filter)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"payments":   payments,
		"pagination": buildPaginationMeta(filter.Page, filter.Limit, total),
	})
}

func (h *PaymentHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var req updatePaymentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	payment, err := h.service.SetStatus(c.Context(), actor, paymentID, strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) DeletePayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	if err := h.service.DeletePayment(c.Context(), actor, paymentID); err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// SimulatePayment runs the calculation pipeline without writing anything.
func (h *PaymentHandler) SimulatePayment(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	serviceReq, err := req.toServiceRequest()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payment, err := h.service.Simulate(c.Context(), actor, serviceReq)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) GenerateReceipt(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	payment, err := h.receipts.Generate(c.Context(), actor, paymentID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) SendReceipt(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	payment, err := h.receipts.Send(c.Context(), actor, paymentID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

// AuditTrail returns the audit entries recorded for one payment.
func (h *PaymentHandler) AuditTrail(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if !actor.HasRole(models.RoleAdmin) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	paymentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}
	if err := h.service.Exists(c.Context(), paymentID); err != nil {
		return mapPaymentError(c, err)
	}

	entries, err := h.audit.ListByEntity(c.Context(), models.AuditEntityPayment, paymentID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to load audit trail"})
	}

	return c.JSON(fiber.Map{"audit_logs": entries})
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// Webhook acknowledges verified processor events. Events that fail signature
// verification are rejected and never processed.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	if !h.webhooks.VerifyWebhookSignature(payload, signature) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook signature"})
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook payload"})
	}

	log.Printf("webhook %s received: %s (%s)", event.ID, event.Type, event.Data.Object.ID)
	return c.JSON(fiber.Map{"received": true})
}

func parseQueryID(raw string) (int64, error) {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid id")
	}
	return parsed, nil
}

func mapPaymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrMentorNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
	case errors.Is(err, services.ErrSettlementFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process payment request"})
	}
}
