package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/services"
)

type stubPaymentAppService struct {
	createResult  *services.PaymentOutcome
	createErr     error
	settleResult  *services.PaymentOutcome
	settleErr     error
	confirmResult *services.PaymentOutcome
	confirmErr    error
	getResult     *models.PaymentDetail
	getErr        error
	listResult    []models.Payment
	listTotal     int
	listErr       error
	statusResult  *models.Payment
	statusErr     error
	deleteErr     error
	simResult     *models.Payment
	simErr        error
	existsErr     error
	lastActor     models.Actor
	lastPaymentID int64
	lastIntentID  string
	lastStatus    string
	lastRequest   services.CreatePaymentRequest
}

func (s *stubPaymentAppService) CreatePayment(_ context.Context, actor models.Actor, req services.CreatePaymentRequest) (*services.PaymentOutcome, error) {
	s.lastActor = actor
	s.lastRequest = req
	return s.createResult, s.createErr
}

func (s *stubPaymentAppService) Settle(_ context.Context, actor models.Actor, paymentID int64) (*services.PaymentOutcome, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	return s.settleResult, s.settleErr
}

func (s *stubPaymentAppService) ConfirmPayment(_ context.Context, actor models.Actor, paymentID int64, paymentIntentID string) (*services.PaymentOutcome, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	s.lastIntentID = paymentIntentID
	return s.confirmResult, s.confirmErr
}

func (s *stubPaymentAppService) GetPayment(_ context.Context, actor models.Actor, paymentID int64) (*models.PaymentDetail, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	return s.getResult, s.getErr
}

func (s *stubPaymentAppService) ListPayments(_ context.Context, actor models.Actor, _ repository.PaymentListFilter) ([]models.Payment, int, error) {
	s.lastActor = actor
	return s.listResult, s.listTotal, s.listErr
}

func (s *stubPaymentAppService) SetStatus(_ context.Context, actor models.Actor, paymentID int64, status string) (*models.Payment, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	s.lastStatus = status
	return s.statusResult, s.statusErr
}

func (s *stubPaymentAppService) DeletePayment(_ context.Context, actor models.Actor, paymentID int64) error {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	return s.deleteErr
}

func (s *stubPaymentAppService) Simulate(_ context.Context, actor models.Actor, req services.CreatePaymentRequest) (*models.Payment, error) {
	s.lastActor = actor
	s.lastRequest = req
	return s.simResult, s.simErr
}

func (s *stubPaymentAppService) Exists(_ context.Context, paymentID int64) error {
	s.lastPaymentID = paymentID
	return s.existsErr
}

type stubReceiptAppService struct {
	generateResult *models.Payment
	generateErr    error
	sendResult     *models.Payment
	sendErr        error
	lastPaymentID  int64
}

func (s *stubReceiptAppService) Generate(_ context.Context, _ models.Actor, paymentID int64) (*models.Payment, error) {
	s.lastPaymentID = paymentID
	return s.generateResult, s.generateErr
}

func (s *stubReceiptAppService) Send(_ context.Context, _ models.Actor, paymentID int64) (*models.Payment, error) {
	s.lastPaymentID = paymentID
	return s.sendResult, s.sendErr
}

type stubAuditQuery struct {
	entries []models.AuditLog
	err     error
}

func (s *stubAuditQuery) ListByEntity(_ context.Context, _ string, _ int64) ([]models.AuditLog, error) {
	return s.entries, s.err
}

type stubWebhookVerifier struct {
	valid       bool
	lastPayload string
}

func (s *stubWebhookVerifier) VerifyWebhookSignature(payload []byte, _ string) bool {
	s.lastPayload = string(payload)
	return s.valid
}

func newPaymentTestApp(handler *PaymentHandler, userID int64, role string) *fiber.App {
	app := fiber.New()
	if role != "" {
		app.Use(authAs(userID, role))
	}
	app.Post("/api/payments", handler.CreatePayment)
	app.Post("/api/payments/simulate", handler.SimulatePayment)
	app.Post("/api/payments/:id/settle", handler.SettlePayment)
	app.Post("/api/payments/:id/confirm", handler.ConfirmPayment)
	app.Get("/api/payments/:id", handler.GetPayment)
	app.Patch("/api/payments/:id/status", handler.UpdateStatus)
	app.Get("/api/payments/:id/audit", handler.AuditTrail)
	return app
}

func TestCreatePaymentReturnsOutcome(t *testing.T) {
	service := &stubPaymentAppService{
		createResult: &services.PaymentOutcome{
			Payment:    &models.Payment{ID: 1, MentorID: 42, Status: models.PaymentStatusCompleted},
			SessionIDs: []int64{5, 6},
			Settlement: &services.SettlementResult{
				Method:        models.SettlementMethodDirect,
				TransactionID: "DIRABCD1234",
			},
		},
	}
	handler := &PaymentHandler{service: service}

	app := fiber.New()
	app.Use(authAs(1, models.RoleAdmin))
	app.Post("/api/payments", handler.CreatePayment)

	req := jsonRequest(http.MethodPost, "/api/payments", `{
		"mentor_id": 42,
		"session_ids": [5, 6],
		"total_amount": "10000",
		"payment_date": "2030-06-02"
	}`)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !service.lastRequest.TotalAmount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected amount 10000, got %s", service.lastRequest.TotalAmount)
	}
	if len(service.lastRequest.SessionIDs) != 2 {
		t.Fatalf("expected 2 session ids, got %+v", service.lastRequest.SessionIDs)
	}

	var outcome services.PaymentOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if outcome.Settlement == nil || outcome.Settlement.Method != models.SettlementMethodDirect {
		t.Fatalf("expected direct settlement in response, got %+v", outcome.Settlement)
	}
}

func TestCreatePaymentMapsSettlementFailure(t *testing.T) {
	service := &stubPaymentAppService{createErr: services.ErrSettlementFailed}
	handler := &PaymentHandler{service: service}

	app := fiber.New()
	app.Use(authAs(1, models.RoleAdmin))
	app.Post("/api/payments", handler.CreatePayment)

	req := jsonRequest(http.MethodPost, "/api/payments", `{
		"mentor_id": 42,
		"session_ids": [5],
		"total_amount": "1000"
	}`)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestConfirmPaymentPassesIntentID(t *testing.T) {
	service := &stubPaymentAppService{
		confirmResult: &services.PaymentOutcome{
			Payment: &models.Payment{ID: 3, Status: models.PaymentStatusCompleted},
			Settlement: &services.SettlementResult{
				Method:        models.SettlementMethodGateway,
				TransactionID: "pi_123",
			},
		},
	}
	handler := &PaymentHandler{service: service}
	app := newPaymentTestApp(handler, 1, models.RoleAdmin)

	req := jsonRequest(http.MethodPost, "/api/payments/3/confirm", `{"payment_intent_id": "pi_123"}`)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastPaymentID != 3 || service.lastIntentID != "pi_123" {
		t.Fatalf("unexpected confirm args: id=%d intent=%q", service.lastPaymentID, service.lastIntentID)
	}
}

func TestSettlePaymentMapsAlreadyCompleted(t *testing.T) {
	service := &stubPaymentAppService{settleErr: services.ErrInvalidStateTransition}
	handler := &PaymentHandler{service: service}
	app := newPaymentTestApp(handler, 1, models.RoleAdmin)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/payments/3/settle", ""))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	service := &stubPaymentAppService{getErr: pgx.ErrNoRows}
	handler := &PaymentHandler{service: service}
	app := newPaymentTestApp(handler, 1, models.RoleAdmin)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/payments/99", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdatePaymentStatusUppercases(t *testing.T) {
	service := &stubPaymentAppService{
		statusResult: &models.Payment{ID: 3, Status: models.PaymentStatusCancelled},
	}
	handler := &PaymentHandler{service: service}
	app := newPaymentTestApp(handler, 1, models.RoleAdmin)

	req := jsonRequest(http.MethodPatch, "/api/payments/3/status", `{"status": "cancelled"}`)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastStatus != models.PaymentStatusCancelled {
		t.Fatalf("expected CANCELLED, got %q", service.lastStatus)
	}
}

func TestAuditTrailRequiresAdmin(t *testing.T) {
	handler := &PaymentHandler{
		service: &stubPaymentAppService{},
		audit:   &stubAuditQuery{},
	}
	app := newPaymentTestApp(handler, 42, models.RoleMentor)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/payments/3/audit", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAuditTrailReturnsEntries(t *testing.T) {
	handler := &PaymentHandler{
		service: &stubPaymentAppService{},
		audit: &stubAuditQuery{entries: []models.AuditLog{
			{ID: 1, EntityType: models.AuditEntityPayment, EntityID: 3, Action: models.AuditActionCreate},
		}},
	}
	app := newPaymentTestApp(handler, 1, models.RoleAdmin)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/payments/3/audit", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		AuditLogs []models.AuditLog `json:"audit_logs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.AuditLogs) != 1 || body.AuditLogs[0].Action != models.AuditActionCreate {
		t.Fatalf("unexpected audit entries: %+v", body.AuditLogs)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	verifier := &stubWebhookVerifier{valid: false}
	handler := &PaymentHandler{webhooks: verifier}

	app := fiber.New()
	app.Post("/api/payments/webhook", handler.Webhook)

	req := jsonRequest(http.MethodPost, "/api/payments/webhook", `{"type": "payment_intent.succeeded"}`)
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookAcknowledgesVerifiedEvent(t *testing.T) {
	verifier := &stubWebhookVerifier{valid: true}
	handler := &PaymentHandler{webhooks: verifier}

	app := fiber.New()
	app.Post("/api/payments/webhook", handler.Webhook)

	req := jsonRequest(http.MethodPost, "/api/payments/webhook",
		`{"id": "evt_1", "type": "payment_intent.succeeded", "data": {"object": {"id": "pi_123"}}}`)
	req.Header.Set("Stripe-Signature", "t=1,v1=good")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body["received"] {
		t.Fatal("expected acknowledgement")
	}
}
