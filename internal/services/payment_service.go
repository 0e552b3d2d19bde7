package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/billing"
	"github.com/pk65arya/PayoutAutomationSystem/internal/gateway"
	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

const settlementCurrency = "inr"

type settlementGateway interface {
	Enabled() bool
	CreateCharge(ctx context.Context, amountMinorUnits int64, currency, description string, metadata map[string]string) (*gateway.Charge, error)
	CreatePayout(ctx context.Context, amountMinorUnits int64, currency, description string) (*gateway.Payout, error)
}

// SettlementResult reports which path a settlement attempt took. ClientSecret
// is only set for gateway settlements that still need client-side
// confirmation.
type SettlementResult struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
}

// PaymentOutcome bundles the persisted payment with the settlement attempt
// that followed it.
type PaymentOutcome struct {
	Payment    *models.Payment   `json:"payment"`
	SessionIDs []int64           `json:"session_ids"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
}

type CreatePaymentRequest struct {
	MentorID    int64
	SessionIDs  []int64
	TotalAmount decimal.Decimal
	PaymentDate time.Time
	Notes       *string
}

// PaymentService creates settlement batches and drives them through the
// gateway, falling back to direct bank settlement when the processor is
// unavailable or declines.
type PaymentService struct {
	db          *pgxpool.Pool
	paymentRepo *repository.PaymentRepository
	sessionRepo *repository.SessionRepository
	userRepo    mentorReader
	audit       auditRecorder
	gateway     settlementGateway
}

func NewPaymentService(
	db *pgxpool.Pool,
	paymentRepo *repository.PaymentRepository,
	sessionRepo *repository.SessionRepository,
	userRepo mentorReader,
	audit auditRecorder,
	gw settlementGateway,
) *PaymentService {
	return &PaymentService{
		db:          db,
		paymentRepo: paymentRepo,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		audit:       audit,
		gateway:     gw,
	}
}

// CreatePayment validates the batch, persists it as PENDING inside one
// transaction, then attempts settlement. Validation is all-or-nothing: a
// single bad session rejects the whole batch and nothing is written.
func (s *PaymentService) CreatePayment(ctx context.Context, actor models.Actor, req CreatePaymentRequest) (*PaymentOutcome, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// One settlement per mentor at a time. The advisory lock is released on
	// commit or rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, req.MentorID); err != nil {
		return nil, err
	}

	txUsers := repository.NewUserRepository(tx)
	txSessions := repository.NewSessionRepository(tx)
	txPayments := repository.NewPaymentRepository(tx)

	mentor, err := validatePaymentBatch(ctx, txUsers, txSessions, txPayments, req)
	if err != nil {
		return nil, err
	}

	amounts, err := billing.CalculatePayment(req.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rounded := amounts.Rounded()

	actorID := actor.ID
	payment, err := txPayments.Create(ctx, repository.CreatePaymentInput{
		MentorID:        req.MentorID,
		TotalAmount:     rounded.NetPayable,
		BaseAmount:      rounded.GrossAmount,
		GSTAmount:       rounded.GSTAmount,
		GSTRate:         rounded.GSTRate,
		PlatformFee:     rounded.PlatformFee,
		PlatformFeeRate: rounded.PlatformFeeRate,
		OtherDeductions: decimal.Zero,
		PaymentDate:     req.PaymentDate,
		Notes:           mergeNotes(req.Notes, bankDetailsNote(mentor)),
		ProcessedBy:     &actorID,
		CreatedBy:       &actorID,
	})
	if err != nil {
		return nil, err
	}
	if err := txPayments.LinkSessions(ctx, payment.ID, req.SessionIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntityPayment, payment.ID, models.AuditActionCreate, actor,
		fmt.Sprintf("Created payment of %s INR for mentor ID: %d covering %d sessions",
			payment.TotalAmount.StringFixed(2), payment.MentorID, len(req.SessionIDs)))
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("payment %d created but audit write failed: %w", payment.ID, err)
	}

	settled, result, err := s.settle(ctx, actor, payment, mentor, req.SessionIDs)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{Payment: settled, SessionIDs: req.SessionIDs, Settlement: result}, nil
}

// Settle re-attempts settlement of an existing payment, e.g. after a
// transient processor outage left it FAILED.
func (s *PaymentService) Settle(ctx context.Context, actor models.Actor, paymentID int64) (*PaymentOutcome, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	mentor, err := s.userRepo.GetByID(ctx, payment.MentorID)
	if err != nil {
		return nil, err
	}
	sessionIDs, err := s.paymentRepo.SessionIDs(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	settled, result, err := s.settle(ctx, actor, payment, mentor, sessionIDs)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{Payment: settled, SessionIDs: sessionIDs, Settlement: result}, nil
}

// settle tries the gateway first and falls back to direct settlement on
// processor failure. Direct settlement completes immediately; a gateway
// charge stays PENDING until ConfirmPayment.
func (s *PaymentService) settle(ctx context.Context, actor models.Actor, payment *models.Payment, mentor *models.User, sessionIDs []int64) (*models.Payment, *SettlementResult, error) {
	if payment.Status == models.PaymentStatusCompleted {
		return nil, nil, fmt.Errorf("%w: payment %d is already completed", ErrInvalidStateTransition, payment.ID)
	}

	charge, err := s.gateway.CreateCharge(ctx, minorUnits(payment.TotalAmount), settlementCurrency,
		fmt.Sprintf("Payment for mentor ID: %d", payment.MentorID),
		map[string]string{
			"payment_id": fmt.Sprintf("%d", payment.ID),
			"mentor_id":  fmt.Sprintf("%d", payment.MentorID),
		})
	if err == nil {
		transactionID := charge.ID
		updated, updateErr := s.paymentRepo.UpdateSettlement(ctx, payment.ID, models.PaymentStatusPending, &transactionID, payment.Notes)
		if updateErr != nil {
			return nil, nil, updateErr
		}
		result := &SettlementResult{
			Method:        models.SettlementMethodGateway,
			TransactionID: charge.ID,
			ClientSecret:  charge.ClientSecret,
		}
		return updated, result, nil
	}
	if !gateway.IsProcessorError(err) {
		return nil, nil, s.failSettlement(ctx, actor, payment, err)
	}
	log.Printf("gateway charge for payment %d failed, settling directly: %v", payment.ID, err)

	transactionID := directTransactionID()
	notes := mergeNotes(payment.Notes, directSettlementNote(payment, mentor))
	updated, err := s.paymentRepo.UpdateSettlement(ctx, payment.ID, models.PaymentStatusCompleted, &transactionID, notes)
	if err != nil {
		return nil, nil, err
	}

	s.markSessionsPaid(ctx, actor, sessionIDs)

	entry := auditEntry(models.AuditEntityPayment, payment.ID, models.AuditActionPaymentCompleted, actor,
		fmt.Sprintf("Payment processed via direct bank transfer, transaction ID: %s", transactionID))
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("audit write for completed payment %d failed: %v", payment.ID, err)
	}

	result := &SettlementResult{Method: models.SettlementMethodDirect, TransactionID: transactionID}
	return updated, result, nil
}

// ConfirmPayment finishes a gateway settlement once the charge has succeeded
// client-side: it issues the mentor payout and marks the batch COMPLETED.
func (s *PaymentService) ConfirmPayment(ctx context.Context, actor models.Actor, paymentID int64, paymentIntentID string) (*PaymentOutcome, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment %d is already completed", ErrInvalidStateTransition, paymentID)
	}

	mentor, err := s.userRepo.GetByID(ctx, payment.MentorID)
	if err != nil {
		return nil, err
	}
	sessionIDs, err := s.paymentRepo.SessionIDs(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	method := models.SettlementMethodGateway
	payoutNote := ""
	payout, err := s.gateway.CreatePayout(ctx, minorUnits(payment.TotalAmount), settlementCurrency,
		payoutDescription(mentor))
	if err != nil {
		if !gateway.IsProcessorError(err) {
			return nil, s.failSettlement(ctx, actor, payment, err)
		}
		log.Printf("gateway payout for payment %d failed, recording direct payout: %v", paymentID, err)
		method = models.SettlementMethodDirect
		payoutNote = directPayoutNote(payment, mentor)
	} else {
		payoutNote = fmt.Sprintf("Payout created: %s", payout.ID)
	}

	transactionID := strings.TrimSpace(paymentIntentID)
	if transactionID == "" {
		if payment.TransactionID != nil {
			transactionID = *payment.TransactionID
		} else {
			transactionID = directTransactionID()
		}
	}

	updated, err := s.paymentRepo.UpdateSettlement(ctx, paymentID, models.PaymentStatusCompleted,
		&transactionID, mergeNotes(payment.Notes, payoutNote))
	if err != nil {
		return nil, err
	}

	s.markSessionsPaid(ctx, actor, sessionIDs)

	entry := auditEntry(models.AuditEntityPayment, paymentID, models.AuditActionPaymentCompleted, actor,
		fmt.Sprintf("Payment processed successfully, transaction ID: %s", transactionID))
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("audit write for completed payment %d failed: %v", paymentID, err)
	}

	result := &SettlementResult{Method: method, TransactionID: transactionID}
	return &PaymentOutcome{Payment: updated, SessionIDs: sessionIDs, Settlement: result}, nil
}

// failSettlement marks the payment FAILED with the cause appended to its
// notes and records the failure in the audit trail.
func (s *PaymentService) failSettlement(ctx context.Context, actor models.Actor, payment *models.Payment, cause error) error {
	notes := mergeNotes(payment.Notes, fmt.Sprintf("Payment error: %v", cause))
	if _, err := s.paymentRepo.UpdateSettlement(ctx, payment.ID, models.PaymentStatusFailed, payment.TransactionID, notes); err != nil {
		log.Printf("marking payment %d failed: %v", payment.ID, err)
	}

	entry := auditEntry(models.AuditEntityPayment, payment.ID, models.AuditActionPaymentFailed, actor,
		fmt.Sprintf("Payment failed: %v", cause))
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("audit write for failed payment %d failed: %v", payment.ID, err)
	}
	return fmt.Errorf("%w: %v", ErrSettlementFailed, cause)
}

// markSessionsPaid moves the batch members from APPROVED to PAID. Sessions
// already PAID from an earlier attempt are left alone.
func (s *PaymentService) markSessionsPaid(ctx context.Context, actor models.Actor, sessionIDs []int64) {
	for _, sessionID := range sessionIDs {
		updated, err := s.sessionRepo.UpdateStatusIfCurrent(ctx, sessionID, models.SessionStatusApproved, models.SessionStatusPaid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				current, getErr := s.sessionRepo.GetByID(ctx, sessionID)
				if getErr == nil && current.Status == models.SessionStatusPaid {
					continue
				}
			}
			log.Printf("marking session %d paid: %v", sessionID, err)
			continue
		}

		previous := models.SessionStatusApproved
		entry := auditEntry(models.AuditEntitySession, sessionID, models.AuditActionStatusChange, actor,
			fmt.Sprintf("Updated session status to PAID for session ID: %d", sessionID))
		entry.PreviousValue = &previous
		entry.NewValue = &updated.Status
		if err := s.audit.Record(ctx, entry); err != nil {
			log.Printf("audit write for paid session %d failed: %v", sessionID, err)
		}
	}
}

func (s *PaymentService) GetPayment(ctx context.Context, actor models.Actor, paymentID int64) (*models.PaymentDetail, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if actor.HasRole(models.RoleMentor) && payment.MentorID != actor.ID {
		return nil, ErrForbidden
	}
	if !actor.HasRole(models.RoleMentor) && !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	sessionIDs, err := s.paymentRepo.SessionIDs(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &models.PaymentDetail{Payment: *payment, SessionIDs: sessionIDs}, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, actor models.Actor, filter repository.PaymentListFilter) ([]models.Payment, int, error) {
	if actor.HasRole(models.RoleMentor) {
		filter.MentorID = actor.ID
	} else if !actor.HasRole(models.RoleAdmin) {
		return nil, 0, ErrForbidden
	}

	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.paymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// SetStatus is the manual override for operators. It does not cascade to
// sessions and does not attempt settlement.
func (s *PaymentService) SetStatus(ctx context.Context, actor models.Actor, paymentID int64, status string) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if !models.ValidPaymentStatus(status) {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, status)
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	actorID := actor.ID
	updated, err := s.paymentRepo.UpdateStatus(ctx, paymentID, status, &actorID)
	if err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntityPayment, paymentID, models.AuditActionStatusUpdate, actor,
		fmt.Sprintf("Updated payment status to %s for payment ID: %d", status, paymentID))
	entry.PreviousValue = &payment.Status
	entry.NewValue = &updated.Status
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("payment %d status updated but audit write failed: %w", paymentID, err)
	}
	return updated, nil
}

// DeletePayment removes the batch and reverts its sessions to APPROVED so
// they can be settled again.
func (s *PaymentService) DeletePayment(ctx context.Context, actor models.Actor, paymentID int64) error {
	if !actor.HasRole(models.RoleAdmin) {
		return ErrForbidden
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	txPayments := repository.NewPaymentRepository(tx)
	txSessions := repository.NewSessionRepository(tx)

	payment, err := txPayments.GetByIDForUpdate(ctx, paymentID)
	if err != nil {
		return err
	}
	sessionIDs, err := txPayments.SessionIDs(ctx, paymentID)
	if err != nil {
		return err
	}

	for _, sessionID := range sessionIDs {
		if _, err := txSessions.UpdateStatus(ctx, sessionID, models.SessionStatusApproved); err != nil {
			return fmt.Errorf("revert session %d: %w", sessionID, err)
		}
	}
	if err := txPayments.Delete(ctx, paymentID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, sessionID := range sessionIDs {
		previous := models.SessionStatusPaid
		next := models.SessionStatusApproved
		entry := auditEntry(models.AuditEntitySession, sessionID, models.AuditActionStatusChange, actor,
			fmt.Sprintf("Reverted session to APPROVED after deleting payment ID: %d", paymentID))
		entry.PreviousValue = &previous
		entry.NewValue = &next
		if err := s.audit.Record(ctx, entry); err != nil {
			log.Printf("audit write for reverted session %d failed: %v", sessionID, err)
		}
	}

	entry := auditEntry(models.AuditEntityPayment, paymentID, models.AuditActionDelete, actor,
		fmt.Sprintf("Deleted payment of %s INR for mentor ID: %d", payment.TotalAmount.StringFixed(2), payment.MentorID))
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("audit write for deleted payment %d failed: %v", paymentID, err)
	}
	return nil
}

// Simulate runs the full payment calculation without persisting or settling
// anything.
func (s *PaymentService) Simulate(ctx context.Context, actor models.Actor, req CreatePaymentRequest) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}

	amounts, err := billing.CalculatePayment(req.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rounded := amounts.Rounded()

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now().UTC()
	}
	return &models.Payment{
		MentorID:        req.MentorID,
		TotalAmount:     rounded.NetPayable,
		BaseAmount:      rounded.GrossAmount,
		GSTAmount:       rounded.GSTAmount,
		GSTRate:         rounded.GSTRate,
		PlatformFee:     rounded.PlatformFee,
		PlatformFeeRate: rounded.PlatformFeeRate,
		OtherDeductions: decimal.Zero,
		PaymentDate:     paymentDate,
		Status:          models.PaymentStatusPending,
		Notes:           req.Notes,
		IsSimulation:    true,
	}, nil
}

// Exists reports whether a payment with the given id is present. The audit
// trail handler uses it before listing entries for the payment.
func (s *PaymentService) Exists(ctx context.Context, paymentID int64) error {
	_, err := s.paymentRepo.GetByID(ctx, paymentID)
	return err
}

// validatePaymentBatch checks the mentor and every session in the batch.
// All-or-nothing: the first problem rejects the request.
func validatePaymentBatch(
	ctx context.Context,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	payments *repository.PaymentRepository,
	req CreatePaymentRequest,
) (*models.User, error) {
	mentor, err := users.GetByID(ctx, req.MentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMentorNotFound
		}
		return nil, err
	}
	if mentor.Role != models.RoleMentor {
		return nil, fmt.Errorf("%w: user %d is not a mentor", ErrValidation, req.MentorID)
	}
	if !mentor.HasCompleteBankDetails() {
		return nil, fmt.Errorf("%w: mentor %d has incomplete bank details", ErrValidation, req.MentorID)
	}

	for _, sessionID := range req.SessionIDs {
		session, err := sessions.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: session %d not found", ErrValidation, sessionID)
			}
			return nil, err
		}
		if session.MentorID != req.MentorID {
			return nil, fmt.Errorf("%w: session %d belongs to a different mentor", ErrValidation, sessionID)
		}
		if session.Status != models.SessionStatusApproved {
			return nil, fmt.Errorf("%w: session %d is %s, only APPROVED sessions can be paid", ErrValidation, sessionID, session.Status)
		}
		if activeID, found, err := payments.ActivePaymentIDForSession(ctx, sessionID); err != nil {
			return nil, err
		} else if found {
			return nil, fmt.Errorf("%w: session %d is already part of pending payment %d", ErrValidation, sessionID, activeID)
		}
	}
	return mentor, nil
}

func validatePaymentRequest(req CreatePaymentRequest) error {
	if req.MentorID <= 0 {
		return fmt.Errorf("%w: mentor id is required", ErrValidation)
	}
	if len(req.SessionIDs) == 0 {
		return fmt.Errorf("%w: at least one session is required", ErrValidation)
	}
	seen := make(map[int64]struct{}, len(req.SessionIDs))
	for _, id := range req.SessionIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid session id %d", ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate session id %d", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	if req.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: total amount must be greater than 0", ErrValidation)
	}
	return nil
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// directTransactionID generates the reference recorded when settlement
// happens outside the gateway.
func directTransactionID() string {
	return "DIR" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func directPayoutID() string {
	return "PO" + uuid.NewString()
}

func payoutDescription(mentor *models.User) string {
	bank := ""
	account := ""
	if mentor.BankName != nil {
		bank = *mentor.BankName
	}
	if mentor.AccountNumber != nil {
		account = *mentor.AccountNumber
	}
	return fmt.Sprintf("Payout to: %s (%s - %s)", mentor.FullName, bank, account)
}

func bankDetailsNote(mentor *models.User) string {
	bank := ""
	account := ""
	holder := mentor.FullName
	if mentor.BankName != nil {
		bank = *mentor.BankName
	}
	if mentor.AccountNumber != nil {
		account = *mentor.AccountNumber
	}
	if mentor.AccountHolderName != nil {
		holder = *mentor.AccountHolderName
	}
	return fmt.Sprintf("Bank: %s, Account: %s, Holder: %s", bank, account, holder)
}

func directSettlementNote(payment *models.Payment, mentor *models.User) string {
	return fmt.Sprintf(
		"Direct payout to: %s\nOriginal Amount: %s INR\nGST Deduction (%s): %s INR\nPlatform Fee (%s): %s INR\nFinal Payable Amount: %s INR",
		mentor.FullName,
		payment.BaseAmount.StringFixed(2),
		payment.GSTRate, payment.GSTAmount.StringFixed(2),
		payment.PlatformFeeRate, payment.PlatformFee.StringFixed(2),
		payment.TotalAmount.StringFixed(2),
	)
}

func directPayoutNote(payment *models.Payment, mentor *models.User) string {
	return fmt.Sprintf("Direct payout %s recorded for %s: %s INR",
		directPayoutID(), mentor.FullName, payment.TotalAmount.StringFixed(2))
}

func mergeNotes(existing *string, line string) *string {
	line = strings.TrimSpace(line)
	if line == "" {
		return existing
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &line
	}
	merged := strings.TrimSpace(*existing) + "\n" + line
	return &merged
}
