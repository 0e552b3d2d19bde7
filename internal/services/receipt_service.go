package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Payment Receipt #{{.Payment.ID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; color: #222; }
h1 { font-size: 20px; border-bottom: 2px solid #222; padding-bottom: 8px; }
table { border-collapse: collapse; width: 100%; margin-top: 16px; }
td, th { border: 1px solid #ccc; padding: 8px 12px; text-align: left; }
.total { font-weight: bold; }
.footer { margin-top: 24px; font-size: 12px; color: #777; }
</style>
</head>
<body>
<h1>Payment Receipt</h1>
<p>Receipt for payment <strong>#{{.Payment.ID}}</strong> issued to <strong>{{.Mentor.FullName}}</strong> on {{.Payment.PaymentDate.Format "02 Jan 2006"}}.</p>
<table>
<tr><th>Description</th><th>Amount (INR)</th></tr>
<tr><td>Gross Amount</td><td>{{.Payment.BaseAmount.StringFixed 2}}</td></tr>
<tr><td>GST ({{.Payment.GSTRate}})</td><td>-{{.Payment.GSTAmount.StringFixed 2}}</td></tr>
<tr><td>Platform Fee ({{.Payment.PlatformFeeRate}})</td><td>-{{.Payment.PlatformFee.StringFixed 2}}</td></tr>
<tr class="total"><td>Net Payable</td><td>{{.Payment.TotalAmount.StringFixed 2}}</td></tr>
</table>
{{if .Payment.TransactionID}}<p>Transaction reference: {{.Payment.TransactionID}}</p>{{end}}
<p>Sessions covered: {{.SessionCount}}</p>
<div class="footer">This receipt was generated automatically. Please retain it for your records.</div>
</body>
</html>
`))

// Mailer sends rendered receipts to mentors. The production implementation
// lives in the mail package.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// ReceiptService renders HTML receipts for completed payments, stores them
// and emails them to the mentor.
type ReceiptService struct {
	paymentRepo *repository.PaymentRepository
	userRepo    mentorReader
	storage     StorageService
	mailer      Mailer
	audit       auditRecorder
}

func NewReceiptService(
	paymentRepo *repository.PaymentRepository,
	userRepo mentorReader,
	storage StorageService,
	mailer Mailer,
	audit auditRecorder,
) *ReceiptService {
	return &ReceiptService{
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		storage:     storage,
		mailer:      mailer,
		audit:       audit,
	}
}

// Generate renders the receipt for a completed payment, uploads it and stores
// the resulting URL on the payment. Regenerating overwrites the stored
// object.
func (s *ReceiptService) Generate(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if s.storage == nil {
		return nil, errors.New("receipt storage is not configured")
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: receipts are only issued for completed payments", ErrInvalidStateTransition)
	}

	mentor, err := s.userRepo.GetByID(ctx, payment.MentorID)
	if err != nil {
		return nil, err
	}
	sessionIDs, err := s.paymentRepo.SessionIDs(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	html, err := renderReceipt(payment, mentor, len(sessionIDs))
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("receipt-%d.html", paymentID)
	receiptURL, err := s.storage.UploadFile(ctx, strings.NewReader(html), filename, "receipts", "text/html; charset=utf-8")
	if err != nil {
		return nil, fmt.Errorf("store receipt for payment %d: %w", paymentID, err)
	}

	updated, err := s.paymentRepo.SetReceiptURL(ctx, paymentID, receiptURL)
	if err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntityPayment, paymentID, models.AuditActionReceiptGenerated, actor,
		fmt.Sprintf("Generated receipt for payment ID: %d", paymentID))
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("receipt for payment %d generated but audit write failed: %w", paymentID, err)
	}
	return updated, nil
}

// Send emails the receipt to the mentor, generating it first if needed.
func (s *ReceiptService) Send(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ReceiptURL == nil {
		payment, err = s.Generate(ctx, actor, paymentID)
		if err != nil {
			return nil, err
		}
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: receipts are only issued for completed payments", ErrInvalidStateTransition)
	}

	mentor, err := s.userRepo.GetByID(ctx, payment.MentorID)
	if err != nil {
		return nil, err
	}
	if mentor.Email == "" {
		return nil, fmt.Errorf("%w: mentor %d has no email address", ErrValidation, mentor.ID)
	}
	sessionIDs, err := s.paymentRepo.SessionIDs(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	html, err := renderReceipt(payment, mentor, len(sessionIDs))
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Payment Receipt #%d - %s INR", payment.ID, payment.TotalAmount.StringFixed(2))
	if err := s.mailer.Send(mentor.Email, subject, html); err != nil {
		return nil, fmt.Errorf("send receipt for payment %d: %w", paymentID, err)
	}

	updated, err := s.paymentRepo.MarkReceiptSent(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntityPayment, paymentID, models.AuditActionReceiptSent, actor,
		fmt.Sprintf("Sent receipt for payment ID: %d to %s", paymentID, mentor.Email))
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("receipt for payment %d sent but audit write failed: %w", paymentID, err)
	}
	return updated, nil
}

func renderReceipt(payment *models.Payment, mentor *models.User, sessionCount int) (string, error) {
	if payment == nil || mentor == nil {
		return "", errors.New("render receipt: missing payment or mentor")
	}

	var buf bytes.Buffer
	data := struct {
		Payment      *models.Payment
		Mentor       *models.User
		SessionCount int
	}{payment, mentor, sessionCount}
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}
