package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

type stubReceiptStorage struct {
	uploadURL       string
	uploadErr       error
	lastContent     string
	lastFilename    string
	lastFolder      string
	lastContentType string
}

func (s *stubReceiptStorage) UploadFile(_ context.Context, content io.Reader, filename, folder, contentType string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	s.lastContent = string(data)
	s.lastFilename = filename
	s.lastFolder = folder
	s.lastContentType = contentType
	return s.uploadURL, s.uploadErr
}

func (s *stubReceiptStorage) DeleteFile(_ context.Context, _ string) error { return nil }

func (s *stubReceiptStorage) GetSignedURL(_ context.Context, fileURL string) (string, error) {
	return fileURL, nil
}

type stubMailer struct {
	err         error
	lastTo      string
	lastSubject string
	lastBody    string
}

func (m *stubMailer) Send(to, subject, htmlBody string) error {
	m.lastTo = to
	m.lastSubject = subject
	m.lastBody = htmlBody
	return m.err
}

func receiptTestDB(status string, receiptURL *string) *stubDBTX {
	return &stubDBTX{
		queryRowFn: func(_ context.Context, query string, args ...any) stubRow {
			switch {
			case strings.Contains(query, "receipt_url = $2"):
				url := args[1].(string)
				values := paymentRowValues(1, 42, status, (*string)(nil))
				values[12] = &url
				return stubRow{values: values}
			case strings.Contains(query, "receipt_sent = TRUE"):
				values := paymentRowValues(1, 42, status, (*string)(nil))
				values[12] = receiptURL
				values[13] = true
				now := time.Now()
				values[14] = &now
				return stubRow{values: values}
			case strings.Contains(query, "FROM payments WHERE id = $1"):
				values := paymentRowValues(1, 42, status, (*string)(nil))
				values[12] = receiptURL
				return stubRow{values: values}
			default:
				return stubRow{err: pgx.ErrNoRows}
			}
		},
		queryFn: func(_ context.Context, query string, _ ...any) *stubRows {
			if strings.Contains(query, "FROM payment_sessions") {
				return &stubRows{rows: [][]any{{int64(5)}, {int64(6)}}}
			}
			return &stubRows{}
		},
	}
}

func TestReceiptServiceGenerate(t *testing.T) {
	storage := &stubReceiptStorage{uploadURL: "https://storage/receipts/receipt-1.html"}
	audit := &stubAudit{}
	service := NewReceiptService(
		repository.NewPaymentRepository(receiptTestDB(models.PaymentStatusCompleted, nil)),
		&stubUserReader{user: testMentor(42)},
		storage,
		&stubMailer{},
		audit,
	)

	payment, err := service.Generate(context.Background(), adminActor, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if payment.ReceiptURL == nil || *payment.ReceiptURL != storage.uploadURL {
		t.Fatalf("expected receipt url stored, got %+v", payment.ReceiptURL)
	}
	if storage.lastFolder != "receipts" || storage.lastFilename != "receipt-1.html" {
		t.Fatalf("unexpected upload target: %s/%s", storage.lastFolder, storage.lastFilename)
	}
	if !strings.Contains(storage.lastContentType, "text/html") {
		t.Fatalf("expected html content type, got %q", storage.lastContentType)
	}
	if !strings.Contains(storage.lastContent, "Asha Rao") || !strings.Contains(storage.lastContent, "7200.00") {
		t.Fatalf("rendered receipt missing mentor or amount:\n%s", storage.lastContent)
	}

	if audit.lastAction() != models.AuditActionReceiptGenerated {
		t.Fatalf("expected RECEIPT_GENERATED audit entry, got %q", audit.lastAction())
	}
}

func TestReceiptServiceGenerateRequiresCompletedPayment(t *testing.T) {
	service := NewReceiptService(
		repository.NewPaymentRepository(receiptTestDB(models.PaymentStatusPending, nil)),
		&stubUserReader{user: testMentor(42)},
		&stubReceiptStorage{},
		&stubMailer{},
		&stubAudit{},
	)

	_, err := service.Generate(context.Background(), adminActor, 1)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestReceiptServiceSend(t *testing.T) {
	receiptURL := "https://storage/receipts/receipt-1.html"
	mailer := &stubMailer{}
	audit := &stubAudit{}
	service := NewReceiptService(
		repository.NewPaymentRepository(receiptTestDB(models.PaymentStatusCompleted, &receiptURL)),
		&stubUserReader{user: testMentor(42)},
		&stubReceiptStorage{uploadURL: receiptURL},
		mailer,
		audit,
	)

	payment, err := service.Send(context.Background(), adminActor, 1)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !payment.ReceiptSent {
		t.Fatal("expected receipt marked sent")
	}
	if mailer.lastTo != "asha@example.com" {
		t.Fatalf("unexpected recipient %q", mailer.lastTo)
	}
	if !strings.Contains(mailer.lastSubject, "Payment Receipt #1") {
		t.Fatalf("unexpected subject %q", mailer.lastSubject)
	}
	if !strings.Contains(mailer.lastBody, "Net Payable") {
		t.Fatalf("rendered email missing breakdown:\n%s", mailer.lastBody)
	}

	if audit.lastAction() != models.AuditActionReceiptSent {
		t.Fatalf("expected RECEIPT_SENT audit entry, got %q", audit.lastAction())
	}
}

func TestReceiptServiceSendSurfacesMailerFailure(t *testing.T) {
	receiptURL := "https://storage/receipts/receipt-1.html"
	sendErr := errors.New("smtp unreachable")
	audit := &stubAudit{}
	service := NewReceiptService(
		repository.NewPaymentRepository(receiptTestDB(models.PaymentStatusCompleted, &receiptURL)),
		&stubUserReader{user: testMentor(42)},
		&stubReceiptStorage{uploadURL: receiptURL},
		&stubMailer{err: sendErr},
		audit,
	)

	_, err := service.Send(context.Background(), adminActor, 1)
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected mailer error surfaced, got %v", err)
	}
	if audit.hasAction(models.AuditActionReceiptSent) {
		t.Fatal("receipt must not be marked sent after a mailer failure")
	}
}
