package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
)

const paymentColumns = `id, mentor_id, total_amount, base_amount, gst_amount, gst_rate,
	platform_fee, platform_fee_rate, other_deductions, payment_date, transaction_id,
	status, receipt_url, receipt_sent, receipt_sent_at, notes, processed_by,
	created_by, updated_by, is_simulation, created_at, updated_at`

type CreatePaymentInput struct {
	MentorID        int64
	TotalAmount     decimal.Decimal
	BaseAmount      decimal.Decimal
	GSTAmount       decimal.Decimal
	GSTRate         string
	PlatformFee     decimal.Decimal
	PlatformFeeRate string
	OtherDeductions decimal.Decimal
	PaymentDate     time.Time
	Notes           *string
	ProcessedBy     *int64
	CreatedBy       *int64
	IsSimulation    bool
}

type PaymentListFilter struct {
	MentorID int64
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	Limit    int
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row interface{ Scan(dest ...any) error }, payment *models.Payment) error {
	return row.Scan(
		&payment.ID,
		&payment.MentorID,
		&payment.TotalAmount,
		&payment.BaseAmount,
		&payment.GSTAmount,
		&payment.GSTRate,
		&payment.PlatformFee,
		&payment.PlatformFeeRate,
		&payment.OtherDeductions,
		&payment.PaymentDate,
		&payment.TransactionID,
		&payment.Status,
		&payment.ReceiptURL,
		&payment.ReceiptSent,
		&payment.ReceiptSentAt,
		&payment.Notes,
		&payment.ProcessedBy,
		&payment.CreatedBy,
		&payment.UpdatedBy,
		&payment.IsSimulation,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (mentor_id, total_amount, base_amount, gst_amount, gst_rate,
			platform_fee, platform_fee_rate, other_deductions, payment_date, status,
			notes, processed_by, created_by, is_simulation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING', $10, $11, $12, $13)
		RETURNING ` + paymentColumns

	var payment models.Payment
	err := scanPayment(r.db.QueryRow(ctx, query,
		input.MentorID,
		input.TotalAmount,
		input.BaseAmount,
		input.GSTAmount,
		input.GSTRate,
		input.PlatformFee,
		input.PlatformFeeRate,
		input.OtherDeductions,
		input.PaymentDate,
		input.Notes,
		input.ProcessedBy,
		input.CreatedBy,
		input.IsSimulation,
	), &payment)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// LinkSessions records payment membership in the payment_sessions join table.
func (r *PaymentRepository) LinkSessions(ctx context.Context, paymentID int64, sessionIDs []int64) error {
	for _, sessionID := range sessionIDs {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO payment_sessions (payment_id, session_id) VALUES ($1, $2)`,
			paymentID, sessionID,
		); err != nil {
			return fmt.Errorf("link session %d: %w", sessionID, err)
		}
	}
	return nil
}

func (r *PaymentRepository) SessionIDs(ctx context.Context, paymentID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT session_id FROM payment_sessions WHERE payment_id = $1 ORDER BY session_id ASC`,
		paymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, paymentID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateSettlement records the outcome of a settlement attempt: status,
// transaction id and notes in one write.
func (r *PaymentRepository) UpdateSettlement(ctx context.Context, paymentID int64, status string, transactionID *string, notes *string) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, transaction_id = $3, notes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID, status, transactionID, notes), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID int64, status string, updatedBy *int64) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID, status, updatedBy), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) SetReceiptURL(ctx context.Context, paymentID int64, receiptURL string) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET receipt_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID, receiptURL), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) MarkReceiptSent(ctx context.Context, paymentID int64) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET receipt_sent = TRUE, receipt_sent_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns
	var payment models.Payment
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Delete(ctx context.Context, paymentID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM payment_sessions WHERE payment_id = $1`, paymentID); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d not found", paymentID)
	}
	return nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentListFilter) ([]models.Payment, error) {
	args := []any{}
	whereParts := []string{}

	if filter.MentorID > 0 {
		args = append(args, filter.MentorID)
		whereParts = append(whereParts, fmt.Sprintf("mentor_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		whereParts = append(whereParts, fmt.Sprintf("payment_date >= $%d", len(args)))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		whereParts = append(whereParts, fmt.Sprintf("payment_date <= $%d", len(args)))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}

	limitClause := ""
	if filter.Limit > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.Limit
		}
		limitClause = fmt.Sprintf("LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		%s
		ORDER BY payment_date DESC, id DESC
		%s
	`, paymentColumns, where, limitClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0)
	for rows.Next() {
		var payment models.Payment
		if err := scanPayment(rows, &payment); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) Count(ctx context.Context, filter PaymentListFilter) (int, error) {
	args := []any{}
	whereParts := []string{}

	if filter.MentorID > 0 {
		args = append(args, filter.MentorID)
		whereParts = append(whereParts, fmt.Sprintf("mentor_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}

	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM payments %s`, where)
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ActivePaymentIDForSession reports the unpaid settling payment (PENDING) a
// session already belongs to, if any. Used to keep a session in at most one
// active batch.
func (r *PaymentRepository) ActivePaymentIDForSession(ctx context.Context, sessionID int64) (int64, bool, error) {
	query := `
		SELECT p.id
		FROM payments p
		JOIN payment_sessions ps ON ps.payment_id = p.id
		WHERE ps.session_id = $1 AND p.status = 'PENDING'
		ORDER BY p.id DESC
		LIMIT 1
	`
	var paymentID int64
	err := r.db.QueryRow(ctx, query, sessionID).Scan(&paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return paymentID, true, nil
}
