package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
)

const sessionColumns = `id, mentor_id, session_type, duration_seconds, hourly_rate,
	session_date, recorded_date, calculated_amount, platform_fee, gst_amount,
	deductions, final_payout_amount, status, notes, created_at, updated_at`

type CreateSessionInput struct {
	MentorID          int64
	SessionType       string
	DurationSeconds   int64
	HourlyRate        decimal.Decimal
	SessionDate       time.Time
	RecordedDate      time.Time
	CalculatedAmount  decimal.Decimal
	PlatformFee       decimal.Decimal
	GSTAmount         decimal.Decimal
	Deductions        decimal.Decimal
	FinalPayoutAmount decimal.Decimal
	Notes             *string
}

type UpdateSessionInput struct {
	SessionType       string
	DurationSeconds   int64
	HourlyRate        decimal.Decimal
	SessionDate       time.Time
	RecordedDate      time.Time
	CalculatedAmount  decimal.Decimal
	PlatformFee       decimal.Decimal
	GSTAmount         decimal.Decimal
	Deductions        decimal.Decimal
	FinalPayoutAmount decimal.Decimal
	Notes             *string
}

type SessionListFilter struct {
	MentorID int64
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	Limit    int
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row interface{ Scan(dest ...any) error }, session *models.Session) error {
	return row.Scan(
		&session.ID,
		&session.MentorID,
		&session.SessionType,
		&session.DurationSeconds,
		&session.HourlyRate,
		&session.SessionDate,
		&session.RecordedDate,
		&session.CalculatedAmount,
		&session.PlatformFee,
		&session.GSTAmount,
		&session.Deductions,
		&session.FinalPayoutAmount,
		&session.Status,
		&session.Notes,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
}

func (r *SessionRepository) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	query := `
		INSERT INTO sessions (mentor_id, session_type, duration_seconds, hourly_rate,
			session_date, recorded_date, calculated_amount, platform_fee, gst_amount,
			deductions, final_payout_amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'PENDING', $12)
		RETURNING ` + sessionColumns

	var session models.Session
	err := scanSession(r.db.QueryRow(ctx, query,
		input.MentorID,
		input.SessionType,
		input.DurationSeconds,
		input.HourlyRate,
		input.SessionDate,
		input.RecordedDate,
		input.CalculatedAmount,
		input.PlatformFee,
		input.GSTAmount,
		input.Deductions,
		input.FinalPayoutAmount,
		input.Notes,
	), &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var session models.Session
	if err := scanSession(r.db.QueryRow(ctx, query, sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	var session models.Session
	if err := scanSession(r.db.QueryRow(ctx, query, sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Update(ctx context.Context, sessionID int64, input UpdateSessionInput) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET session_type = $2, duration_seconds = $3, hourly_rate = $4,
			session_date = $5, recorded_date = $6, calculated_amount = $7,
			platform_fee = $8, gst_amount = $9, deductions = $10,
			final_payout_amount = $11, notes = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns

	var session models.Session
	err := scanSession(r.db.QueryRow(ctx, query,
		sessionID,
		input.SessionType,
		input.DurationSeconds,
		input.HourlyRate,
		input.SessionDate,
		input.RecordedDate,
		input.CalculatedAmount,
		input.PlatformFee,
		input.GSTAmount,
		input.Deductions,
		input.FinalPayoutAmount,
		input.Notes,
	), &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID int64, status string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns
	var session models.Session
	if err := scanSession(r.db.QueryRow(ctx, query, sessionID, status), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateStatusIfCurrent performs a compare-and-swap on the status column and
// returns pgx.ErrNoRows when the session is no longer in currentStatus.
func (r *SessionRepository) UpdateStatusIfCurrent(ctx context.Context, sessionID int64, currentStatus, nextStatus string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns
	var session models.Session
	if err := scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found", sessionID)
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context, filter SessionListFilter) ([]models.Session, error) {
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
		whereParts = append(whereParts, fmt.Sprintf("recorded_date >= $%d", len(args)))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		whereParts = append(whereParts, fmt.Sprintf("recorded_date <= $%d", len(args)))
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
		FROM sessions
		%s
		ORDER BY session_date DESC, id DESC
		%s
	`, sessionColumns, where, limitClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var session models.Session
		if err := scanSession(rows, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) Count(ctx context.Context, filter SessionListFilter) (int, error) {
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
	query := fmt.Sprintf(`SELECT COUNT(*) FROM sessions %s`, where)
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
