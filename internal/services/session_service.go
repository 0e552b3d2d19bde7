package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/billing"
	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMentorNotFound         = errors.New("mentor not found")
	ErrSettlementFailed       = errors.New("settlement failed")
)

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog) error
}

type mentorReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionService owns the session state machine:
// PENDING -> APPROVED -> PAID, with REJECTED reachable from PENDING and
// APPROVED. The PAID transitions (mark paid, revert to approved) belong to the
// payment flow and are not exposed here.
type SessionService struct {
	sessionRepo *repository.SessionRepository
	userRepo    mentorReader
	audit       auditRecorder
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	userRepo mentorReader,
	audit auditRecorder,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		audit:       audit,
	}
}

type SessionInput struct {
	MentorID        int64
	SessionType     string
	DurationSeconds int64
	HourlyRate      decimal.Decimal
	SessionDate     time.Time
	RecordedDate    time.Time
	Deductions      decimal.Decimal
	Notes           *string
}

func (s *SessionService) CreateSession(ctx context.Context, actor models.Actor, input SessionInput) (*models.Session, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if err := validateSessionInput(input); err != nil {
		return nil, err
	}

	mentor, err := s.userRepo.GetByID(ctx, input.MentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMentorNotFound
		}
		return nil, err
	}
	if mentor.Role != models.RoleMentor {
		return nil, fmt.Errorf("%w: user %d is not a mentor", ErrValidation, input.MentorID)
	}

	// Derived amounts are always recomputed from duration/rate/deductions;
	// anything the client sent for them is discarded.
	amounts, err := billing.CalculateSession(input.DurationSeconds, input.HourlyRate, input.Deductions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rounded := amounts.Rounded()

	session, err := s.sessionRepo.Create(ctx, repository.CreateSessionInput{
		MentorID:          input.MentorID,
		SessionType:       strings.TrimSpace(input.SessionType),
		DurationSeconds:   input.DurationSeconds,
		HourlyRate:        input.HourlyRate,
		SessionDate:       input.SessionDate,
		RecordedDate:      input.RecordedDate,
		CalculatedAmount:  rounded.CalculatedAmount,
		PlatformFee:       rounded.PlatformFee,
		GSTAmount:         rounded.GSTAmount,
		Deductions:        input.Deductions,
		FinalPayoutAmount: rounded.FinalPayoutAmount,
		Notes:             input.Notes,
	})
	if err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntitySession, session.ID, models.AuditActionCreate, actor,
		fmt.Sprintf("Created session with ID: %d", session.ID))
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("session %d created but audit write failed: %w", session.ID, err)
	}
	return session, nil
}

func (s *SessionService) UpdateSession(ctx context.Context, actor models.Actor, sessionID int64, input SessionInput) (*models.Session, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if err := validateSessionInput(input); err != nil {
		return nil, err
	}

	existing, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.SessionStatusPaid {
		return nil, fmt.Errorf("%w: paid sessions cannot be edited", ErrInvalidStateTransition)
	}

	amounts, err := billing.CalculateSession(input.DurationSeconds, input.HourlyRate, input.Deductions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rounded := amounts.Rounded()

	session, err := s.sessionRepo.Update(ctx, sessionID, repository.UpdateSessionInput{
		SessionType:       strings.TrimSpace(input.SessionType),
		DurationSeconds:   input.DurationSeconds,
		HourlyRate:        input.HourlyRate,
		SessionDate:       input.SessionDate,
		RecordedDate:      input.RecordedDate,
		CalculatedAmount:  rounded.CalculatedAmount,
		PlatformFee:       rounded.PlatformFee,
		GSTAmount:         rounded.GSTAmount,
		Deductions:        input.Deductions,
		FinalPayoutAmount: rounded.FinalPayoutAmount,
		Notes:             input.Notes,
	})
	if err != nil {
		return nil, err
	}

	entry := auditEntry(models.AuditEntitySession, session.ID, models.AuditActionUpdate, actor,
		fmt.Sprintf("Updated session with ID: %d", session.ID))
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("session %d updated but audit write failed: %w", session.ID, err)
	}
	return session, nil
}

// Approve moves a session from PENDING to APPROVED. Any other source state is
// an invalid transition.
func (s *SessionService) Approve(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error) {
	return s.transition(ctx, actor, sessionID, models.SessionStatusApproved,
		[]string{models.SessionStatusPending})
}

// Reject moves a session from PENDING or APPROVED to REJECTED. Paid sessions
// cannot be rejected.
func (s *SessionService) Reject(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error) {
	return s.transition(ctx, actor, sessionID, models.SessionStatusRejected,
		[]string{models.SessionStatusPending, models.SessionStatusApproved})
}

func (s *SessionService) transition(ctx context.Context, actor models.Actor, sessionID int64, nextStatus string, allowedFrom []string) (*models.Session, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range allowedFrom {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, session.Status, nextStatus)
	}

	previousStatus := session.Status
	updated, err := s.sessionRepo.UpdateStatusIfCurrent(ctx, sessionID, previousStatus, nextStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race: someone else moved the session first.
			return nil, fmt.Errorf("%w: session %d is no longer %s", ErrInvalidStateTransition, sessionID, previousStatus)
		}
		return nil, err
	}

	entry := auditEntry(models.AuditEntitySession, sessionID, models.AuditActionStatusChange, actor,
		fmt.Sprintf("Updated session status to %s for session ID: %d", nextStatus, sessionID))
	entry.PreviousValue = &previousStatus
	entry.NewValue = &updated.Status
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("session %d transitioned but audit write failed: %w", sessionID, err)
	}
	return updated, nil
}

func (s *SessionService) GetSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.HasRole(models.RoleMentor) && session.MentorID != actor.ID {
		return nil, ErrForbidden
	}
	if !actor.HasRole(models.RoleMentor) && !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	return session, nil
}

func (s *SessionService) ListSessions(ctx context.Context, actor models.Actor, filter repository.SessionListFilter) ([]models.Session, int, error) {
	if actor.HasRole(models.RoleMentor) {
		filter.MentorID = actor.ID
	} else if !actor.HasRole(models.RoleAdmin) {
		return nil, 0, ErrForbidden
	}

	sessions, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sessionRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (s *SessionService) DeleteSession(ctx context.Context, actor models.Actor, sessionID int64) error {
	if !actor.HasRole(models.RoleAdmin) {
		return ErrForbidden
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionStatusPaid {
		return fmt.Errorf("%w: delete the enclosing payment first", ErrInvalidStateTransition)
	}

	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return err
	}

	entry := auditEntry(models.AuditEntitySession, sessionID, models.AuditActionDelete, actor,
		fmt.Sprintf("Deleted session with ID: %d", sessionID))
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("session %d deleted but audit write failed: %w", sessionID, err)
	}
	return nil
}

// CalculatePreview runs the session amount calculation without persisting
// anything, for the admin-side preview form.
func (s *SessionService) CalculatePreview(durationSeconds int64, hourlyRate, deductions decimal.Decimal) (billing.SessionAmounts, error) {
	amounts, err := billing.CalculateSession(durationSeconds, hourlyRate, deductions)
	if err != nil {
		return billing.SessionAmounts{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return amounts.Rounded(), nil
}

func validateSessionInput(input SessionInput) error {
	if input.MentorID <= 0 {
		return fmt.Errorf("%w: mentor id is required", ErrValidation)
	}
	if strings.TrimSpace(input.SessionType) == "" {
		return fmt.Errorf("%w: session type is required", ErrValidation)
	}
	if input.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be greater than 0", ErrValidation)
	}
	if input.HourlyRate.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: hourly rate must be greater than 0", ErrValidation)
	}
	if input.Deductions.IsNegative() {
		return fmt.Errorf("%w: deductions must not be negative", ErrValidation)
	}
	if input.SessionDate.IsZero() || input.RecordedDate.IsZero() {
		return fmt.Errorf("%w: session date and recorded date are required", ErrValidation)
	}
	return nil
}
