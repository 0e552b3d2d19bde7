package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
)

var testTime = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

var (
	adminActor  = models.Actor{ID: 1, Role: models.RoleAdmin}
	mentorActor = models.Actor{ID: 42, Role: models.RoleMentor}
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch target := dest[i].(type) {
		case *int64:
			*target = r.values[i].(int64)
		case *int:
			*target = r.values[i].(int)
		case *string:
			*target = r.values[i].(string)
		case **string:
			*target = r.values[i].(*string)
		case *bool:
			*target = r.values[i].(bool)
		case *time.Time:
			*target = r.values[i].(time.Time)
		case **time.Time:
			*target = r.values[i].(*time.Time)
		case **int64:
			*target = r.values[i].(*int64)
		case *decimal.Decimal:
			*target = r.values[i].(decimal.Decimal)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubRows struct {
	rows [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.idx < len(r.rows) {
		r.idx++
		return true
	}
	return false
}

func (r *stubRows) Scan(dest ...any) error {
	return stubRow{values: r.rows[r.idx-1]}.Scan(dest...)
}

func (r *stubRows) Values() ([]any, error) { return r.rows[r.idx-1], nil }

type stubDBTX struct {
	queryRowFn func(ctx context.Context, query string, args ...any) stubRow
	queryFn    func(ctx context.Context, query string, args ...any) *stubRows
	execFn     func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

func (db *stubDBTX) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if db.execFn != nil {
		return db.execFn(ctx, query, args...)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (db *stubDBTX) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if db.queryFn != nil {
		return db.queryFn(ctx, query, args...), nil
	}
	return nil, errors.New("not implemented")
}

func (db *stubDBTX) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return db.queryRowFn(ctx, query, args...)
}

type stubUserReader struct {
	user *models.User
	err  error
}

func (r *stubUserReader) GetByID(_ context.Context, _ int64) (*models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.user, nil
}

type stubAudit struct {
	entries []models.AuditLog
	err     error
}

func (a *stubAudit) Record(_ context.Context, entry models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *stubAudit) lastAction() string {
	if len(a.entries) == 0 {
		return ""
	}
	return a.entries[len(a.entries)-1].Action
}

func (a *stubAudit) hasAction(action string) bool {
	for _, entry := range a.entries {
		if entry.Action == action {
			return true
		}
	}
	return false
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

// sessionRowValues matches the sessions column order used by the repository.
func sessionRowValues(id, mentorID int64, status string) []any {
	return []any{
		id, mentorID, "LIVE", int64(3600), dec("1000"),
		testTime, testTime, dec("1000"), dec("100"), dec("180"),
		dec("0"), dec("900"), status, (*string)(nil), testTime, testTime,
	}
}

func testMentor(id int64) *models.User {
	bank := "HDFC Bank"
	account := "50100123456789"
	holder := "Asha Rao"
	return &models.User{
		ID:                id,
		Username:          "asha",
		Email:             "asha@example.com",
		FullName:          "Asha Rao",
		Role:              models.RoleMentor,
		BankName:          &bank,
		AccountNumber:     &account,
		AccountHolderName: &holder,
	}
}

func TestSessionServiceCreateSessionComputesAmounts(t *testing.T) {
	var insertArgs []any
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, query string, args ...any) stubRow {
			if strings.Contains(query, "INSERT INTO sessions") {
				insertArgs = args
				return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPending)}
			}
			return stubRow{err: pgx.ErrNoRows}
		},
	})
	audit := &stubAudit{}
	service := NewSessionService(sessionRepo, &stubUserReader{user: testMentor(42)}, audit)

	session, err := service.CreateSession(context.Background(), adminActor, SessionInput{
		MentorID:        42,
		SessionType:     " LIVE ",
		DurationSeconds: 3600,
		HourlyRate:      dec("1000"),
		SessionDate:     testTime,
		RecordedDate:    testTime,
		Deductions:      decimal.Zero,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID != 10 || session.Status != models.SessionStatusPending {
		t.Fatalf("unexpected session: %+v", session)
	}

	// Args: mentor, type, duration, rate, dates, calc, fee, gst, ded, final, notes.
	if got := insertArgs[1].(string); got != "LIVE" {
		t.Fatalf("expected trimmed session type, got %q", got)
	}
	if calc := insertArgs[6].(decimal.Decimal); !calc.Equal(dec("1000")) {
		t.Fatalf("expected calculated amount 1000, got %s", calc)
	}
	if fee := insertArgs[7].(decimal.Decimal); !fee.Equal(dec("100")) {
		t.Fatalf("expected platform fee 100, got %s", fee)
	}
	if gst := insertArgs[8].(decimal.Decimal); !gst.Equal(dec("180")) {
		t.Fatalf("expected gst 180, got %s", gst)
	}
	if final := insertArgs[10].(decimal.Decimal); !final.Equal(dec("900")) {
		t.Fatalf("expected final payout 900, got %s", final)
	}

	if audit.lastAction() != models.AuditActionCreate {
		t.Fatalf("expected CREATE audit entry, got %q", audit.lastAction())
	}
}

func TestSessionServiceCreateSessionRequiresAdmin(t *testing.T) {
	service := NewSessionService(nil, nil, nil)

	_, err := service.CreateSession(context.Background(), mentorActor, SessionInput{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSessionServiceCreateSessionRejectsUnknownMentor(t *testing.T) {
	service := NewSessionService(nil, &stubUserReader{err: pgx.ErrNoRows}, &stubAudit{})

	_, err := service.CreateSession(context.Background(), adminActor, SessionInput{
		MentorID:        7,
		SessionType:     "LIVE",
		DurationSeconds: 3600,
		HourlyRate:      dec("1000"),
		SessionDate:     testTime,
		RecordedDate:    testTime,
	})
	if !errors.Is(err, ErrMentorNotFound) {
		t.Fatalf("expected ErrMentorNotFound, got %v", err)
	}
}

func TestSessionServiceCreateSessionRejectsBadInput(t *testing.T) {
	service := NewSessionService(nil, &stubUserReader{user: testMentor(42)}, &stubAudit{})

	cases := []SessionInput{
		{MentorID: 0, SessionType: "LIVE", DurationSeconds: 3600, HourlyRate: dec("1000"), SessionDate: testTime, RecordedDate: testTime},
		{MentorID: 42, SessionType: "  ", DurationSeconds: 3600, HourlyRate: dec("1000"), SessionDate: testTime, RecordedDate: testTime},
		{MentorID: 42, SessionType: "LIVE", DurationSeconds: 0, HourlyRate: dec("1000"), SessionDate: testTime, RecordedDate: testTime},
		{MentorID: 42, SessionType: "LIVE", DurationSeconds: 3600, HourlyRate: decimal.Zero, SessionDate: testTime, RecordedDate: testTime},
		{MentorID: 42, SessionType: "LIVE", DurationSeconds: 3600, HourlyRate: dec("1000"), Deductions: dec("-5"), SessionDate: testTime, RecordedDate: testTime},
		{MentorID: 42, SessionType: "LIVE", DurationSeconds: 3600, HourlyRate: dec("1000")},
	}
	for i, input := range cases {
		if _, err := service.CreateSession(context.Background(), adminActor, input); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestSessionServiceApproveFromPending(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "AND status = $2") {
				return stubRow{values: sessionRowValues(10, 42, models.SessionStatusApproved)}
			}
			if strings.Contains(query, "FROM sessions WHERE id = $1") {
				return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPending)}
			}
			return stubRow{err: pgx.ErrNoRows}
		},
	})
	audit := &stubAudit{}
	service := NewSessionService(sessionRepo, nil, audit)

	session, err := service.Approve(context.Background(), adminActor, 10)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if session.Status != models.SessionStatusApproved {
		t.Fatalf("expected APPROVED, got %q", session.Status)
	}

	if audit.lastAction() != models.AuditActionStatusChange {
		t.Fatalf("expected STATUS_CHANGE audit entry, got %q", audit.lastAction())
	}
	entry := audit.entries[len(audit.entries)-1]
	if entry.PreviousValue == nil || *entry.PreviousValue != models.SessionStatusPending {
		t.Fatalf("expected previous value PENDING, got %+v", entry.PreviousValue)
	}
	if entry.NewValue == nil || *entry.NewValue != models.SessionStatusApproved {
		t.Fatalf("expected new value APPROVED, got %+v", entry.NewValue)
	}
}

func TestSessionServiceApproveRejectsNonPending(t *testing.T) {
	for _, status := range []string{models.SessionStatusApproved, models.SessionStatusPaid, models.SessionStatusRejected} {
		sessionRepo := repository.NewSessionRepository(&stubDBTX{
			queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
				return stubRow{values: sessionRowValues(10, 42, status)}
			},
		})
		service := NewSessionService(sessionRepo, nil, &stubAudit{})

		_, err := service.Approve(context.Background(), adminActor, 10)
		if !errors.Is(err, ErrInvalidStateTransition) {
			t.Fatalf("status %s: expected ErrInvalidStateTransition, got %v", status, err)
		}
	}
}

func TestSessionServiceApproveLostRace(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
			if strings.Contains(query, "AND status = $2") {
				return stubRow{err: pgx.ErrNoRows}
			}
			return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPending)}
		},
	})
	service := NewSessionService(sessionRepo, nil, &stubAudit{})

	_, err := service.Approve(context.Background(), adminActor, 10)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on lost race, got %v", err)
	}
}

func TestSessionServiceRejectFromPendingAndApproved(t *testing.T) {
	for _, status := range []string{models.SessionStatusPending, models.SessionStatusApproved} {
		sessionRepo := repository.NewSessionRepository(&stubDBTX{
			queryRowFn: func(_ context.Context, query string, _ ...any) stubRow {
				if strings.Contains(query, "AND status = $2") {
					return stubRow{values: sessionRowValues(10, 42, models.SessionStatusRejected)}
				}
				return stubRow{values: sessionRowValues(10, 42, status)}
			},
		})
		service := NewSessionService(sessionRepo, nil, &stubAudit{})

		session, err := service.Reject(context.Background(), adminActor, 10)
		if err != nil {
			t.Fatalf("Reject from %s: %v", status, err)
		}
		if session.Status != models.SessionStatusRejected {
			t.Fatalf("expected REJECTED, got %q", session.Status)
		}
	}
}

func TestSessionServiceRejectPaidSession(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPaid)}
		},
	})
	service := NewSessionService(sessionRepo, nil, &stubAudit{})

	_, err := service.Reject(context.Background(), adminActor, 10)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestSessionServiceGetSessionScopesMentor(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPending)}
		},
	})
	service := NewSessionService(sessionRepo, nil, &stubAudit{})

	if _, err := service.GetSession(context.Background(), mentorActor, 10); err != nil {
		t.Fatalf("GetSession own session: %v", err)
	}

	other := models.Actor{ID: 99, Role: models.RoleMentor}
	if _, err := service.GetSession(context.Background(), other, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign session, got %v", err)
	}
}

func TestSessionServiceUpdateRejectsPaidSession(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPaid)}
		},
	})
	service := NewSessionService(sessionRepo, &stubUserReader{user: testMentor(42)}, &stubAudit{})

	_, err := service.UpdateSession(context.Background(), adminActor, 10, SessionInput{
		MentorID:        42,
		SessionType:     "LIVE",
		DurationSeconds: 3600,
		HourlyRate:      dec("1000"),
		SessionDate:     testTime,
		RecordedDate:    testTime,
	})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestSessionServiceDeleteRejectsPaidSession(t *testing.T) {
	sessionRepo := repository.NewSessionRepository(&stubDBTX{
		queryRowFn: func(_ context.Context, _ string, _ ...any) stubRow {
			return stubRow{values: sessionRowValues(10, 42, models.SessionStatusPaid)}
		},
	})
	service := NewSessionService(sessionRepo, nil, &stubAudit{})

	err := service.DeleteSession(context.Background(), adminActor, 10)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestSessionServiceCalculatePreview(t *testing.T) {
	service := NewSessionService(nil, nil, nil)

	amounts, err := service.CalculatePreview(5400, dec("800"), dec("50"))
	if err != nil {
		t.Fatalf("CalculatePreview: %v", err)
	}
	if !amounts.CalculatedAmount.Equal(dec("1200")) {
		t.Fatalf("expected calculated amount 1200, got %s", amounts.CalculatedAmount)
	}
	if !amounts.FinalPayoutAmount.Equal(dec("1030")) {
		t.Fatalf("expected final payout 1030, got %s", amounts.FinalPayoutAmount)
	}

	if _, err := service.CalculatePreview(0, dec("800"), decimal.Zero); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
