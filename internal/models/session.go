package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SessionStatusPending  = "PENDING"
	SessionStatusApproved = "APPROVED"
	SessionStatusPaid     = "PAID"
	SessionStatusRejected = "REJECTED"
)

// Session is one billable mentoring engagement. The amount fields are derived
// from duration/rate/deductions and recomputed on every write; values supplied
// by clients are never trusted.
type Session struct {
	ID                int64           `json:"id"`
	MentorID          int64           `json:"mentor_id"`
	SessionType       string          `json:"session_type"`
	DurationSeconds   int64           `json:"duration_seconds"`
	HourlyRate        decimal.Decimal `json:"hourly_rate"`
	SessionDate       time.Time       `json:"session_date"`
	RecordedDate      time.Time       `json:"recorded_date"`
	CalculatedAmount  decimal.Decimal `json:"calculated_amount"`
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	GSTAmount         decimal.Decimal `json:"gst_amount"`
	Deductions        decimal.Decimal `json:"deductions"`
	FinalPayoutAmount decimal.Decimal `json:"final_payout_amount"`
	Status            string          `json:"status"`
	Notes             *string         `json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func ValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusPending, SessionStatusApproved, SessionStatusPaid, SessionStatusRejected:
		return true
	default:
		return false
	}
}
