package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

const (
	SettlementMethodGateway = "gateway"
	SettlementMethodDirect  = "direct"
)

// Payment is one settlement batch to one mentor. TotalAmount holds the net
// payable figure after GST and platform fee are deducted; BaseAmount always
// keeps the gross input so callers can recover the original total.
type Payment struct {
	ID              int64           `json:"id"`
	MentorID        int64           `json:"mentor_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	GSTAmount       decimal.Decimal `json:"gst_amount"`
	GSTRate         string          `json:"gst_rate"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	PlatformFeeRate string          `json:"platform_fee_rate"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
	PaymentDate     time.Time       `json:"payment_date"`
	TransactionID   *string         `json:"transaction_id"`
	Status          string          `json:"status"`
	ReceiptURL      *string         `json:"receipt_url"`
	ReceiptSent     bool            `json:"receipt_sent"`
	ReceiptSentAt   *time.Time      `json:"receipt_sent_at"`
	Notes           *string         `json:"notes"`
	ProcessedBy     *int64          `json:"processed_by"`
	CreatedBy       *int64          `json:"created_by"`
	UpdatedBy       *int64          `json:"updated_by"`
	IsSimulation    bool            `json:"is_simulation"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentDetail pairs a payment with its member session ids.
type PaymentDetail struct {
	Payment
	SessionIDs []int64 `json:"session_ids"`
}

func ValidPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}
