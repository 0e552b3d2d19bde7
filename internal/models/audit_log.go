package models

import "time"

const (
	AuditEntityPayment = "PAYMENT"
	AuditEntitySession = "SESSION"
	AuditEntityUser    = "USER"
)

const (
	AuditActionCreate           = "CREATE"
	AuditActionUpdate           = "UPDATE"
	AuditActionDelete           = "DELETE"
	AuditActionStatusChange     = "STATUS_CHANGE"
	AuditActionStatusUpdate     = "STATUS_UPDATE"
	AuditActionPaymentCompleted = "PAYMENT_COMPLETED"
	AuditActionPaymentFailed    = "PAYMENT_FAILED"
	AuditActionReceiptGenerated = "RECEIPT_GENERATED"
	AuditActionReceiptSent      = "RECEIPT_SENT"
)

// AuditLog is an append-only record of a state transition or settlement event.
// Entries are never mutated or deleted.
type AuditLog struct {
	ID            int64     `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      int64     `json:"entity_id"`
	Action        string    `json:"action"`
	ActorID       *int64    `json:"actor_id"`
	Timestamp     time.Time `json:"timestamp"`
	PreviousValue *string   `json:"previous_value"`
	NewValue      *string   `json:"new_value"`
	Notes         *string   `json:"notes"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
