package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord states.
const (
	PaymentStatusCreated  = "created"
	PaymentStatusCaptured = "captured"
	PaymentStatusLinked   = "linked"
	PaymentStatusRejected = "rejected"
)

// PaymentRecord is the durable trace of an online payment attempt. A row is
// written in "captured" state before order creation is attempted, keyed by
// the gateway payment id, so a payment can never be captured and then lost:
// captured rows without an OrderID are reconciliation candidates.
type PaymentRecord struct {
	BaseModel
	UserID         uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	GatewayOrderID string     `gorm:"index" json:"gateway_order_id"`
	PaymentID      string     `gorm:"uniqueIndex" json:"payment_id"`
	AmountPaise    int64      `json:"amount_paise"`
	Currency       string     `json:"currency"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	OrderID        *uuid.UUID `gorm:"type:uuid" json:"order_id"`
	CapturedAt     *time.Time `json:"captured_at"`
	FailureReason  string     `json:"failure_reason"`
}
