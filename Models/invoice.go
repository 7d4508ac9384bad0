package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoiceApproved InvoiceStatus = "approved"
	InvoiceFailed   InvoiceStatus = "failed"
)

// Invoice is created exactly once per booking, at its terminal hand-back
// transition. The unique index on booking_id doubles as the second
// idempotency guard: reconciliation never re-runs for a booking that
// already has an invoice. Payment capture fields may be backfilled later
// if the processor confirms asynchronously.
type Invoice struct {
	gorm.Model
	InvoiceNo string `json:"invoice_no" gorm:"size:20;uniqueIndex;not null"`
	BookingID uint   `json:"booking_id" gorm:"uniqueIndex;not null"`
	UserID    uint   `json:"user_id" gorm:"index;not null"`

	Amount   float64       `json:"amount" gorm:"not null"`
	Currency string        `json:"currency" gorm:"size:3;default:AED"`
	Status   InvoiceStatus `json:"status" gorm:"size:20;default:pending"`

	// Priced line-item breakdown as produced by the billing engine,
	// kept verbatim for document rendering and audit.
	Breakdown datatypes.JSON `json:"breakdown"`

	// Payment capture details copied from the processor.
	PaymentIntentID string  `json:"payment_intent_id" gorm:"size:64"`
	TransactionID   string  `json:"transaction_id" gorm:"size:64"`
	ReceiptURL      string  `json:"receipt_url" gorm:"size:512"`
	CapturedAmount  float64 `json:"captured_amount"`
	CardBrand       string  `json:"card_brand" gorm:"size:20"`
	CardLast4       string  `json:"card_last4" gorm:"size:4"`
	CardExpMonth    int     `json:"card_exp_month"`
	CardExpYear     int     `json:"card_exp_year"`

	GeneratedAt  time.Time `json:"generated_at"`
	DocumentPath string    `json:"document_path" gorm:"size:255"`

	Booking Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

func (Invoice) TableName() string {
	return "invoices"
}
