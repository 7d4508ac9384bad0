package Invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"Voltway/Billing"
	"Voltway/Models"
	"Voltway/Payments"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRenderer renders a template to a stored file path.
type DocumentRenderer interface {
	Render(template string, data interface{}) (string, error)
}

// Notifier delivers the generated invoice to the requester.
type Notifier interface {
	PushToUser(userID uint, title, body, category, deepLink string) error
}

// Reconciler creates exactly one invoice per completed booking: prices it
// through the billing engine, pulls the payment capture from the
// processor, persists the invoice, renders the document and hands it to
// the notification and mail collaborators. Everything past persistence is
// best-effort.
type Reconciler struct {
	DB       *gorm.DB
	Billing  *Billing.Engine
	Payments Payments.Processor
	Renderer DocumentRenderer
	Notifier Notifier
}

func NewReconciler(db *gorm.DB, billing *Billing.Engine, payments Payments.Processor, renderer DocumentRenderer, notifier Notifier) *Reconciler {
	return &Reconciler{
		DB:       db,
		Billing:  billing,
		Payments: payments,
		Renderer: renderer,
		Notifier: notifier,
	}
}

// invoiceDocument is the template binding for the rendered invoice.
type invoiceDocument struct {
	Invoice   Models.Invoice
	Booking   Models.Booking
	Breakdown Billing.Breakdown
	IssuedAt  string
}

// Reconcile prices and persists the invoice for a booking. Idempotent:
// a booking that already has an invoice gets it returned unchanged, no
// matter how often the terminal transition is re-delivered.
func (r *Reconciler) Reconcile(bookingID uint) (*Models.Invoice, error) {
	var booking Models.Booking
	if err := r.DB.Preload("User").First(&booking, bookingID).Error; err != nil {
		return nil, fmt.Errorf("load booking %d: %w", bookingID, err)
	}

	// Second idempotency guard, independent of the ledger's.
	var existing Models.Invoice
	err := r.DB.Where("booking_id = ?", bookingID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	breakdown := r.Billing.Compute(Billing.Input{
		Levels:      booking.ChargeReadings.Data(),
		StartedAt:   booking.ChargeStartedAt,
		EndedAt:     booking.ChargeEndedAt,
		DiscountPct: r.discountFor(booking.CouponCode),
	})
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}

	invoice := Models.Invoice{
		InvoiceNo:       Models.InvoiceNoFor(booking.BookingNo),
		BookingID:       booking.ID,
		UserID:          booking.UserID,
		Amount:          breakdown.Total,
		Currency:        breakdown.Currency,
		Status:          Models.InvoicePending,
		Breakdown:       breakdownJSON,
		PaymentIntentID: booking.PaymentIntentID,
		GeneratedAt:     time.Now(),
	}

	// Payment capture details are copied forward when available. A
	// processor failure or a booking without a payment intent still
	// produces an invoice, just an unpaid one.
	if booking.PaymentIntentID != "" && r.Payments != nil {
		capture, err := r.Payments.RetrieveCapture(booking.PaymentIntentID)
		if err != nil {
			log.Printf("Payment capture lookup failed for %s: %v", booking.BookingNo, err)
		} else {
			invoice.Status = Models.InvoiceApproved
			invoice.CapturedAmount = capture.Amount
			invoice.Currency = capture.Currency
			invoice.TransactionID = capture.TransactionID
			invoice.ReceiptURL = capture.ReceiptURL
			invoice.CardBrand = capture.CardBrand
			invoice.CardLast4 = capture.CardLast4
			invoice.CardExpMonth = capture.CardExpMonth
			invoice.CardExpYear = capture.CardExpYear
		}
	}

	// Insert-once. If a concurrent reconciliation won the insert, return
	// its invoice instead of ours.
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}},
		DoNothing: true,
	}).Create(&invoice)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.DB.Where("booking_id = ?", bookingID).First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}

	r.deliver(&invoice, &booking, breakdown)
	return &invoice, nil
}

// Backfill copies capture details onto an invoice that was persisted
// before the processor confirmed. Invoked by the payment webhook handler.
func (r *Reconciler) Backfill(invoiceNo string) (*Models.Invoice, error) {
	var invoice Models.Invoice
	if err := r.DB.Where("invoice_no = ?", invoiceNo).First(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.Status == Models.InvoiceApproved || invoice.PaymentIntentID == "" || r.Payments == nil {
		return &invoice, nil
	}
	capture, err := r.Payments.RetrieveCapture(invoice.PaymentIntentID)
	if err != nil {
		return &invoice, err
	}
	invoice.Status = Models.InvoiceApproved
	invoice.CapturedAmount = capture.Amount
	invoice.Currency = capture.Currency
	invoice.TransactionID = capture.TransactionID
	invoice.ReceiptURL = capture.ReceiptURL
	invoice.CardBrand = capture.CardBrand
	invoice.CardLast4 = capture.CardLast4
	invoice.CardExpMonth = capture.CardExpMonth
	invoice.CardExpYear = capture.CardExpYear
	if err := r.DB.Save(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// deliver renders the invoice document and hands it to the push and mail
// collaborators. Failures here are logged and never unwind the persisted
// invoice.
func (r *Reconciler) deliver(invoice *Models.Invoice, booking *Models.Booking, breakdown Billing.Breakdown) {
	if r.Renderer != nil {
		path, err := r.Renderer.Render("invoice", invoiceDocument{
			Invoice:   *invoice,
			Booking:   *booking,
			Breakdown: breakdown,
			IssuedAt:  invoice.GeneratedAt.Format("2 Jan 2006 15:04"),
		})
		if err != nil {
			log.Printf("Invoice document rendering failed for %s: %v", invoice.InvoiceNo, err)
		} else {
			invoice.DocumentPath = path
			if err := r.DB.Model(&Models.Invoice{}).Where("id = ?", invoice.ID).
				Update("document_path", path).Error; err != nil {
				log.Printf("Failed to store document path for %s: %v", invoice.InvoiceNo, err)
			}
		}
	}

	if r.Notifier != nil {
		if err := r.Notifier.PushToUser(booking.UserID, "Invoice ready",
			fmt.Sprintf("Your invoice %s for %.2f %s is ready", invoice.InvoiceNo, invoice.Amount, invoice.Currency),
			"invoice_ready", "/invoices/"+invoice.InvoiceNo); err != nil {
			log.Printf("Invoice push failed for %s: %v", invoice.InvoiceNo, err)
		}
	}

	if booking.User.Email != "" {
		queued := Models.QueuedEmail{
			Recipient:      booking.User.Email,
			Subject:        "Your Voltway invoice " + invoice.InvoiceNo,
			Body:           invoiceEmailBody(invoice, booking),
			IsHTML:         true,
			AttachmentPath: invoice.DocumentPath,
		}
		if err := r.DB.Create(&queued).Error; err != nil {
			log.Printf("Failed to queue invoice email for %s: %v", invoice.InvoiceNo, err)
		}
	}
}

// discountFor resolves a coupon code to its percentage. Unknown, inactive
// or expired codes price as zero discount rather than failing the
// invoice.
func (r *Reconciler) discountFor(code string) float64 {
	if code == "" {
		return 0
	}
	var coupon Models.Coupon
	if err := r.DB.Where("code = ? AND active = ?", code, true).First(&coupon).Error; err != nil {
		return 0
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(time.Now()) {
		return 0
	}
	return coupon.DiscountPct
}

func invoiceEmailBody(invoice *Models.Invoice, booking *Models.Booking) string {
	return fmt.Sprintf(
		"<p>Hi %s,</p><p>Your booking <b>%s</b> is complete. Invoice <b>%s</b> totals <b>%.2f %s</b>. The detailed breakdown is attached.</p><p>Thank you for charging with Voltway.</p>",
		booking.User.Name, booking.BookingNo, invoice.InvoiceNo, invoice.Amount, invoice.Currency)
}
