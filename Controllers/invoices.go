package Controllers

import (
	"Voltway/Invoices"
	"Voltway/Models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// InvoiceHandler contains handler methods for invoice routes
type InvoiceHandler struct {
	DB         *gorm.DB
	Reconciler *Invoices.Reconciler
}

func NewInvoiceHandler(db *gorm.DB, reconciler *Invoices.Reconciler) *InvoiceHandler {
	return &InvoiceHandler{DB: db, Reconciler: reconciler}
}

// GetMyInvoices lists the caller's invoices, newest first.
// GET /api/invoices
func (h *InvoiceHandler) GetMyInvoices(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not logged in",
		})
	}

	var invoices []Models.Invoice
	if err := h.DB.Where("user_id = ?", user.ID).Order("id desc").Find(&invoices).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch invoices",
		})
	}
	return c.JSON(invoices)
}

// GetInvoice fetches one invoice by its number.
// GET /api/invoices/:invoice_no
func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(Models.User)

	var invoice Models.Invoice
	err := h.DB.Preload("Booking").Where("invoice_no = ?", c.Params("invoice_no")).First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Invoice not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}
	if user.Permission < Models.PermissionOperator && invoice.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not your invoice",
		})
	}
	return c.JSON(invoice)
}

// DownloadDocument streams the rendered invoice document.
// GET /api/invoices/:invoice_no/document
func (h *InvoiceHandler) DownloadDocument(c *fiber.Ctx) error {
	user, _ := c.Locals("user").(Models.User)

	var invoice Models.Invoice
	err := h.DB.Where("invoice_no = ?", c.Params("invoice_no")).First(&invoice).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invoice not found",
		})
	}
	if user.Permission < Models.PermissionOperator && invoice.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not your invoice",
		})
	}
	if invoice.DocumentPath == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No document was generated for this invoice",
		})
	}
	return c.Download(invoice.DocumentPath, invoice.InvoiceNo+".html")
}

// BackfillCapture re-queries the payment processor for an invoice that
// was persisted before its capture confirmed, and copies the details
// forward. Operator action, also called from the payment webhook.
// POST /api/invoices/:invoice_no/backfill
func (h *InvoiceHandler) BackfillCapture(c *fiber.Ctx) error {
	invoice, err := h.Reconciler.Backfill(c.Params("invoice_no"))
	if err != nil {
		if invoice != nil {
			// Invoice stands; only the capture lookup failed.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "Payment processor unavailable",
				"message": err.Error(),
				"invoice": invoice,
			})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invoice not found",
		})
	}
	return c.JSON(invoice)
}
